package handlers

import (
	"context"
	"errors"
	"time"

	"spotbot/internal/bot"
	"spotbot/internal/market"
	"spotbot/internal/models"
	"spotbot/internal/repository"
)

// ErrMockDatabase имитирует сбой хранилища
var ErrMockDatabase = errors.New("mock database error")

// ============================================================
// mockBotService
// ============================================================

type mockBotService struct {
	running  bool
	startErr error
	stopErr  error
	status   *bot.Status

	buyingSet *bool
	syncCalls int

	cancelErr    error
	cancelCalls  []int
	cancelAllN   int
	cancelAllErr error

	pending   []*models.OrderPair
	completed []*models.OrderPair

	reloadErr   error
	reloadCalls int
}

func newMockBotService() *mockBotService {
	return &mockBotService{
		status: &bot.Status{Running: true, Buying: true},
	}
}

func (m *mockBotService) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *mockBotService) Stop() error {
	if m.stopErr != nil {
		return m.stopErr
	}
	m.running = false
	return nil
}

func (m *mockBotService) IsRunning() bool { return m.running }

func (m *mockBotService) GetStatus() *bot.Status { return m.status }

func (m *mockBotService) SetBuyingEnabled(enabled bool) error {
	m.buyingSet = &enabled
	return nil
}

func (m *mockBotService) ForceSync(ctx context.Context) { m.syncCalls++ }

func (m *mockBotService) GetPendingOrders() ([]*models.OrderPair, error) {
	return m.pending, nil
}

func (m *mockBotService) GetCompletedPairs(limit int) ([]*models.OrderPair, error) {
	return m.completed, nil
}

func (m *mockBotService) CancelOrder(ctx context.Context, idx int, confirm bool) error {
	if !confirm {
		return bot.ErrConfirmationRequired
	}
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelCalls = append(m.cancelCalls, idx)
	return nil
}

func (m *mockBotService) CancelAllOrders(ctx context.Context, confirm bool) (int, error) {
	if !confirm {
		return 0, bot.ErrConfirmationRequired
	}
	return m.cancelAllN, m.cancelAllErr
}

func (m *mockBotService) ReloadConfig() error {
	if m.reloadErr != nil {
		return m.reloadErr
	}
	m.reloadCalls++
	return nil
}

// ============================================================
// mockPairReader
// ============================================================

type mockPairReader struct {
	active    []*models.OrderPair
	recent    []*models.OrderPair
	completed []*models.OrderPair
	byIndex   map[int]*models.OrderPair
	stats     *models.Stats
	err       error
}

func newMockPairReader() *mockPairReader {
	return &mockPairReader{byIndex: map[int]*models.OrderPair{}}
}

func (m *mockPairReader) GetActive() ([]*models.OrderPair, error) {
	return m.active, m.err
}

func (m *mockPairReader) GetRecent(limit int) ([]*models.OrderPair, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.recent) {
		return m.recent[:limit], nil
	}
	return m.recent, nil
}

func (m *mockPairReader) GetCompleted(limit int) ([]*models.OrderPair, error) {
	return m.completed, m.err
}

func (m *mockPairReader) GetByIndex(idx int) (*models.OrderPair, error) {
	if m.err != nil {
		return nil, m.err
	}
	pair, ok := m.byIndex[idx]
	if !ok {
		return nil, repository.ErrPairNotFound
	}
	return pair, nil
}

func (m *mockPairReader) GetStats() (*models.Stats, error) {
	return m.stats, m.err
}

// ============================================================
// mockMarketService / mockNotificationService
// ============================================================

type mockMarketService struct {
	snap   *market.Snapshot
	err    error
	params market.TradingParams
}

func (m *mockMarketService) Analyze(ctx context.Context) (*market.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snap, nil
}

func (m *mockMarketService) Params(snap *market.Snapshot) market.TradingParams {
	return m.params
}

type mockNotificationService struct {
	items   []*models.Notification
	deleted int64
	err     error
}

func (m *mockNotificationService) GetRecent(limit int) ([]*models.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.items) {
		return m.items[:limit], nil
	}
	return m.items, nil
}

func (m *mockNotificationService) DeleteOlderThan(cutoff time.Time) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.deleted, nil
}
