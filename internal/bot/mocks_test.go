package bot

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"spotbot/internal/config"
	"spotbot/internal/market"
	"spotbot/internal/models"
	"spotbot/internal/repository"
	"spotbot/pkg/breaker"
	"spotbot/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Format: "console", Output: "stderr"})
}

// testConfig возвращает конфиг с боевыми дефолтами для тестов воркеров
func testConfig() *config.Config {
	return &config.Config{
		Exchange: config.ExchangeConfig{
			MinOrderValueUSDC: 10.0,
		},
		Trading: config.TradingConfig{
			Symbol:            "BTC",
			MakerFeePercent:   0.04,
			BuyEnabled:        true,
			MinCheckInterval:  10 * time.Minute,
			SellCheckInterval: 120 * time.Second,
			SellPairDelay:     0,
			SellRetryDelay:    300 * time.Second,
			ReconcileInterval: 2 * time.Minute,
		},
	}
}

// ============================================================
// fakeExchange
// ============================================================

type placedOrder struct {
	symbol string
	side   string
	price  float64
	size   float64
}

type fakeExchange struct {
	mu sync.Mutex

	spot       float64
	spotErr    error
	balances   map[string]float64
	balanceErr error

	placed      []placedOrder
	placeErr    error
	nextOrderID int

	cancelled []string
	cancelErr error

	openOrders []models.RemoteOrder
	openErr    error
	fills      []models.RemoteFill
	fillsErr   error

	statuses  map[string]string // id -> нормализованный статус
	statusErr error

	balanceCalls int
	statusCalls  int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		spot:        65000,
		balances:    map[string]float64{},
		nextOrderID: 100,
	}
}

func (f *fakeExchange) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	if f.spotErr != nil {
		return 0, f.spotErr
	}
	return f.spot, nil
}

func (f *fakeExchange) GetAvailableBalance(ctx context.Context, asset string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balances[asset], nil
}

func (f *fakeExchange) PlaceLimitOrder(ctx context.Context, symbol, side string, price, size float64) (*models.RemoteOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.nextOrderID++
	f.placed = append(f.placed, placedOrder{symbol: symbol, side: side, price: price, size: size})
	return &models.RemoteOrder{
		ID:        strconv.Itoa(f.nextOrderID),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Size:      size,
		Status:    models.RemoteStatusOpen,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeExchange) GetOpenOrders(ctx context.Context) ([]models.RemoteOrder, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.openOrders, nil
}

func (f *fakeExchange) GetFills(ctx context.Context, since time.Time) ([]models.RemoteFill, error) {
	if f.fillsErr != nil {
		return nil, f.fillsErr
	}
	return f.fills, nil
}

func (f *fakeExchange) GetOrderStatus(ctx context.Context, orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if status, ok := f.statuses[orderID]; ok {
		return status, nil
	}
	return models.RemoteStatusUnknown, nil
}

func (f *fakeExchange) BreakerSnapshot() breaker.Snapshot {
	return breaker.Snapshot{Name: "exchange", State: "closed"}
}

func (f *fakeExchange) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

// ============================================================
// fakeLedger
// ============================================================

type fakeLedger struct {
	mu      sync.Mutex
	pairs   map[int]*models.OrderPair
	nextIdx int

	createErr     error
	recordSellErr error
	completeErr   error
	activeErr     error

	completedWithFee []float64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{pairs: map[int]*models.OrderPair{}}
}

func (l *fakeLedger) addPair(p *models.OrderPair) *models.OrderPair {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextIdx++
	p.Index = l.nextIdx
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().Add(-time.Hour)
	}
	l.pairs[p.Index] = p
	return p
}

func (l *fakeLedger) CreateBuyPair(pair *models.OrderPair) error {
	if l.createErr != nil {
		return l.createErr
	}
	pair.Status = models.PairStatusBuy
	l.addPair(pair)
	return nil
}

func (l *fakeLedger) RecordBuyFilled(buyOrderID string, filledSize float64, filledAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.pairs {
		if p.BuyOrderID == buyOrderID {
			if p.Status != models.PairStatusBuy {
				return nil // идемпотентность
			}
			p.Status = models.PairStatusSell
			p.QuantityBTC = filledSize
			t := filledAt
			p.BuyFilledAt = &t
			return nil
		}
	}
	return repository.ErrPairNotFound
}

func (l *fakeLedger) RecordSellOrderPlaced(idx int, sellOrderID string, sellPrice float64) error {
	if l.recordSellErr != nil {
		return l.recordSellErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pairs[idx]
	if !ok {
		return repository.ErrPairNotFound
	}
	if p.Status != models.PairStatusSell || p.HasSellOrder() {
		return repository.ErrInvalidTransition
	}
	id := sellOrderID
	p.SellOrderID = &id
	p.SellPrice = sellPrice
	now := time.Now()
	p.SellPlacedAt = &now
	return nil
}

func (l *fakeLedger) ClearSellOrder(idx int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pairs[idx]
	if !ok {
		return repository.ErrPairNotFound
	}
	p.SellOrderID = nil
	p.SellPlacedAt = nil
	return nil
}

func (l *fakeLedger) CompletePair(idx int, feeRate float64) error {
	if l.completeErr != nil {
		return l.completeErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pairs[idx]
	if !ok {
		return repository.ErrPairNotFound
	}
	if p.Status == models.PairStatusComplete {
		return nil
	}
	if p.Status != models.PairStatusSell {
		return repository.ErrInvalidTransition
	}
	if !p.HasSellOrder() {
		return repository.ErrNoSellOrder
	}
	gain := models.ComputeGain(p.BuyPrice, p.SellPrice, p.QuantityBTC, feeRate)
	p.Status = models.PairStatusComplete
	p.GainUSDC = &gain.NetUSDC
	p.GainPercent = &gain.NetPercent
	now := time.Now()
	p.CompletedAt = &now
	l.completedWithFee = append(l.completedWithFee, feeRate)
	return nil
}

func (l *fakeLedger) MarkCancelled(idx int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pairs[idx]
	if !ok {
		return repository.ErrPairNotFound
	}
	if IsFinal(p.Status) {
		return repository.ErrInvalidTransition
	}
	p.Status = models.PairStatusCancelled
	return nil
}

func (l *fakeLedger) GetByIndex(idx int) (*models.OrderPair, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pairs[idx]
	if !ok {
		return nil, repository.ErrPairNotFound
	}
	// Реальный репозиторий возвращает снимок из БД, а не общий указатель
	cp := *p
	return &cp, nil
}

func (l *fakeLedger) GetByStatus(status string) ([]*models.OrderPair, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.OrderPair
	for _, p := range l.pairs {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sortPairs(out)
	return out, nil
}

func (l *fakeLedger) GetActive() ([]*models.OrderPair, error) {
	if l.activeErr != nil {
		return nil, l.activeErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.OrderPair
	for _, p := range l.pairs {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	sortPairs(out)
	return out, nil
}

func (l *fakeLedger) GetAwaitingSell() ([]*models.OrderPair, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.OrderPair
	for _, p := range l.pairs {
		if p.Status == models.PairStatusSell && !p.HasSellOrder() {
			out = append(out, p)
		}
	}
	sortPairs(out)
	return out, nil
}

func (l *fakeLedger) GetRecent(limit int) ([]*models.OrderPair, error) {
	return l.GetActive()
}

func (l *fakeLedger) GetCompleted(limit int) ([]*models.OrderPair, error) {
	return l.GetByStatus(models.PairStatusComplete)
}

func (l *fakeLedger) GetLastCreated() (*models.OrderPair, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.nextIdx == 0 {
		return nil, repository.ErrPairNotFound
	}
	return l.pairs[l.nextIdx], nil
}

func (l *fakeLedger) GetStats() (*models.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := &models.Stats{TotalPairs: len(l.pairs)}
	for _, p := range l.pairs {
		switch p.Status {
		case models.PairStatusBuy:
			stats.BuyPending++
		case models.PairStatusSell:
			stats.SellPending++
		case models.PairStatusComplete:
			stats.Completed++
		case models.PairStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

func sortPairs(pairs []*models.OrderPair) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Index < pairs[j].Index })
}

// ============================================================
// fakeState
// ============================================================

type fakeState struct {
	mu    sync.Mutex
	times map[string]time.Time
	bools map[string]bool
}

func newFakeState() *fakeState {
	return &fakeState{times: map[string]time.Time{}, bools: map[string]bool{}}
}

func (s *fakeState) SetTime(key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[key] = t
	return nil
}

func (s *fakeState) GetTime(key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.times[key], nil
}

func (s *fakeState) SetBool(key string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bools[key] = v
	return nil
}

func (s *fakeState) GetBool(key string, def bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.bools[key]; ok {
		return v, nil
	}
	return def, nil
}

// ============================================================
// fakeClassifier / fakeNotifier / fakeHub
// ============================================================

type fakeClassifier struct {
	snap       *market.Snapshot
	analyzeErr error
	params     market.TradingParams
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{
		snap: &market.Snapshot{Market: market.TypeBull, Price: 65000},
		params: market.TradingParams{
			Market:       market.TypeBull,
			BuyOffset:    0,
			SellOffset:   1000,
			Percent:      3,
			TimePause:    10 * time.Minute,
			AutoInterval: 6 * time.Hour,
			BuyEnabled:   true,
			OffsetLabel:  "0/+1000",
		},
	}
}

func (c *fakeClassifier) Analyze(ctx context.Context) (*market.Snapshot, error) {
	if c.analyzeErr != nil {
		return nil, c.analyzeErr
	}
	return c.snap, nil
}

func (c *fakeClassifier) Params(snap *market.Snapshot) market.TradingParams {
	return c.params
}

type fakeNotifier struct {
	mu          sync.Mutex
	buyPlaced   int
	buyFilled   int
	sellPlaced  int
	completed   int
	errorEvents []string
}

func (n *fakeNotifier) NotifyBuyPlaced(pair *models.OrderPair) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buyPlaced++
}

func (n *fakeNotifier) NotifyBuyFilled(pair *models.OrderPair) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buyFilled++
}

func (n *fakeNotifier) NotifySellPlaced(pair *models.OrderPair) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sellPlaced++
}

func (n *fakeNotifier) NotifyPairCompleted(pair *models.OrderPair) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
}

func (n *fakeNotifier) NotifyError(event string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errorEvents = append(n.errorEvents, event)
}

type fakeHub struct {
	mu      sync.Mutex
	pairs   int
	stats   int
	markets int
}

func (h *fakeHub) BroadcastPairUpdate(pair *models.OrderPair) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pairs++
}

func (h *fakeHub) BroadcastStatsUpdate(stats *models.Stats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats++
}

func (h *fakeHub) BroadcastMarketUpdate(snap *market.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.markets++
}
