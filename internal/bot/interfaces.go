package bot

import (
	"context"
	"time"

	"spotbot/internal/market"
	"spotbot/internal/models"
	"spotbot/pkg/breaker"
)

// Exchange - операции отказоустойчивого биржевого клиента, нужные
// воркерам. Реализуется exchange.Client.
type Exchange interface {
	GetSpotPrice(ctx context.Context, symbol string) (float64, error)
	GetAvailableBalance(ctx context.Context, asset string) (float64, error)
	PlaceLimitOrder(ctx context.Context, symbol, side string, price, size float64) (*models.RemoteOrder, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// GetOpenOrders обязан возвращать nil при сбое, не пустой список:
	// сверка различает "ордеров нет" и "не удалось узнать"
	GetOpenOrders(ctx context.Context) ([]models.RemoteOrder, error)
	GetFills(ctx context.Context, since time.Time) ([]models.RemoteFill, error)

	// GetOrderStatus уточняет судьбу ордера, который не открыт и не
	// исполнялся: биржа различает отмену и неизвестный ID
	GetOrderStatus(ctx context.Context, orderID string) (string, error)

	BreakerSnapshot() breaker.Snapshot
}

// Ledger - журнал пар, единственная точка мутации их жизненного цикла.
// Реализуется repository.PairRepository.
type Ledger interface {
	CreateBuyPair(pair *models.OrderPair) error
	RecordBuyFilled(buyOrderID string, filledSize float64, filledAt time.Time) error
	RecordSellOrderPlaced(idx int, sellOrderID string, sellPrice float64) error
	ClearSellOrder(idx int) error
	CompletePair(idx int, feeRate float64) error
	MarkCancelled(idx int) error

	GetByIndex(idx int) (*models.OrderPair, error)
	GetByStatus(status string) ([]*models.OrderPair, error)
	GetActive() ([]*models.OrderPair, error)
	GetAwaitingSell() ([]*models.OrderPair, error)
	GetRecent(limit int) ([]*models.OrderPair, error)
	GetCompleted(limit int) ([]*models.OrderPair, error)
	GetLastCreated() (*models.OrderPair, error)
	GetStats() (*models.Stats, error)
}

// StateStore - персистентные флаги и отметки времени бота.
// Реализуется repository.StateRepository.
type StateStore interface {
	SetTime(key string, t time.Time) error
	GetTime(key string) (time.Time, error)
	SetBool(key string, v bool) error
	GetBool(key string, def bool) (bool, error)
}

// Classifier - анализатор рыночной фазы. Реализуется market.Analyzer.
type Classifier interface {
	Analyze(ctx context.Context) (*market.Snapshot, error)
	Params(snap *market.Snapshot) market.TradingParams
}

// Notifier - fire-and-forget уведомления о событиях торговли.
// Сбои нотификатора никогда не влияют на переходы статусов.
type Notifier interface {
	NotifyBuyPlaced(pair *models.OrderPair)
	NotifyBuyFilled(pair *models.OrderPair)
	NotifySellPlaced(pair *models.OrderPair)
	NotifyPairCompleted(pair *models.OrderPair)
	NotifyError(event string, err error)
}

// Hub - отправка live обновлений клиентам панели.
// Реализуется websocket.Hub.
type Hub interface {
	BroadcastPairUpdate(pair *models.OrderPair)
	BroadcastStatsUpdate(stats *models.Stats)
	BroadcastMarketUpdate(snap *market.Snapshot)
}
