package exchange

import (
	"context"
	"time"

	"spotbot/internal/models"
	"spotbot/pkg/breaker"
	"spotbot/pkg/ratelimit"
	"spotbot/pkg/retry"
	"spotbot/pkg/utils"
)

// ClientConfig - параметры отказоустойчивого клиента
type ClientConfig struct {
	// MinOrderValueUSDC - минимальный нотионал ордера; меньшие
	// отклоняются локально без запроса к бирже
	MinOrderValueUSDC float64

	// RequestInterval - минимальный интервал между запросами к API,
	// общий для всех воркеров процесса
	RequestInterval time.Duration

	Breaker breaker.Config
	Retry   retry.Config
}

// DefaultClientConfig возвращает боевые настройки
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MinOrderValueUSDC: 10.0,
		RequestInterval:   2500 * time.Millisecond,
		Breaker:           breaker.DefaultConfig("exchange"),
		Retry:             retry.NetworkConfig(),
	}
}

// Client - отказоустойчивая обертка над Venue.
//
// Каждый вызов проходит цепочку: circuit breaker (защита от лежащей
// биржи) -> pacer (частота запросов) -> retry (сетевые сбои).
// Breaker учитывает ИТОГ вызова: операция упавшая и добившаяся
// успеха внутри retry не считается сбоем.
type Client struct {
	venue         Venue
	pacer         *ratelimit.Pacer
	brk           *breaker.Breaker
	retryCfg      retry.Config
	minOrderValue float64
	log           *utils.Logger
}

// NewClient создает клиент поверх адаптера биржи
func NewClient(venue Venue, cfg ClientConfig, log *utils.Logger) *Client {
	if log == nil {
		log = utils.GetGlobalLogger()
	}
	log = log.WithComponent("exchange_client")

	retryCfg := cfg.Retry
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("Повтор запроса к бирже",
			utils.Int("attempt", attempt),
			utils.Err(err),
			utils.Any("delay", delay.String()),
		)
	}

	return &Client{
		venue:         venue,
		pacer:         ratelimit.NewPacer(cfg.RequestInterval),
		brk:           breaker.New(cfg.Breaker),
		retryCfg:      retryCfg,
		minOrderValue: cfg.MinOrderValueUSDC,
		log:           log,
	}
}

// call проводит операцию через breaker, pacer и retry.
// Breaker проверяется ДО pacer: при открытой цепи вызов падает сразу,
// не занимая общий слот частоты запросов
func call[T any](ctx context.Context, c *Client, op func() (T, error)) (T, error) {
	var zero T

	if err := c.brk.Allow(); err != nil {
		return zero, err
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return zero, err
	}

	result, err := retry.DoWithResult(ctx, op, c.retryCfg)
	if err != nil {
		c.brk.RecordFailure()
		return zero, err
	}

	c.brk.RecordSuccess()
	return result, nil
}

// GetSpotPrice возвращает текущую спотовую цену символа
func (c *Client) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	return call(ctx, c, func() (float64, error) {
		return c.venue.GetSpotPrice(ctx, symbol)
	})
}

// GetBalances возвращает балансы спотового аккаунта
func (c *Client) GetBalances(ctx context.Context) ([]models.Balance, error) {
	return call(ctx, c, func() ([]models.Balance, error) {
		return c.venue.GetBalances(ctx)
	})
}

// GetAvailableBalance возвращает доступный остаток актива.
// Отсутствие актива в списке - нулевой баланс, не ошибка.
func (c *Client) GetAvailableBalance(ctx context.Context, asset string) (float64, error) {
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range balances {
		if b.Asset == asset {
			return b.Available, nil
		}
	}
	return 0, nil
}

// PlaceLimitOrder размещает лимитный ордер.
// Нотионал меньше минимума отклоняется до обращения к бирже:
// такой запрос гарантированно провалится и только сожжет лимит
// частоты и счетчик breaker'а.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol, side string, price, size float64) (*models.RemoteOrder, error) {
	if price*size < c.minOrderValue {
		c.log.Warn("Ордер ниже минимального нотионала, не отправлен",
			utils.Symbol(symbol),
			utils.Side(side),
			utils.Price(price),
			utils.Size(size),
		)
		return nil, ErrBelowMinNotional
	}

	return call(ctx, c, func() (*models.RemoteOrder, error) {
		return c.venue.PlaceLimitOrder(ctx, symbol, side, price, size)
	})
}

// CancelOrder отменяет ордер на бирже
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := call(ctx, c, func() (struct{}, error) {
		return struct{}{}, c.venue.CancelOrder(ctx, symbol, orderID)
	})
	return err
}

// GetOpenOrders возвращает открытые ордера аккаунта.
// При сбое возвращается nil, НЕ пустой список: вызывающий код обязан
// различать "ордеров нет" и "не удалось узнать".
func (c *Client) GetOpenOrders(ctx context.Context) ([]models.RemoteOrder, error) {
	orders, err := call(ctx, c, func() ([]models.RemoteOrder, error) {
		return c.venue.GetOpenOrders(ctx)
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetFills возвращает исполнения начиная с указанного времени
func (c *Client) GetFills(ctx context.Context, since time.Time) ([]models.RemoteFill, error) {
	return call(ctx, c, func() ([]models.RemoteFill, error) {
		return c.venue.GetFills(ctx, since)
	})
}

// GetOrderStatus возвращает нормализованный статус ордера по ID
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (string, error) {
	return call(ctx, c, func() (string, error) {
		return c.venue.GetOrderStatus(ctx, orderID)
	})
}

// GetCandles возвращает свечи символа для заданного интервала
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, lookback int) ([]models.Candle, error) {
	return call(ctx, c, func() ([]models.Candle, error) {
		return c.venue.GetCandles(ctx, symbol, interval, lookback)
	})
}

// VenueName возвращает имя биржи
func (c *Client) VenueName() string {
	return c.venue.Name()
}

// BreakerSnapshot возвращает состояние circuit breaker'а для панели
func (c *Client) BreakerSnapshot() breaker.Snapshot {
	return c.brk.GetSnapshot()
}

// Close закрывает соединения с биржей
func (c *Client) Close() error {
	return c.venue.Close()
}
