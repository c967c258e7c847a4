// Package exchange содержит адаптер биржевого API и отказоустойчивый
// клиент поверх него.
package exchange

import (
	"context"
	"errors"
	"time"

	"spotbot/internal/models"
)

// Venue определяет низкоуровневый интерфейс биржевого адаптера.
// Реализация переводит схему конкретного API в нормализованные типы
// models; вся политика отказоустойчивости живет уровнем выше в Client.
type Venue interface {
	// Name возвращает имя биржи
	Name() string

	// GetSpotPrice возвращает текущую спотовую цену символа
	GetSpotPrice(ctx context.Context, symbol string) (float64, error)

	// GetBalances возвращает балансы спотового аккаунта
	GetBalances(ctx context.Context) ([]models.Balance, error)

	// PlaceLimitOrder размещает лимитный ордер и возвращает его
	// нормализованное представление с биржевым ID
	PlaceLimitOrder(ctx context.Context, symbol, side string, price, size float64) (*models.RemoteOrder, error)

	// CancelOrder отменяет ордер по биржевому ID
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// GetOpenOrders возвращает все открытые ордера аккаунта
	GetOpenOrders(ctx context.Context) ([]models.RemoteOrder, error)

	// GetFills возвращает историю исполнений начиная с указанного времени
	GetFills(ctx context.Context, since time.Time) ([]models.RemoteFill, error)

	// GetOrderStatus возвращает нормализованный статус ордера по ID
	// (models.RemoteStatus*); RemoteStatusUnknown - биржа ордер не знает
	GetOrderStatus(ctx context.Context, orderID string) (string, error)

	// GetCandles возвращает свечи символа для заданного интервала
	// ("1h", "15m" и т.д.), не больше lookback последних свечей
	GetCandles(ctx context.Context, symbol, interval string, lookback int) ([]models.Candle, error)

	// Close закрывает соединения с биржей
	Close() error
}

// VenueError представляет ошибку уровня биржевого API
type VenueError struct {
	Venue    string
	Code     string
	Message  string
	Original error
}

func (e *VenueError) Error() string {
	return e.Venue + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для errors.Is() и errors.As()
func (e *VenueError) Unwrap() error {
	return e.Original
}

// Доменные ошибки клиента
var (
	// ErrBelowMinNotional - нотионал ордера меньше биржевого минимума.
	// Проверяется локально, запрос к бирже не выполняется.
	ErrBelowMinNotional = errors.New("order notional below exchange minimum")

	// ErrOrderRejected - биржа отклонила ордер (не сетевой сбой)
	ErrOrderRejected = errors.New("order rejected by exchange")

	// ErrInsufficientFunds - недостаточно средств для ордера
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)
