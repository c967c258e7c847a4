package models

import "time"

// OrderPair представляет пару ордеров покупка/продажа - единица стратегии.
// Одна нога покупки и связанная с ней нога продажи отслеживаются как единая
// запись жизненного цикла: Buy -> Sell -> Complete (или -> Cancelled).
type OrderPair struct {
	Index        int        `json:"index" db:"index"`                           // автоинкремент, первичный ключ
	UUID         string     `json:"uuid" db:"uuid"`                             // глобально уникальный, назначается при создании
	Status       string     `json:"status" db:"status"`                         // Buy, Sell, Complete, Cancelled
	Symbol       string     `json:"symbol" db:"symbol"`                         // BTC
	QuantityUSDC float64    `json:"quantity_usdc" db:"quantity_usdc"`           // плановый объем в USDC при создании
	QuantityBTC  float64    `json:"quantity_btc" db:"quantity_btc"`             // плановый размер; перезаписывается РЕАЛЬНЫМ после fill покупки
	BuyPrice     float64    `json:"buy_price" db:"buy_price"`                   // цена покупки = spot + buy offset
	SellPrice    float64    `json:"sell_price" db:"sell_price"`                 // целевая цена продажи = spot + sell offset
	BuyOrderID   string     `json:"buy_order_id" db:"buy_order_id"`             // ID на бирже, назначается при создании
	SellOrderID  *string    `json:"sell_order_id,omitempty" db:"sell_order_id"` // NULL пока продажа не размещена
	GainUSDC     *float64   `json:"gain_usdc,omitempty" db:"gain_usdc"`         // NULL до Complete
	GainPercent  *float64   `json:"gain_percent,omitempty" db:"gain_percent"`   // NULL до Complete
	MarketType   string     `json:"market_type" db:"market_type"`               // BULL, BEAR, RANGE (информационное)
	OffsetLabel  string     `json:"offset_label" db:"offset_label"`             // отображение buy_offset/sell_offset
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	BuyFilledAt  *time.Time `json:"buy_filled_at,omitempty" db:"buy_filled_at"`
	SellPlacedAt *time.Time `json:"sell_placed_at,omitempty" db:"sell_placed_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Статусы пары
const (
	PairStatusBuy       = "Buy"       // ордер покупки размещен, ждем исполнения
	PairStatusSell      = "Sell"      // покупка исполнена, продажа размещается/ждет исполнения
	PairStatusComplete  = "Complete"  // продажа исполнена, гейн рассчитан
	PairStatusCancelled = "Cancelled" // ордер отменен на бирже до исполнения
)

// HasSellOrder возвращает true если ордер продажи уже размещен
func (p *OrderPair) HasSellOrder() bool {
	return p.SellOrderID != nil && *p.SellOrderID != ""
}

// IsActive возвращает true если пара еще в работе (не финальный статус)
func (p *OrderPair) IsActive() bool {
	return p.Status == PairStatusBuy || p.Status == PairStatusSell
}
