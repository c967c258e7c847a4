package models

import "time"

// RemoteOrder - нормализованное представление ордера с биржи.
// Адаптер биржи переводит схему стороннего API в этот тип на границе
// Exchange Client, изолируя ядро от формата SDK.
type RemoteOrder struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`   // buy, sell
	Price     float64   `json:"price"`  // лимитная цена
	Size      float64   `json:"size"`   // запрошенный размер
	Status    string    `json:"status"` // open, filled, cancelled
	Timestamp time.Time `json:"timestamp"`
}

// RemoteFill - нормализованная запись об исполнении (полном или частичном)
// из истории сделок биржи. Один ордер может иметь несколько fill'ов.
type RemoteFill struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

// Balance - нормализованный баланс актива на спотовом аккаунте
type Balance struct {
	Asset     string  `json:"asset"`
	Total     float64 `json:"total"`
	Hold      float64 `json:"hold"`      // заблокировано в открытых ордерах
	Available float64 `json:"available"` // total - hold
}

// Candle - свеча OHLCV с биржи (адаптер парсит строковые поля API в числа)
type Candle struct {
	Time   time.Time `json:"time"` // время открытия свечи
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Статусы удаленного ордера (после нормализации)
const (
	RemoteStatusOpen      = "open"
	RemoteStatusFilled    = "filled"
	RemoteStatusCancelled = "cancelled"
	RemoteStatusUnknown   = "unknown" // ни открытых записей, ни fill'ов - требует внимания оператора
)
