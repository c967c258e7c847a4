package models

import "time"

// Notification представляет уведомление о событии торговли
type Notification struct {
	ID        int       `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`     // BUY_PLACED, BUY_FILLED, SELL_PLACED, SELL_FILLED, ERROR
	Severity  string    `json:"severity"` // info, warn, error
	PairIndex *int      `json:"pair_index,omitempty"`
	Message   string    `json:"message"`
}

// Типы уведомлений
const (
	NotificationTypeBuyPlaced  = "BUY_PLACED"  // ордер покупки размещен
	NotificationTypeBuyFilled  = "BUY_FILLED"  // покупка исполнена
	NotificationTypeSellPlaced = "SELL_PLACED" // ордер продажи размещен
	NotificationTypeSellFilled = "SELL_FILLED" // продажа исполнена, пара завершена
	NotificationTypeError      = "ERROR"       // ошибка API/ордера
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
