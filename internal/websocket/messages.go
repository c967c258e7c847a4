package websocket

import (
	"time"

	"spotbot/internal/market"
	"spotbot/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypePairUpdate - обновление состояния пары ордеров
	MessageTypePairUpdate MessageType = "pairUpdate"

	// MessageTypeStatsUpdate - обновление агрегированной статистики
	MessageTypeStatsUpdate MessageType = "statsUpdate"

	// MessageTypeMarketUpdate - свежий срез анализа рынка
	MessageTypeMarketUpdate MessageType = "marketUpdate"

	// MessageTypeNotification - новое уведомление о событии торговли
	MessageTypeNotification MessageType = "notification"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PairUpdateMessage - сообщение об изменении пары: переходы статусов,
// размещение продажи, итоговый гейн
type PairUpdateMessage struct {
	BaseMessage
	PairID int               `json:"pair_id"`
	Data   *models.OrderPair `json:"data"`
}

// StatsUpdateMessage - сообщение со статистикой торговли
type StatsUpdateMessage struct {
	BaseMessage
	Data *models.Stats `json:"data"`
}

// MarketUpdateMessage - сообщение с результатом анализа рынка
// (фаза, цена, скользящие средние, границы диапазона)
type MarketUpdateMessage struct {
	BaseMessage
	Data *market.Snapshot `json:"data"`
}

// NotificationMessage - сообщение о новом уведомлении
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// NewPairUpdateMessage создает сообщение обновления пары
func NewPairUpdateMessage(pair *models.OrderPair) *PairUpdateMessage {
	return &PairUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePairUpdate,
			Timestamp: time.Now(),
		},
		PairID: pair.Index,
		Data:   pair,
	}
}

// NewStatsUpdateMessage создает сообщение обновления статистики
func NewStatsUpdateMessage(stats *models.Stats) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStatsUpdate,
			Timestamp: time.Now(),
		},
		Data: stats,
	}
}

// NewMarketUpdateMessage создает сообщение среза рынка
func NewMarketUpdateMessage(snap *market.Snapshot) *MarketUpdateMessage {
	return &MarketUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeMarketUpdate,
			Timestamp: time.Now(),
		},
		Data: snap,
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: notif,
	}
}
