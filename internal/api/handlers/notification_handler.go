package handlers

import (
	"net/http"
	"strconv"
	"time"

	"spotbot/internal/models"
)

// NotificationService - журнал уведомлений
type NotificationService interface {
	GetRecent(limit int) ([]*models.Notification, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// NotificationHandler отвечает за журнал уведомлений панели
//
// Endpoints:
// - GET    /api/v1/notifications - последние уведомления
// - DELETE /api/v1/notifications - очистка журнала
type NotificationHandler struct {
	notifications NotificationService
}

// NewNotificationHandler создает новый NotificationHandler
func NewNotificationHandler(notifications NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// ClearResponse структура ответа очистки журнала
type ClearResponse struct {
	Deleted int64 `json:"deleted"`
}

// GetNotifications возвращает последние уведомления, новые первыми
// GET /api/v1/notifications
//
// Query Parameters:
// - limit: максимум записей (default 100)
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	notifications, err := h.notifications.GetRecent(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get notifications", err.Error())
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	respondWithJSON(w, http.StatusOK, notifications)
}

// ClearNotifications удаляет все уведомления из журнала
// DELETE /api/v1/notifications
func (h *NotificationHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.notifications.DeleteOlderThan(time.Now().UTC())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to clear notifications", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, ClearResponse{Deleted: deleted})
}
