package repository

import (
	"database/sql"
	"time"

	"spotbot/internal/models"
)

// NotificationRepository - журнал уведомлений о событиях торговли.
// История для панели оператора; доставка в Telegram идет отдельно
// и не зависит от записи сюда.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет уведомление
func (r *NotificationRepository) Create(n *models.Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (created_at, type, severity, pair_idx, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return r.db.QueryRow(query, n.Timestamp, n.Type, n.Severity, n.PairIndex, n.Message).Scan(&n.ID)
}

// GetRecent возвращает последние limit уведомлений, новые первыми
func (r *NotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, created_at, type, severity, pair_idx, message
		FROM notifications
		ORDER BY id DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var pairIdx sql.NullInt64

		if err := rows.Scan(&n.ID, &n.Timestamp, &n.Type, &n.Severity, &pairIdx, &n.Message); err != nil {
			return nil, err
		}
		if pairIdx.Valid {
			idx := int(pairIdx.Int64)
			n.PairIndex = &idx
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

// DeleteOlderThan удаляет уведомления старше указанного времени.
// Возвращает количество удаленных записей.
func (r *NotificationRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
