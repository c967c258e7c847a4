package repository

import (
	"database/sql"
	"errors"
	"time"
)

// Ошибки репозитория состояния
var (
	ErrStateNotFound = errors.New("bot state not found")
)

// Ключи состояния
const (
	StateKeyBuyingEnabled  = "buying_enabled"
	StateKeyLastBuyAttempt = "last_buy_attempt"
	StateKeyLastSyncAt     = "last_sync_at"
)

// StateRepository - работа с таблицей bot_state (ключ-значение).
//
// Состояние которое должно переживать рестарт процесса: флаг
// разрешения покупок, отметка последней попытки покупки, отметка
// последней сверки. Всегда одна строка на ключ.
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository создает новый экземпляр репозитория
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Set записывает значение по ключу (upsert)
func (r *StateRepository) Set(key, value string) error {
	query := `
		INSERT INTO bot_state (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3`

	_, err := r.db.Exec(query, key, value, time.Now().UTC())
	return err
}

// Get возвращает значение по ключу
func (r *StateRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM bot_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetTime записывает время по ключу в RFC3339
func (r *StateRepository) SetTime(key string, t time.Time) error {
	return r.Set(key, t.UTC().Format(time.RFC3339Nano))
}

// GetTime возвращает время по ключу.
// Отсутствие ключа - не ошибка, возвращается нулевое время.
func (r *StateRepository) GetTime(key string) (time.Time, error) {
	value, err := r.Get(key)
	if errors.Is(err, ErrStateNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// SetBool записывает флаг по ключу
func (r *StateRepository) SetBool(key string, v bool) error {
	if v {
		return r.Set(key, "true")
	}
	return r.Set(key, "false")
}

// GetBool возвращает флаг по ключу.
// Отсутствие ключа трактуется как указанный default.
func (r *StateRepository) GetBool(key string, def bool) (bool, error) {
	value, err := r.Get(key)
	if errors.Is(err, ErrStateNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return value == "true", nil
}
