package repository

import "database/sql"

// Схема создается при старте процесса. Изменения только аддитивные:
// существующие колонки не переименовываются и не удаляются.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS order_pairs (
		idx            SERIAL PRIMARY KEY,
		uuid           TEXT NOT NULL UNIQUE,
		status         TEXT NOT NULL,
		symbol         TEXT NOT NULL,
		quantity_usdc  DOUBLE PRECISION NOT NULL DEFAULT 0,
		quantity_btc   DOUBLE PRECISION NOT NULL DEFAULT 0,
		buy_price      DOUBLE PRECISION NOT NULL DEFAULT 0,
		sell_price     DOUBLE PRECISION NOT NULL DEFAULT 0,
		buy_order_id   TEXT NOT NULL UNIQUE,
		sell_order_id  TEXT UNIQUE,
		gain_usdc      DOUBLE PRECISION,
		gain_percent   DOUBLE PRECISION,
		market_type    TEXT NOT NULL DEFAULT '',
		offset_label   TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		buy_filled_at  TIMESTAMPTZ,
		sell_placed_at TIMESTAMPTZ,
		completed_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_pairs_status ON order_pairs (status)`,
	`CREATE TABLE IF NOT EXISTS bot_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         SERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		type       TEXT NOT NULL,
		severity   TEXT NOT NULL,
		pair_idx   INTEGER,
		message    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications (created_at)`,
}

// Migrate создает таблицы если их еще нет
func Migrate(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
