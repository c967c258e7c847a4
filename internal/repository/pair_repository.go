package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spotbot/internal/models"
)

// Ошибки репозитория пар
var (
	ErrPairNotFound      = errors.New("pair not found")
	ErrPairExists        = errors.New("pair already exists")
	ErrInvalidTransition = errors.New("invalid pair status transition")
	ErrNoSellOrder       = errors.New("pair has no sell order")
	ErrValidation        = errors.New("pair validation failed")
)

// Параметры retry при транзиентных сбоях хранилища
const (
	writeRetryAttempts = 3
	writeRetryDelay    = 100 * time.Millisecond
)

const pairColumns = `idx, uuid, status, symbol, quantity_usdc, quantity_btc, buy_price, sell_price,
		buy_order_id, sell_order_id, gain_usdc, gain_percent, market_type, offset_label,
		created_at, buy_filled_at, sell_placed_at, completed_at`

// PairRepository - журнал пар ордеров, единственный источник правды
// о жизненном цикле каждой пары.
//
// Все записи сериализуются через внутренний mutex: воркеры покупки,
// продажи и сверки пишут конкурентно, а порядок переходов статусов
// должен быть строгим. Чтения идут без блокировки.
type PairRepository struct {
	db *sql.DB
	mu sync.Mutex
}

// NewPairRepository создает новый экземпляр репозитория
func NewPairRepository(db *sql.DB) *PairRepository {
	return &PairRepository{db: db}
}

// ============================================================
// Записи жизненного цикла
// ============================================================

// CreateBuyPair регистрирует новую пару после размещения ордера покупки.
// Статус всегда Buy, uuid назначается здесь если не задан.
// Пара с пустыми или неположительными полями отклоняется до записи.
func (r *PairRepository) CreateBuyPair(pair *models.OrderPair) error {
	if err := validateNewPair(pair); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if pair.UUID == "" {
		pair.UUID = uuid.NewString()
	}
	if pair.CreatedAt.IsZero() {
		pair.CreatedAt = time.Now().UTC()
	}
	pair.Status = models.PairStatusBuy

	query := `
		INSERT INTO order_pairs (uuid, status, symbol, quantity_usdc, quantity_btc, buy_price, sell_price, buy_order_id, market_type, offset_label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING idx`

	return r.withRetry(func() error {
		err := r.db.QueryRow(
			query,
			pair.UUID,
			pair.Status,
			pair.Symbol,
			pair.QuantityUSDC,
			pair.QuantityBTC,
			pair.BuyPrice,
			pair.SellPrice,
			pair.BuyOrderID,
			pair.MarketType,
			pair.OffsetLabel,
			pair.CreatedAt,
		).Scan(&pair.Index)

		if err != nil {
			if isUniqueViolation(err) {
				return ErrPairExists
			}
			return err
		}
		return nil
	})
}

// validateNewPair проверяет обязательные поля новой пары.
// Журнал не принимает запись, по которой нельзя торговать: нулевой
// размер или цена означают ошибку вызывающего кода, а не рынка.
func validateNewPair(pair *models.OrderPair) error {
	switch {
	case pair.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	case pair.BuyOrderID == "":
		return fmt.Errorf("%w: buy_order_id is required", ErrValidation)
	case pair.QuantityUSDC <= 0:
		return fmt.Errorf("%w: quantity_usdc must be positive, got %v", ErrValidation, pair.QuantityUSDC)
	case pair.QuantityBTC <= 0:
		return fmt.Errorf("%w: quantity_btc must be positive, got %v", ErrValidation, pair.QuantityBTC)
	case pair.BuyPrice <= 0:
		return fmt.Errorf("%w: buy_price must be positive, got %v", ErrValidation, pair.BuyPrice)
	case pair.SellPrice <= 0:
		return fmt.Errorf("%w: sell_price must be positive, got %v", ErrValidation, pair.SellPrice)
	}
	return nil
}

// RecordBuyFilled переводит пару Buy -> Sell после исполнения покупки.
//
// quantity_btc перезаписывается РЕАЛЬНЫМ исполненным размером с биржи:
// плановый размер мог отличаться из-за округления или частичного
// исполнения, а продавать нужно то что реально куплено.
//
// Идемпотентно: повторный вызов для уже продвинутой пары возвращает nil.
func (r *PairRepository) RecordBuyFilled(buyOrderID string, filledSize float64, filledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		UPDATE order_pairs
		SET status = $1, quantity_btc = $2, buy_filled_at = $3
		WHERE buy_order_id = $4 AND status = $5`

	return r.withRetry(func() error {
		result, err := r.db.Exec(query, models.PairStatusSell, filledSize, filledAt, buyOrderID, models.PairStatusBuy)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			return nil
		}

		// 0 строк: либо пары нет, либо она уже продвинута (повторное событие)
		var status string
		err = r.db.QueryRow(`SELECT status FROM order_pairs WHERE buy_order_id = $1`, buyOrderID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPairNotFound
		}
		if err != nil {
			return err
		}
		return nil
	})
}

// RecordSellOrderPlaced привязывает размещенный ордер продажи к паре.
// Пара должна быть в статусе Sell без активного sell ордера.
func (r *PairRepository) RecordSellOrderPlaced(idx int, sellOrderID string, sellPrice float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		UPDATE order_pairs
		SET sell_order_id = $1, sell_price = $2, sell_placed_at = $3
		WHERE idx = $4 AND status = $5 AND sell_order_id IS NULL`

	return r.withRetry(func() error {
		result, err := r.db.Exec(query, sellOrderID, sellPrice, time.Now().UTC(), idx, models.PairStatusSell)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrPairExists
			}
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return r.classifyMiss(idx)
		}
		return nil
	})
}

// ClearSellOrder отвязывает ордер продажи от пары (ордер отменен на
// бирже, воркер продажи разместит новый). Статус остается Sell.
func (r *PairRepository) ClearSellOrder(idx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		UPDATE order_pairs
		SET sell_order_id = NULL, sell_placed_at = NULL
		WHERE idx = $1 AND status = $2`

	return r.withRetry(func() error {
		result, err := r.db.Exec(query, idx, models.PairStatusSell)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return r.classifyMiss(idx)
		}
		return nil
	})
}

// CompletePair завершает пару Sell -> Complete после исполнения продажи.
// Гейн рассчитывается из цен пары и исполненного размера в транзакции
// с повторным чтением строки.
func (r *PairRepository) CompletePair(idx int, feeRate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.withRetry(func() error {
		tx, err := r.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var status string
		var buyPrice, sellPrice, qty float64
		var sellOrderID sql.NullString

		err = tx.QueryRow(`
			SELECT status, buy_price, sell_price, quantity_btc, sell_order_id
			FROM order_pairs
			WHERE idx = $1
			FOR UPDATE`, idx,
		).Scan(&status, &buyPrice, &sellPrice, &qty, &sellOrderID)

		if errors.Is(err, sql.ErrNoRows) {
			return ErrPairNotFound
		}
		if err != nil {
			return err
		}

		// Повторное событие для уже завершенной пары - не ошибка
		if status == models.PairStatusComplete {
			return nil
		}
		if status != models.PairStatusSell {
			return ErrInvalidTransition
		}
		if !sellOrderID.Valid || sellOrderID.String == "" {
			return ErrNoSellOrder
		}

		gain := models.ComputeGain(buyPrice, sellPrice, qty, feeRate)

		_, err = tx.Exec(`
			UPDATE order_pairs
			SET status = $1, gain_usdc = $2, gain_percent = $3, completed_at = $4
			WHERE idx = $5`,
			models.PairStatusComplete, gain.NetUSDC, gain.NetPercent, time.Now().UTC(), idx,
		)
		if err != nil {
			return err
		}

		return tx.Commit()
	})
}

// MarkCancelled переводит активную пару в Cancelled.
// Допустимо только из Buy или Sell; финальные статусы не трогаются.
func (r *PairRepository) MarkCancelled(idx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		UPDATE order_pairs
		SET status = $1, completed_at = $2
		WHERE idx = $3 AND status IN ($4, $5)`

	return r.withRetry(func() error {
		result, err := r.db.Exec(query, models.PairStatusCancelled, time.Now().UTC(), idx,
			models.PairStatusBuy, models.PairStatusSell)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var status string
			err := r.db.QueryRow(`SELECT status FROM order_pairs WHERE idx = $1`, idx).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPairNotFound
			}
			if err != nil {
				return err
			}
			return ErrInvalidTransition
		}
		return nil
	})
}

// ============================================================
// Чтения
// ============================================================

// GetByIndex возвращает пару по первичному ключу
func (r *PairRepository) GetByIndex(idx int) (*models.OrderPair, error) {
	query := `SELECT ` + pairColumns + ` FROM order_pairs WHERE idx = $1`
	return r.queryOne(query, idx)
}

// GetByUUID возвращает пару по uuid
func (r *PairRepository) GetByUUID(id string) (*models.OrderPair, error) {
	query := `SELECT ` + pairColumns + ` FROM order_pairs WHERE uuid = $1`
	return r.queryOne(query, id)
}

// GetByBuyOrderID возвращает пару по биржевому ID ордера покупки
func (r *PairRepository) GetByBuyOrderID(orderID string) (*models.OrderPair, error) {
	query := `SELECT ` + pairColumns + ` FROM order_pairs WHERE buy_order_id = $1`
	return r.queryOne(query, orderID)
}

// GetBySellOrderID возвращает пару по биржевому ID ордера продажи
func (r *PairRepository) GetBySellOrderID(orderID string) (*models.OrderPair, error) {
	query := `SELECT ` + pairColumns + ` FROM order_pairs WHERE sell_order_id = $1`
	return r.queryOne(query, orderID)
}

// GetByStatus возвращает пары в указанном статусе, старые первыми
func (r *PairRepository) GetByStatus(status string) ([]*models.OrderPair, error) {
	query := `SELECT ` + pairColumns + ` FROM order_pairs WHERE status = $1 ORDER BY idx`
	return r.queryMany(query, status)
}

// GetActive возвращает все незавершенные пары (Buy и Sell)
func (r *PairRepository) GetActive() ([]*models.OrderPair, error) {
	query := `SELECT ` + pairColumns + ` FROM order_pairs WHERE status IN ($1, $2) ORDER BY idx`
	return r.queryMany(query, models.PairStatusBuy, models.PairStatusSell)
}

// GetAwaitingSell возвращает пары со статусом Sell без активного
// ордера продажи - рабочая очередь воркера продажи
func (r *PairRepository) GetAwaitingSell() ([]*models.OrderPair, error) {
	query := `SELECT ` + pairColumns + ` FROM order_pairs
		WHERE status = $1 AND sell_order_id IS NULL ORDER BY idx`
	return r.queryMany(query, models.PairStatusSell)
}

// GetRecent возвращает последние limit пар, новые первыми
func (r *PairRepository) GetRecent(limit int) ([]*models.OrderPair, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + pairColumns + ` FROM order_pairs ORDER BY idx DESC LIMIT $1`
	return r.queryMany(query, limit)
}

// GetCompleted возвращает последние завершенные пары, свежие первыми
func (r *PairRepository) GetCompleted(limit int) ([]*models.OrderPair, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + pairColumns + ` FROM order_pairs
		WHERE status = $1 ORDER BY completed_at DESC LIMIT $2`
	return r.queryMany(query, models.PairStatusComplete, limit)
}

// GetLastCreated возвращает последнюю созданную пару.
// Воркер покупки проверяет по ней интервал между покупками.
func (r *PairRepository) GetLastCreated() (*models.OrderPair, error) {
	query := `SELECT ` + pairColumns + ` FROM order_pairs ORDER BY created_at DESC, idx DESC LIMIT 1`
	return r.queryOne(query)
}

// CountByStatus возвращает количество пар в статусе
func (r *PairRepository) CountByStatus(status string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM order_pairs WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetStats возвращает агрегированную статистику по всем парам
func (r *PairRepository) GetStats() (*models.Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4),
			COUNT(*) FILTER (WHERE status = $3 AND gain_usdc > 0),
			COUNT(*) FILTER (WHERE status = $3 AND gain_usdc <= 0),
			COALESCE(SUM(gain_usdc) FILTER (WHERE status = $3), 0)
		FROM order_pairs`

	stats := &models.Stats{}
	err := r.db.QueryRow(query,
		models.PairStatusBuy,
		models.PairStatusSell,
		models.PairStatusComplete,
		models.PairStatusCancelled,
	).Scan(
		&stats.TotalPairs,
		&stats.BuyPending,
		&stats.SellPending,
		&stats.Completed,
		&stats.Cancelled,
		&stats.ProfitableTrades,
		&stats.LosingTrades,
		&stats.TotalGainUSDC,
	)
	if err != nil {
		return nil, err
	}

	if stats.Completed > 0 {
		stats.AverageGainUSDC = stats.TotalGainUSDC / float64(stats.Completed)
		stats.WinRate = float64(stats.ProfitableTrades) / float64(stats.Completed) * 100
	}

	return stats, nil
}

// ============================================================
// Внутреннее
// ============================================================

// classifyMiss различает "пары нет" и "пара не в ожидаемом состоянии"
// после UPDATE затронувшего 0 строк
func (r *PairRepository) classifyMiss(idx int) error {
	var status string
	err := r.db.QueryRow(`SELECT status FROM order_pairs WHERE idx = $1`, idx).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPairNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidTransition
}

func (r *PairRepository) queryOne(query string, args ...interface{}) (*models.OrderPair, error) {
	pair, err := scanPair(r.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPairNotFound
		}
		return nil, err
	}
	return pair, nil
}

func (r *PairRepository) queryMany(query string, args ...interface{}) ([]*models.OrderPair, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*models.OrderPair
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return pairs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPair(row rowScanner) (*models.OrderPair, error) {
	pair := &models.OrderPair{}
	var sellOrderID sql.NullString
	var gainUSDC, gainPercent sql.NullFloat64
	var buyFilledAt, sellPlacedAt, completedAt sql.NullTime

	err := row.Scan(
		&pair.Index,
		&pair.UUID,
		&pair.Status,
		&pair.Symbol,
		&pair.QuantityUSDC,
		&pair.QuantityBTC,
		&pair.BuyPrice,
		&pair.SellPrice,
		&pair.BuyOrderID,
		&sellOrderID,
		&gainUSDC,
		&gainPercent,
		&pair.MarketType,
		&pair.OffsetLabel,
		&pair.CreatedAt,
		&buyFilledAt,
		&sellPlacedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if sellOrderID.Valid {
		pair.SellOrderID = &sellOrderID.String
	}
	if gainUSDC.Valid {
		pair.GainUSDC = &gainUSDC.Float64
	}
	if gainPercent.Valid {
		pair.GainPercent = &gainPercent.Float64
	}
	if buyFilledAt.Valid {
		pair.BuyFilledAt = &buyFilledAt.Time
	}
	if sellPlacedAt.Valid {
		pair.SellPlacedAt = &sellPlacedAt.Time
	}
	if completedAt.Valid {
		pair.CompletedAt = &completedAt.Time
	}

	return pair, nil
}

// withRetry повторяет операцию записи при транзиентных сбоях хранилища.
// Доменные ошибки (not found, invalid transition) не повторяются.
func (r *PairRepository) withRetry(op func() error) error {
	var lastErr error
	delay := writeRetryDelay

	for attempt := 0; attempt < writeRetryAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientDBError(err) {
			return err
		}
		if attempt < writeRetryAttempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}

	return lastErr
}

// isTransientDBError определяет стоит ли повторить операцию
func isTransientDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"deadlock detected",
		"40p01", // deadlock_detected
		"40001", // serialization_failure
		"the database system is starting up",
	} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

// isUniqueViolation проверяет нарушение UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
