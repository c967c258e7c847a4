package retry

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"
)

// Config конфигурация для retry логики
//
// Экспоненциальный backoff с jitter:
// delay = min(InitialDelay * Multiplier^attempt + jitter, MaxDelay)
type Config struct {
	// MaxAttempts - максимальное количество попыток (включая первую)
	MaxAttempts int

	// InitialDelay - начальная задержка между попытками
	InitialDelay time.Duration

	// MaxDelay - максимальная задержка между попытками
	MaxDelay time.Duration

	// Multiplier - множитель для экспоненциального роста
	// По умолчанию: 2.0 (удвоение после каждой попытки)
	Multiplier float64

	// JitterFactor - фактор случайности (0.0 - 1.0)
	JitterFactor float64

	// RetryIf - функция для определения нужно ли retry'ить ошибку.
	// nil = retry все ошибки
	RetryIf func(error) bool

	// OnRetry - callback вызываемый перед каждым retry (для логирования)
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NetworkConfig для вызовов к биржевому API
//
// Повторяются только сетевые ошибки:
// - 3 попытки
// - Задержки: 2s, 4s
func NetworkConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		RetryIf:      IsNetworkError,
	}
}

// validate проверяет и устанавливает значения по умолчанию
func (c *Config) validate() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// calculateDelay вычисляет задержку для указанной попытки
func (c *Config) calculateDelay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterFactor > 0 {
		jitter := delay * c.JitterFactor * (rand.Float64()*2 - 1)
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Do выполняет операцию с повторными попытками
//
// Возвращает:
//   - nil: операция успешна
//   - error: все попытки неудачны (или ошибка не подлежит retry),
//     возвращает последнюю ошибку
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// DoWithResult выполняет операцию с результатом и retry
//
//	order, err := retry.DoWithResult(ctx, func() (*models.RemoteOrder, error) {
//	    return venue.PlaceOrder(...)
//	}, retry.NetworkConfig())
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var lastErr error
	var zero T

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		// Проверяем контекст перед каждой попыткой
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Не-retryable ошибка - пробрасываем немедленно
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}

		// Последняя попытка - не ждём
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.calculateDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		// Ждём с возможностью отмены
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// ============================================================
// Классификация ошибок
// ============================================================

// networkKeywords - паттерны сообщений транзиентных сетевых ошибок.
// Дополняет типизированные проверки: часть клиентских библиотек
// заворачивает сетевые сбои в обычные строковые ошибки.
var networkKeywords = []string{
	"connection reset",
	"connection refused",
	"connection aborted",
	"broken pipe",
	"timeout",
	"timed out",
	"network error",
	"remote end closed",
	"unexpected eof",
	"no such host",
}

// IsNetworkError определяет является ли ошибка транзиентной сетевой.
// Только такие ошибки подлежат retry; отклоненный ордер или нехватка
// средств пробрасываются немедленно.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range networkKeywords {
		if strings.Contains(msg, keyword) {
			return true
		}
	}

	return false
}

// PermanentError оборачивает ошибку которую не нужно retry'ить
// даже если её текст похож на сетевой сбой
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent оборачивает ошибку в PermanentError
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
