package breaker

import (
	"errors"
	"sync"
	"time"
)

// Circuit Breaker для защиты от деградирующих внешних API.
//
// Состояния:
//   - Closed: нормальная работа, вызовы проходят; каждый сбой увеличивает
//     счетчик, при достижении FailureThreshold переход в Open
//   - Open: все вызовы мгновенно отклоняются с ErrCircuitOpen пока не
//     истечет Timeout с момента последнего сбоя, затем переход в HalfOpen
//   - HalfOpen: пропускается ограниченное число пробных вызовов; каждый
//     успех увеличивает счетчик проб, при достижении HalfOpenAttempts
//     переход в Closed (счетчики сброшены); любой сбой возвращает в Open
//
// Состояние разделяется между всеми воркерами процесса: сбой, замеченный
// одним воркером, немедленно влияет на следующий вызов любого другого.

// ErrCircuitOpen возвращается когда breaker в состоянии Open
// и удаленный API считается нездоровым. Вызывающий код должен
// отступить, не повторять немедленно.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State - состояние circuit breaker
type State int

const (
	StateClosed   State = iota // нормальная работа
	StateOpen                  // отклоняем вызовы
	StateHalfOpen              // тестируем восстановление
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config - параметры circuit breaker
type Config struct {
	Name             string        // имя API surface (для логов/метрик)
	FailureThreshold int           // сбоев подряд до перехода в Open (default: 3)
	Timeout          time.Duration // время в Open до пробы HalfOpen (default: 180s)
	HalfOpenAttempts int           // успешных проб до возврата в Closed (default: 2)
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 3,
		Timeout:          180 * time.Second,
		HalfOpenAttempts: 2,
	}
}

// Breaker - потокобезопасный circuit breaker для одного API surface
type Breaker struct {
	name string
	mu   sync.Mutex

	state             State
	failures          int // подряд идущих сбоев в Closed
	halfOpenSuccesses int // успешных проб в HalfOpen
	lastFailure       time.Time

	failureThreshold int
	timeout          time.Duration
	halfOpenAttempts int

	// подменяется в тестах
	now func() time.Time
}

// Snapshot - срез состояния breaker для status/statistics surface
type Snapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// New создает circuit breaker в состоянии Closed
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.HalfOpenAttempts <= 0 {
		cfg.HalfOpenAttempts = 2
	}
	return &Breaker{
		name:             cfg.Name,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		timeout:          cfg.Timeout,
		halfOpenAttempts: cfg.HalfOpenAttempts,
		now:              time.Now,
	}
}

// Allow проверяет можно ли выполнить вызов.
// Возвращает ErrCircuitOpen если breaker открыт и таймаут не истек.
// Переход Open -> HalfOpen происходит здесь, при первом вызове после таймаута.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.timeout {
			b.state = StateHalfOpen
			b.halfOpenSuccesses = 0
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		return nil
	}
	return nil
}

// RecordSuccess фиксирует успешный вызов.
// В HalfOpen накапливает пробы; достигнув квоты - закрывает breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.halfOpenAttempts {
			b.state = StateClosed
			b.failures = 0
			b.halfOpenSuccesses = 0
		}
	}
}

// RecordFailure фиксирует неудачный вызов.
// Любой сбой в HalfOpen немедленно возвращает в Open.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.halfOpenSuccesses = 0
	}
}

// State возвращает текущее состояние (для мониторинга)
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetSnapshot возвращает срез состояния для status surface
func (b *Breaker) GetSnapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}

// Reset принудительно возвращает breaker в Closed (для admin/тестов)
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.halfOpenSuccesses = 0
}
