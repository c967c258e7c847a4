package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer - глобальный ограничитель частоты запросов к API биржи
//
// Алгоритм минимального интервала (min-spacing gate):
// - Между любыми двумя запросами выдерживается не менее interval
// - Очередь FIFO: каждый Wait получает слот = max(now, prevSlot+interval)
// - Один Pacer разделяется всеми воркерами, поэтому суммарная
//   частота процесса не превышает 1/interval req/sec
//
// В отличие от token bucket здесь нет burst: биржа чувствительна
// к всплескам, равномерное расписание надёжнее.
//
// Использование:
//
//	pacer := NewPacer(2500 * time.Millisecond)
//	if err := pacer.Wait(ctx); err != nil { ... }
type Pacer struct {
	interval time.Duration
	next     time.Time // момент когда разрешён следующий запрос
	mu       sync.Mutex

	// для тестов
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewPacer создаёт новый pacer с указанным минимальным интервалом
//
// interval <= 0 означает отсутствие ограничения (Wait не блокирует)
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// sleepCtx ждёт d с возможностью отмены через контекст
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait блокирует до наступления следующего разрешённого слота
//
// Возвращает:
//   - nil: слот получен, можно выполнять запрос
//   - ctx.Err(): контекст отменён во время ожидания
//
// Слот резервируется до начала ожидания: конкурирующие горутины
// получают последовательные слоты и не толпятся на одном.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	if p.interval <= 0 {
		p.mu.Unlock()
		return ctx.Err()
	}
	now := p.now()

	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	p.next = slot.Add(p.interval)
	p.mu.Unlock()

	return p.sleep(ctx, slot.Sub(now))
}

// Allow проверяет доступность слота без блокировки
//
// Возвращает true и резервирует слот если интервал с прошлого
// запроса уже выдержан, иначе false.
func (p *Pacer) Allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interval <= 0 {
		return true
	}

	now := p.now()
	if p.next.After(now) {
		return false
	}
	p.next = now.Add(p.interval)
	return true
}

// Interval возвращает минимальный интервал между запросами
func (p *Pacer) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval изменяет минимальный интервал
// Потокобезопасно; действует для последующих запросов
func (p *Pacer) SetInterval(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = interval
}
