package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"spotbot/internal/config"
	"spotbot/internal/models"
	"spotbot/internal/repository"
	"spotbot/pkg/breaker"
	"spotbot/pkg/utils"
)

// Ошибки управляющей поверхности
var (
	ErrAlreadyRunning       = errors.New("bot already running")
	ErrNotRunning           = errors.New("bot not running")
	ErrConfirmationRequired = errors.New("operator confirmation required")
)

// Периодичность рассылки статуса клиентам панели
const broadcastInterval = 15 * time.Second

// Controller - супервизор торгового ядра.
//
// Владеет тремя воркерами (покупка, продажа, сверка), запускает их
// горутинами под общим контекстом и дожидается на остановке. Отмена
// ордеров - только явное действие оператора с подтверждением; воркеры
// никогда не отменяют ордера сами.
type Controller struct {
	cfg        *config.Config
	exchange   Exchange
	ledger     Ledger
	state      StateStore
	classifier Classifier
	notifier   Notifier
	hub        Hub
	log        *utils.Logger
	baseLog    *utils.Logger

	buyWorker  *BuyWorker
	sellWorker *SellWorker
	reconciler *Reconciler

	// loadConfig перечитывает конфигурацию для ReloadConfig
	loadConfig func() (*config.Config, error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Status - срез состояния ядра для панели и CLI
type Status struct {
	Running    bool             `json:"running"`
	BuyWorker  bool             `json:"buy_worker"`
	SellWorker bool             `json:"sell_worker"`
	Reconciler bool             `json:"reconciler"`
	Buying     bool             `json:"buying_enabled"`
	Breaker    breaker.Snapshot `json:"breaker"`
	Stats      *models.Stats    `json:"stats,omitempty"`
	LastSyncAt time.Time        `json:"last_sync_at,omitempty"`
}

// NewController собирает ядро из зависимостей
func NewController(
	ex Exchange,
	ledger Ledger,
	state StateStore,
	classifier Classifier,
	notifier Notifier,
	hub Hub,
	cfg *config.Config,
	log *utils.Logger,
) *Controller {
	c := &Controller{
		cfg:        cfg,
		exchange:   ex,
		ledger:     ledger,
		state:      state,
		classifier: classifier,
		notifier:   notifier,
		hub:        hub,
		log:        log.WithComponent("controller"),
		baseLog:    log,
		loadConfig: config.Load,
	}
	c.buildWorkers(cfg)
	return c
}

// buildWorkers собирает воркеры под переданную конфигурацию.
// Вызывается из конструктора и при перезагрузке конфигурации.
func (c *Controller) buildWorkers(cfg *config.Config) {
	c.buyWorker = NewBuyWorker(c.exchange, c.ledger, c.state, c.classifier, c.notifier, c.hub, cfg, c.baseLog)
	c.sellWorker = NewSellWorker(c.exchange, c.ledger, c.notifier, cfg, c.baseLog)
	c.reconciler = NewReconciler(c.exchange, c.ledger, c.state, c.notifier, cfg, c.baseLog)
}

// Start запускает все воркеры
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyRunning
	}
	c.startLocked()

	c.log.Info("Торговое ядро запущено")
	return nil
}

// startLocked запускает воркеры; вызывающий держит c.mu
func (c *Controller) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.started = true

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.buyWorker.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.sellWorker.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.reconciler.Run(ctx)
	}()

	if c.hub != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.broadcastLoop(ctx)
		}()
	}
}

// Stop останавливает воркеры и дожидается их завершения
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotRunning
	}
	c.stopLocked()

	c.log.Info("Торговое ядро остановлено")
	return nil
}

// stopLocked останавливает воркеры и дожидается их; вызывающий держит c.mu
func (c *Controller) stopLocked() {
	c.cancel()
	c.wg.Wait()
	c.started = false
}

// IsRunning возвращает true если ядро запущено
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// GetStatus возвращает срез состояния для панели
func (c *Controller) GetStatus() *Status {
	st := &Status{
		Running:    c.IsRunning(),
		BuyWorker:  c.buyWorker.IsRunning(),
		SellWorker: c.sellWorker.IsRunning(),
		Reconciler: c.reconciler.IsRunning(),
		Breaker:    c.exchange.BreakerSnapshot(),
	}

	UpdateBreakerState(st.Breaker.Name, st.Breaker.State)

	if enabled, err := c.state.GetBool(repository.StateKeyBuyingEnabled, c.cfg.Trading.BuyEnabled); err == nil {
		st.Buying = enabled
	}
	if t, err := c.state.GetTime(repository.StateKeyLastSyncAt); err == nil {
		st.LastSyncAt = t
	}
	if stats, err := c.ledger.GetStats(); err == nil {
		st.Stats = stats
		UpdatePairCounts(stats)
	}
	return st
}

// SetBuyingEnabled включает/выключает открытие новых пар с панели.
// Уже открытые пары продолжают обслуживаться в любом случае.
func (c *Controller) SetBuyingEnabled(enabled bool) error {
	c.log.Info("Переключение покупок", utils.Bool("enabled", enabled))
	return c.state.SetBool(repository.StateKeyBuyingEnabled, enabled)
}

// ReloadConfig перечитывает конфигурацию из окружения и пересобирает
// воркеры под новые параметры. Работающее ядро останавливается и
// запускается заново, чтобы тайминги и фазовые флаги применились
// атомарно; открытые пары при этом не трогаются.
//
// Клиент биржи и анализатор рынка собираются на старте процесса:
// смена их параметров требует рестарта.
func (c *Controller) ReloadConfig() error {
	newCfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	wasRunning := c.started
	if wasRunning {
		c.stopLocked()
	}

	c.cfg = newCfg
	c.buildWorkers(newCfg)

	if wasRunning {
		c.startLocked()
	}

	c.log.Info("Конфигурация перезагружена",
		utils.Bool("restarted", wasRunning),
	)
	return nil
}

// ForceSync запускает внеплановый проход сверки
func (c *Controller) ForceSync(ctx context.Context) {
	c.log.Info("Внеплановая сверка по запросу оператора")
	c.reconciler.RunPass(ctx)
}

// GetPendingOrders возвращает активные пары (статус Buy или Sell)
func (c *Controller) GetPendingOrders() ([]*models.OrderPair, error) {
	return c.ledger.GetActive()
}

// GetCompletedPairs возвращает последние завершенные пары
func (c *Controller) GetCompletedPairs(limit int) ([]*models.OrderPair, error) {
	return c.ledger.GetCompleted(limit)
}

// CancelOrder отменяет активный ордер пары на бирже.
//
// Требует явного подтверждения оператора. Отмена ноги покупки
// закрывает пару (Cancelled); отмена ноги продажи отвязывает ордер,
// и sell воркер разместит новый.
func (c *Controller) CancelOrder(ctx context.Context, idx int, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}

	pair, err := c.ledger.GetByIndex(idx)
	if err != nil {
		return err
	}

	switch pair.Status {
	case models.PairStatusBuy:
		if err := c.exchange.CancelOrder(ctx, pair.Symbol, pair.BuyOrderID); err != nil {
			return err
		}
		if err := c.ledger.MarkCancelled(idx); err != nil {
			return err
		}
		RecordTransition(models.PairStatusCancelled)
		c.log.Info("Нога покупки отменена оператором",
			utils.PairID(idx),
			utils.OrderID(pair.BuyOrderID),
		)

	case models.PairStatusSell:
		if !pair.HasSellOrder() {
			return repository.ErrNoSellOrder
		}
		if err := c.exchange.CancelOrder(ctx, pair.Symbol, *pair.SellOrderID); err != nil {
			return err
		}
		if err := c.ledger.ClearSellOrder(idx); err != nil {
			return err
		}
		c.log.Info("Нога продажи отменена оператором",
			utils.PairID(idx),
			utils.OrderID(*pair.SellOrderID),
		)

	default:
		return repository.ErrInvalidTransition
	}

	// После отмены статус пары должен сойтись с биржей
	c.reconciler.RunPass(ctx)
	return nil
}

// CancelAllOrders отменяет все активные ордера.
// Ошибки отдельных пар накапливаются, но не прерывают обход.
func (c *Controller) CancelAllOrders(ctx context.Context, confirm bool) (int, error) {
	if !confirm {
		return 0, ErrConfirmationRequired
	}

	active, err := c.ledger.GetActive()
	if err != nil {
		return 0, err
	}

	cancelled := 0
	var lastErr error
	for _, pair := range active {
		if err := c.CancelOrder(ctx, pair.Index, true); err != nil {
			c.log.Error("Отмена пары не удалась",
				utils.PairID(pair.Index),
				utils.Err(err),
			)
			lastErr = err
			continue
		}
		cancelled++
	}
	return cancelled, lastErr
}

// broadcastLoop периодически рассылает статистику клиентам панели
func (c *Controller) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stats, err := c.ledger.GetStats(); err == nil {
				c.hub.BroadcastStatsUpdate(stats)
				UpdatePairCounts(stats)
			}
			if active, err := c.ledger.GetActive(); err == nil {
				for _, pair := range active {
					c.hub.BroadcastPairUpdate(pair)
				}
			}
			snap := c.exchange.BreakerSnapshot()
			UpdateBreakerState(snap.Name, snap.State)
		}
	}
}
