package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"spotbot/internal/config"
	"spotbot/internal/exchange"
	"spotbot/internal/market"
	"spotbot/internal/models"
	"spotbot/internal/repository"
	"spotbot/pkg/breaker"
	"spotbot/pkg/utils"
)

const quoteAsset = "USDC"

// BuyWorker - последовательный цикл открытия пар.
//
// Каждая итерация: проверка интервала с прошлой попытки, классификация
// рынка, расчет цены и размера от доступного баланса, размещение ордера
// покупки и регистрация новой пары в статусе Buy. Сбой любой итерации
// логируется и не останавливает цикл.
type BuyWorker struct {
	exchange   Exchange
	ledger     Ledger
	state      StateStore
	classifier Classifier
	notifier   Notifier
	hub        Hub // nil без панели
	log        *utils.Logger

	symbol        string
	minNotional   float64
	minInterval   time.Duration
	initialDelay  time.Duration
	globalEnabled bool

	// lastAttempt обновляется на КАЖДОЙ попытке, включая неудачные:
	// это гарантирует продвижение интервала даже при постоянных сбоях
	lastAttempt time.Time

	running int32
	now     func() time.Time
}

// NewBuyWorker создает воркер покупок
func NewBuyWorker(
	ex Exchange,
	ledger Ledger,
	state StateStore,
	classifier Classifier,
	notifier Notifier,
	hub Hub,
	cfg *config.Config,
	log *utils.Logger,
) *BuyWorker {
	w := &BuyWorker{
		exchange:      ex,
		ledger:        ledger,
		state:         state,
		classifier:    classifier,
		notifier:      notifier,
		hub:           hub,
		log:           log.WithComponent("buy_worker"),
		symbol:        cfg.Trading.Symbol,
		minNotional:   cfg.Exchange.MinOrderValueUSDC,
		minInterval:   cfg.Trading.MinCheckInterval,
		initialDelay:  cfg.Trading.InitialDelay,
		globalEnabled: cfg.Trading.BuyEnabled,
		now:           time.Now,
	}

	// Отметка последней попытки переживает рестарт процесса
	if last, err := state.GetTime(repository.StateKeyLastBuyAttempt); err == nil {
		w.lastAttempt = last
	}
	return w
}

// Run запускает цикл покупок до отмены контекста
func (w *BuyWorker) Run(ctx context.Context) {
	atomic.StoreInt32(&w.running, 1)
	defer atomic.StoreInt32(&w.running, 0)

	w.log.Info("Воркер покупок запущен",
		utils.Symbol(w.symbol),
		utils.Any("min_interval", w.minInterval.String()),
	)

	if w.initialDelay > 0 {
		if !sleepCtx(ctx, w.initialDelay) {
			return
		}
	}

	for {
		pause := w.runOnce(ctx)
		if !sleepCtx(ctx, pause) {
			w.log.Info("Воркер покупок остановлен")
			return
		}
	}
}

// IsRunning возвращает true пока цикл активен
func (w *BuyWorker) IsRunning() bool {
	return atomic.LoadInt32(&w.running) == 1
}

// runOnce выполняет одну итерацию и возвращает паузу до следующей
func (w *BuyWorker) runOnce(ctx context.Context) time.Duration {
	now := w.now()

	if since := now.Sub(w.lastAttempt); since < w.minInterval {
		return w.minInterval - since
	}

	// Попытка началась: отметка двигается независимо от исхода
	w.lastAttempt = now
	if err := w.state.SetTime(repository.StateKeyLastBuyAttempt, now); err != nil {
		w.log.Warn("Не удалось сохранить отметку попытки", utils.Err(err))
	}

	if !w.buyingEnabled() {
		w.log.Debug("Покупки выключены, итерация пропущена")
		return w.minInterval
	}

	snap, err := w.classifier.Analyze(ctx)
	if err != nil {
		w.log.Error("Анализ рынка не удался", utils.Err(err))
		w.notifier.NotifyError("market_analysis", err)
		return w.minInterval
	}

	params := w.classifier.Params(snap)
	UpdateMarketPhase(params.Market)

	// Свежий срез рынка уходит клиентам панели
	if w.hub != nil {
		w.hub.BroadcastMarketUpdate(snap)
	}

	if !params.BuyEnabled {
		w.log.Info("Покупки запрещены для текущей фазы рынка",
			utils.Market(params.Market),
			utils.Price(snap.Price),
		)
		return params.TimePause
	}

	// Авто-интервал фазы: новая пара не раньше чем через AutoInterval
	// после предыдущей
	if last, err := w.ledger.GetLastCreated(); err == nil && last != nil {
		if age := now.Sub(last.CreatedAt); age < params.AutoInterval {
			w.log.Debug("Последняя пара слишком свежая",
				utils.PairID(last.Index),
				utils.Any("age", age.String()),
			)
			return params.TimePause
		}
	}

	if err := w.placeBuy(ctx, snap.Price, params); err != nil {
		w.notifier.NotifyError("buy_placement", err)
	}
	return params.TimePause
}

// placeBuy рассчитывает и размещает ордер покупки, регистрируя пару
func (w *BuyWorker) placeBuy(ctx context.Context, spot float64, params market.TradingParams) error {
	buyPrice := utils.RoundPrice(spot + params.BuyOffset)
	sellPrice := utils.RoundPrice(spot + params.SellOffset)

	available, err := w.exchange.GetAvailableBalance(ctx, quoteAsset)
	if err != nil {
		w.log.Error("Не удалось получить баланс", utils.Err(err))
		RecordOrderFailed(exchange.SideBuy, failureReason(err))
		return err
	}

	notional := available * params.Percent / 100
	size := utils.RoundSize(notional / buyPrice)

	if size <= 0 || size*buyPrice < w.minNotional {
		w.log.Info("Расчетный размер ниже минимума, покупка пропущена",
			utils.Size(size),
			utils.Price(buyPrice),
			utils.Float64("available", available),
		)
		RecordOrderFailed(exchange.SideBuy, "min_notional")
		return nil
	}

	order, err := w.exchange.PlaceLimitOrder(ctx, w.symbol, exchange.SideBuy, buyPrice, size)
	if err != nil {
		w.log.Error("Размещение ордера покупки не удалось",
			utils.Err(err),
			utils.Price(buyPrice),
			utils.Size(size),
		)
		RecordOrderFailed(exchange.SideBuy, failureReason(err))
		return err
	}

	pair := &models.OrderPair{
		Symbol:       w.symbol,
		QuantityUSDC: utils.RoundTo(size*buyPrice, 2),
		QuantityBTC:  size,
		BuyPrice:     buyPrice,
		SellPrice:    sellPrice,
		BuyOrderID:   order.ID,
		MarketType:   params.Market,
		OffsetLabel:  params.OffsetLabel,
	}

	if err := w.ledger.CreateBuyPair(pair); err != nil {
		// Ордер уже на бирже, но пара не записана: сверка не сможет
		// его продвинуть, нужен оператор
		w.log.Error("Ордер размещен, но пара не записана",
			utils.Err(err),
			utils.OrderID(order.ID),
		)
		return err
	}

	w.log.Info("Пара открыта",
		utils.PairID(pair.Index),
		utils.OrderID(order.ID),
		utils.Price(buyPrice),
		utils.Size(size),
		utils.Market(params.Market),
	)
	RecordOrderPlaced(exchange.SideBuy, params.Market)
	w.notifier.NotifyBuyPlaced(pair)
	return nil
}

// buyingEnabled объединяет конфиг и персистентный флаг панели
func (w *BuyWorker) buyingEnabled() bool {
	if !w.globalEnabled {
		return false
	}
	enabled, err := w.state.GetBool(repository.StateKeyBuyingEnabled, true)
	if err != nil {
		return true
	}
	return enabled
}

// failureReason классифицирует ошибку размещения для метрик
func failureReason(err error) string {
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, exchange.ErrBelowMinNotional):
		return "min_notional"
	case errors.Is(err, exchange.ErrInsufficientFunds):
		return "insufficient"
	case errors.Is(err, exchange.ErrOrderRejected):
		return "rejected"
	default:
		return "network"
	}
}

// sleepCtx спит d или до отмены контекста; false если контекст отменен
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		// нулевая пауза: не зависаем, но даем шанс отмене
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
