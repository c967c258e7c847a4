package bot

import (
	"context"
	"sync/atomic"
	"time"

	"spotbot/internal/config"
	"spotbot/internal/exchange"
	"spotbot/internal/models"
	"spotbot/pkg/utils"
)

// Допуск на расхождение баланса и размера пары из-за округлений
const balanceTolerance = 0.001 // 0.1%

// SellWorker - последовательный цикл закрытия пар.
//
// Каждый проход обходит пары в статусе Sell без ордера продажи,
// проверяет наличие купленного актива на балансе и размещает ордер
// продажи по целевой цене пары. Пара с неудачным размещением попадает
// в карантин на retryDelay, чтобы не долбить биржу при постоянно
// недостаточном балансе.
type SellWorker struct {
	exchange Exchange
	ledger   Ledger
	notifier Notifier
	log      *utils.Logger

	symbol       string
	passInterval time.Duration
	pairDelay    time.Duration
	retryDelay   time.Duration

	// failures - локальный карантин: индекс пары -> время последнего сбоя.
	// Доступ только из цикла воркера, блокировка не нужна.
	failures map[int]time.Time

	running int32
	now     func() time.Time
}

// NewSellWorker создает воркер продаж
func NewSellWorker(
	ex Exchange,
	ledger Ledger,
	notifier Notifier,
	cfg *config.Config,
	log *utils.Logger,
) *SellWorker {
	return &SellWorker{
		exchange:     ex,
		ledger:       ledger,
		notifier:     notifier,
		log:          log.WithComponent("sell_worker"),
		symbol:       cfg.Trading.Symbol,
		passInterval: cfg.Trading.SellCheckInterval,
		pairDelay:    cfg.Trading.SellPairDelay,
		retryDelay:   cfg.Trading.SellRetryDelay,
		failures:     make(map[int]time.Time),
		now:          time.Now,
	}
}

// Run запускает цикл продаж до отмены контекста
func (w *SellWorker) Run(ctx context.Context) {
	atomic.StoreInt32(&w.running, 1)
	defer atomic.StoreInt32(&w.running, 0)

	w.log.Info("Воркер продаж запущен",
		utils.Symbol(w.symbol),
		utils.Any("pass_interval", w.passInterval.String()),
	)

	for {
		w.runPass(ctx)
		if !sleepCtx(ctx, w.passInterval) {
			w.log.Info("Воркер продаж остановлен")
			return
		}
	}
}

// IsRunning возвращает true пока цикл активен
func (w *SellWorker) IsRunning() bool {
	return atomic.LoadInt32(&w.running) == 1
}

// runPass обрабатывает все пары, ожидающие размещения продажи
func (w *SellWorker) runPass(ctx context.Context) {
	pairs, err := w.ledger.GetAwaitingSell()
	if err != nil {
		w.log.Error("Не удалось получить пары для продажи", utils.Err(err))
		return
	}
	if len(pairs) == 0 {
		return
	}

	w.pruneFailures()

	for i, pair := range pairs {
		if ctx.Err() != nil {
			return
		}

		if until, ok := w.failures[pair.Index]; ok && w.now().Sub(until) < w.retryDelay {
			w.log.Debug("Пара в карантине после сбоя",
				utils.PairID(pair.Index),
			)
			continue
		}

		if err := w.placeSell(ctx, pair); err != nil {
			w.failures[pair.Index] = w.now()
		} else {
			delete(w.failures, pair.Index)
		}

		// Пауза между парами бережет общий лимит частоты запросов
		if i < len(pairs)-1 && !sleepCtx(ctx, w.pairDelay) {
			return
		}
	}
}

// placeSell проверяет баланс и размещает ордер продажи для одной пары
func (w *SellWorker) placeSell(ctx context.Context, pair *models.OrderPair) error {
	available, err := w.exchange.GetAvailableBalance(ctx, w.symbol)
	if err != nil {
		w.log.Error("Не удалось получить баланс актива",
			utils.PairID(pair.Index),
			utils.Err(err),
		)
		RecordOrderFailed(exchange.SideSell, failureReason(err))
		return err
	}

	// Баланс должен покрывать размер пары; 0.1% допуска на округления
	if available < pair.QuantityBTC && !utils.WithinTolerance(available, pair.QuantityBTC, balanceTolerance) {
		w.log.Warn("Недостаточно актива для продажи",
			utils.PairID(pair.Index),
			utils.Size(pair.QuantityBTC),
			utils.Float64("available", available),
		)
		RecordOrderFailed(exchange.SideSell, "insufficient")
		return exchange.ErrInsufficientFunds
	}

	order, err := w.exchange.PlaceLimitOrder(ctx, pair.Symbol, exchange.SideSell, pair.SellPrice, pair.QuantityBTC)
	if err != nil {
		w.log.Error("Размещение ордера продажи не удалось",
			utils.PairID(pair.Index),
			utils.Price(pair.SellPrice),
			utils.Size(pair.QuantityBTC),
			utils.Err(err),
		)
		RecordOrderFailed(exchange.SideSell, failureReason(err))
		return err
	}

	if err := w.ledger.RecordSellOrderPlaced(pair.Index, order.ID, pair.SellPrice); err != nil {
		// Ордер на бирже, но привязка не записана: следующий проход
		// увидит пару как ожидающую и попробует снова - дубль продажи
		// отсечет проверка баланса
		w.log.Error("Ордер продажи размещен, но не привязан к паре",
			utils.PairID(pair.Index),
			utils.OrderID(order.ID),
			utils.Err(err),
		)
		return err
	}

	w.log.Info("Ордер продажи размещен",
		utils.PairID(pair.Index),
		utils.OrderID(order.ID),
		utils.Price(pair.SellPrice),
		utils.Size(pair.QuantityBTC),
	)
	RecordOrderPlaced(exchange.SideSell, pair.MarketType)
	sellID := order.ID
	pair.SellOrderID = &sellID
	w.notifier.NotifySellPlaced(pair)
	return nil
}

// pruneFailures выбрасывает из карантина записи старше retryDelay
func (w *SellWorker) pruneFailures() {
	cutoff := w.now().Add(-w.retryDelay)
	for idx, t := range w.failures {
		if t.Before(cutoff) {
			delete(w.failures, idx)
		}
	}
}
