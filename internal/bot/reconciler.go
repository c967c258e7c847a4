package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"spotbot/internal/config"
	"spotbot/internal/models"
	"spotbot/internal/repository"
	"spotbot/pkg/utils"
)

// Допустимая недостача исполненного размера продажи: частичное
// исполнение в пределах 1% от размера пары считается полным
const fillTolerance = 0.99

// Reconciler - единственный компонент, которому разрешены переходы
// Buy -> Sell и Sell -> Complete.
//
// Каждый проход забирает у биржи открытые ордера и историю исполнений
// и сводит их с активными парами журнала. Биржа - единственный источник
// правды об исполнении; локальный статус только догоняет ее.
//
// Ордер без единой записи (не открыт и не исполнялся) имеет статус
// Unknown: он никогда не двигает пару, только попадает в лог и метрику
// для оператора.
type Reconciler struct {
	exchange Exchange
	ledger   Ledger
	state    StateStore
	notifier Notifier
	log      *utils.Logger

	feeRate  float64
	interval time.Duration

	// inPass - неблокирующая защита от наложения проходов: тик,
	// пришедший во время медленного прохода, пропускается
	inPass  int32
	running int32
	now     func() time.Time
}

// NewReconciler создает движок сверки
func NewReconciler(
	ex Exchange,
	ledger Ledger,
	state StateStore,
	notifier Notifier,
	cfg *config.Config,
	log *utils.Logger,
) *Reconciler {
	return &Reconciler{
		exchange: ex,
		ledger:   ledger,
		state:    state,
		notifier: notifier,
		log:      log.WithComponent("reconciler"),
		feeRate:  cfg.Trading.MakerFeeRate(),
		interval: cfg.Trading.ReconcileInterval,
		now:      time.Now,
	}
}

// Run запускает периодическую сверку до отмены контекста
func (r *Reconciler) Run(ctx context.Context) {
	atomic.StoreInt32(&r.running, 1)
	defer atomic.StoreInt32(&r.running, 0)

	r.log.Info("Движок сверки запущен",
		utils.Any("interval", r.interval.String()),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Первый проход сразу: после рестарта локальный статус мог отстать
	r.RunPass(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Движок сверки остановлен")
			return
		case <-ticker.C:
			r.RunPass(ctx)
		}
	}
}

// IsRunning возвращает true пока цикл активен
func (r *Reconciler) IsRunning() bool {
	return atomic.LoadInt32(&r.running) == 1
}

// RunPass выполняет один проход сверки. Вызывается по расписанию и
// напрямую через ForceSync с панели. Наложившийся вызов пропускается.
func (r *Reconciler) RunPass(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&r.inPass, 0, 1) {
		ReconcileSkippedPasses.Inc()
		r.log.Debug("Проход сверки пропущен: предыдущий еще идет")
		return
	}
	defer atomic.StoreInt32(&r.inPass, 0)

	start := r.now()
	defer func() {
		ReconcilePassDuration.Observe(r.now().Sub(start).Seconds())
	}()

	active, err := r.ledger.GetActive()
	if err != nil {
		r.log.Error("Не удалось прочитать активные пары", utils.Err(err))
		return
	}
	if len(active) == 0 {
		r.markSynced()
		return
	}

	remote, ok := r.fetchRemoteState(ctx, active)
	if !ok {
		// Вид биржи неизвестен: весь проход подавлен, ни одна пара
		// не двигается на основании отсутствия данных
		return
	}

	unknown := 0
	for _, pair := range active {
		if ctx.Err() != nil {
			return
		}

		var err error
		switch pair.Status {
		case models.PairStatusBuy:
			err = r.reconcileBuyLeg(ctx, pair, remote, &unknown)
		case models.PairStatusSell:
			err = r.reconcileSellLeg(ctx, pair, remote, &unknown)
		}
		if err != nil {
			// Сбой одной пары не прерывает проход
			r.log.Error("Сверка пары не удалась",
				utils.PairID(pair.Index),
				utils.State(pair.Status),
				utils.Err(err),
			)
		}
	}

	UnknownOrders.Set(float64(unknown))
	r.markSynced()
}

// remoteState - срез удаленной правды одного прохода
type remoteState struct {
	open     map[string]bool      // открытые ордера по id
	filled   map[string]float64   // суммарный исполненный размер по id
	filledAt map[string]time.Time // время последнего исполнения по id
}

// fetchRemoteState забирает открытые ордера и исполнения одним набором
// запросов на проход. Любой сбой делает весь срез неизвестным.
func (r *Reconciler) fetchRemoteState(ctx context.Context, active []*models.OrderPair) (*remoteState, bool) {
	openOrders, err := r.exchange.GetOpenOrders(ctx)
	if err != nil {
		r.log.Warn("Открытые ордера недоступны, проход подавлен", utils.Err(err))
		APICallErrors.WithLabelValues("open_orders").Inc()
		return nil, false
	}

	// Историю исполнений тянем от создания самой старой активной пары
	since := active[0].CreatedAt
	for _, p := range active[1:] {
		if p.CreatedAt.Before(since) {
			since = p.CreatedAt
		}
	}

	fills, err := r.exchange.GetFills(ctx, since.Add(-time.Hour))
	if err != nil {
		r.log.Warn("История исполнений недоступна, проход подавлен", utils.Err(err))
		APICallErrors.WithLabelValues("fills").Inc()
		return nil, false
	}

	st := &remoteState{
		open:     make(map[string]bool, len(openOrders)),
		filled:   make(map[string]float64),
		filledAt: make(map[string]time.Time),
	}
	for _, o := range openOrders {
		st.open[o.ID] = true
	}
	for _, f := range fills {
		// Частичные исполнения суммируются: реальный размер ордера -
		// сумма всех его fill'ов
		st.filled[f.OrderID] += f.Size
		if f.Timestamp.After(st.filledAt[f.OrderID]) {
			st.filledAt[f.OrderID] = f.Timestamp
		}
	}
	return st, true
}

// reconcileBuyLeg продвигает пару Buy -> Sell по исполненной покупке.
// quantity_btc перезаписывается реальным размером: комиссия биржи
// удерживается из получаемого актива, а не из котируемой валюты.
//
// Ордер без исполнений, отмененный на стороне биржи (вручную, по
// истечении), закрывает пару как Cancelled.
func (r *Reconciler) reconcileBuyLeg(ctx context.Context, pair *models.OrderPair, remote *remoteState, unknown *int) error {
	if remote.open[pair.BuyOrderID] {
		return nil // еще в стакане
	}

	realized, hasFills := remote.filled[pair.BuyOrderID]
	if !hasFills {
		if r.resolveStatus(ctx, pair, pair.BuyOrderID) != models.RemoteStatusCancelled {
			*unknown++
			r.log.Warn("Ордер покупки не найден ни открытым, ни исполненным",
				utils.PairID(pair.Index),
				utils.OrderID(pair.BuyOrderID),
			)
			return nil
		}

		if err := r.ledger.MarkCancelled(pair.Index); err != nil {
			return err
		}
		RecordTransition(models.PairStatusCancelled)
		r.log.Info("Покупка отменена на бирже, пара закрыта",
			utils.PairID(pair.Index),
			utils.OrderID(pair.BuyOrderID),
		)
		return nil
	}

	filledAt := remote.filledAt[pair.BuyOrderID]
	if err := r.ledger.RecordBuyFilled(pair.BuyOrderID, realized, filledAt); err != nil {
		return err
	}

	r.log.Info("Покупка исполнена",
		utils.PairID(pair.Index),
		utils.OrderID(pair.BuyOrderID),
		utils.Size(realized),
	)
	RecordTransition(models.PairStatusSell)

	pair.Status = models.PairStatusSell
	pair.QuantityBTC = realized
	r.notifier.NotifyBuyFilled(pair)
	return nil
}

// reconcileSellLeg завершает пару Sell -> Complete по исполненной
// продаже. Исполнение меньше 99% размера пары не завершает пару:
// либо доисполнится, либо потребует оператора.
//
// Ордер продажи, отмененный на стороне биржи без исполнений,
// отвязывается от пары: она остается в Sell и sell воркер разместит
// новый ордер.
func (r *Reconciler) reconcileSellLeg(ctx context.Context, pair *models.OrderPair, remote *remoteState, unknown *int) error {
	if !pair.HasSellOrder() {
		return nil // размещение продажи - работа sell воркера
	}
	sellID := *pair.SellOrderID

	if remote.open[sellID] {
		return nil
	}

	realized, hasFills := remote.filled[sellID]
	if !hasFills {
		if r.resolveStatus(ctx, pair, sellID) != models.RemoteStatusCancelled {
			*unknown++
			r.log.Warn("Ордер продажи не найден ни открытым, ни исполненным",
				utils.PairID(pair.Index),
				utils.OrderID(sellID),
			)
			return nil
		}

		if err := r.ledger.ClearSellOrder(pair.Index); err != nil {
			return err
		}
		r.log.Info("Продажа отменена на бирже, ордер отвязан от пары",
			utils.PairID(pair.Index),
			utils.OrderID(sellID),
		)
		return nil
	}

	if realized < pair.QuantityBTC*fillTolerance {
		r.log.Warn("Продажа исполнена частично, пара не завершена",
			utils.PairID(pair.Index),
			utils.OrderID(sellID),
			utils.Size(realized),
			utils.Float64("expected", pair.QuantityBTC),
		)
		return nil
	}

	if err := r.ledger.CompletePair(pair.Index, r.feeRate); err != nil {
		return err
	}
	RecordTransition(models.PairStatusComplete)

	// Перечитываем пару ради рассчитанного гейна
	completed, err := r.ledger.GetByIndex(pair.Index)
	if err != nil {
		if !errors.Is(err, repository.ErrPairNotFound) {
			r.log.Warn("Пара завершена, но перечитать не удалось", utils.Err(err))
		}
		completed = pair
	}
	if completed.GainUSDC != nil {
		RecordGain(*completed.GainUSDC)
		r.log.Info("Пара завершена",
			utils.PairID(completed.Index),
			utils.Gain(*completed.GainUSDC),
		)
	}
	r.notifier.NotifyPairCompleted(completed)
	return nil
}

// resolveStatus уточняет у биржи судьбу ордера, которого нет ни среди
// открытых, ни в исполнениях. Один точечный запрос на пару; сбой
// запроса трактуется как Unknown и пару не двигает.
func (r *Reconciler) resolveStatus(ctx context.Context, pair *models.OrderPair, orderID string) string {
	status, err := r.exchange.GetOrderStatus(ctx, orderID)
	if err != nil {
		APICallErrors.WithLabelValues("order_status").Inc()
		r.log.Warn("Статус ордера недоступен",
			utils.PairID(pair.Index),
			utils.OrderID(orderID),
			utils.Err(err),
		)
		return models.RemoteStatusUnknown
	}
	return status
}

// markSynced сохраняет отметку успешного прохода
func (r *Reconciler) markSynced() {
	if err := r.state.SetTime(repository.StateKeyLastSyncAt, r.now()); err != nil {
		r.log.Warn("Не удалось сохранить отметку сверки", utils.Err(err))
	}
}
