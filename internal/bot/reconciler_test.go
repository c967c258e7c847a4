package bot

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"spotbot/internal/models"
	"spotbot/internal/repository"
)

func newReconcilerForTest(ex *fakeExchange, ledger *fakeLedger, state *fakeState, notifier *fakeNotifier) *Reconciler {
	return NewReconciler(ex, ledger, state, notifier, testConfig(), testLogger())
}

func buyPair(ledger *fakeLedger, orderID string) *models.OrderPair {
	return ledger.addPair(&models.OrderPair{
		Status:      models.PairStatusBuy,
		Symbol:      "BTC",
		QuantityBTC: 0.5,
		BuyPrice:    100,
		SellPrice:   110,
		BuyOrderID:  orderID,
	})
}

func sellPair(ledger *fakeLedger, sellOrderID string) *models.OrderPair {
	id := sellOrderID
	return ledger.addPair(&models.OrderPair{
		Status:      models.PairStatusSell,
		Symbol:      "BTC",
		QuantityBTC: 1,
		BuyPrice:    100,
		SellPrice:   110,
		BuyOrderID:  "900",
		SellOrderID: &id,
	})
}

func TestReconcilerBuyFillSumsPartials(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	pair := buyPair(ledger, "101")

	fillTime := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ex.fills = []models.RemoteFill{
		{OrderID: "101", Size: 0.3, Timestamp: fillTime},
		{OrderID: "101", Size: 0.2, Timestamp: fillTime.Add(time.Minute)},
	}

	r := newReconcilerForTest(ex, ledger, newFakeState(), notifier)
	r.RunPass(context.Background())

	stored, _ := ledger.GetByIndex(pair.Index)
	if stored.Status != models.PairStatusSell {
		t.Fatalf("статус = %q, ожидался Sell", stored.Status)
	}
	// Размер пары перезаписан суммой частичных исполнений
	if math.Abs(stored.QuantityBTC-0.5) > 1e-12 {
		t.Errorf("размер = %v, ожидалось 0.5", stored.QuantityBTC)
	}
	if stored.BuyFilledAt == nil || !stored.BuyFilledAt.Equal(fillTime.Add(time.Minute)) {
		t.Errorf("время исполнения = %v", stored.BuyFilledAt)
	}
	if notifier.buyFilled != 1 {
		t.Errorf("уведомлений об исполнении = %d", notifier.buyFilled)
	}
}

func TestReconcilerOpenOrderNoTransition(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	pair := buyPair(ledger, "101")

	ex.openOrders = []models.RemoteOrder{{ID: "101", Status: models.RemoteStatusOpen}}
	// Частичный fill открытого ордера не двигает пару
	ex.fills = []models.RemoteFill{{OrderID: "101", Size: 0.1, Timestamp: time.Now()}}

	r := newReconcilerForTest(ex, ledger, newFakeState(), &fakeNotifier{})
	r.RunPass(context.Background())

	stored, _ := ledger.GetByIndex(pair.Index)
	if stored.Status != models.PairStatusBuy {
		t.Errorf("статус = %q, ожидался Buy", stored.Status)
	}
}

func TestReconcilerUnknownOrderStaysPut(t *testing.T) {
	ex := newFakeExchange() // ни открытых, ни исполнений
	ledger := newFakeLedger()
	pair := buyPair(ledger, "101")

	r := newReconcilerForTest(ex, ledger, newFakeState(), &fakeNotifier{})
	r.RunPass(context.Background())

	stored, _ := ledger.GetByIndex(pair.Index)
	if stored.Status != models.PairStatusBuy {
		t.Errorf("статус Unknown-ордера изменился: %q", stored.Status)
	}
}

func TestReconcilerCancelledBuyLegClosesPair(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	pair := buyPair(ledger, "101")

	// Ордер отменен на стороне биржи: не открыт, исполнений нет
	ex.statuses = map[string]string{"101": models.RemoteStatusCancelled}

	r := newReconcilerForTest(ex, ledger, newFakeState(), &fakeNotifier{})
	r.RunPass(context.Background())

	stored, _ := ledger.GetByIndex(pair.Index)
	if stored.Status != models.PairStatusCancelled {
		t.Fatalf("статус = %q, ожидался Cancelled", stored.Status)
	}
	if ex.statusCalls != 1 {
		t.Errorf("запросов статуса = %d, ожидался 1", ex.statusCalls)
	}
}

func TestReconcilerCancelledSellLegUnbindsOrder(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	pair := sellPair(ledger, "202")

	ex.statuses = map[string]string{"202": models.RemoteStatusCancelled}

	r := newReconcilerForTest(ex, ledger, newFakeState(), &fakeNotifier{})
	r.RunPass(context.Background())

	// Пара остается в Sell без ордера: sell воркер разместит новый
	stored, _ := ledger.GetByIndex(pair.Index)
	if stored.Status != models.PairStatusSell {
		t.Fatalf("статус = %q, ожидался Sell", stored.Status)
	}
	if stored.HasSellOrder() {
		t.Error("ордер продажи не отвязан от пары")
	}
}

func TestReconcilerStatusLookupFailureStaysPut(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	pair := buyPair(ledger, "101")

	ex.statusErr = errors.New("venue timeout")

	r := newReconcilerForTest(ex, ledger, newFakeState(), &fakeNotifier{})
	r.RunPass(context.Background())

	stored, _ := ledger.GetByIndex(pair.Index)
	if stored.Status != models.PairStatusBuy {
		t.Errorf("сбой запроса статуса изменил пару: %q", stored.Status)
	}
}

func TestReconcilerSellFillCompletesPair(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	pair := sellPair(ledger, "202")

	ex.fills = []models.RemoteFill{{OrderID: "202", Size: 1, Timestamp: time.Now()}}

	r := newReconcilerForTest(ex, ledger, newFakeState(), notifier)
	r.RunPass(context.Background())

	stored, _ := ledger.GetByIndex(pair.Index)
	if stored.Status != models.PairStatusComplete {
		t.Fatalf("статус = %q, ожидался Complete", stored.Status)
	}
	if stored.GainUSDC == nil {
		t.Fatal("гейн не рассчитан")
	}
	// (110-100)*1 - 0.0004*(100+110)*1 = 9.916
	if math.Abs(*stored.GainUSDC-9.916) > 1e-9 {
		t.Errorf("гейн = %v, ожидалось 9.916", *stored.GainUSDC)
	}
	if len(ledger.completedWithFee) != 1 || ledger.completedWithFee[0] != 0.0004 {
		t.Errorf("ставка комиссии = %v, ожидалось 0.0004", ledger.completedWithFee)
	}
	if notifier.completed != 1 {
		t.Errorf("уведомлений о завершении = %d", notifier.completed)
	}
}

func TestReconcilerPartialSellBelowTolerance(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	pair := sellPair(ledger, "202")

	// 98% < допуска 99%
	ex.fills = []models.RemoteFill{{OrderID: "202", Size: 0.98, Timestamp: time.Now()}}

	r := newReconcilerForTest(ex, ledger, newFakeState(), &fakeNotifier{})
	r.RunPass(context.Background())

	stored, _ := ledger.GetByIndex(pair.Index)
	if stored.Status != models.PairStatusSell {
		t.Errorf("пара завершена при исполнении ниже допуска: %q", stored.Status)
	}
}

func TestReconcilerSellWithinTolerance(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	pair := sellPair(ledger, "202")

	ex.fills = []models.RemoteFill{{OrderID: "202", Size: 0.995, Timestamp: time.Now()}}

	r := newReconcilerForTest(ex, ledger, newFakeState(), &fakeNotifier{})
	r.RunPass(context.Background())

	stored, _ := ledger.GetByIndex(pair.Index)
	if stored.Status != models.PairStatusComplete {
		t.Errorf("пара не завершена при исполнении 99.5%%: %q", stored.Status)
	}
}

func TestReconcilerFetchFailureSuppressesPass(t *testing.T) {
	cases := []struct {
		name     string
		openErr  error
		fillsErr error
	}{
		{name: "открытые ордера недоступны", openErr: errors.New("api down")},
		{name: "история исполнений недоступна", fillsErr: errors.New("api down")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex := newFakeExchange()
			ex.openErr = tc.openErr
			ex.fillsErr = tc.fillsErr
			// Исполнения, которые двинули бы обе пары в нормальном проходе
			ex.fills = []models.RemoteFill{
				{OrderID: "101", Size: 0.5, Timestamp: time.Now()},
				{OrderID: "202", Size: 1, Timestamp: time.Now()},
			}

			ledger := newFakeLedger()
			bp := buyPair(ledger, "101")
			sp := sellPair(ledger, "202")
			state := newFakeState()

			r := newReconcilerForTest(ex, ledger, state, &fakeNotifier{})
			r.RunPass(context.Background())

			if p, _ := ledger.GetByIndex(bp.Index); p.Status != models.PairStatusBuy {
				t.Errorf("пара покупки двинулась при подавленном проходе")
			}
			if p, _ := ledger.GetByIndex(sp.Index); p.Status != models.PairStatusSell {
				t.Errorf("пара продажи двинулась при подавленном проходе")
			}
			// Подавленный проход не считается успешной сверкой
			if ts, _ := state.GetTime(repository.StateKeyLastSyncAt); !ts.IsZero() {
				t.Errorf("отметка сверки сохранена при подавленном проходе")
			}
		})
	}
}

func TestReconcilerOverlapGuard(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	pair := buyPair(ledger, "101")
	ex.fills = []models.RemoteFill{{OrderID: "101", Size: 0.5, Timestamp: time.Now()}}

	r := newReconcilerForTest(ex, ledger, newFakeState(), &fakeNotifier{})
	r.inPass = 1 // имитация идущего прохода

	r.RunPass(context.Background())
	if p, _ := ledger.GetByIndex(pair.Index); p.Status != models.PairStatusBuy {
		t.Errorf("наложенный проход выполнился")
	}

	r.inPass = 0
	r.RunPass(context.Background())
	if p, _ := ledger.GetByIndex(pair.Index); p.Status != models.PairStatusSell {
		t.Errorf("проход не выполнился после снятия защиты")
	}
}

func TestReconcilerSecondPassIdempotent(t *testing.T) {
	ex := newFakeExchange()
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	sellPair(ledger, "202")
	ex.fills = []models.RemoteFill{{OrderID: "202", Size: 1, Timestamp: time.Now()}}

	r := newReconcilerForTest(ex, ledger, newFakeState(), notifier)
	r.RunPass(context.Background())
	r.RunPass(context.Background())

	// Завершенная пара не активна и во второй проход не попадает
	if notifier.completed != 1 {
		t.Errorf("уведомлений о завершении = %d, ожидалось 1", notifier.completed)
	}
}

func TestReconcilerMarksSyncOnEmptyLedger(t *testing.T) {
	state := newFakeState()
	r := newReconcilerForTest(newFakeExchange(), newFakeLedger(), state, &fakeNotifier{})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	r.RunPass(context.Background())

	if ts, _ := state.GetTime(repository.StateKeyLastSyncAt); !ts.Equal(base) {
		t.Errorf("отметка сверки = %v, ожидалось %v", ts, base)
	}
}
