package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"spotbot/internal/models"
	"spotbot/pkg/breaker"
	"spotbot/pkg/retry"
)

// fakeVenue - скриптуемый адаптер: отдаёт заранее заданные ошибки
// по порядку, затем успех
type fakeVenue struct {
	errs      []error // очередь ошибок; исчерпана = успех
	calls     int
	lastSide  string
	lastPrice float64
	lastSize  float64
}

func (f *fakeVenue) nextErr() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeVenue) Name() string { return "fake" }

func (f *fakeVenue) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	if err := f.nextErr(); err != nil {
		return 0, err
	}
	return 65000, nil
}

func (f *fakeVenue) GetBalances(ctx context.Context) ([]models.Balance, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return []models.Balance{
		{Asset: "USDC", Total: 500, Hold: 100, Available: 400},
		{Asset: "BTC", Total: 0.01, Available: 0.01},
	}, nil
}

func (f *fakeVenue) PlaceLimitOrder(ctx context.Context, symbol, side string, price, size float64) (*models.RemoteOrder, error) {
	f.lastSide, f.lastPrice, f.lastSize = side, price, size
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return &models.RemoteOrder{ID: "oid-1", Symbol: symbol, Side: side, Price: price, Size: size, Status: models.RemoteStatusOpen}, nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return f.nextErr()
}

func (f *fakeVenue) GetOpenOrders(ctx context.Context) ([]models.RemoteOrder, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return []models.RemoteOrder{{ID: "oid-1", Status: models.RemoteStatusOpen}}, nil
}

func (f *fakeVenue) GetFills(ctx context.Context, since time.Time) ([]models.RemoteFill, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return []models.RemoteFill{{OrderID: "oid-1", Size: 0.001}}, nil
}

func (f *fakeVenue) GetCandles(ctx context.Context, symbol, interval string, lookback int) ([]models.Candle, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return []models.Candle{{Close: 65000}}, nil
}

func (f *fakeVenue) GetOrderStatus(ctx context.Context, orderID string) (string, error) {
	if err := f.nextErr(); err != nil {
		return "", err
	}
	return models.RemoteStatusOpen, nil
}

func (f *fakeVenue) Close() error { return nil }

func netErr() error {
	return errors.New("read tcp: connection reset by peer")
}

func newTestClient(venue Venue) *Client {
	cfg := ClientConfig{
		MinOrderValueUSDC: 10.0,
		RequestInterval:   0, // без пауз в тестах
		Breaker:           breaker.Config{Name: "test", FailureThreshold: 3, Timeout: time.Hour, HalfOpenAttempts: 2},
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
			RetryIf:      retry.IsNetworkError,
		},
	}
	return NewClient(venue, cfg, nil)
}

func TestClientPlaceOrderBelowMinNotional(t *testing.T) {
	venue := &fakeVenue{}
	c := newTestClient(venue)

	_, err := c.PlaceLimitOrder(context.Background(), "BTC", SideBuy, 65000, 0.0001) // нотионал 6.5
	if !errors.Is(err, ErrBelowMinNotional) {
		t.Fatalf("err = %v, want ErrBelowMinNotional", err)
	}
	if venue.calls != 0 {
		t.Errorf("venue calls = %d, want 0 (local reject)", venue.calls)
	}
	if c.BreakerSnapshot().Failures != 0 {
		t.Error("local reject must not touch breaker")
	}
}

func TestClientRetriesNetworkErrorThenSucceeds(t *testing.T) {
	venue := &fakeVenue{errs: []error{netErr(), netErr()}}
	c := newTestClient(venue)

	price, err := c.GetSpotPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 65000 {
		t.Errorf("price = %v, want 65000", price)
	}
	if venue.calls != 3 {
		t.Errorf("venue calls = %d, want 3", venue.calls)
	}

	// Вызов в итоге успешен: breaker не должен увидеть ни одного сбоя
	snap := c.BreakerSnapshot()
	if snap.Failures != 0 {
		t.Errorf("breaker failures = %d, want 0", snap.Failures)
	}
	if snap.State != breaker.StateClosed.String() {
		t.Errorf("breaker state = %v, want closed", snap.State)
	}
}

func TestClientBusinessErrorNotRetried(t *testing.T) {
	rejection := &VenueError{Venue: "fake", Message: "order has invalid size", Original: ErrOrderRejected}
	venue := &fakeVenue{errs: []error{rejection}}
	c := newTestClient(venue)

	_, err := c.PlaceLimitOrder(context.Background(), "BTC", SideBuy, 65000, 0.001)
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("err = %v, want ErrOrderRejected", err)
	}
	if venue.calls != 1 {
		t.Errorf("venue calls = %d, want 1 (no retry)", venue.calls)
	}
	// Ошибка любого класса засчитывается breaker'у
	if c.BreakerSnapshot().Failures != 1 {
		t.Errorf("breaker failures = %d, want 1", c.BreakerSnapshot().Failures)
	}
}

func TestClientBreakerOpensAndShortCircuits(t *testing.T) {
	rejection := &VenueError{Venue: "fake", Message: "bad request", Original: ErrOrderRejected}
	venue := &fakeVenue{errs: []error{rejection, rejection, rejection}}
	c := newTestClient(venue)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.GetSpotPrice(ctx, "BTC"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	if c.BreakerSnapshot().State != breaker.StateOpen.String() {
		t.Fatalf("breaker state = %v, want open", c.BreakerSnapshot().State)
	}

	callsBefore := venue.calls
	_, err := c.GetSpotPrice(ctx, "BTC")
	if !errors.Is(err, breaker.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if venue.calls != callsBefore {
		t.Error("open breaker must short-circuit without calling venue")
	}
}

func TestClientOpenBreakerSkipsPacer(t *testing.T) {
	rejection := &VenueError{Venue: "fake", Message: "bad request", Original: ErrOrderRejected}
	venue := &fakeVenue{errs: []error{rejection}}
	c := NewClient(venue, ClientConfig{
		MinOrderValueUSDC: 10.0,
		RequestInterval:   time.Hour,
		Breaker:           breaker.Config{Name: "test", FailureThreshold: 1, Timeout: time.Hour, HalfOpenAttempts: 1},
		Retry:             retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond},
	}, nil)
	ctx := context.Background()

	// Первый вызов занимает слот pacer'а и открывает breaker
	if _, err := c.GetSpotPrice(ctx, "BTC"); err == nil {
		t.Fatal("expected venue error")
	}
	if c.BreakerSnapshot().State != breaker.StateOpen.String() {
		t.Fatalf("breaker state = %v, want open", c.BreakerSnapshot().State)
	}

	// При открытой цепи отказ мгновенный: часовой интервал pacer'а
	// не должен блокировать вызов
	start := time.Now()
	_, err := c.GetSpotPrice(ctx, "BTC")
	if !errors.Is(err, breaker.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("open-breaker call took %v, want immediate failure", elapsed)
	}
}

func TestClientGetOpenOrdersNilOnFailure(t *testing.T) {
	rejection := &VenueError{Venue: "fake", Message: "server error"}
	venue := &fakeVenue{errs: []error{rejection}}
	c := newTestClient(venue)

	orders, err := c.GetOpenOrders(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if orders != nil {
		t.Error("orders must be nil on failure, not empty slice")
	}
}

func TestClientGetAvailableBalance(t *testing.T) {
	venue := &fakeVenue{}
	c := newTestClient(venue)
	ctx := context.Background()

	usdc, err := c.GetAvailableBalance(ctx, "USDC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usdc != 400 {
		t.Errorf("usdc = %v, want 400", usdc)
	}

	eth, err := c.GetAvailableBalance(ctx, "ETH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eth != 0 {
		t.Errorf("eth = %v, want 0 for missing asset", eth)
	}
}

func TestClientCancelOrder(t *testing.T) {
	venue := &fakeVenue{}
	c := newTestClient(venue)

	if err := c.CancelOrder(context.Background(), "BTC", "oid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if venue.calls != 1 {
		t.Errorf("venue calls = %d, want 1", venue.calls)
	}
}
