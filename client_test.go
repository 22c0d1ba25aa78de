package payflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clinicore/payflow/config"
	"github.com/clinicore/payflow/core"
	"github.com/clinicore/payflow/internal/testutil"
	"github.com/clinicore/payflow/retry"
)

func enabledSource() config.Source {
	return config.Static{Settings: config.Settings{Channel: "mock", Enabled: true}}
}

func newTestClient(t *testing.T, mock *testutil.MockProvider, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{
		WithChannelProvider("mock", mock),
		WithConfigSource(enabledSource()),
	}, opts...)
	c := NewClient(opts...)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

// eventRecorder collects bus publications for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events map[string]int
}

func recordEvents(c *Client, topics ...string) *eventRecorder {
	r := &eventRecorder{events: map[string]int{}}
	for _, topic := range topics {
		topic := topic
		c.Bus().Subscribe(topic, func(args ...any) {
			r.mu.Lock()
			r.events[topic]++
			r.mu.Unlock()
		})
	}
	return r
}

func (r *eventRecorder) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[topic]
}

func TestAggregationGate(t *testing.T) {
	mock := testutil.NewMockProvider()
	data := &core.BusinessData{PatientID: "P-1", AmountCents: 100}

	disabled := NewClient(
		WithChannelProvider("mock", mock),
		WithConfigSource(config.Static{Settings: config.Settings{Channel: "mock", Enabled: false}}),
	)
	if disabled.IsAggregationEnabled(context.Background(), data) {
		t.Fatal("global flag off must gate everything")
	}

	enabled := newTestClient(t, mock)
	if enabled.IsAggregationEnabled(context.Background(), nil) {
		t.Fatal("no business data must mean no aggregation")
	}
	if !enabled.IsAggregationEnabled(context.Background(), data) {
		t.Fatal("provider predicate should decide when enabled and data given")
	}

	mock.Aggregation = false
	if enabled.IsAggregationEnabled(context.Background(), data) {
		t.Fatal("provider predicate result should pass through")
	}
}

func TestConfigFallbackChain(t *testing.T) {
	mock := testutil.NewMockProvider()

	var fail bool
	var loads int
	src := config.Func(func(ctx context.Context) (config.Settings, error) {
		loads++
		if fail {
			return config.Settings{}, errors.New("switch service unreachable")
		}
		return config.Settings{Channel: "mock", Enabled: true}, nil
	})
	c := newTestClient(t, mock, WithConfigSource(src))

	s := c.ensureSettings(context.Background(), false)
	if !s.Enabled || s.Channel != "mock" {
		t.Fatalf("unexpected settings %+v", s)
	}
	if got := c.ensureSettings(context.Background(), false); got != s {
		t.Fatal("second call should reuse loaded settings")
	}
	if loads != 1 {
		t.Fatalf("lazy load should hit the source once, got %d", loads)
	}

	fail = true
	got := c.ReloadConfig(context.Background())
	if !got.Enabled || got.Channel != "mock" {
		t.Fatalf("failed reload should fall back to last known good, got %+v", got)
	}
}

func TestConfigFallbackToDefaultWhenNeverLoaded(t *testing.T) {
	mock := testutil.NewMockProvider()
	c := newTestClient(t, mock, WithConfigSource(config.Static{Err: errors.New("boom")}))

	s := c.ensureSettings(context.Background(), false)
	if s != config.Default() {
		t.Fatalf("expected hardcoded default, got %+v", s)
	}
}

func TestCreatePaymentPublishesEvent(t *testing.T) {
	mock := testutil.NewMockProvider()
	c := newTestClient(t, mock)
	rec := recordEvents(c, EventPaymentCreated, EventPaymentError)

	res, err := c.CreatePayment(context.Background(), core.OrderRequest{
		ChargeID:    "chg-1",
		AmountCents: 900,
		Mode:        core.ScanActive,
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if res.OrderNo != "MOCK-ORDER-1" {
		t.Fatalf("unexpected order %q", res.OrderNo)
	}
	if rec.count(EventPaymentCreated) != 1 || rec.count(EventPaymentError) != 0 {
		t.Fatalf("unexpected events %+v", rec.events)
	}
}

func TestCreatePaymentErrorNotRetriedForBusinessClass(t *testing.T) {
	mock := testutil.NewMockProvider()
	mock.OrderErr = core.NewError(core.ErrBusiness, "duplicate charge", core.WithCode("ORDER_PAID"))
	c := newTestClient(t, mock)
	rec := recordEvents(c, EventPaymentCreated, EventPaymentError)

	_, err := c.CreatePayment(context.Background(), core.OrderRequest{
		ChargeID: "chg-2", AmountCents: 100, Mode: core.ScanActive,
	})
	if !core.IsBusiness(err) {
		t.Fatalf("expected business error, got %v", err)
	}
	if len(mock.OrderCalls) != 1 {
		t.Fatalf("business errors must not retry, got %d calls", len(mock.OrderCalls))
	}
	if rec.count(EventPaymentError) != 1 {
		t.Fatal("expected payment error event")
	}
}

func TestNetworkErrorsRetryThenSucceed(t *testing.T) {
	mock := testutil.NewMockProvider()
	var calls int
	mock.OnCreateOrder = func(ctx context.Context, req core.OrderRequest) (*core.OrderResult, error) {
		calls++
		if calls < 3 {
			return nil, core.NewError(core.ErrNetwork, "gateway timeout")
		}
		return &core.OrderResult{OrderNo: "ORD-3", Status: core.StatusPending}, nil
	}
	fast := retry.New(retry.WithPolicies(map[core.ErrorClass]retry.Policy{
		core.ErrNetwork: {MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2},
	}))
	c := newTestClient(t, mock, WithRetrier(fast))

	res, err := c.CreatePayment(context.Background(), core.OrderRequest{
		ChargeID: "chg-3", AmountCents: 100, Mode: core.ScanActive,
	})
	if err != nil {
		t.Fatalf("CreatePayment after retries: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if res.OrderNo != "ORD-3" {
		t.Fatalf("unexpected order %q", res.OrderNo)
	}
	if fast.History().Len() != 2 {
		t.Fatalf("both failures should land in history, got %d", fast.History().Len())
	}
}

func TestQueryPublishesSuccessEvent(t *testing.T) {
	mock := testutil.NewMockProvider()
	mock.QueryResponse = &core.QueryResult{OrderNo: "ORD-4", Status: core.StatusSuccess, PaidAmountCents: 700}
	c := newTestClient(t, mock)
	rec := recordEvents(c, EventPaymentSuccess)

	res, err := c.QueryPaymentStatus(context.Background(), "ORD-4")
	if err != nil {
		t.Fatalf("QueryPaymentStatus: %v", err)
	}
	if res.Status != core.StatusSuccess {
		t.Fatalf("unexpected status %v", res.Status)
	}
	if rec.count(EventPaymentSuccess) != 1 {
		t.Fatal("expected payment success event")
	}
}

func TestRefundEvents(t *testing.T) {
	mock := testutil.NewMockProvider()
	c := newTestClient(t, mock)
	rec := recordEvents(c, EventRefundSuccess, EventRefundError)

	_, err := c.Refund(context.Background(), core.RefundRequest{OrderNo: "ORD-5", AmountCents: 300})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if rec.count(EventRefundSuccess) != 1 {
		t.Fatal("expected refund success event")
	}

	mock.RefundErr = core.NewError(core.ErrBusiness, "already refunded")
	_, err = c.Refund(context.Background(), core.RefundRequest{OrderNo: "ORD-5", AmountCents: 300})
	if err == nil {
		t.Fatal("expected refund error")
	}
	if rec.count(EventRefundError) != 1 {
		t.Fatal("expected refund error event")
	}
}

func TestRefundResultEvents(t *testing.T) {
	mock := testutil.NewMockProvider()
	c := newTestClient(t, mock)
	rec := recordEvents(c, EventRefundSuccess, EventRefundError)

	res, err := c.RefundResult(context.Background(), "MOCK-REFUND-1")
	if err != nil {
		t.Fatalf("RefundResult: %v", err)
	}
	if res.Status != core.StatusRefunded {
		t.Fatalf("unexpected status %v", res.Status)
	}
	if rec.count(EventRefundSuccess) != 1 {
		t.Fatal("settled refund should publish a success event")
	}

	mock.RefundResponse = &core.RefundResult{RefundNo: "MOCK-REFUND-1", Status: core.StatusProcessing}
	if _, err := c.RefundResult(context.Background(), "MOCK-REFUND-1"); err != nil {
		t.Fatalf("RefundResult: %v", err)
	}
	if rec.count(EventRefundSuccess) != 1 {
		t.Fatal("an unsettled refund must not publish success")
	}

	mock.RefundErr = core.NewError(core.ErrBusiness, "refund not found")
	if _, err := c.RefundResult(context.Background(), "MOCK-REFUND-1"); err == nil {
		t.Fatal("expected refund result error")
	}
	if rec.count(EventRefundError) != 1 {
		t.Fatal("expected refund error event")
	}
}

func TestProviderLookupErrors(t *testing.T) {
	c := NewClient(WithConfigSource(enabledSource()))

	_, err := c.Provider("")
	var le *ChannelLookupError
	if !errors.As(err, &le) || !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected lookup error for empty channel, got %v", err)
	}

	_, err = c.Provider("definitely-not-registered")
	if !errors.As(err, &le) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestProviderInstanceCached(t *testing.T) {
	mock := testutil.NewMockProvider()
	c := newTestClient(t, mock)

	p1, err := c.Provider("mock")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	p2, _ := c.Provider("mock")
	if p1 != p2 {
		t.Fatal("expected cached instance")
	}
}

func TestInjectedProviderSurvivesCacheBypass(t *testing.T) {
	mock := testutil.NewMockProvider()
	c := newTestClient(t, mock, WithoutInstanceCache())

	p, err := c.Provider("mock")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if p != core.Provider(mock) {
		t.Fatal("expected the injected instance")
	}
	if _, err := c.CreatePayment(context.Background(), core.OrderRequest{
		ChargeID: "chg-10", AmountCents: 100, Mode: core.ScanActive,
	}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
}

func TestPayDedupesByChargeID(t *testing.T) {
	mock := testutil.NewMockProvider()
	c := newTestClient(t, mock)

	req := PayRequest{Order: core.OrderRequest{
		ChargeID: "chg-6", AmountCents: 100, Mode: core.ScanActive,
	}}
	ctl1, err := c.Pay(context.Background(), req)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	ctl2, err := c.Pay(context.Background(), req)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if ctl1 != ctl2 {
		t.Fatal("unresolved charge must reuse the live controller")
	}
	if len(mock.OrderCalls) != 1 {
		t.Fatalf("dedup must prevent a second order, got %d", len(mock.OrderCalls))
	}
}

func TestPayRollsBackFailedSession(t *testing.T) {
	mock := testutil.NewMockProvider()
	mock.OrderErr = core.NewError(core.ErrSystem, "gateway exploded")
	mock.CancelErr = errors.New("rollback also failed")
	c := newTestClient(t, mock)

	ctl, err := c.Pay(context.Background(), PayRequest{Order: core.OrderRequest{
		ChargeID: "chg-7", OrderNo: "ORD-PRE", AmountCents: 100, Mode: core.ScanActive,
	}})
	if err != nil {
		t.Fatalf("Pay must absorb session init failure, got %v", err)
	}
	if ctl.Session().Status() != core.StatusFailed {
		t.Fatalf("session should be failed, got %v", ctl.Session().Status())
	}
	if len(mock.CancelCalls) != 1 || mock.CancelCalls[0] != "ORD-PRE" {
		t.Fatalf("expected best-effort cancel of the preexisting order, got %v", mock.CancelCalls)
	}
}

func TestShutdownClosesClient(t *testing.T) {
	mock := testutil.NewMockProvider()
	c := NewClient(
		WithChannelProvider("mock", mock),
		WithConfigSource(enabledSource()),
	)

	ctl, err := c.Pay(context.Background(), PayRequest{Order: core.OrderRequest{
		ChargeID: "chg-8", AmountCents: 100, Mode: core.ScanActive,
	}})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !ctl.Resolved() {
		t.Fatal("shutdown should resolve live sessions")
	}
	if _, err := c.CreatePayment(context.Background(), core.OrderRequest{
		ChargeID: "chg-9", AmountCents: 100,
	}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatal("second shutdown must be a no-op")
	}
}
