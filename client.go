// Package payflow is the unified entry point for aggregated hospital
// payments. It wires configuration, channel selection, retries and the
// interactive session machinery behind one facade.
package payflow

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clinicore/payflow/bus"
	"github.com/clinicore/payflow/config"
	"github.com/clinicore/payflow/core"
	"github.com/clinicore/payflow/obs"
	"github.com/clinicore/payflow/retry"
	"github.com/clinicore/payflow/session"
	"github.com/clinicore/payflow/surface"
)

// Client is the orchestration facade. It resolves channel providers through
// the registry, gates the aggregated flow on remote configuration, and runs
// every gateway operation through the retrier.
//
// Import channels to enable them:
//
//	import (
//	    "github.com/clinicore/payflow"
//	    _ "github.com/clinicore/payflow/providers/swiftpass"
//	    _ "github.com/clinicore/payflow/providers/lakala"
//	)
//
//	client := payflow.NewClient()
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	bus        *bus.Bus
	retrier    *retry.Retrier
	coord      *session.Coordinator
	source     config.Source
	sessionCfg session.Config

	cacheDisabled  bool
	channelConfigs map[string]ChannelConfig

	mu        sync.Mutex
	injected  map[string]core.Provider
	providers map[string]core.Provider
	settings  config.Settings
	loaded    bool
	lastGood  *config.Settings

	closed atomic.Bool
}

// NewClient creates a Client. Without options it uses a process-local bus,
// default retry policies, and a static config source with aggregation
// disabled, so nothing reaches a gateway until configuration says so.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		logger:         slog.Default(),
		httpClient:     nil,
		injected:       make(map[string]core.Provider),
		providers:      make(map[string]core.Provider),
		channelConfigs: make(map[string]ChannelConfig),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = bus.New(bus.WithLogger(c.logger))
	}
	if c.retrier == nil {
		c.retrier = retry.New(retry.WithLogger(c.logger))
	}
	if c.source == nil {
		c.source = config.Static{Settings: config.Default()}
	}
	c.coord = session.NewCoordinator(
		session.WithBus(c.bus),
		session.WithLogger(c.logger),
	)
	return c
}

// Bus exposes the lifecycle event bus.
func (c *Client) Bus() *bus.Bus { return c.bus }

// Retrier exposes the configured retrier, mainly for history inspection.
func (c *Client) Retrier() *retry.Retrier { return c.retrier }

// Coordinator exposes the dialog coordinator.
func (c *Client) Coordinator() *session.Coordinator { return c.coord }

// Provider resolves a channel to its provider instance. Manually injected
// instances always win; factory-built instances are cached, and the cache
// check and insert happen under one lock so concurrent resolutions of the
// same channel construct a single instance.
func (c *Client) Provider(name string) (core.Provider, error) {
	if name == "" {
		return nil, &ChannelLookupError{Channel: name, Err: ErrNoChannel, Available: RegisteredChannels()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.injected[name]; ok {
		return p, nil
	}
	if p, ok := c.providers[name]; ok && !c.cacheDisabled {
		return p, nil
	}

	factory, ok := GetChannelFactory(name)
	if !ok {
		return nil, &ChannelLookupError{Channel: name, Err: ErrNoChannel, Available: RegisteredChannels()}
	}
	cfg, ok := c.channelConfigs[name]
	if !ok {
		cfg = factory.DefaultConfig()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = c.httpClient
	}
	p, err := factory.New(cfg)
	if err != nil {
		return nil, &ChannelError{Channel: name, Op: "init", Err: err}
	}
	if !c.cacheDisabled {
		c.providers[name] = p
	}
	return p, nil
}

// ensureSettings loads configuration lazily (or forcibly) and falls back to
// the last known-good settings, then to the hardcoded default, on failure.
func (c *Client) ensureSettings(ctx context.Context, force bool) config.Settings {
	c.mu.Lock()
	if c.loaded && !force {
		s := c.settings
		c.mu.Unlock()
		return s
	}
	c.mu.Unlock()

	loaded, err := c.source.Load(ctx)

	c.mu.Lock()
	if err != nil {
		c.logger.Warn("payment config load failed", "error", err)
		if c.lastGood != nil {
			c.settings = *c.lastGood
		} else {
			c.settings = config.Default()
		}
		c.loaded = true
		s := c.settings
		c.mu.Unlock()
		return s
	}
	c.settings = loaded
	good := loaded
	c.lastGood = &good
	c.loaded = true
	c.mu.Unlock()

	c.bus.Publish(EventConfigReloaded, loaded)
	return loaded
}

// ReloadConfig forces a configuration reload and returns the effective
// settings after fallback handling.
func (c *Client) ReloadConfig(ctx context.Context) config.Settings {
	return c.ensureSettings(ctx, true)
}

// IsAggregationEnabled is the two-stage gate for the aggregated flow. The
// global flag gates everything; business eligibility is only asserted when
// business data is actually supplied.
func (c *Client) IsAggregationEnabled(ctx context.Context, data *core.BusinessData) bool {
	settings := c.ensureSettings(ctx, false)
	if !settings.Enabled {
		return false
	}
	if data == nil {
		return false
	}
	p, err := c.Provider(settings.Channel)
	if err != nil {
		c.logger.Warn("aggregation check could not resolve channel",
			"channel", settings.Channel, "error", err)
		return false
	}
	return p.IsAggregationEnabled(*data)
}

// CreatePayment creates a gateway order on the active channel.
func (c *Client) CreatePayment(ctx context.Context, req core.OrderRequest) (*core.OrderResult, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	settings := c.ensureSettings(ctx, false)
	p, err := c.Provider(settings.Channel)
	if err != nil {
		return nil, err
	}

	var res *core.OrderResult
	start := time.Now()
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		var opErr error
		res, opErr = p.CreateOrder(ctx, req)
		return opErr
	}, retry.Op("create_payment"), retry.ClassHint(core.ErrNetwork))

	c.logTxn(ctx, settings.Channel, "create_payment", req.ChargeID, orderNoOf(res), req.AmountCents, start, err)
	if err != nil {
		c.bus.Publish(EventPaymentError, req.ChargeID, err)
		return nil, err
	}
	c.bus.Publish(EventPaymentCreated, req.ChargeID, res.OrderNo)
	return res, nil
}

// QueryPaymentStatus reads the order's current gateway status.
func (c *Client) QueryPaymentStatus(ctx context.Context, orderNo string) (*core.QueryResult, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	settings := c.ensureSettings(ctx, false)
	p, err := c.Provider(settings.Channel)
	if err != nil {
		return nil, err
	}

	var res *core.QueryResult
	start := time.Now()
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		var opErr error
		res, opErr = p.QueryStatus(ctx, orderNo)
		return opErr
	}, retry.Op("query_status"), retry.ClassHint(core.ErrNetwork))

	c.logTxn(ctx, settings.Channel, "query_status", "", orderNo, 0, start, err)
	if err != nil {
		c.bus.Publish(EventPaymentError, orderNo, err)
		return nil, err
	}
	if res.Status == core.StatusSuccess {
		c.bus.Publish(EventPaymentSuccess, orderNo, res.PaidAmountCents)
	}
	return res, nil
}

// Refund refunds a paid order, fully or partially.
func (c *Client) Refund(ctx context.Context, req core.RefundRequest) (*core.RefundResult, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	settings := c.ensureSettings(ctx, false)
	p, err := c.Provider(settings.Channel)
	if err != nil {
		return nil, err
	}

	var res *core.RefundResult
	start := time.Now()
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		var opErr error
		res, opErr = p.Refund(ctx, req)
		return opErr
	}, retry.Op("refund"), retry.ClassHint(core.ErrBusiness))

	c.logTxn(ctx, settings.Channel, "refund", "", req.OrderNo, req.AmountCents, start, err)
	if err != nil {
		c.bus.Publish(EventRefundError, req.OrderNo, err)
		return nil, err
	}
	c.bus.Publish(EventRefundSuccess, req.OrderNo, res.RefundNo)
	return res, nil
}

// RefundResult queries a refund's settlement state.
func (c *Client) RefundResult(ctx context.Context, refundNo string) (*core.RefundResult, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	settings := c.ensureSettings(ctx, false)
	p, err := c.Provider(settings.Channel)
	if err != nil {
		return nil, err
	}

	var res *core.RefundResult
	start := time.Now()
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		var opErr error
		res, opErr = p.RefundResult(ctx, refundNo)
		return opErr
	}, retry.Op("refund_result"), retry.ClassHint(core.ErrNetwork))

	c.logTxn(ctx, settings.Channel, "refund_result", "", refundNo, 0, start, err)
	if err != nil {
		c.bus.Publish(EventRefundError, refundNo, err)
		return nil, err
	}
	if res.Status == core.StatusSuccess || res.Status == core.StatusRefunded {
		c.bus.Publish(EventRefundSuccess, refundNo, res.RefundNo)
	}
	return res, nil
}

// Cancel runs the channel's cancel contract for the order.
func (c *Client) Cancel(ctx context.Context, orderNo string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	settings := c.ensureSettings(ctx, false)
	p, err := c.Provider(settings.Channel)
	if err != nil {
		return err
	}

	start := time.Now()
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		return p.Cancel(ctx, orderNo)
	}, retry.Op("cancel"), retry.ClassHint(core.ErrBusiness))

	c.logTxn(ctx, settings.Channel, "cancel", "", orderNo, 0, start, err)
	if err != nil {
		c.bus.Publish(EventPaymentError, orderNo, err)
		return err
	}
	c.bus.Publish(EventPaymentCancelled, orderNo)
	return nil
}

// Close closes an unpaid order on the gateway.
func (c *Client) Close(ctx context.Context, orderNo string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	settings := c.ensureSettings(ctx, false)
	p, err := c.Provider(settings.Channel)
	if err != nil {
		return err
	}

	start := time.Now()
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		return p.Close(ctx, orderNo)
	}, retry.Op("close"), retry.ClassHint(core.ErrBusiness))

	c.logTxn(ctx, settings.Channel, "close", "", orderNo, 0, start, err)
	if err != nil {
		c.bus.Publish(EventPaymentError, orderNo, err)
		return err
	}
	c.bus.Publish(EventPaymentClosed, orderNo)
	return nil
}

// PayRequest describes an interactive payment attempt.
type PayRequest struct {
	Order   core.OrderRequest
	Surface surface.Surface
}

// Pay opens (or rejoins) the interactive dialog for the charge. Provider
// errors inside the dialog are handed to the session raw, without retry or
// classification, so the cashier sees the gateway's own message. If order
// creation succeeded but the session still failed to come up, the order is
// cancelled best-effort; a rollback failure is logged, never returned.
func (c *Client) Pay(ctx context.Context, req PayRequest) (*session.Controller, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	settings := c.ensureSettings(ctx, false)
	p, err := c.Provider(settings.Channel)
	if err != nil {
		return nil, err
	}

	surf := req.Surface
	if surf == nil {
		surf = surface.Noop{}
	}

	var orderNo atomic.Value
	if req.Order.OrderNo != "" {
		orderNo.Store(req.Order.OrderNo)
	}
	currentOrder := func() string {
		no, _ := orderNo.Load().(string)
		return no
	}

	params := session.Params{
		ChargeID: req.Order.ChargeID,
		OrderNo:  req.Order.OrderNo,
		Mode:     req.Order.Mode,
		Surface:  surf,
		Config:   c.sessionCfg,
		Bus:      c.bus,
		Logger:   c.logger,
		Hooks: session.Hooks{
			Create: func(ctx context.Context) (*core.OrderResult, error) {
				res, err := p.CreateOrder(ctx, req.Order)
				if err != nil {
					return nil, err
				}
				orderNo.Store(res.OrderNo)
				c.bus.Publish(EventPaymentCreated, req.Order.ChargeID, res.OrderNo)
				return res, nil
			},
			Query: func(ctx context.Context) (*core.QueryResult, error) {
				no := currentOrder()
				if no == "" {
					return nil, core.NewError(core.ErrParam, "no order to query")
				}
				return p.QueryStatus(ctx, no)
			},
			Cancel: func(ctx context.Context) error {
				return p.Cancel(ctx, currentOrder())
			},
		},
	}

	ctl := c.coord.Open(ctx, core.PaymentKey(req.Order.ChargeID), params)

	if ctl.Session().Status() == core.StatusFailed {
		if no := currentOrder(); no != "" {
			if rbErr := p.Cancel(ctx, no); rbErr != nil {
				c.logger.Error("order rollback failed",
					"charge", req.Order.ChargeID, "order", no, "error", rbErr)
			}
		}
	}
	return ctl, nil
}

// Shutdown resolves every live session as cancelled and marks the client
// closed. Safe to call more than once.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	c.coord.CloseAll()
	return nil
}

func (c *Client) logTxn(ctx context.Context, channel, op, chargeID, orderNo string, amountCents int64, start time.Time, err error) {
	txn := obs.Transaction{
		Channel:      channel,
		Op:           op,
		ChargeID:     chargeID,
		OrderNo:      orderNo,
		AmountCents:  amountCents,
		LatencyMS:    time.Since(start).Milliseconds(),
		CreatedAtUTC: start.UTC().Unix(),
	}
	if err != nil {
		txn.Error = err.Error()
		txn.Status = "error"
	} else {
		txn.Status = "ok"
	}
	obs.LogTransaction(ctx, txn)
}

func orderNoOf(res *core.OrderResult) string {
	if res == nil {
		return ""
	}
	return res.OrderNo
}
