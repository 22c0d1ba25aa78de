// Package session drives one interactive payment attempt through a bounded
// status machine and guarantees idempotent teardown of its timers, poller and
// surface however the flow terminates.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/payflow/bus"
	"github.com/clinicore/payflow/core"
	"github.com/clinicore/payflow/surface"
)

// Config bounds a session's timers.
type Config struct {
	CountdownSeconds int           // payer-code validity window
	PollInterval     time.Duration // status query cadence
	QueryTimeout     time.Duration // per-query network budget
	SettleDelay      time.Duration // poll mutual-exclusion release delay
	AutoCloseDelay   time.Duration // dialog closure delay after success
}

func (c Config) withDefaults() Config {
	if c.CountdownSeconds <= 0 {
		c.CountdownSeconds = 120
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = time.Second
	}
	if c.AutoCloseDelay <= 0 {
		c.AutoCloseDelay = 3 * time.Second
	}
	return c
}

// Hooks connects a session to its provider. Every hook receives a context
// bounded by the session's query budget.
type Hooks struct {
	// Create creates (or re-creates, for the refresh and retry actions)
	// the gateway order.
	Create func(ctx context.Context) (*core.OrderResult, error)

	// Query reads the order's current gateway status.
	Query func(ctx context.Context) (*core.QueryResult, error)

	// Cancel runs the channel's cancel contract for the order.
	Cancel func(ctx context.Context) error
}

// Params configures a new session.
type Params struct {
	ChargeID string
	OrderNo  string
	Mode     core.ScanMode
	Surface  surface.Surface
	Hooks    Hooks
	Config   Config
	Bus      *bus.Bus
	Logger   *slog.Logger
}

// Result is the terminal outcome of a session.
type Result struct {
	Status  core.Status
	OrderNo string
	Err     error
}

// Session is the per-attempt controller. All mutation happens under one
// mutex; the destroyed flag is consulted by every timer callback before it
// touches state, so results arriving after teardown are discarded.
type Session struct {
	id      string
	mode    core.ScanMode
	cfg     Config
	hooks   Hooks
	surface surface.Surface
	bus     *bus.Bus
	logger  *slog.Logger
	onFinal func(Result)

	mu            sync.Mutex
	chargeID      string
	orderNo       string
	status        core.Status
	remaining     int
	loading       map[core.Action]bool
	pollStop      chan struct{}
	countdownStop chan struct{}

	querying  atomic.Bool
	destroyed atomic.Bool
	finalOnce sync.Once
	teardown  sync.Once
}

// NewSession creates a session. onFinal receives the terminal result exactly
// once; a nil onFinal is allowed for fire-and-forget use.
func NewSession(p Params, onFinal func(Result)) *Session {
	if p.Surface == nil {
		p.Surface = surface.Noop{}
	}
	if p.Bus == nil {
		p.Bus = bus.New()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Mode == "" {
		p.Mode = core.ScanActive
	}
	cfg := p.Config.withDefaults()
	return &Session{
		id:        uuid.NewString(),
		mode:      p.Mode,
		cfg:       cfg,
		hooks:     p.Hooks,
		surface:   p.Surface,
		bus:       p.Bus,
		logger:    p.Logger,
		onFinal:   onFinal,
		chargeID:  p.ChargeID,
		orderNo:   p.OrderNo,
		remaining: cfg.CountdownSeconds,
		loading:   make(map[core.Action]bool),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// OrderNo returns the gateway order number, when known.
func (s *Session) OrderNo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderNo
}

// Status returns the current session status.
func (s *Session) Status() core.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Init runs the session from scratch: in active mode it creates the gateway
// order and shows the payer code, in passive mode it arms the session for
// the external scanner. A failure is logged and forces the Failed status;
// the session stays controllable.
func (s *Session) Init(ctx context.Context) error {
	if s.destroyed.Load() {
		return nil
	}
	s.bus.Publish(EventInitDialog, s.id, s.chargeID)

	if s.mode == core.ScanPassive {
		s.UpdateStatus(core.StatusPassiveInit)
		return nil
	}

	s.bus.Publish(EventCreatePayment, s.chargeID)
	res, err := s.runHook(ctx, s.hooks.Create)
	if err != nil {
		s.logger.Error("session init failed", "session", s.id, "charge", s.chargeID, "error", err)
		s.UpdateStatus(core.StatusFailed)
		return err
	}
	if res != nil {
		s.mu.Lock()
		s.orderNo = res.OrderNo
		s.mu.Unlock()
		if res.QRCodeURL != "" {
			s.UpdateQRCodeURL(res.QRCodeURL)
		}
	}
	s.UpdateStatus(core.StatusActiveInit)
	return nil
}

func (s *Session) runHook(ctx context.Context, hook func(context.Context) (*core.OrderResult, error)) (*core.OrderResult, error) {
	if hook == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	return hook(ctx)
}

// UpdateStatus applies a status change from a provider callback, a user
// action or a timer, and manages the countdown/poller pair: entering the
// payer-code set starts both, leaving it stops both and resets the countdown.
// Re-entering the current status is a no-op for the timers.
func (s *Session) UpdateStatus(next core.Status) {
	if s.destroyed.Load() {
		return
	}

	s.mu.Lock()
	if s.destroyed.Load() {
		// Destroy won the race since the fast-path check; starting
		// timers now would outlive the teardown.
		s.mu.Unlock()
		return
	}
	prev := s.status
	s.status = next

	wasShown := core.ShowsPayerCode(prev, s.mode)
	isShown := core.ShowsPayerCode(next, s.mode)
	switch {
	case isShown && !wasShown:
		s.startTimersLocked()
	case wasShown && !isShown:
		s.stopTimersLocked()
		s.remaining = s.cfg.CountdownSeconds
	}
	if next.Terminal() {
		s.stopTimersLocked()
	}
	orderNo := s.orderNo
	s.mu.Unlock()

	s.surface.ShowStatus(next, core.AvailableActions(next, s.mode))

	if !next.Terminal() {
		return
	}

	s.bus.Publish(EventFinalStatus, s.id, next)
	s.finish(Result{Status: next, OrderNo: orderNo})

	if next == core.StatusSuccess {
		// Leave the paid confirmation on screen briefly, then close.
		time.AfterFunc(s.cfg.AutoCloseDelay, func() {
			if !s.destroyed.Load() {
				s.Destroy()
			}
		})
		return
	}
	s.Destroy()
}

// UpdateQRCodeURL pushes a fresh payer code to the surface.
func (s *Session) UpdateQRCodeURL(url string) {
	if s.destroyed.Load() {
		return
	}
	s.surface.ShowQRCode(url)
}

// SetActionLoading toggles an action button's loading indicator.
func (s *Session) SetActionLoading(action core.Action, loading bool) {
	if s.destroyed.Load() {
		return
	}
	s.mu.Lock()
	s.loading[action] = loading
	s.mu.Unlock()
	s.surface.SetActionLoading(action, loading)
}

// ActionLoading reports whether an action's indicator is currently on.
func (s *Session) ActionLoading(action core.Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading[action]
}

// StopPolling halts the status poller without touching the countdown.
func (s *Session) StopPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

// StopTimer halts the countdown without touching the poller.
func (s *Session) StopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countdownStop != nil {
		close(s.countdownStop)
		s.countdownStop = nil
	}
}

// Do executes a user action. The action must be offered by the current
// status; its loading indicator is cleared on both success and failure so
// the surface never appears stuck. A failed action leaves the status
// unchanged.
func (s *Session) Do(ctx context.Context, action core.Action) error {
	if s.destroyed.Load() {
		return core.NewError(core.ErrParam, "session already destroyed")
	}
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	if !core.ActionAllowed(action, status, s.mode) {
		return core.NewError(core.ErrParam, "action "+string(action)+" not available in status "+string(status))
	}

	s.SetActionLoading(action, true)
	defer s.SetActionLoading(action, false)

	var err error
	switch action {
	case core.ActionCancel:
		s.bus.Publish(EventCancelPayment, s.id)
		if s.hooks.Cancel != nil {
			err = s.hooks.Cancel(ctx)
		}
		if err == nil {
			s.UpdateStatus(core.StatusCancelled)
		}
	case core.ActionQuery:
		err = s.queryOnce(ctx)
	case core.ActionRefresh:
		s.bus.Publish(EventRefreshQRCode, s.id)
		var res *core.OrderResult
		res, err = s.runHook(ctx, s.hooks.Create)
		if err == nil && res != nil {
			s.mu.Lock()
			s.orderNo = res.OrderNo
			s.mu.Unlock()
			s.UpdateQRCodeURL(res.QRCodeURL)
		}
	case core.ActionRetry:
		s.bus.Publish(EventRetryPayment, s.id)
		err = s.retry(ctx)
	case core.ActionAbandon:
		s.bus.Publish(EventAbandonPayment, s.id)
		s.UpdateStatus(core.StatusAbandoned)
	case core.ActionWaiting:
		s.UpdateStatus(core.StatusWaiting)
	}

	if err != nil {
		s.logger.Warn("session action failed",
			"session", s.id, "action", string(action), "error", err)
	}
	return err
}

// retry re-runs initialization from scratch and completes before returning,
// so the caller only ever sees a controllable session.
func (s *Session) retry(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimersLocked()
	s.status = ""
	s.remaining = s.cfg.CountdownSeconds
	s.mu.Unlock()
	return s.Init(ctx)
}

func (s *Session) startTimersLocked() {
	if s.pollStop == nil {
		stop := make(chan struct{})
		s.pollStop = stop
		go s.pollLoop(stop)
	}
	if s.countdownStop == nil {
		stop := make(chan struct{})
		s.countdownStop = stop
		go s.countdownLoop(stop)
	}
}

// stopTimersLocked is safe to call with either timer already stopped; each
// stop channel is closed exactly once because it is nilled in the same
// critical section.
func (s *Session) stopTimersLocked() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
	if s.countdownStop != nil {
		close(s.countdownStop)
		s.countdownStop = nil
	}
}

func (s *Session) pollLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll runs one status query. Queries are mutually exclusive per session;
// the suppression flag is released a settling delay after completion to
// smooth bursts from timer jitter.
func (s *Session) poll() {
	if s.destroyed.Load() {
		return
	}
	if !s.querying.CompareAndSwap(false, true) {
		return
	}
	defer time.AfterFunc(s.cfg.SettleDelay, func() { s.querying.Store(false) })

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
	defer cancel()
	s.applyQuery(ctx, false)
}

// queryOnce is the user-initiated variant of poll; it bypasses suppression
// because the cashier asked explicitly.
func (s *Session) queryOnce(ctx context.Context) error {
	return s.applyQuery(ctx, true)
}

func (s *Session) applyQuery(ctx context.Context, propagate bool) error {
	if s.hooks.Query == nil {
		return nil
	}
	s.bus.Publish(EventQueryStatus, s.id, s.OrderNo())

	res, err := s.hooks.Query(ctx)
	if err != nil {
		// A failed poll leaves the status unchanged.
		s.logger.Debug("status query failed", "session", s.id, "error", err)
		if propagate {
			return err
		}
		return nil
	}
	if s.destroyed.Load() {
		// Result arrived after teardown; discard.
		return nil
	}
	if res != nil && res.Status != "" && res.Status != s.Status() {
		s.UpdateStatus(res.Status)
	}
	return nil
}

func (s *Session) countdownLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.destroyed.Load() {
				return
			}
			s.mu.Lock()
			s.remaining--
			remaining := s.remaining
			s.mu.Unlock()
			s.surface.ShowCountdown(remaining)
			if remaining <= 0 {
				s.UpdateStatus(core.StatusTimeout)
				return
			}
		}
	}
}

// finish publishes the terminal result exactly once.
func (s *Session) finish(r Result) {
	s.finalOnce.Do(func() {
		if s.onFinal != nil {
			s.onFinal(r)
		}
	})
}

// Destroy tears the session down: timers cleared, surface closed, close
// event published. Idempotent and safe to invoke concurrently from the
// completion, external-close and error paths.
func (s *Session) Destroy() {
	s.teardown.Do(func() {
		s.destroyed.Store(true)
		s.mu.Lock()
		s.stopTimersLocked()
		s.mu.Unlock()
		s.surface.Close()
		s.bus.Publish(EventClose, s.id)
	})
}

// Destroyed reports whether teardown has started.
func (s *Session) Destroyed() bool { return s.destroyed.Load() }
