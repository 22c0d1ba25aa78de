package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clinicore/payflow/bus"
	"github.com/clinicore/payflow/core"
)

// DefaultTeardownGrace is how long a resolved session lingers before
// teardown, leaving room for the surface's exit animation.
const DefaultTeardownGrace = 300 * time.Millisecond

// Coordinator guarantees at most one live dialog per payment key and owns
// each session's lifecycle.
type Coordinator struct {
	mu     sync.Mutex
	live   map[string]*Controller
	bus    *bus.Bus
	logger *slog.Logger
	grace  time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithBus sets the event bus sessions publish on.
func WithBus(b *bus.Bus) CoordinatorOption {
	return func(c *Coordinator) { c.bus = b }
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// WithTeardownGrace overrides the delay between resolution and teardown.
func WithTeardownGrace(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.grace = d }
}

// NewCoordinator creates an empty Coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		live:   make(map[string]*Controller),
		bus:    bus.New(),
		logger: slog.Default(),
		grace:  DefaultTeardownGrace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open returns the controller for key. While an unresolved controller exists
// for the key it is returned as-is and no second session is created; after
// resolution a fresh open creates a new one. Session initialization failures
// are absorbed by the session itself (it lands in Failed, still
// controllable), so Open never fails once the controller exists.
func (c *Coordinator) Open(ctx context.Context, key string, p Params) *Controller {
	c.mu.Lock()
	if ctl, ok := c.live[key]; ok && !ctl.resolved.Load() {
		c.mu.Unlock()
		return ctl
	}

	if p.Bus == nil {
		p.Bus = c.bus
	}
	if p.Logger == nil {
		p.Logger = c.logger
	}
	ctl := &Controller{
		key:   key,
		coord: c,
		done:  make(chan struct{}),
	}
	ctl.session = NewSession(p, ctl.resolve)
	c.live[key] = ctl
	c.mu.Unlock()

	if err := ctl.session.Init(ctx); err != nil {
		c.logger.Warn("session initialization failed", "key", key, "error", err)
	}
	return ctl
}

// Live returns the number of unresolved controllers.
func (c *Coordinator) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// remove drops the controller from the dedup index, but only if it still
// owns its slot; a newer controller for the same key is left alone.
func (c *Coordinator) remove(key string, ctl *Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.live[key]; ok && cur == ctl {
		delete(c.live, key)
	}
}

// CloseAll force-resolves every live controller with a cancelled result and
// tears its session down. One session's failure never blocks the others.
func (c *Coordinator) CloseAll() {
	c.mu.Lock()
	controllers := make([]*Controller, 0, len(c.live))
	for _, ctl := range c.live {
		controllers = append(controllers, ctl)
	}
	c.mu.Unlock()

	for _, ctl := range controllers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("session teardown panicked", "key", ctl.key, "panic", r)
				}
			}()
			ctl.Close(Result{Status: core.StatusCancelled, OrderNo: ctl.session.OrderNo()})
		}()
	}
}

// Controller is the host's handle on one dialog session. Exactly one of the
// completion paths (terminal status, explicit Close) resolves it.
type Controller struct {
	key      string
	coord    *Coordinator
	session  *Session
	resolved atomic.Bool
	res      Result
	done     chan struct{}
}

// Session exposes the underlying state machine.
func (c *Controller) Session() *Session { return c.session }

// Key returns the payment key the controller deduplicates on.
func (c *Controller) Key() string { return c.key }

// resolve is the single resolution point. The dedup slot is released
// immediately so a new session for the same key can start without waiting
// for teardown; the session itself is torn down after the grace delay.
func (c *Controller) resolve(r Result) {
	if !c.resolved.CompareAndSwap(false, true) {
		return
	}
	c.res = r
	close(c.done)
	c.coord.remove(c.key, c)
	time.AfterFunc(c.coord.grace, c.session.Destroy)
}

// Close resolves the controller from outside the session, e.g. when the
// cashier dismisses the dialog.
func (c *Controller) Close(r Result) {
	c.resolve(r)
}

// Wait blocks until the controller resolves or ctx ends.
func (c *Controller) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-c.done:
		return c.res, nil
	}
}

// Resolved reports whether a terminal result has been delivered.
func (c *Controller) Resolved() bool { return c.resolved.Load() }
