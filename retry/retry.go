package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/clinicore/payflow/core"
)

// Policy bounds the retry behaviour for one error class.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// Delay computes the pause before extra attempt n (n >= 1):
// min(BaseDelay * BackoffFactor^(n-1), MaxDelay), optionally scaled by a
// uniform factor in [0.5, 1.0] when jitter is enabled.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(n-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + 0.5*rand.Float64()))
	}
	return d
}

// DefaultPolicies returns the per-class policies used when none are supplied.
// Non-retryable classes still carry a policy so an explicit override can
// force retries on them.
func DefaultPolicies() map[core.ErrorClass]Policy {
	return map[core.ErrorClass]Policy{
		core.ErrNetwork:    {MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2, Jitter: true},
		core.ErrSystem:     {MaxRetries: 2, BaseDelay: 2 * time.Second, MaxDelay: 16 * time.Second, BackoffFactor: 2, Jitter: true},
		core.ErrBusiness:   {MaxRetries: 0, BaseDelay: time.Second, BackoffFactor: 2},
		core.ErrConfig:     {MaxRetries: 0, BaseDelay: time.Second, BackoffFactor: 2},
		core.ErrParam:      {MaxRetries: 0, BaseDelay: time.Second, BackoffFactor: 2},
		core.ErrPermission: {MaxRetries: 0, BaseDelay: time.Second, BackoffFactor: 2},
	}
}

// Retrier executes operations under the per-class policies and records every
// classified failure in a bounded history.
type Retrier struct {
	classifier *Classifier
	policies   map[core.ErrorClass]Policy
	history    *History
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithPolicies replaces the per-class policies.
func WithPolicies(policies map[core.ErrorClass]Policy) RetrierOption {
	return func(r *Retrier) { r.policies = policies }
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *Classifier) RetrierOption {
	return func(r *Retrier) { r.classifier = c }
}

// WithHistory replaces the failure history.
func WithHistory(h *History) RetrierOption {
	return func(r *Retrier) { r.history = h }
}

// WithLogger sets the logger for attempt diagnostics.
func WithLogger(logger *slog.Logger) RetrierOption {
	return func(r *Retrier) { r.logger = logger }
}

// New creates a Retrier with default classifier, policies and history.
func New(opts ...RetrierOption) *Retrier {
	r := &Retrier{
		classifier: NewClassifier(nil),
		policies:   DefaultPolicies(),
		history:    NewHistory(DefaultHistoryCapacity),
		logger:     slog.Default(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// History exposes the recorded failure history.
func (r *Retrier) History() *History { return r.history }

// Classifier exposes the classifier for callers that only need mapping.
func (r *Retrier) Classifier() *Classifier { return r.classifier }

// callConfig is the per-invocation retry context. It lives for one Do call
// and is never persisted.
type callConfig struct {
	op   string
	hint core.ErrorClass
	raw  bool
}

// CallOption configures one Do invocation.
type CallOption func(*callConfig)

// Op names the operation for history records and logs.
func Op(name string) CallOption {
	return func(c *callConfig) { c.op = name }
}

// ClassHint selects the policy for the named class regardless of how the
// failure classifies.
func ClassHint(class core.ErrorClass) CallOption {
	return func(c *callConfig) { c.hint = class }
}

// Raw makes failures propagate unchanged with zero retries and no
// classification. Used when the caller wants the provider's original error
// for presentation.
func Raw() CallOption {
	return func(c *callConfig) { c.raw = true }
}

// Do runs op, classifying failures and retrying while the class is retryable
// and the policy's attempt budget lasts. The final classified error is
// returned once retries are exhausted or the class is non-retryable.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error, opts ...CallOption) error {
	var cfg callConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	attempt := 1
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if cfg.raw {
			return err
		}

		perr := r.classifier.Classify(err)
		r.history.Record(perr, cfg.op, attempt)

		class := perr.Class
		if cfg.hint != "" {
			class = cfg.hint
		}
		policy, ok := r.policies[class]
		if !ok {
			policy = Policy{BaseDelay: time.Second, BackoffFactor: 2}
		}

		if !perr.Retryable || attempt > policy.MaxRetries {
			return perr
		}

		delay := policy.Delay(attempt)
		r.logger.Debug("retrying operation",
			"op", cfg.op, "class", string(perr.Class), "attempt", attempt, "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			return perr
		}
		attempt++
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
