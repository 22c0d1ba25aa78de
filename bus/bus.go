// Package bus provides the synchronous pub/sub primitive shared by the
// orchestration's stateful components.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
)

// ErrorEvent is the reserved topic failures in handlers are re-published on.
const ErrorEvent = "error"

// DefaultMaxListeners is the per-event soft limit before a leak warning.
const DefaultMaxListeners = 16

// Handler receives the arguments the publisher supplied.
type Handler func(args ...any)

type entry struct {
	fn   Handler
	once bool
}

// Bus dispatches events to subscribed handlers. Handlers run synchronously in
// registration order against a snapshot of the listener list taken at publish
// time, so a handler may unsubscribe itself or add new listeners without
// corrupting iteration. A panicking handler is recovered and does not stop
// the handlers after it.
type Bus struct {
	mu           sync.Mutex
	handlers     map[string][]*entry
	maxListeners int
	logger       *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxListeners sets the per-event soft limit. Zero disables the warning.
func WithMaxListeners(n int) Option {
	return func(b *Bus) { b.maxListeners = n }
}

// WithLogger sets the side-channel logger for handler failures and leak
// warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers:     make(map[string][]*entry),
		maxListeners: DefaultMaxListeners,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for event and returns its unsubscribe func.
// Unsubscribing twice is harmless.
func (b *Bus) Subscribe(event string, h Handler) func() {
	return b.subscribe(event, h, false)
}

// SubscribeOnce registers a handler that is removed after its first delivery.
func (b *Bus) SubscribeOnce(event string, h Handler) func() {
	return b.subscribe(event, h, true)
}

func (b *Bus) subscribe(event string, h Handler, once bool) func() {
	e := &entry{fn: h, once: once}

	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], e)
	count := len(b.handlers[event])
	b.mu.Unlock()

	if b.maxListeners > 0 && count > b.maxListeners {
		b.logger.Warn("possible listener leak",
			"event", event, "listeners", count, "limit", b.maxListeners)
	}

	return func() { b.remove(event, e) }
}

func (b *Bus) remove(event string, e *entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[event]
	for i, cur := range list {
		if cur == e {
			b.handlers[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// snapshot copies the current listener list and drops once entries.
func (b *Bus) snapshot(event string) []*entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[event]
	if len(list) == 0 {
		return nil
	}
	snap := make([]*entry, len(list))
	copy(snap, list)

	remaining := list[:0]
	for _, e := range list {
		if !e.once {
			remaining = append(remaining, e)
		}
	}
	b.handlers[event] = remaining
	return snap
}

// Publish delivers the event to every handler registered at call time and
// reports whether there were any. A handler failure is logged, re-published
// on the reserved error event, and never prevents later handlers from
// running.
func (b *Bus) Publish(event string, args ...any) bool {
	snap := b.snapshot(event)
	if len(snap) == 0 {
		return false
	}
	for _, e := range snap {
		b.invoke(event, e.fn, args)
	}
	return true
}

// PublishAsync delivers the event to every handler concurrently and returns
// once all of them settle. Handler results are discarded.
func (b *Bus) PublishAsync(event string, args ...any) bool {
	snap := b.snapshot(event)
	if len(snap) == 0 {
		return false
	}
	var wg sync.WaitGroup
	for _, e := range snap {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			b.invoke(event, e.fn, args)
		}(e)
	}
	wg.Wait()
	return true
}

func (b *Bus) invoke(event string, h Handler, args []any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", event, "panic", r)
			if event != ErrorEvent {
				b.Publish(ErrorEvent, event, fmt.Errorf("handler for %q panicked: %v", event, r))
			}
		}
	}()
	h(args...)
}

// UnsubscribeAll removes all handlers for the named events, or every handler
// when no event is named.
func (b *Bus) UnsubscribeAll(events ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(events) == 0 {
		b.handlers = make(map[string][]*entry)
		return
	}
	for _, event := range events {
		delete(b.handlers, event)
	}
}

// ListenerCount returns the number of handlers registered for event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[event])
}
