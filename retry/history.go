package retry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/payflow/core"
)

// DefaultHistoryCapacity bounds the failure history when none is given.
const DefaultHistoryCapacity = 100

// Record is one classified failure kept for diagnostics. No other component
// depends on its retention.
type Record struct {
	ID      string
	Time    time.Time
	Class   core.ErrorClass
	Code    string
	Op      string
	Attempt int
	Context string
}

// History is an append-only bounded log of classified failures; the oldest
// entry is evicted first.
type History struct {
	mu      sync.Mutex
	cap     int
	records []Record
}

// NewHistory creates a history holding at most capacity records.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{cap: capacity}
}

// Record appends one classified failure, evicting the oldest at capacity.
func (h *History) Record(perr *core.PaymentError, op string, attempt int) {
	if perr == nil {
		return
	}
	rec := Record{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Class:   perr.Class,
		Code:    perr.Code,
		Op:      op,
		Attempt: attempt,
		Context: fmt.Sprintf("status=%d retryable=%t msg=%s", perr.Status, perr.Retryable, perr.Message),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) >= h.cap {
		h.records = append(h.records[:0], h.records[1:]...)
	}
	h.records = append(h.records, rec)
}

// Snapshot returns a copy of the recorded failures, oldest first.
func (h *History) Snapshot() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns the number of retained records.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}
