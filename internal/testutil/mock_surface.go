package testutil

import (
	"sync"

	"github.com/clinicore/payflow/core"
)

// MockSurface records every render call a session makes.
type MockSurface struct {
	mu sync.Mutex

	Statuses   []core.Status
	Actions    [][]core.Action
	QRCodes    []string
	Countdowns []int
	Loading    map[core.Action]bool
	Closes     int
}

// NewMockSurface creates an empty MockSurface.
func NewMockSurface() *MockSurface {
	return &MockSurface{Loading: make(map[core.Action]bool)}
}

// ShowStatus implements surface.Surface.
func (m *MockSurface) ShowStatus(status core.Status, actions []core.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Statuses = append(m.Statuses, status)
	m.Actions = append(m.Actions, actions)
}

// ShowQRCode implements surface.Surface.
func (m *MockSurface) ShowQRCode(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QRCodes = append(m.QRCodes, url)
}

// ShowCountdown implements surface.Surface.
func (m *MockSurface) ShowCountdown(remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Countdowns = append(m.Countdowns, remaining)
}

// SetActionLoading implements surface.Surface.
func (m *MockSurface) SetActionLoading(action core.Action, loading bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Loading[action] = loading
}

// Close implements surface.Surface.
func (m *MockSurface) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closes++
}

// CloseCount returns how many times Close ran.
func (m *MockSurface) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closes
}

// LastStatus returns the most recently rendered status.
func (m *MockSurface) LastStatus() core.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Statuses) == 0 {
		return ""
	}
	return m.Statuses[len(m.Statuses)-1]
}

// ActionLoading reports the last rendered loading flag for an action.
func (m *MockSurface) ActionLoading(action core.Action) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Loading[action]
}
