// Package testutil provides configurable mocks for orchestration tests.
package testutil

import (
	"context"
	"sync"

	"github.com/clinicore/payflow/core"
)

// MockProvider is a configurable mock implementation of core.Provider.
type MockProvider struct {
	mu sync.Mutex

	// Configurable responses
	OrderResponse  *core.OrderResult
	QueryResponse  *core.QueryResult
	RefundResponse *core.RefundResult
	Aggregation    bool
	Caps           core.Capabilities

	// Error injection
	OrderErr  error
	QueryErr  error
	RefundErr error
	CancelErr error
	CloseErr  error

	// Call tracking
	OrderCalls  []core.OrderRequest
	QueryCalls  []string
	RefundCalls []core.RefundRequest
	CancelCalls []string
	CloseCalls  []string

	// Custom handlers (override default behavior)
	OnCreateOrder func(ctx context.Context, req core.OrderRequest) (*core.OrderResult, error)
	OnQueryStatus func(ctx context.Context, orderNo string) (*core.QueryResult, error)
	OnRefund      func(ctx context.Context, req core.RefundRequest) (*core.RefundResult, error)
	OnCancel      func(ctx context.Context, orderNo string) error
	OnClose       func(ctx context.Context, orderNo string) error
}

// NewMockProvider creates a MockProvider with sensible defaults.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		OrderResponse: &core.OrderResult{
			OrderNo:   "MOCK-ORDER-1",
			Status:    core.StatusPending,
			QRCodeURL: "https://pay.example/qr/MOCK-ORDER-1",
		},
		QueryResponse: &core.QueryResult{
			OrderNo: "MOCK-ORDER-1",
			Status:  core.StatusPending,
		},
		RefundResponse: &core.RefundResult{
			RefundNo: "MOCK-REFUND-1",
			Status:   core.StatusRefunded,
		},
		Aggregation: true,
		Caps: core.Capabilities{
			Channel: "mock",
			Modes:   []core.ScanMode{core.ScanActive, core.ScanPassive},
			Refunds: true,
		},
	}
}

// CreateOrder implements core.Provider.
func (m *MockProvider) CreateOrder(ctx context.Context, req core.OrderRequest) (*core.OrderResult, error) {
	m.mu.Lock()
	m.OrderCalls = append(m.OrderCalls, req)
	m.mu.Unlock()

	if m.OnCreateOrder != nil {
		return m.OnCreateOrder(ctx, req)
	}
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	return m.OrderResponse, nil
}

// QueryStatus implements core.Provider.
func (m *MockProvider) QueryStatus(ctx context.Context, orderNo string) (*core.QueryResult, error) {
	m.mu.Lock()
	m.QueryCalls = append(m.QueryCalls, orderNo)
	m.mu.Unlock()

	if m.OnQueryStatus != nil {
		return m.OnQueryStatus(ctx, orderNo)
	}
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.QueryResponse, nil
}

// Refund implements core.Provider.
func (m *MockProvider) Refund(ctx context.Context, req core.RefundRequest) (*core.RefundResult, error) {
	m.mu.Lock()
	m.RefundCalls = append(m.RefundCalls, req)
	m.mu.Unlock()

	if m.OnRefund != nil {
		return m.OnRefund(ctx, req)
	}
	if m.RefundErr != nil {
		return nil, m.RefundErr
	}
	return m.RefundResponse, nil
}

// RefundResult implements core.Provider.
func (m *MockProvider) RefundResult(ctx context.Context, refundNo string) (*core.RefundResult, error) {
	if m.RefundErr != nil {
		return nil, m.RefundErr
	}
	return m.RefundResponse, nil
}

// Cancel implements core.Provider.
func (m *MockProvider) Cancel(ctx context.Context, orderNo string) error {
	m.mu.Lock()
	m.CancelCalls = append(m.CancelCalls, orderNo)
	m.mu.Unlock()

	if m.OnCancel != nil {
		return m.OnCancel(ctx, orderNo)
	}
	return m.CancelErr
}

// Close implements core.Provider.
func (m *MockProvider) Close(ctx context.Context, orderNo string) error {
	m.mu.Lock()
	m.CloseCalls = append(m.CloseCalls, orderNo)
	m.mu.Unlock()

	if m.OnClose != nil {
		return m.OnClose(ctx, orderNo)
	}
	return m.CloseErr
}

// IsAggregationEnabled implements core.Provider.
func (m *MockProvider) IsAggregationEnabled(data core.BusinessData) bool {
	return m.Aggregation
}

// Capabilities implements core.Provider.
func (m *MockProvider) Capabilities() core.Capabilities {
	return m.Caps
}

// QueryCount returns the number of status queries so far.
func (m *MockProvider) QueryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.QueryCalls)
}
