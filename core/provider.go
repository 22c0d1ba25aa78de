package core

import "context"

// Provider is the primary interface implemented by all channel adapters. It
// exposes the gateway operations the orchestration needs while remaining
// channel-agnostic; wire formats stay inside the adapter.
type Provider interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	QueryStatus(ctx context.Context, orderNo string) (*QueryResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	RefundResult(ctx context.Context, refundNo string) (*RefundResult, error)
	Cancel(ctx context.Context, orderNo string) error
	Close(ctx context.Context, orderNo string) error

	// IsAggregationEnabled applies the channel's own business rule for
	// whether a charge may go through the aggregated flow. It is evaluated
	// independently of the orchestration-level enable flag.
	IsAggregationEnabled(data BusinessData) bool

	Capabilities() Capabilities
}

// Capabilities describes the features supported by a channel.
type Capabilities struct {
	Channel        string
	Modes          []ScanMode
	Refunds        bool
	PartialRefunds bool
	MaxAmountCents int64
}

// BusinessData carries the charge-level facts channel business rules consult.
type BusinessData struct {
	PatientID   string
	Department  string
	AmountCents int64
	Insured     bool
}
