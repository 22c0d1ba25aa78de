package core

import "encoding/json"

// OrderRequest describes a charge to create on a payment channel.
type OrderRequest struct {
	ChargeID    string   // host-side charge identifier, also the dedup seed
	OrderNo     string   // gateway order number; generated when empty
	AmountCents int64
	Subject     string
	Mode        ScanMode
	AuthCode    string // payer-presented code, passive mode only
	PatientID   string
	Extra       map[string]string
}

// Validate rejects requests the gateway would bounce anyway. Validation
// failures are ParamError and are never retried.
func (r OrderRequest) Validate() error {
	if r.ChargeID == "" {
		return NewError(ErrParam, "order request missing charge id")
	}
	if r.AmountCents <= 0 {
		return NewError(ErrParam, "order amount must be positive")
	}
	if r.Mode == ScanPassive && r.AuthCode == "" {
		return NewError(ErrParam, "passive order missing auth code")
	}
	return nil
}

// OrderResult is the gateway's answer to order creation.
type OrderResult struct {
	OrderNo   string
	Status    Status
	QRCodeURL string // payer-facing code, active mode only
	Raw       json.RawMessage
}

// QueryResult is the gateway's answer to a status query.
type QueryResult struct {
	OrderNo         string
	Status          Status
	PaidAmountCents int64
	Raw             json.RawMessage
}

// RefundRequest describes a full or partial refund of a paid order.
type RefundRequest struct {
	OrderNo     string
	RefundNo    string // generated when empty
	AmountCents int64
	Reason      string
}

// Validate rejects refunds the gateway would bounce anyway.
func (r RefundRequest) Validate() error {
	if r.OrderNo == "" {
		return NewError(ErrParam, "refund request missing order number")
	}
	if r.AmountCents <= 0 {
		return NewError(ErrParam, "refund amount must be positive")
	}
	return nil
}

// RefundResult is the gateway's answer to a refund or refund-result query.
type RefundResult struct {
	RefundNo string
	Status   Status
	Raw      json.RawMessage
}

// PaymentKey derives the dedup key for a charge. At most one interactive
// session may be live per key at any time.
func PaymentKey(chargeID string) string {
	return "pay:" + chargeID
}
