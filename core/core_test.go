package core

import (
	"context"
	"errors"
	"testing"
)

func TestTerminalStatuses(t *testing.T) {
	terminal := []Status{StatusSuccess, StatusAbandoned}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []Status{
		StatusPassiveInit, StatusActiveInit, StatusWaiting, StatusPending,
		StatusProcessing, StatusFailed, StatusCancelled, StatusClosed,
		StatusRefunding, StatusRefunded, StatusTimeout,
	}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestShowsPayerCode(t *testing.T) {
	shownActive := map[Status]bool{
		StatusActiveInit: true,
		StatusPending:    true,
		StatusProcessing: true,
		StatusWaiting:    false,
		StatusSuccess:    false,
		StatusFailed:     false,
	}
	for s, want := range shownActive {
		if got := ShowsPayerCode(s, ScanActive); got != want {
			t.Errorf("active %s: got %v, want %v", s, got, want)
		}
	}
	if !ShowsPayerCode(StatusProcessing, ScanPassive) {
		t.Error("passive processing should show the code")
	}
	if ShowsPayerCode(StatusActiveInit, ScanPassive) {
		t.Error("passive active-init should not show the code")
	}
}

func TestAvailableActions(t *testing.T) {
	if got := AvailableActions(StatusSuccess, ScanActive); got != nil {
		t.Errorf("success offers no actions, got %v", got)
	}
	if got := AvailableActions(StatusFailed, ScanActive); len(got) != 1 || got[0] != ActionWaiting {
		t.Errorf("failed should offer waiting only, got %v", got)
	}
	if got := AvailableActions(StatusCancelled, ScanActive); len(got) != 2 || got[0] != ActionAbandon || got[1] != ActionRetry {
		t.Errorf("cancelled should offer abandon+retry, got %v", got)
	}
	active := AvailableActions(StatusPending, ScanActive)
	if len(active) != 3 || active[1] != ActionRefresh {
		t.Errorf("active pending should include refresh, got %v", active)
	}
	passive := AvailableActions(StatusPending, ScanPassive)
	if len(passive) != 2 {
		t.Errorf("passive pending should not include refresh, got %v", passive)
	}
	if ActionAllowed(ActionRefresh, StatusPending, ScanPassive) {
		t.Error("refresh must not be allowed in passive mode")
	}
}

func TestOrderRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  OrderRequest
		ok   bool
	}{
		{"valid active", OrderRequest{ChargeID: "c", AmountCents: 1, Mode: ScanActive}, true},
		{"valid passive", OrderRequest{ChargeID: "c", AmountCents: 1, Mode: ScanPassive, AuthCode: "x"}, true},
		{"missing charge", OrderRequest{AmountCents: 1}, false},
		{"zero amount", OrderRequest{ChargeID: "c"}, false},
		{"passive without code", OrderRequest{ChargeID: "c", AmountCents: 1, Mode: ScanPassive}, false},
	}
	for _, tc := range cases {
		err := tc.req.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !IsParam(err) {
			t.Errorf("%s: expected param error, got %v", tc.name, err)
		}
	}
}

func TestErrorClassRetryability(t *testing.T) {
	if !IsRetryable(NewError(ErrNetwork, "timeout")) {
		t.Error("network errors retry by default")
	}
	if !IsRetryable(NewError(ErrSystem, "boom")) {
		t.Error("system errors retry by default")
	}
	for _, class := range []ErrorClass{ErrBusiness, ErrParam, ErrPermission, ErrConfig} {
		if IsRetryable(NewError(class, "nope")) {
			t.Errorf("%s errors must not retry by default", class)
		}
	}
	if !IsRetryable(NewError(ErrBusiness, "forced", WithRetryable(true))) {
		t.Error("explicit retryable override should win")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("unclassified errors must not retry")
	}
}

func TestWrapErrorPassesThroughPaymentErrors(t *testing.T) {
	orig := NewError(ErrBusiness, "declined", WithCode("BALANCE_LIMIT"))
	wrapped := WrapError(orig, ErrSystem)
	if wrapped != orig {
		t.Fatal("existing PaymentError should pass through unchanged")
	}

	plain := errors.New("connection refused")
	pe := WrapError(plain, ErrNetwork)
	if pe.Class != ErrNetwork || !pe.Retryable {
		t.Fatalf("unexpected wrap result %+v", pe)
	}
	if !errors.Is(pe, plain) {
		t.Fatal("wrapped error should unwrap to the original")
	}
}

// stubProvider exercises the cancel contract without a gateway.
type stubProvider struct {
	Provider // panic on anything unconfigured

	queryStatus Status
	paid        int64
	queryErr    error

	refunds []RefundRequest
	closes  []string
}

func (s *stubProvider) QueryStatus(ctx context.Context, orderNo string) (*QueryResult, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return &QueryResult{OrderNo: orderNo, Status: s.queryStatus, PaidAmountCents: s.paid}, nil
}

func (s *stubProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	s.refunds = append(s.refunds, req)
	return &RefundResult{RefundNo: req.RefundNo, Status: StatusRefunded}, nil
}

func (s *stubProvider) Close(ctx context.Context, orderNo string) error {
	s.closes = append(s.closes, orderNo)
	return nil
}

func TestCancelByQueryRefundsPaid(t *testing.T) {
	p := &stubProvider{queryStatus: StatusSuccess, paid: 1500}
	if err := CancelByQuery(context.Background(), p, "ORD-1", nil); err != nil {
		t.Fatalf("CancelByQuery: %v", err)
	}
	if len(p.refunds) != 1 || p.refunds[0].AmountCents != 1500 {
		t.Fatalf("expected full refund of paid amount, got %+v", p.refunds)
	}
	if len(p.closes) != 0 {
		t.Fatal("paid order must not be closed")
	}
}

func TestCancelByQueryClosesInFlight(t *testing.T) {
	for _, s := range []Status{StatusPassiveInit, StatusActiveInit, StatusWaiting, StatusPending, StatusProcessing} {
		p := &stubProvider{queryStatus: s}
		if err := CancelByQuery(context.Background(), p, "ORD-2", nil); err != nil {
			t.Fatalf("%s: CancelByQuery: %v", s, err)
		}
		if len(p.closes) != 1 {
			t.Fatalf("%s: expected close, got %+v", s, p.closes)
		}
		if len(p.refunds) != 0 {
			t.Fatalf("%s: unexpected refund", s)
		}
	}
}

func TestCancelByQueryNoopOnDeadStates(t *testing.T) {
	for _, s := range []Status{StatusFailed, StatusCancelled, StatusClosed, StatusTimeout, StatusAbandoned} {
		p := &stubProvider{queryStatus: s}
		if err := CancelByQuery(context.Background(), p, "ORD-3", nil); err != nil {
			t.Fatalf("%s: CancelByQuery: %v", s, err)
		}
		if len(p.closes) != 0 || len(p.refunds) != 0 {
			t.Fatalf("%s: expected no compensation", s)
		}
	}
}

func TestCancelByQueryPropagatesQueryError(t *testing.T) {
	p := &stubProvider{queryErr: NewError(ErrNetwork, "unreachable")}
	err := CancelByQuery(context.Background(), p, "ORD-4", nil)
	if !IsNetwork(err) {
		t.Fatalf("expected query error to propagate, got %v", err)
	}
}

func TestPaymentKey(t *testing.T) {
	if PaymentKey("chg-1") != "pay:chg-1" {
		t.Fatal("unexpected key derivation")
	}
}
