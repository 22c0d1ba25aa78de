package swiftpass

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/clinicore/payflow/core"
)

type gatewayCall struct {
	Path string
	Body map[string]any
}

// fakeGateway serves canned envelope responses keyed by path and records
// every request body it sees.
type fakeGateway struct {
	mu        sync.Mutex
	calls     []gatewayCall
	responses map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{responses: map[string]string{}}
}

func (g *fakeGateway) respond(path, body string) { g.responses[path] = body }

func (g *fakeGateway) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.calls = append(g.calls, gatewayCall{Path: r.URL.Path, Body: body})
		resp, ok := g.responses[r.URL.Path]
		g.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}
}

func (g *fakeGateway) callsTo(path string) []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []gatewayCall
	for _, c := range g.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func newTestClient(t *testing.T, gw *fakeGateway) *Client {
	t.Helper()
	srv := httptest.NewServer(gw.handler())
	t.Cleanup(srv.Close)
	return New(
		WithBaseURL(srv.URL),
		WithMerchantID("M100"),
		WithSignKey("secret"),
	)
}

func TestCreateOrderActiveReturnsQRCode(t *testing.T) {
	gw := newFakeGateway()
	gw.respond("/pay/unifiedorder", `{"code":"SUCCESS","data":{"out_trade_no":"GW-1","code_url":"weixin://wxpay/abc"}}`)
	c := newTestClient(t, gw)

	res, err := c.CreateOrder(context.Background(), core.OrderRequest{
		ChargeID:    "chg-1",
		AmountCents: 2500,
		Subject:     "outpatient consult",
		Mode:        core.ScanActive,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if res.OrderNo != "GW-1" {
		t.Fatalf("expected gateway order number, got %q", res.OrderNo)
	}
	if res.QRCodeURL != "weixin://wxpay/abc" {
		t.Fatalf("unexpected QR code %q", res.QRCodeURL)
	}
	if res.Status != core.StatusPending {
		t.Fatalf("active order should start pending, got %v", res.Status)
	}

	calls := gw.callsTo("/pay/unifiedorder")
	if len(calls) != 1 {
		t.Fatalf("expected 1 gateway call, got %d", len(calls))
	}
	if calls[0].Body["total_fee"].(float64) != 2500 {
		t.Fatalf("unexpected total_fee %v", calls[0].Body["total_fee"])
	}
}

func TestCreateOrderPassiveUsesMicropay(t *testing.T) {
	gw := newFakeGateway()
	gw.respond("/pay/micropay", `{"code":"SUCCESS","data":{"out_trade_no":"GW-2","trade_state":"USERPAYING"}}`)
	c := newTestClient(t, gw)

	res, err := c.CreateOrder(context.Background(), core.OrderRequest{
		ChargeID:    "chg-2",
		AmountCents: 800,
		Mode:        core.ScanPassive,
		AuthCode:    "134551234567890",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if res.Status != core.StatusProcessing {
		t.Fatalf("USERPAYING should map to processing, got %v", res.Status)
	}
	if len(gw.callsTo("/pay/micropay")) != 1 {
		t.Fatal("passive order should hit micropay")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	c := New()
	_, err := c.CreateOrder(context.Background(), core.OrderRequest{
		ChargeID:    "chg-3",
		AmountCents: 100,
		Mode:        core.ScanPassive, // no auth code
	})
	if !core.IsParam(err) {
		t.Fatalf("expected param error, got %v", err)
	}
}

func TestBusinessCodeRaisesBusinessError(t *testing.T) {
	gw := newFakeGateway()
	gw.respond("/pay/orderquery", `{"code":"ORDER_NOT_EXIST","message":"order does not exist"}`)
	c := newTestClient(t, gw)

	_, err := c.QueryStatus(context.Background(), "GW-404")
	if !core.IsBusiness(err) {
		t.Fatalf("expected business error, got %v", err)
	}
	var pe *core.PaymentError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PaymentError, got %T", err)
	}
	if pe.Code != "ORDER_NOT_EXIST" {
		t.Fatalf("expected gateway code preserved, got %q", pe.Code)
	}
	if pe.Message != "order does not exist" {
		t.Fatalf("expected gateway message preserved, got %q", pe.Message)
	}
}

func TestQueryStatusMapsTradeStates(t *testing.T) {
	cases := map[string]core.Status{
		"SUCCESS":    core.StatusSuccess,
		"NOTPAY":     core.StatusPending,
		"USERPAYING": core.StatusProcessing,
		"CLOSED":     core.StatusClosed,
		"REVOKED":    core.StatusCancelled,
		"PAYERROR":   core.StatusFailed,
		"UNKNOWNISH": core.StatusWaiting,
	}
	for state, want := range cases {
		gw := newFakeGateway()
		gw.respond("/pay/orderquery", `{"code":"SUCCESS","data":{"trade_state":"`+state+`","total_fee":100}}`)
		c := newTestClient(t, gw)

		res, err := c.QueryStatus(context.Background(), "GW-5")
		if err != nil {
			t.Fatalf("%s: QueryStatus: %v", state, err)
		}
		if res.Status != want {
			t.Fatalf("%s: expected %v, got %v", state, want, res.Status)
		}
	}
}

func TestCancelRefundsPaidOrder(t *testing.T) {
	gw := newFakeGateway()
	gw.respond("/pay/orderquery", `{"code":"SUCCESS","data":{"trade_state":"SUCCESS","total_fee":1200}}`)
	gw.respond("/pay/refund", `{"code":"SUCCESS","data":{"refund_status":"SUCCESS"}}`)
	c := newTestClient(t, gw)

	if err := c.Cancel(context.Background(), "GW-6"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	refunds := gw.callsTo("/pay/refund")
	if len(refunds) != 1 {
		t.Fatalf("expected 1 refund call, got %d", len(refunds))
	}
	if refunds[0].Body["refund_fee"].(float64) != 1200 {
		t.Fatalf("refund should cover paid amount, got %v", refunds[0].Body["refund_fee"])
	}
}

func TestCancelClosesPendingOrder(t *testing.T) {
	gw := newFakeGateway()
	gw.respond("/pay/orderquery", `{"code":"SUCCESS","data":{"trade_state":"NOTPAY"}}`)
	gw.respond("/pay/closeorder", `{"code":"SUCCESS"}`)
	c := newTestClient(t, gw)

	if err := c.Cancel(context.Background(), "GW-7"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(gw.callsTo("/pay/closeorder")) != 1 {
		t.Fatal("expected close call for pending order")
	}
	if len(gw.callsTo("/pay/refund")) != 0 {
		t.Fatal("pending order must not be refunded")
	}
}

func TestCancelIsNoopForDeadOrder(t *testing.T) {
	gw := newFakeGateway()
	gw.respond("/pay/orderquery", `{"code":"SUCCESS","data":{"trade_state":"CLOSED"}}`)
	c := newTestClient(t, gw)

	if err := c.Cancel(context.Background(), "GW-8"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(gw.calls) != 1 {
		t.Fatalf("expected only the query call, got %d", len(gw.calls))
	}
}

func TestCancelFallsBackToLastOrder(t *testing.T) {
	gw := newFakeGateway()
	gw.respond("/pay/unifiedorder", `{"code":"SUCCESS","data":{"out_trade_no":"GW-9","code_url":"weixin://x"}}`)
	gw.respond("/pay/orderquery", `{"code":"SUCCESS","data":{"trade_state":"NOTPAY"}}`)
	gw.respond("/pay/closeorder", `{"code":"SUCCESS"}`)
	c := newTestClient(t, gw)

	_, err := c.CreateOrder(context.Background(), core.OrderRequest{
		ChargeID: "chg-9", AmountCents: 100, Mode: core.ScanActive,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := c.Cancel(context.Background(), ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	queries := gw.callsTo("/pay/orderquery")
	if len(queries) != 1 || queries[0].Body["out_trade_no"] != "GW-9" {
		t.Fatalf("cancel should target last created order, got %+v", queries)
	}
}

func TestHTTPErrorMapsToClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := New(WithBaseURL(srv.URL), WithMerchantID("M100"))

	_, err := c.QueryStatus(context.Background(), "GW-10")
	if !core.IsSystem(err) {
		t.Fatalf("502 should classify as system error, got %v", err)
	}
}

func TestSignatureHeaderSent(t *testing.T) {
	var gotSign, gotMch string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSign = r.Header.Get("X-Sign")
		gotMch = r.Header.Get("X-Mch-Id")
		_, _ = w.Write([]byte(`{"code":"SUCCESS"}`))
	}))
	defer srv.Close()
	c := New(WithBaseURL(srv.URL), WithMerchantID("M100"), WithSignKey("secret"))

	if err := c.Close(context.Background(), "GW-11"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if gotSign == "" {
		t.Fatal("expected X-Sign header")
	}
	if gotMch != "M100" {
		t.Fatalf("expected merchant header, got %q", gotMch)
	}
}

func TestAggregationRules(t *testing.T) {
	c := New(WithMaxAmount(1000))
	if c.IsAggregationEnabled(core.BusinessData{AmountCents: 500, Insured: true}) {
		t.Fatal("insured charges must not aggregate")
	}
	if c.IsAggregationEnabled(core.BusinessData{AmountCents: 1500}) {
		t.Fatal("charges above the cap must not aggregate")
	}
	if !c.IsAggregationEnabled(core.BusinessData{AmountCents: 900}) {
		t.Fatal("eligible charge should aggregate")
	}
}
