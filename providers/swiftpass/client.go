// Package swiftpass implements the SwiftPass aggregated-payment channel.
package swiftpass

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicore/payflow/core"
	"github.com/clinicore/payflow/internal/httpclient"
	"github.com/clinicore/payflow/obs"
)

const successCode = "SUCCESS"

// Client implements core.Provider against the SwiftPass JSON gateway.
type Client struct {
	httpClient *http.Client
	opts       options
	logger     *slog.Logger

	// lastOrderNo backs compensating Cancel calls issued without an order
	// number. It assumes one interactive session at a time per instance.
	mu          sync.Mutex
	lastOrderNo string
}

// New constructs a new SwiftPass client.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.New(httpclient.WithTimeout(o.timeout))
	}
	return &Client{
		httpClient: o.httpClient,
		opts:       o,
		logger:     slog.Default().With("channel", "swiftpass"),
	}
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type orderPayload struct {
	MerchantID string `json:"mch_id"`
	AppID      string `json:"app_id"`
	OutTradeNo string `json:"out_trade_no"`
	TotalFee   int64  `json:"total_fee"`
	Body       string `json:"body"`
	AuthCode   string `json:"auth_code,omitempty"`
	NotifyURL  string `json:"notify_url,omitempty"`
	NonceStr   string `json:"nonce_str"`
}

type orderData struct {
	OutTradeNo string `json:"out_trade_no"`
	CodeURL    string `json:"code_url"`
	TradeState string `json:"trade_state"`
}

type queryData struct {
	OutTradeNo string `json:"out_trade_no"`
	TradeState string `json:"trade_state"`
	TotalFee   int64  `json:"total_fee"`
}

type refundPayload struct {
	MerchantID  string `json:"mch_id"`
	OutTradeNo  string `json:"out_trade_no,omitempty"`
	OutRefundNo string `json:"out_refund_no"`
	RefundFee   int64  `json:"refund_fee"`
	Reason      string `json:"refund_desc,omitempty"`
	NonceStr    string `json:"nonce_str"`
}

type refundData struct {
	OutRefundNo  string `json:"out_refund_no"`
	RefundFee    int64  `json:"refund_fee"`
	RefundStatus string `json:"refund_status"`
}

// tradeStates maps the gateway status vocabulary onto session statuses.
var tradeStates = map[string]core.Status{
	"NOTPAY":     core.StatusPending,
	"USERPAYING": core.StatusProcessing,
	"PAYING":     core.StatusProcessing,
	"SUCCESS":    core.StatusSuccess,
	"CLOSED":     core.StatusClosed,
	"REVOKED":    core.StatusCancelled,
	"REFUND":     core.StatusCancelled,
	"PAYERROR":   core.StatusFailed,
}

func mapTradeState(state string) core.Status {
	if s, ok := tradeStates[strings.ToUpper(state)]; ok {
		return s
	}
	return core.StatusWaiting
}

func mapRefundStatus(state string) core.Status {
	switch strings.ToUpper(state) {
	case "SUCCESS":
		return core.StatusSuccess
	case "PROCESSING", "":
		return core.StatusProcessing
	default:
		return core.StatusFailed
	}
}

func (c *Client) CreateOrder(ctx context.Context, req core.OrderRequest) (_ *core.OrderResult, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.swiftpass.CreateOrder",
		attribute.String("pay.channel", "swiftpass"),
		attribute.String("pay.operation", "create_order"),
	)
	defer func() { recorder.End(err, req.AmountCents) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}

	path := "/pay/unifiedorder"
	if req.Mode == core.ScanPassive {
		path = "/pay/micropay"
	}
	orderNo := req.OrderNo
	if orderNo == "" {
		orderNo = "PF" + uuid.NewString()
	}
	payload := orderPayload{
		MerchantID: c.opts.merchantID,
		AppID:      c.opts.appID,
		OutTradeNo: orderNo,
		TotalFee:   req.AmountCents,
		Body:       req.Subject,
		AuthCode:   req.AuthCode,
		NotifyURL:  c.opts.notifyURL,
		NonceStr:   uuid.NewString(),
	}

	var data orderData
	rawData, err := c.doRequest(ctx, path, payload, &data)
	if err != nil {
		return nil, err
	}
	if data.OutTradeNo != "" {
		orderNo = data.OutTradeNo
	}

	c.mu.Lock()
	c.lastOrderNo = orderNo
	c.mu.Unlock()

	status := core.StatusPending
	if req.Mode == core.ScanPassive {
		status = mapTradeState(data.TradeState)
		if data.TradeState == "" {
			status = core.StatusProcessing
		}
	}
	return &core.OrderResult{
		OrderNo:   orderNo,
		Status:    status,
		QRCodeURL: data.CodeURL,
		Raw:       rawData,
	}, nil
}

func (c *Client) QueryStatus(ctx context.Context, orderNo string) (_ *core.QueryResult, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.swiftpass.QueryStatus",
		attribute.String("pay.channel", "swiftpass"),
		attribute.String("pay.operation", "query_status"),
	)
	defer func() { recorder.End(err, 0) }()

	if orderNo == "" {
		return nil, core.NewError(core.ErrParam, "query requires an order number")
	}
	payload := map[string]string{
		"mch_id":       c.opts.merchantID,
		"out_trade_no": orderNo,
		"nonce_str":    uuid.NewString(),
	}
	var data queryData
	rawData, err := c.doRequest(ctx, "/pay/orderquery", payload, &data)
	if err != nil {
		return nil, err
	}
	return &core.QueryResult{
		OrderNo:         orderNo,
		Status:          mapTradeState(data.TradeState),
		PaidAmountCents: data.TotalFee,
		Raw:             rawData,
	}, nil
}

func (c *Client) Refund(ctx context.Context, req core.RefundRequest) (_ *core.RefundResult, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.swiftpass.Refund",
		attribute.String("pay.channel", "swiftpass"),
		attribute.String("pay.operation", "refund"),
	)
	defer func() { recorder.End(err, req.AmountCents) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}
	refundNo := req.RefundNo
	if refundNo == "" {
		refundNo = "RF" + uuid.NewString()
	}
	payload := refundPayload{
		MerchantID:  c.opts.merchantID,
		OutTradeNo:  req.OrderNo,
		OutRefundNo: refundNo,
		RefundFee:   req.AmountCents,
		Reason:      req.Reason,
		NonceStr:    uuid.NewString(),
	}
	var data refundData
	rawData, err := c.doRequest(ctx, "/pay/refund", payload, &data)
	if err != nil {
		return nil, err
	}
	return &core.RefundResult{
		RefundNo: refundNo,
		Status:   mapRefundStatus(data.RefundStatus),
		Raw:      rawData,
	}, nil
}

func (c *Client) RefundResult(ctx context.Context, refundNo string) (_ *core.RefundResult, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.swiftpass.RefundResult",
		attribute.String("pay.channel", "swiftpass"),
		attribute.String("pay.operation", "refund_result"),
	)
	defer func() { recorder.End(err, 0) }()

	if refundNo == "" {
		return nil, core.NewError(core.ErrParam, "refund query requires a refund number")
	}
	payload := map[string]string{
		"mch_id":        c.opts.merchantID,
		"out_refund_no": refundNo,
		"nonce_str":     uuid.NewString(),
	}
	var data refundData
	rawData, err := c.doRequest(ctx, "/pay/refundquery", payload, &data)
	if err != nil {
		return nil, err
	}
	return &core.RefundResult{
		RefundNo: refundNo,
		Status:   mapRefundStatus(data.RefundStatus),
		Raw:      rawData,
	}, nil
}

// Cancel queries the order first and compensates: refund when paid, close
// when still in flight. An empty order number falls back to the last order
// this instance created.
func (c *Client) Cancel(ctx context.Context, orderNo string) error {
	if orderNo == "" {
		c.mu.Lock()
		orderNo = c.lastOrderNo
		c.mu.Unlock()
	}
	if orderNo == "" {
		return core.NewError(core.ErrParam, "cancel requires an order number")
	}
	return core.CancelByQuery(ctx, c, orderNo, c.logger)
}

func (c *Client) Close(ctx context.Context, orderNo string) (err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.swiftpass.Close",
		attribute.String("pay.channel", "swiftpass"),
		attribute.String("pay.operation", "close"),
	)
	defer func() { recorder.End(err, 0) }()

	if orderNo == "" {
		return core.NewError(core.ErrParam, "close requires an order number")
	}
	payload := map[string]string{
		"mch_id":       c.opts.merchantID,
		"out_trade_no": orderNo,
		"nonce_str":    uuid.NewString(),
	}
	_, err = c.doRequest(ctx, "/pay/closeorder", payload, nil)
	return err
}

// IsAggregationEnabled excludes insured charges (those settle through the
// insurance pipeline) and charges above the configured cap.
func (c *Client) IsAggregationEnabled(data core.BusinessData) bool {
	if data.Insured {
		return false
	}
	if c.opts.maxAmountCents > 0 && data.AmountCents > c.opts.maxAmountCents {
		return false
	}
	return true
}

func (c *Client) Capabilities() core.Capabilities {
	return core.Capabilities{
		Channel:        "swiftpass",
		Modes:          []core.ScanMode{core.ScanActive, core.ScanPassive},
		Refunds:        true,
		PartialRefunds: true,
		MaxAmountCents: c.opts.maxAmountCents,
	}
}

func (c *Client) doRequest(ctx context.Context, path string, payload any, out any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.opts.baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.merchantID != "" {
		req.Header.Set("X-Mch-Id", c.opts.merchantID)
	}
	if c.opts.signKey != "" {
		req.Header.Set("X-Sign", sign(body, c.opts.signKey))
	}
	for k, v := range c.opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.NewError(core.ClassForStatus(resp.StatusCode),
			fmt.Sprintf("swiftpass: %s: %s", resp.Status, data),
			core.WithStatus(resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, core.WrapError(fmt.Errorf("decode response: %w", err), core.ErrSystem)
	}
	if env.Code != successCode {
		msg := env.Message
		if msg == "" {
			msg = "swiftpass request rejected"
		}
		return nil, core.NewError(core.ErrBusiness, msg, core.WithCode(env.Code))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, core.WrapError(fmt.Errorf("decode response data: %w", err), core.ErrSystem)
		}
	}
	return env.Data, nil
}

func sign(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
