// Package lakala implements the Lakala aggregated-payment channel.
package lakala

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

// retCodeOK is the gateway's success sentinel.
const retCodeOK = "000000"

// Client implements core.Provider against the Lakala open API.
type Client struct {
	httpClient *http.Client
	opts       options
	logger     *slog.Logger

	// lastOrderNo backs compensating Cancel calls issued without an order
	// number. One interactive session at a time per instance.
	mu          sync.Mutex
	lastOrderNo string
}

// New constructs a new Lakala client.
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
		logger:     slog.Default().With("channel", "lakala"),
	}
}

type envelope struct {
	RetCode  string          `json:"retCode"`
	RetMsg   string          `json:"retMsg"`
	RespData json.RawMessage `json:"respData"`
}

type tradeData struct {
	OutTradeNo  string `json:"out_trade_no"`
	TradeStatus string `json:"trade_status"`
	CounterURL  string `json:"counter_url"`
	Amount      int64  `json:"amount"`
}

type refundData struct {
	RefundNo     string `json:"out_refund_no"`
	RefundAmount int64  `json:"refund_amount"`
	RefundStatus string `json:"refund_status"`
}

// tradeStatuses maps Lakala's status vocabulary onto session statuses.
var tradeStatuses = map[string]core.Status{
	"INIT":    core.StatusPending,
	"CREATE":  core.StatusPending,
	"DEAL":    core.StatusProcessing,
	"SUCCESS": core.StatusSuccess,
	"FAIL":    core.StatusFailed,
	"CLOSE":   core.StatusClosed,
	"REVOKED": core.StatusCancelled,
	"REFUND":  core.StatusCancelled,
}

func mapTradeStatus(status string) core.Status {
	if s, ok := tradeStatuses[strings.ToUpper(status)]; ok {
		return s
	}
	return core.StatusWaiting
}

func (c *Client) CreateOrder(ctx context.Context, req core.OrderRequest) (_ *core.OrderResult, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.lakala.CreateOrder",
		attribute.String("pay.channel", "lakala"),
		attribute.String("pay.operation", "create_order"),
	)
	defer func() { recorder.End(err, req.AmountCents) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}

	path := "/trade/precreate"
	if req.Mode == core.ScanPassive {
		path = "/trade/pay"
	}
	orderNo := req.OrderNo
	if orderNo == "" {
		orderNo = "PF" + uuid.NewString()
	}
	payload := map[string]any{
		"merchant_no":  c.opts.merchantNo,
		"term_no":      c.opts.termNo,
		"out_trade_no": orderNo,
		"amount":       req.AmountCents,
		"subject":      req.Subject,
		"notify_url":   c.opts.notifyURL,
	}
	if req.AuthCode != "" {
		payload["auth_code"] = req.AuthCode
	}

	var data tradeData
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
		status = mapTradeStatus(data.TradeStatus)
		if data.TradeStatus == "" {
			status = core.StatusProcessing
		}
	}
	return &core.OrderResult{
		OrderNo:   orderNo,
		Status:    status,
		QRCodeURL: data.CounterURL,
		Raw:       rawData,
	}, nil
}

func (c *Client) QueryStatus(ctx context.Context, orderNo string) (_ *core.QueryResult, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.lakala.QueryStatus",
		attribute.String("pay.channel", "lakala"),
		attribute.String("pay.operation", "query_status"),
	)
	defer func() { recorder.End(err, 0) }()

	if orderNo == "" {
		return nil, core.NewError(core.ErrParam, "query requires an order number")
	}
	var data tradeData
	rawData, err := c.doRequest(ctx, "/trade/query", map[string]any{
		"merchant_no":  c.opts.merchantNo,
		"out_trade_no": orderNo,
	}, &data)
	if err != nil {
		return nil, err
	}
	return &core.QueryResult{
		OrderNo:         orderNo,
		Status:          mapTradeStatus(data.TradeStatus),
		PaidAmountCents: data.Amount,
		Raw:             rawData,
	}, nil
}

func (c *Client) Refund(ctx context.Context, req core.RefundRequest) (_ *core.RefundResult, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.lakala.Refund",
		attribute.String("pay.channel", "lakala"),
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
	var data refundData
	rawData, err := c.doRequest(ctx, "/trade/refund", map[string]any{
		"merchant_no":   c.opts.merchantNo,
		"out_trade_no":  req.OrderNo,
		"out_refund_no": refundNo,
		"refund_amount": req.AmountCents,
		"refund_reason": req.Reason,
	}, &data)
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
	ctx, recorder := obs.StartRequest(ctx, "providers.lakala.RefundResult",
		attribute.String("pay.channel", "lakala"),
		attribute.String("pay.operation", "refund_result"),
	)
	defer func() { recorder.End(err, 0) }()

	if refundNo == "" {
		return nil, core.NewError(core.ErrParam, "refund query requires a refund number")
	}
	var data refundData
	rawData, err := c.doRequest(ctx, "/trade/refundquery", map[string]any{
		"merchant_no":   c.opts.merchantNo,
		"out_refund_no": refundNo,
	}, &data)
	if err != nil {
		return nil, err
	}
	return &core.RefundResult{
		RefundNo: refundNo,
		Status:   mapRefundStatus(data.RefundStatus),
		Raw:      rawData,
	}, nil
}

func mapRefundStatus(status string) core.Status {
	switch strings.ToUpper(status) {
	case "SUCCESS":
		return core.StatusSuccess
	case "DEAL", "":
		return core.StatusProcessing
	default:
		return core.StatusFailed
	}
}

// Cancel follows the shared contract: query, refund if paid, close if in
// flight. Lakala calls its close operation "revoke".
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
	ctx, recorder := obs.StartRequest(ctx, "providers.lakala.Close",
		attribute.String("pay.channel", "lakala"),
		attribute.String("pay.operation", "close"),
	)
	defer func() { recorder.End(err, 0) }()

	if orderNo == "" {
		return core.NewError(core.ErrParam, "close requires an order number")
	}
	_, err = c.doRequest(ctx, "/trade/revoke", map[string]any{
		"merchant_no":  c.opts.merchantNo,
		"out_trade_no": orderNo,
	}, nil)
	return err
}

// IsAggregationEnabled requires an identified, uninsured patient: Lakala
// settlement records are keyed by patient, so anonymous charges go through
// the manual POS flow instead.
func (c *Client) IsAggregationEnabled(data core.BusinessData) bool {
	if data.Insured {
		return false
	}
	return data.PatientID != ""
}

func (c *Client) Capabilities() core.Capabilities {
	return core.Capabilities{
		Channel:        "lakala",
		Modes:          []core.ScanMode{core.ScanActive, core.ScanPassive},
		Refunds:        true,
		PartialRefunds: false,
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
	if c.opts.signKey != "" {
		mac := hmac.New(sha256.New, []byte(c.opts.signKey))
		mac.Write(body)
		req.Header.Set("Authorization", "LKLAPI-SHA256 "+hex.EncodeToString(mac.Sum(nil)))
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
			fmt.Sprintf("lakala: %s: %s", resp.Status, data),
			core.WithStatus(resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, core.WrapError(fmt.Errorf("decode response: %w", err), core.ErrSystem)
	}
	if env.RetCode != retCodeOK {
		msg := env.RetMsg
		if msg == "" {
			msg = "lakala request rejected"
		}
		return nil, core.NewError(core.ErrBusiness, msg, core.WithCode(env.RetCode))
	}
	if out != nil && len(env.RespData) > 0 {
		if err := json.Unmarshal(env.RespData, out); err != nil {
			return nil, core.WrapError(fmt.Errorf("decode response data: %w", err), core.ErrSystem)
		}
	}
	return env.RespData, nil
}
