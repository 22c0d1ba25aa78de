package obs

import (
	"context"
	"log/slog"
	"time"
)

// auditSink writes one structured log record per transaction. It stands in for
// a reconciliation feed: hospitals typically tail these records into their own
// settlement audit pipeline.
type auditSink struct {
	logger        *slog.Logger
	redactPatient bool
}

func newAuditSink(opts AuditOptions) *auditSink {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &auditSink{logger: logger.With("component", "payment-audit"), redactPatient: opts.RedactPatient}
}

func (s *auditSink) LogTransaction(ctx context.Context, txn Transaction) error {
	attrs := []any{
		"channel", txn.Channel,
		"op", txn.Op,
		"charge_id", txn.ChargeID,
		"order_no", txn.OrderNo,
		"amount_cents", txn.AmountCents,
		"status", txn.Status,
		"latency_ms", txn.LatencyMS,
	}
	if txn.CreatedAtUTC != 0 {
		attrs = append(attrs, "created_at", time.Unix(txn.CreatedAtUTC, 0).UTC().Format(time.RFC3339))
	}
	for k, v := range txn.Metadata {
		if s.redactPatient && k == "patient_id" {
			continue
		}
		attrs = append(attrs, k, v)
	}
	if txn.Error != "" {
		attrs = append(attrs, "error", txn.Error)
		s.logger.ErrorContext(ctx, "payment transaction", attrs...)
		return nil
	}
	s.logger.InfoContext(ctx, "payment transaction", attrs...)
	return nil
}

func (s *auditSink) Shutdown(context.Context) error { return nil }
