package core

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// CancelByQuery implements the cancel contract shared by every channel: look
// the order up first, refund it if it was already paid, close it if it is
// still in flight. Orders already in a dead state need no compensation; that
// branch stays a no-op for host compatibility but is logged so it is never
// silently mistaken for a refund.
func CancelByQuery(ctx context.Context, p Provider, orderNo string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	q, err := p.QueryStatus(ctx, orderNo)
	if err != nil {
		return err
	}
	switch q.Status {
	case StatusSuccess:
		_, err := p.Refund(ctx, RefundRequest{
			OrderNo:     orderNo,
			RefundNo:    "RF" + uuid.NewString(),
			AmountCents: q.PaidAmountCents,
			Reason:      "cancelled by cashier",
		})
		return err
	case StatusPassiveInit, StatusActiveInit, StatusWaiting, StatusPending, StatusProcessing:
		return p.Close(ctx, orderNo)
	default:
		logger.Warn("cancel is a no-op for order state",
			"order", orderNo, "status", string(q.Status))
		return nil
	}
}
