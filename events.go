package payflow

// Lifecycle topics published on the client bus after each facade operation.
// Session-scoped topics live in the session package; these are the
// cross-session ones hosts subscribe to for bookkeeping.
const (
	EventPaymentCreated   = "payment.created"
	EventPaymentSuccess   = "payment.success"
	EventPaymentError     = "payment.error"
	EventPaymentCancelled = "payment.cancelled"
	EventPaymentClosed    = "payment.closed"
	EventRefundSuccess    = "refund.success"
	EventRefundError      = "refund.error"
	EventConfigReloaded   = "config.reloaded"
)
