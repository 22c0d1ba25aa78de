package session

// Bus topics published by a session over its lifetime. Hosts embedding a
// custom surface must honor this exact vocabulary.
const (
	EventInitDialog     = "init-dialog"
	EventQueryStatus    = "query-status"
	EventCancelPayment  = "cancel-payment"
	EventRetryPayment   = "retry-payment"
	EventAbandonPayment = "abandon-payment"
	EventRefreshQRCode  = "refresh-qrcode"
	EventCreatePayment  = "create-payment"
	EventFinalStatus    = "final-status"
	EventClose          = "close"
)
