package core

// Status is the lifecycle state of a payment session.
type Status string

const (
	StatusPassiveInit Status = "passive-init"
	StatusActiveInit  Status = "active-init"
	StatusWaiting     Status = "waiting"
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusClosed      Status = "closed"
	StatusRefunding   Status = "refunding"
	StatusRefunded    Status = "refunded"
	StatusTimeout     Status = "timeout"
	StatusAbandoned   Status = "abandoned"
)

// Terminal reports whether the status ends the session. Only terminal
// statuses trigger automatic session teardown.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusAbandoned
}

// ScanMode selects who drives the transaction: the session itself (active,
// the payer scans a generated code) or an external scanning device (passive).
type ScanMode string

const (
	ScanActive  ScanMode = "active"
	ScanPassive ScanMode = "passive"
)

// Initial returns the session's starting status for the scan mode.
func (m ScanMode) Initial() Status {
	if m == ScanPassive {
		return StatusPassiveInit
	}
	return StatusActiveInit
}

// ShowsPayerCode reports whether a payer-facing code is on screen for the
// given status and mode. Entering this set starts the countdown and polling
// loops; leaving it stops them.
func ShowsPayerCode(s Status, mode ScanMode) bool {
	if mode == ScanPassive {
		return s == StatusProcessing
	}
	switch s {
	case StatusActiveInit, StatusPending, StatusProcessing:
		return true
	}
	return false
}
