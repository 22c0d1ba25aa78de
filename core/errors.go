package core

import (
	"errors"
	"fmt"
)

// ErrorClass categorizes payment failures.
type ErrorClass string

const (
	ErrNetwork    ErrorClass = "network_error"
	ErrConfig     ErrorClass = "config_error"
	ErrBusiness   ErrorClass = "business_error"
	ErrParam      ErrorClass = "param_error"
	ErrPermission ErrorClass = "permission_error"
	ErrSystem     ErrorClass = "system_error"
)

// Retryable reports the default retry posture for the class. Only transport
// and backend faults are worth repeating; the rest fail the same way twice.
func (c ErrorClass) Retryable() bool {
	return c == ErrNetwork || c == ErrSystem
}

// UserMessage returns the short cashier-facing message for the class. It is
// deliberately distinct from the diagnostic text carried by the error itself.
func (c ErrorClass) UserMessage() string {
	switch c {
	case ErrNetwork:
		return "Network unavailable, please retry"
	case ErrConfig:
		return "Payment channel is misconfigured"
	case ErrBusiness:
		return "The payment was declined"
	case ErrParam:
		return "The request is incomplete or invalid"
	case ErrPermission:
		return "Not authorized for this operation"
	default:
		return "Payment service error, please retry later"
	}
}

// ClassForStatus maps an HTTP-like status code onto the taxonomy.
func ClassForStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrBusiness
	case status >= 500:
		return ErrSystem
	default:
		return ErrSystem
	}
}

// PaymentError provides rich context for orchestration consumers.
type PaymentError struct {
	Class     ErrorClass
	Code      string // gateway or taxonomy code, when known
	Message   string // diagnostic message
	Status    int    // HTTP-like status, when known
	Retryable bool
	Details   map[string]any
	wrapped   error
}

func (e *PaymentError) Error() string {
	if e == nil {
		return ""
	}
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error { return e.wrapped }

// UserMessage returns the short human-readable text to surface on a dialog.
func (e *PaymentError) UserMessage() string {
	return e.Class.UserMessage()
}

// WrapError creates a PaymentError with the provided class. An error that is
// already a PaymentError passes through unchanged.
func WrapError(err error, class ErrorClass) *PaymentError {
	if err == nil {
		return nil
	}
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe
	}
	return &PaymentError{Class: class, Message: err.Error(), Retryable: class.Retryable(), wrapped: err}
}

// NewError builds a PaymentError explicitly.
func NewError(class ErrorClass, message string, opts ...ErrorOption) *PaymentError {
	e := &PaymentError{Class: class, Message: message, Retryable: class.Retryable()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrorOption mutates a PaymentError during construction.
type ErrorOption func(*PaymentError)

// WithCode attaches the gateway or taxonomy code.
func WithCode(code string) ErrorOption {
	return func(e *PaymentError) { e.Code = code }
}

// WithStatus sets the HTTP status code.
func WithStatus(status int) ErrorOption {
	return func(e *PaymentError) { e.Status = status }
}

// WithRetryable overrides the class's default retry posture.
func WithRetryable(retryable bool) ErrorOption {
	return func(e *PaymentError) { e.Retryable = retryable }
}

// WithDetails attaches structured context.
func WithDetails(details map[string]any) ErrorOption {
	return func(e *PaymentError) { e.Details = details }
}

// WithWrapped attaches an underlying error.
func WithWrapped(err error) ErrorOption {
	return func(e *PaymentError) { e.wrapped = err }
}

func classify(class ErrorClass) func(error) bool {
	return func(err error) bool {
		var pe *PaymentError
		if err == nil {
			return false
		}
		if errors.As(err, &pe) {
			return pe.Class == class
		}
		return false
	}
}

// Helper predicates for common error handling patterns.
var (
	IsNetwork    = classify(ErrNetwork)
	IsConfig     = classify(ErrConfig)
	IsBusiness   = classify(ErrBusiness)
	IsParam      = classify(ErrParam)
	IsPermission = classify(ErrPermission)
	IsSystem     = classify(ErrSystem)
)

// IsRetryable reports whether the error is worth repeating. Unclassified
// errors are not.
func IsRetryable(err error) bool {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetClass extracts the taxonomy class, or ErrSystem for unclassified errors.
func GetClass(err error) ErrorClass {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ErrSystem
}
