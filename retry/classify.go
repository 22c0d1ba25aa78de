// Package retry classifies payment failures into a fixed taxonomy and
// executes operations under bounded exponential-backoff policies keyed by
// taxonomy class.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/clinicore/payflow/core"
)

// Coder is implemented by errors that carry an explicit taxonomy-bearing code.
type Coder interface {
	ErrorCode() string
}

// StatusCoder is implemented by errors that carry an HTTP-like status.
type StatusCoder interface {
	HTTPStatus() int
}

// defaultCodes is the static code table consulted first during
// classification.
var defaultCodes = map[string]core.ErrorClass{
	"NETWORK_ERROR":   core.ErrNetwork,
	"GATEWAY_TIMEOUT": core.ErrNetwork,
	"CONFIG_MISSING":  core.ErrConfig,
	"CHANNEL_UNKNOWN": core.ErrConfig,
	"INVALID_PARAM":   core.ErrParam,
	"SIGN_ERROR":      core.ErrPermission,
	"ACCESS_DENIED":   core.ErrPermission,
	"ORDER_CLOSED":    core.ErrBusiness,
	"ORDER_PAID":      core.ErrBusiness,
	"ORDER_NOT_EXIST": core.ErrBusiness,
	"BALANCE_LIMIT":   core.ErrBusiness,
	"SYSTEM_ERROR":    core.ErrSystem,
}

// keywordClasses is matched, in order, against the lowercased error message
// when nothing stronger identifies the failure.
var keywordClasses = []struct {
	class    core.ErrorClass
	keywords []string
}{
	{core.ErrNetwork, []string{"timeout", "timed out", "connection", "network", "unreachable", "refused", "broken pipe", "eof"}},
	{core.ErrConfig, []string{"config", "configuration", "not registered"}},
	{core.ErrPermission, []string{"permission", "forbidden", "unauthorized", "denied", "signature"}},
	{core.ErrParam, []string{"invalid", "missing", "required", "malformed"}},
	{core.ErrBusiness, []string{"declined", "rejected", "insufficient", "already paid", "order closed"}},
}

// Classifier maps raw failures onto the payment error taxonomy.
type Classifier struct {
	codes map[string]core.ErrorClass
}

// NewClassifier builds a classifier with the default code table. Extra
// entries extend or override the defaults.
func NewClassifier(extra map[string]core.ErrorClass) *Classifier {
	codes := make(map[string]core.ErrorClass, len(defaultCodes)+len(extra))
	for code, class := range defaultCodes {
		codes[code] = class
	}
	for code, class := range extra {
		codes[code] = class
	}
	return &Classifier{codes: codes}
}

// Classify resolves err to a PaymentError. Precedence: explicit taxonomy
// code, transport shape, HTTP status range, message keywords, SystemError.
func (c *Classifier) Classify(err error) *core.PaymentError {
	if err == nil {
		return nil
	}

	var pe *core.PaymentError
	if errors.As(err, &pe) {
		if pe.Class != "" {
			return pe
		}
		if class, ok := c.codes[pe.Code]; ok {
			return core.NewError(class, pe.Message, core.WithCode(pe.Code), core.WithStatus(pe.Status), core.WithWrapped(err))
		}
	}

	var coder Coder
	if errors.As(err, &coder) {
		if class, ok := c.codes[coder.ErrorCode()]; ok {
			return core.WrapError(err, class)
		}
	}

	if class, ok := transportClass(err); ok {
		return core.WrapError(err, class)
	}

	if status, ok := httpStatus(err); ok && status >= 400 {
		return core.WrapError(err, core.ClassForStatus(status))
	}

	if class, ok := keywordClass(err.Error()); ok {
		return core.WrapError(err, class)
	}

	return core.WrapError(err, core.ErrSystem)
}

func transportClass(err error) (core.ErrorClass, bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.ErrNetwork, true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return core.ErrNetwork, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return core.ErrNetwork, true
	}
	return "", false
}

func httpStatus(err error) (int, bool) {
	var pe *core.PaymentError
	if errors.As(err, &pe) && pe.Status != 0 {
		return pe.Status, true
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}

func keywordClass(msg string) (core.ErrorClass, bool) {
	msg = strings.ToLower(msg)
	for _, kc := range keywordClasses {
		for _, kw := range kc.keywords {
			if strings.Contains(msg, kw) {
				return kc.class, true
			}
		}
	}
	return "", false
}
