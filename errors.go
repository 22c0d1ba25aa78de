package payflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure cases.
var (
	// ErrNoChannel is returned when a channel is not registered.
	ErrNoChannel = errors.New("channel not registered")

	// ErrNoMerchant is returned when a required merchant id is not configured.
	ErrNoMerchant = errors.New("merchant id not configured")

	// ErrClosed is returned when an operation is attempted on a shut-down client.
	ErrClosed = errors.New("client is shut down")
)

// ChannelLookupError provides detailed information about channel resolution failures.
type ChannelLookupError struct {
	Channel   string   // The channel name that failed to resolve
	Err       error    // The underlying error
	Available []string // Registered channels (if applicable)
}

func (e *ChannelLookupError) Error() string {
	if len(e.Available) > 0 {
		return fmt.Sprintf("channel %q: %v (available channels: %v)", e.Channel, e.Err, e.Available)
	}
	return fmt.Sprintf("channel %q: %v", e.Channel, e.Err)
}

func (e *ChannelLookupError) Unwrap() error {
	return e.Err
}

// ChannelError wraps errors from channel provider operations.
type ChannelError struct {
	Channel string
	Op      string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Channel, e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
