// Package surface defines the boundary between a payment session and
// whatever renders it. The session only pushes state through this interface;
// markup and styling live entirely on the other side.
package surface

import "github.com/clinicore/payflow/core"

// Surface is the render sink a session drives.
type Surface interface {
	// ShowStatus renders the new status together with the actions the
	// cashier may take from it.
	ShowStatus(status core.Status, actions []core.Action)

	// ShowQRCode renders the payer-facing code.
	ShowQRCode(url string)

	// ShowCountdown renders the remaining validity window in seconds.
	ShowCountdown(remaining int)

	// SetActionLoading toggles the loading indicator of one action button.
	SetActionLoading(action core.Action, loading bool)

	// Close dismisses the surface. Called at most once per session.
	Close()
}

// Noop discards all rendering. Used for passive scan flows and headless
// callers that only await the terminal result.
type Noop struct{}

func (Noop) ShowStatus(core.Status, []core.Action) {}
func (Noop) ShowQRCode(string)                     {}
func (Noop) ShowCountdown(int)                     {}
func (Noop) SetActionLoading(core.Action, bool)    {}
func (Noop) Close()                                {}
