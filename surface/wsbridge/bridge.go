// Package wsbridge renders a payment session over a WebSocket. Outbound
// frames carry the surface state (status, payer code, countdown); inbound
// frames carry cashier actions and commands back into the session.
package wsbridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clinicore/payflow/core"
)

// CommandSink receives the inbound command vocabulary. *session.Session
// satisfies it directly.
type CommandSink interface {
	UpdateStatus(next core.Status)
	UpdateQRCodeURL(url string)
	SetActionLoading(action core.Action, loading bool)
	StopPolling()
	StopTimer()
	Do(ctx context.Context, action core.Action) error
}

// Frame is the wire format in both directions. Type decides which fields
// are meaningful.
type Frame struct {
	Type    string   `json:"type"`
	Status  string   `json:"status,omitempty"`
	Actions []string `json:"actions,omitempty"`
	URL     string   `json:"url,omitempty"`
	Seconds int      `json:"seconds,omitempty"`
	Action  string   `json:"action,omitempty"`
	Loading bool     `json:"loading,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Outbound frame types.
const (
	FrameStatus        = "status"
	FrameQRCode        = "qrcode"
	FrameCountdown     = "countdown"
	FrameActionLoading = "action-loading"
	FrameClose         = "close"
	FrameError         = "error"
)

// Inbound frame types.
const (
	FrameAction       = "action"
	FrameUpdateStatus = "update-status"
	FrameUpdateQRCode = "update-qrcode"
	FrameStopPolling  = "stop-polling"
	FrameStopTimer    = "stop-timer"
)

const actionTimeout = 30 * time.Second

// Bridge implements surface.Surface over one WebSocket connection.
type Bridge struct {
	conn   *websocket.Conn
	sink   CommandSink
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an upgraded connection. The read loop starts immediately; it
// stops when the peer disconnects or the bridge is closed.
func New(conn *websocket.Conn, sink CommandSink, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		conn:   conn,
		sink:   sink,
		logger: logger.With("component", "wsbridge"),
		done:   make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// Done is closed when the bridge shuts down.
func (b *Bridge) Done() <-chan struct{} { return b.done }

func (b *Bridge) ShowStatus(status core.Status, actions []core.Action) {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	b.write(Frame{Type: FrameStatus, Status: string(status), Actions: names})
}

func (b *Bridge) ShowQRCode(url string) {
	b.write(Frame{Type: FrameQRCode, URL: url})
}

func (b *Bridge) ShowCountdown(remaining int) {
	b.write(Frame{Type: FrameCountdown, Seconds: remaining})
}

func (b *Bridge) SetActionLoading(action core.Action, loading bool) {
	b.write(Frame{Type: FrameActionLoading, Action: string(action), Loading: loading})
}

// Close sends the close frame and tears the connection down. Idempotent.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.write(Frame{Type: FrameClose})
		close(b.done)
		_ = b.conn.Close()
	})
}

func (b *Bridge) write(f Frame) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteJSON(f); err != nil {
		b.logger.Debug("surface write failed", "type", f.Type, "error", err)
	}
}

func (b *Bridge) readLoop() {
	defer b.Close()

	for {
		select {
		case <-b.done:
			return
		default:
		}

		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			select {
			case <-b.done:
			default:
				b.logger.Debug("surface read failed", "error", err)
			}
			return
		}
		b.handleFrame(data)
	}
}

func (b *Bridge) handleFrame(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		b.write(Frame{Type: FrameError, Message: "invalid frame"})
		return
	}

	switch f.Type {
	case FrameAction:
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := b.sink.Do(ctx, core.Action(f.Action)); err != nil {
			b.write(Frame{Type: FrameError, Action: f.Action, Message: err.Error()})
		}
	case FrameUpdateStatus:
		b.sink.UpdateStatus(core.Status(f.Status))
	case FrameUpdateQRCode:
		b.sink.UpdateQRCodeURL(f.URL)
	case FrameStopPolling:
		b.sink.StopPolling()
	case FrameStopTimer:
		b.sink.StopTimer()
	default:
		b.write(Frame{Type: FrameError, Message: "unknown frame type " + f.Type})
	}
}
