// Package vnc is the public façade over react-vnc-lib's client core: a
// Session type that dials an RFB server, drives the handshake, and
// relays input and framebuffer events. Everything below it — the codec,
// the DES authenticator, the protocol state machine, the transport
// backends — stays unexported, the same way the teacher project keeps
// its wire and session logic internal behind cmd/goet.
package vnc

import (
	"context"
	"time"

	"github.com/sepandy/react-vnc-lib/internal/eventbus"
	"github.com/sepandy/react-vnc-lib/internal/session"
	"github.com/sepandy/react-vnc-lib/internal/transport"
)

// SessionOptions configures a Session. See internal/session.Options for
// field semantics; this is a re-exported alias so callers never import an
// internal package.
type SessionOptions = session.Options

// Event is a lifecycle or data event published by a Session.
type Event = eventbus.Event

// EventKind tags the variant of an Event.
type EventKind = eventbus.Kind

// State is a point-in-time snapshot of a Session's connection status.
type State = session.State

// KeyEvent and PointerEvent are the two input shapes a Session accepts.
type KeyEvent = session.KeyEvent
type PointerEvent = session.PointerEvent

// Event kinds an observer can switch on.
const (
	Connecting        = eventbus.Connecting
	Connected         = eventbus.Connected
	Disconnected      = eventbus.Disconnected
	ErrorEvent        = eventbus.Error
	FramebufferUpdate = eventbus.FramebufferUpdate
	ServerCutText     = eventbus.ServerCutText
	Bell              = eventbus.Bell
	Resize            = eventbus.Resize
)

// Sentinel errors a Session's Connect call can return.
var (
	ErrInvalidEndpoint = session.ErrInvalidEndpoint
	ErrAlreadyActive   = session.ErrAlreadyActive
	ErrTimeout         = session.ErrTimeout
)

// Session is a client-side RFB-over-WebSocket connection.
type Session struct {
	inner *session.Session
}

// NewSession creates a Session that will dial opts.Endpoint using dialer
// when Connect is called. Pass transport.TCPDialer{} for a raw-TCP
// endpoint, or your own transport.Dialer wrapping a WebSocket client.
func NewSession(dialer transport.Dialer, opts SessionOptions) *Session {
	return &Session{inner: session.New(dialer, opts)}
}

// Connect opens the transport and drives the handshake to completion,
// returning once the session reaches Connected or hits a terminal error.
func (s *Session) Connect(ctx context.Context) error {
	return s.inner.Connect(ctx)
}

// Disconnect idempotently tears the session down and resets its state.
func (s *Session) Disconnect() {
	s.inner.Disconnect()
}

// Close stops the session's background goroutine. The Session must not
// be used afterward.
func (s *Session) Close() {
	s.inner.Close()
}

// Subscribe registers h to receive events in emission order and returns
// a function that unregisters it.
func (s *Session) Subscribe(h func(Event)) (unsubscribe func()) {
	return s.inner.Subscribe(eventbus.Handler(h))
}

// SendKeyEvent sends a key press or release. Silently dropped unless the
// session is Connected and not view-only.
func (s *Session) SendKeyEvent(key string, down bool) {
	s.inner.SendKeyEvent(key, down)
}

// SendPointerEvent sends a pointer move/click in unscaled coordinates.
// Silently dropped unless the session is Connected and not view-only.
func (s *Session) SendPointerEvent(x, y int, buttonMask uint8) {
	s.inner.SendPointerEvent(x, y, buttonMask)
}

// RequestFramebufferUpdate asks the server to resend the full screen
// (or, if incremental, only what changed). Silently dropped unless
// Connected.
func (s *Session) RequestFramebufferUpdate(incremental bool) {
	s.inner.RequestFramebufferUpdate(incremental)
}

// State returns a snapshot of the session's current connection status.
func (s *Session) State() State {
	return s.inner.State()
}

// ConnectTimeout is exposed so embedders can size their own context
// deadlines consistently with the session's internal connect timer.
func ConnectTimeout(opts SessionOptions) time.Duration {
	if opts.ConnectTimeout == 0 {
		return 10 * time.Second
	}
	return opts.ConnectTimeout
}
