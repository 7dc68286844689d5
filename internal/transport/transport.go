// Package transport defines the duplex byte-channel abstraction the
// session controller drives (spec §6): open/send/close plus
// message/close/error callbacks. The real WebSocket implementation is an
// external collaborator — this package only ships the interface and two
// concrete backends useful without one: a raw-TCP dialer for standalone
// testing against a real RFB server, and an in-memory loopback used by the
// session test suite to script exact byte-chunk boundaries.
package transport

import "context"

// Handler receives events from a Conn. Implementations must not block for
// long inside these callbacks — the Conn invokes them from a goroutine it
// owns (or, for LoopbackConn, the test's goroutine); the session
// controller's Handler only forwards them onto its own event loop, which
// serializes all session state (spec §5).
type Handler interface {
	OnMessage(data []byte)
	OnClose(code int, reason string)
	OnError(err error)
}

// Conn is a duplex, message-oriented byte channel. Send transmits data as
// a single binary frame; frame boundaries carry no semantic meaning to the
// RFB byte stream (spec §4.3), so callers must not assume a Send call
// corresponds to any particular OnMessage delivery on the far end.
type Conn interface {
	Send(data []byte) error
	Close(code int, reason string) error
}

// Dialer opens a Conn to url, wiring h to receive its events. Dial returns
// once the transport reports itself open (or the context is done, or the
// dial fails outright). OnMessage/OnClose/OnError deliveries may begin
// before Dial returns — TCPDialer starts its read goroutine first — so a
// Handler must not assume it has seen the returned Conn yet.
type Dialer interface {
	Dial(ctx context.Context, url string, h Handler) (Conn, error)
}

// Standard close codes, mirrored from the WebSocket close code space
// (RFC 6455 §7.4) since that's the vocabulary spec §4.4's reconnect policy
// and close-code table are defined in terms of.
const (
	CloseNormal             = 1000
	CloseAbnormal           = 1006
	CloseProtocolError      = 1002
	CloseUnsupportedData    = 1003
	ClosePolicyViolation    = 1008
	CloseInternalServerErr  = 1011
)
