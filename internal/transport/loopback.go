package transport

import (
	"context"
	"sync"
)

// LoopbackDialer is an in-memory Dialer used by the session test suite.
// Dial never touches the network; it hands back a
// *LoopbackConn the test can drive directly — feeding inbound bytes at
// whatever chunk boundaries it likes (spec §8's "split at every possible
// boundary" property) and inspecting what the session wrote outbound.
type LoopbackDialer struct {
	// Dialed receives each LoopbackConn as it's created, so a test can
	// grab the one just-dialed connection without racing Dial's caller.
	Dialed chan *LoopbackConn

	// DialErr, when set, makes the next Dial call fail with this error
	// instead of succeeding — used to exercise connect-time failures.
	DialErr error
}

// NewLoopbackDialer creates a LoopbackDialer ready to accept one dial per
// test step (Dialed is buffered, so up to 8 unread dials do not block Dial).
func NewLoopbackDialer() *LoopbackDialer {
	return &LoopbackDialer{Dialed: make(chan *LoopbackConn, 8)}
}

func (d *LoopbackDialer) Dial(ctx context.Context, url string, h Handler) (Conn, error) {
	if d.DialErr != nil {
		err := d.DialErr
		d.DialErr = nil
		return nil, err
	}
	c := &LoopbackConn{
		handler: h,
		Sent:    make(chan []byte, 64),
	}
	d.Dialed <- c
	return c, nil
}

// LoopbackConn is a test double for Conn. Feed and SimulateClose call the
// Handler synchronously on the caller's goroutine — the Handler
// implementations in this module are non-blocking adapters that only
// enqueue work, so this is safe and keeps test scripts deterministic.
type LoopbackConn struct {
	handler Handler

	// Sent receives a copy of every byte slice passed to Send, in order.
	Sent chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *LoopbackConn) Send(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	c.Sent <- cp
	return nil
}

func (c *LoopbackConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *LoopbackConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Feed simulates the server sending data bytes, split at whatever
// boundary the caller chooses.
func (c *LoopbackConn) Feed(data []byte) {
	c.handler.OnMessage(data)
}

// SimulateClose simulates the transport reporting a close with the given
// WebSocket close code.
func (c *LoopbackConn) SimulateClose(code int, reason string) {
	c.handler.OnClose(code, reason)
}

// SimulateError simulates the transport reporting a non-close error.
func (c *LoopbackConn) SimulateError(err error) {
	c.handler.OnError(err)
}
