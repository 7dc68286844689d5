package session

// transportEvent is what the transport.Handler adapter forwards into the
// loop goroutine. gen ties it to the transport instance that produced it
// so a stale goroutine's delivery after a reconnect can't corrupt state
// belonging to the current connection attempt (spec §3's single-transport
// invariant).
type transportEvent struct {
	gen int

	message []byte // set for OnMessage

	closed bool // set for OnClose
	code   int
	reason string

	err error // set for OnError
}

// sessionHandler adapts transport.Handler callbacks — which may run on a
// goroutine the Conn owns — into transportEvent values pushed onto the
// loop's single channel. It never touches Session state directly; it only
// enqueues, matching spec §5's "no two handlers interleave" requirement
// on a multi-threaded runtime.
type sessionHandler struct {
	gen int
	ch  chan<- transportEvent
}

func (h sessionHandler) OnMessage(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	h.ch <- transportEvent{gen: h.gen, message: cp}
}

func (h sessionHandler) OnClose(code int, reason string) {
	h.ch <- transportEvent{gen: h.gen, closed: true, code: code, reason: reason}
}

func (h sessionHandler) OnError(err error) {
	h.ch <- transportEvent{gen: h.gen, err: err}
}
