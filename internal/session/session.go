// Package session owns the transport handle, drives the protocol state
// machine, manages timers, enforces the single-connection invariant, and
// fans out semantic events to subscribers (spec §4.4). It is the direct
// generalization of the teacher's Client.ioLoop select loop — one
// internal goroutine per Session serializes inbound bytes, timer fires,
// and user operations so nothing else ever touches session state.
package session

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sepandy/react-vnc-lib/internal/eventbus"
	"github.com/sepandy/react-vnc-lib/internal/protocol"
	"github.com/sepandy/react-vnc-lib/internal/rfb"
	"github.com/sepandy/react-vnc-lib/internal/transport"
)

// discardHandler is a no-op slog handler, used when Options.Debug is
// false to suppress logging with zero overhead — same shape as the
// teacher's client.discardHandler.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// graceTeardownDelay is how long Disconnect defers the actual transport
// close, to tolerate a rapid disconnect/connect cycle (spec §5, §9).
const graceTeardownDelay = 100 * time.Millisecond

// Session is a single RFB-over-WebSocket client session. All exported
// methods are safe to call from any goroutine; each one is a thin
// wrapper that sends a command to the loop goroutine and, where the
// operation has a result, waits for it.
type Session struct {
	opts   Options
	dialer transport.Dialer
	log    *slog.Logger
	bus    *eventbus.Bus

	cmdCh   chan command
	transCh chan transportEvent
	dialCh  chan dialResult
	stopped chan struct{}
}

// dialResult is delivered onto dialCh by the goroutine beginConnect spawns
// to run transport.Dialer.Dial off the loop goroutine (spec §5: dialing is
// not one of the loop's legal suspension points). gen ties it to the
// connect attempt that started it, so a result arriving after that attempt
// has already timed out or been superseded is dropped.
type dialResult struct {
	gen  int
	conn transport.Conn
	err  error
}

// New creates a Session bound to dialer and starts its loop goroutine.
// opts is defaulted and copied; the endpoint is not validated until
// Connect. Call Close when the Session is no longer needed to stop the
// loop goroutine.
func New(dialer transport.Dialer, opts Options) *Session {
	opts = opts.withDefaults()

	var logger *slog.Logger
	if opts.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "session")
	} else {
		logger = slog.New(discardHandler{})
	}

	s := &Session{
		opts:    opts,
		dialer:  dialer,
		log:     logger,
		bus:     eventbus.New(),
		cmdCh:   make(chan command),
		transCh: make(chan transportEvent, 16),
		dialCh:  make(chan dialResult, 1),
		stopped: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Subscribe registers h on the session's event bus and returns a function
// that removes it (spec §6's observer interface).
func (s *Session) Subscribe(h eventbus.Handler) (unsubscribe func()) {
	return s.bus.Subscribe(h)
}

// Connect opens the transport and drives the handshake to completion. It
// returns once the state machine reaches Connected or the first terminal
// failure occurs, or ctx is done first (in which case the connect attempt
// continues in the background — cancelling ctx only stops the caller from
// waiting, per spec §5's "connect() awaiting the terminal handshake
// outcome" being the only ctx-scoped suspension point).
func (s *Session) Connect(ctx context.Context) error {
	result := make(chan error, 1)
	cmd := command{kind: cmdConnect, result: result}
	select {
	case s.cmdCh <- cmd:
	case <-s.stopped:
		return ErrAlreadyActive
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect idempotently tears the session down: cancels timers,
// detaches the transport, resets state, and zeros the reconnect counter
// (spec §4.4). It does not wait for the loop to process the request.
func (s *Session) Disconnect() {
	select {
	case s.cmdCh <- command{kind: cmdDisconnect}:
	case <-s.stopped:
	}
}

// Close stops the session's loop goroutine after disconnecting. The
// Session must not be used afterward.
func (s *Session) Close() {
	select {
	case s.cmdCh <- command{kind: cmdStop}:
	case <-s.stopped:
	}
	<-s.stopped
}

// SendKeyEvent encodes and sends a key event. Dropped silently unless the
// session is Connected and not view-only (spec §4.4).
func (s *Session) SendKeyEvent(key string, down bool) {
	select {
	case s.cmdCh <- command{kind: cmdSendKey, key: KeyEvent{Key: key, Down: down}}:
	case <-s.stopped:
	}
}

// SendPointerEvent encodes and sends a pointer event in unscaled
// coordinates. Dropped silently unless the session is Connected and not
// view-only (spec §4.4).
func (s *Session) SendPointerEvent(x, y int, buttonMask uint8) {
	select {
	case s.cmdCh <- command{kind: cmdSendPointer, pointer: PointerEvent{X: x, Y: y, ButtonMask: buttonMask}}:
	case <-s.stopped:
	}
}

// RequestFramebufferUpdate requests the full server screen rectangle.
// Dropped silently unless Connected (spec §4.4).
func (s *Session) RequestFramebufferUpdate(incremental bool) {
	select {
	case s.cmdCh <- command{kind: cmdRequestFBUpdate, incremental: incremental}:
	case <-s.stopped:
	}
}

// State returns a snapshot copy of the session's observable state
// (spec §6's get_state()).
func (s *Session) State() State {
	result := make(chan State, 1)
	select {
	case s.cmdCh <- command{kind: cmdGetState, stateResult: result}:
	case <-s.stopped:
		return State{}
	}
	select {
	case st := <-result:
		return st
	case <-s.stopped:
		return State{}
	}
}

// loopState is everything the loop goroutine owns exclusively. Splitting
// it from Session makes the "only the loop goroutine touches this"
// contract visible at a glance.
type loopState struct {
	phaseState State
	machine    *protocol.Machine
	conn       transport.Conn
	gen        int

	// pendingSends holds outbound records produced before the dial that
	// will carry them has resolved. transport.TCPDialer starts its read
	// goroutine before Dial returns, so a server can speak (and the state
	// machine can react with a send) before handleDialResult has set conn
	// on the loop goroutine; queuing keeps those sends from being dropped
	// and flushes them in order once conn is available.
	pendingSends [][]byte

	reconnectAttempts int
	wasConnected      bool

	connectResult chan error
	dialCancel    context.CancelFunc

	connectTimer   *time.Timer
	reconnectTimer *time.Timer
	graceTimer     *time.Timer
}

func (s *Session) loop() {
	defer close(s.stopped)
	var ls loopState

	for {
		var connectTimerC, reconnectTimerC, graceTimerC <-chan time.Time
		if ls.connectTimer != nil {
			connectTimerC = ls.connectTimer.C
		}
		if ls.reconnectTimer != nil {
			reconnectTimerC = ls.reconnectTimer.C
		}
		if ls.graceTimer != nil {
			graceTimerC = ls.graceTimer.C
		}

		select {
		case cmd := <-s.cmdCh:
			if cmd.kind == cmdStop {
				s.teardown(&ls)
				return
			}
			s.handleCommand(&ls, cmd)

		case ev := <-s.transCh:
			s.handleTransportEvent(&ls, ev)

		case res := <-s.dialCh:
			s.handleDialResult(&ls, res)

		case <-connectTimerC:
			s.onConnectTimeout(&ls)

		case <-reconnectTimerC:
			ls.reconnectTimer = nil
			s.beginConnect(&ls, nil)

		case <-graceTimerC:
			ls.graceTimer = nil
			if ls.conn != nil {
				ls.conn.Close(transport.CloseNormal, "")
				ls.conn = nil
			}
		}
	}
}

func (s *Session) handleCommand(ls *loopState, cmd command) {
	switch cmd.kind {
	case cmdConnect:
		s.onConnect(ls, cmd)
	case cmdDisconnect:
		s.onDisconnect(ls)
	case cmdSendKey:
		s.onSendKey(ls, cmd.key)
	case cmdSendPointer:
		s.onSendPointer(ls, cmd.pointer)
	case cmdRequestFBUpdate:
		s.onRequestFBUpdate(ls, cmd.incremental)
	case cmdGetState:
		cmd.stateResult <- ls.phaseState
	}
}

func (s *Session) onConnect(ls *loopState, cmd command) {
	if ls.phaseState.Connecting || ls.phaseState.Connected {
		cmd.result <- ErrAlreadyActive
		return
	}
	if err := validateEndpoint(s.opts.Endpoint); err != nil {
		cmd.result <- err
		return
	}

	// A fresh user-initiated connect always wins over any pending grace
	// teardown of a previous transport (spec §5's remount-storm note).
	s.stopTimer(&ls.graceTimer)
	if ls.conn != nil {
		ls.conn.Close(transport.CloseNormal, "")
		ls.conn = nil
	}

	ls.reconnectAttempts = 0
	s.beginConnect(ls, cmd.result)
}

// beginConnect starts a new connect attempt: it arms a single connect-
// deadline timer spanning both the dial and the handshake (spec §4.4 arms
// "a connect timer of timeout_ms" once per attempt, not once per phase),
// then dials on its own goroutine so the loop goroutine is never blocked
// on a dial the way transport.TCPDialer's underlying net.Dialer would
// block it (spec §5's suspension points don't include dialing). result is
// nil when called from the reconnect-backoff path, since only the
// original Connect() caller waits on a result channel.
func (s *Session) beginConnect(ls *loopState, result chan error) {
	s.cancelDial(ls)
	ls.gen++
	ls.connectResult = result
	ls.machine = protocol.New(protocol.Options{Password: s.opts.Password, Log: s.log})
	ls.pendingSends = nil
	ls.phaseState = State{Connecting: true}
	s.bus.Publish(eventbus.Event{Kind: eventbus.Connecting})

	s.stopTimer(&ls.connectTimer)
	ls.connectTimer = time.NewTimer(s.opts.ConnectTimeout)

	handler := sessionHandler{gen: ls.gen, ch: s.transCh}
	ctx, cancel := context.WithCancel(context.Background())
	ls.dialCancel = cancel

	gen := ls.gen
	dialer, endpoint := s.dialer, s.opts.Endpoint
	go func() {
		conn, err := dialer.Dial(ctx, endpoint, handler)
		select {
		case s.dialCh <- dialResult{gen: gen, conn: conn, err: err}:
		case <-s.stopped:
			if conn != nil {
				conn.Close(transport.CloseNormal, "")
			}
		}
	}()
}

// handleDialResult applies the outcome of the goroutine beginConnect
// spawned. A stale gen means the attempt it belongs to has already been
// superseded (timed out, disconnected, or replaced by a fresh Connect) —
// its connection, if any, is closed and otherwise ignored.
func (s *Session) handleDialResult(ls *loopState, res dialResult) {
	if res.gen != ls.gen {
		if res.conn != nil {
			res.conn.Close(transport.CloseNormal, "")
		}
		return
	}
	ls.dialCancel = nil
	if res.err != nil {
		s.stopTimer(&ls.connectTimer)
		s.failConnect(ls, res.err)
		return
	}
	ls.conn = res.conn
	pending := ls.pendingSends
	ls.pendingSends = nil
	for _, b := range pending {
		s.send(ls, b)
	}
}

// cancelDial cancels and clears any in-flight dial's context. Safe to call
// when no dial is outstanding.
func (s *Session) cancelDial(ls *loopState) {
	if ls.dialCancel != nil {
		ls.dialCancel()
		ls.dialCancel = nil
	}
}

func (s *Session) onConnectTimeout(ls *loopState) {
	ls.connectTimer = nil
	if !ls.phaseState.Connecting {
		return
	}
	s.failConnect(ls, ErrTimeout)
	// Advance the generation and cancel any in-flight dial before closing,
	// so a late OnClose callback from a just-connected real transport (or
	// a dial that completes after this point) is dropped as stale instead
	// of reprocessed.
	ls.gen++
	s.cancelDial(ls)
	if ls.conn != nil {
		ls.conn.Close(transport.CloseNormal, "")
		ls.conn = nil
	}
	s.finishDisconnect(ls, false)
}

func (s *Session) failConnect(ls *loopState, err error) {
	ls.phaseState = State{Error: err.Error()}
	s.bus.Publish(eventbus.Event{Kind: eventbus.Error, Message: err.Error()})
	if ls.connectResult != nil {
		ls.connectResult <- err
		ls.connectResult = nil
	}
}

func (s *Session) handleTransportEvent(ls *loopState, ev transportEvent) {
	if ev.gen != ls.gen {
		return // stale event from a superseded transport
	}
	switch {
	case ev.err != nil:
		s.log.Warn("transport error", "err", ev.err)
	case ev.closed:
		s.onTransportClosed(ls, ev.code, ev.reason)
	default:
		s.onMessage(ls, ev.message)
	}
}

func (s *Session) onMessage(ls *loopState, data []byte) {
	res, err := ls.machine.Feed(data)
	// Events publish before sends go out, so a Connected subscriber never
	// observes the initial framebuffer-update-request having already been
	// written to the transport (spec §5).
	for _, e := range res.Events {
		s.applyEvent(ls, e)
	}
	for _, send := range res.Sends {
		s.send(ls, send)
	}
	if err != nil {
		s.onProtocolError(ls, err)
	}
}

// send writes b to the transport if it's ready, or queues it in
// pendingSends to be flushed by handleDialResult once dialing resolves.
func (s *Session) send(ls *loopState, b []byte) {
	if ls.conn == nil {
		ls.pendingSends = append(ls.pendingSends, b)
		return
	}
	if err := ls.conn.Send(b); err != nil {
		s.log.Warn("send failed", "err", err)
	}
}

// applyEvent updates phaseState from a state-machine event and republishes
// it on the bus, in emission order (spec §5).
func (s *Session) applyEvent(ls *loopState, e eventbus.Event) {
	if e.Kind == eventbus.Connected {
		s.stopTimer(&ls.connectTimer)
		ls.phaseState = State{
			Connected:  true,
			ServerName: ls.machine.ServerInfo.Name,
			Width:      ls.machine.ServerInfo.Width,
			Height:     ls.machine.ServerInfo.Height,
		}
		ls.wasConnected = true
		ls.reconnectAttempts = 0
		if ls.connectResult != nil {
			ls.connectResult <- nil
			ls.connectResult = nil
		}
	}
	s.bus.Publish(e)
}

func (s *Session) onProtocolError(ls *loopState, err error) {
	ls.phaseState.Error = err.Error()
	s.bus.Publish(eventbus.Event{Kind: eventbus.Error, Message: err.Error()})
	if ls.connectResult != nil {
		ls.connectResult <- err
		ls.connectResult = nil
	}
	// ProtocolError and AuthFailed are always terminal (spec §7); tear
	// down without scheduling a reconnect regardless of close code.
	if ls.conn != nil {
		ls.gen++
		ls.conn.Close(transport.CloseProtocolError, err.Error())
		ls.conn = nil
	}
	s.finishDisconnect(ls, false)
}

func (s *Session) onTransportClosed(ls *loopState, code int, reason string) {
	msg := closeCodeMessage(code, reason)
	if msg != "" {
		s.bus.Publish(eventbus.Event{Kind: eventbus.Error, Message: msg})
	}
	if ls.connectResult != nil {
		ls.connectResult <- &TransportClosedError{Code: code, Reason: reason}
		ls.connectResult = nil
	}

	// Only abnormal (1006) closes after a prior successful connection
	// trigger a retry; 1002/1003 stop it permanently and every other code
	// just disconnects, per the reconnect policy in spec §4.4.
	shouldReconnect := ls.wasConnected &&
		code == transport.CloseAbnormal &&
		ls.reconnectAttempts < s.opts.MaxReconnectAttempts

	ls.conn = nil
	s.finishDisconnect(ls, shouldReconnect)
}

// finishDisconnect resets phaseState to Disconnected and, if
// shouldReconnect, arms the backoff timer instead of zeroing the
// reconnect counter (the counter only resets on success or explicit
// user disconnect, per spec §3). wasConnected is deliberately left
// untouched on the shouldReconnect path: it records that the session
// has reached Connected at least once since the last user-initiated
// disconnect, and the next abnormal close's eligibility check
// (onTransportClosed) needs that to still read true after a retry
// that itself never reached Connected again — clearing it here would
// let a session give up after a single failed retry instead of
// exhausting MaxReconnectAttempts on consecutive 1006 closes.
//
// The connect timer and any in-flight dial are always torn down here,
// before Disconnected is ever published below — reaching this function
// mid-handshake (a protocol error or a transport close before Connected
// fired) would otherwise leave the connect timer armed past the point
// its own connect attempt ended (spec §8's "every armed timer is
// cancelled before Disconnected is emitted").
func (s *Session) finishDisconnect(ls *loopState, shouldReconnect bool) {
	s.stopTimer(&ls.connectTimer)
	s.cancelDial(ls)
	ls.machine = nil
	ls.pendingSends = nil

	if shouldReconnect {
		ls.reconnectAttempts++
		delay := reconnectBackoff(ls.reconnectAttempts)
		ls.phaseState = State{Error: ls.phaseState.Error}
		s.stopTimer(&ls.reconnectTimer)
		ls.reconnectTimer = time.NewTimer(delay)
		s.log.Info("reconnecting", "attempt", ls.reconnectAttempts, "delay", delay)
		return
	}

	wasConnected := ls.wasConnected
	ls.wasConnected = false
	ls.reconnectAttempts = 0
	ls.phaseState = State{Error: ls.phaseState.Error}
	if wasConnected || ls.phaseState.Error != "" {
		s.bus.Publish(eventbus.Event{Kind: eventbus.Disconnected})
	}
}

func (s *Session) onDisconnect(ls *loopState) {
	s.stopTimer(&ls.connectTimer)
	s.stopTimer(&ls.reconnectTimer)
	s.cancelDial(ls)

	wasActive := ls.phaseState.Connecting || ls.phaseState.Connected

	// Detach callbacks by advancing the generation before scheduling the
	// close, so a close/error racing in on transCh from the old conn is
	// dropped rather than triggering reconnection (spec §4.4, §5).
	ls.gen++
	ls.machine = nil
	ls.pendingSends = nil
	ls.wasConnected = false
	ls.reconnectAttempts = 0
	ls.phaseState = State{}

	if ls.connectResult != nil {
		ls.connectResult <- ErrDisconnected
		ls.connectResult = nil
	}

	if ls.conn != nil {
		// Deferred rather than closed inline: a Connect() arriving within
		// the grace window (spec §5, §9) preempts this timer in onConnect
		// and closes the stale conn itself before dialing a new one.
		s.stopTimer(&ls.graceTimer)
		ls.graceTimer = time.NewTimer(graceTeardownDelay)
	}

	if wasActive {
		s.bus.Publish(eventbus.Event{Kind: eventbus.Disconnected})
	}
}

func (s *Session) onSendKey(ls *loopState, k KeyEvent) {
	if !ls.phaseState.Connected || s.opts.ViewOnly {
		return
	}
	keysym := rfb.KeysymForKey(k.Key)
	if keysym == 0 {
		return
	}
	var buf writeBuf
	if err := rfb.WriteKeyEvent(&buf, k.Down, keysym); err != nil {
		return
	}
	if ls.conn != nil {
		ls.conn.Send(buf.b)
	}
}

func (s *Session) onSendPointer(ls *loopState, p PointerEvent) {
	if !ls.phaseState.Connected || s.opts.ViewOnly {
		return
	}
	x := int(float64(p.X) / s.opts.Scale)
	y := int(float64(p.Y) / s.opts.Scale)
	x = clampInt(x, 0, int(ls.phaseState.Width)-1)
	y = clampInt(y, 0, int(ls.phaseState.Height)-1)

	var buf writeBuf
	if err := rfb.WritePointerEvent(&buf, p.ButtonMask, uint16(x), uint16(y)); err != nil {
		return
	}
	if ls.conn != nil {
		ls.conn.Send(buf.b)
	}
}

func (s *Session) onRequestFBUpdate(ls *loopState, incremental bool) {
	if !ls.phaseState.Connected {
		return
	}
	var buf writeBuf
	err := rfb.WriteFramebufferUpdateRequest(&buf, incremental, 0, 0, ls.phaseState.Width, ls.phaseState.Height)
	if err != nil {
		return
	}
	if ls.conn != nil {
		ls.conn.Send(buf.b)
	}
}

func (s *Session) teardown(ls *loopState) {
	s.stopTimer(&ls.connectTimer)
	s.stopTimer(&ls.reconnectTimer)
	s.stopTimer(&ls.graceTimer)
	s.cancelDial(ls)
	if ls.conn != nil {
		ls.conn.Close(transport.CloseNormal, "")
		ls.conn = nil
	}
}

func (s *Session) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// writeBuf is a tiny io.Writer over a growable slice, the same shape as
// internal/protocol's, used here to build outbound input-event records.
type writeBuf struct{ b []byte }

func (w *writeBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}
