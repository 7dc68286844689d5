package session

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdSendKey
	cmdSendPointer
	cmdRequestFBUpdate
	cmdGetState
	cmdStop
)

// KeyEvent is a keyboard input from an observer, as spec §4.4's
// send_key_event({key, code, down, modifiers}) — code and modifiers are
// not part of the wire contract (only the resolved keysym is), so only
// the fields the codec needs are kept.
type KeyEvent struct {
	Key  string
	Down bool
}

// PointerEvent is a pointer input from an observer, in unscaled
// caller-side coordinates; the session divides by Options.Scale and
// clamps to the server's geometry before encoding (spec §4.4).
type PointerEvent struct {
	X, Y       int
	ButtonMask uint8
}

// command is the single request type carried on the loop's command
// channel, the concrete answer to spec §5's "serialise ... user
// operations onto one logical queue per session."
type command struct {
	kind commandKind

	result chan error // Connect: exactly-once completion signal

	stateResult chan State // GetState

	key         KeyEvent
	pointer     PointerEvent
	incremental bool
}
