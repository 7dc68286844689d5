package session

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced via Connect's result and Error events (spec §7).
var (
	ErrInvalidEndpoint = errors.New("session: invalid endpoint")
	ErrAlreadyActive   = errors.New("session: already connecting or connected")
	ErrTimeout         = errors.New("session: connect timed out")
	ErrDisconnected    = errors.New("session: disconnected before connect completed")
)

// TransportClosedError reports an abnormal transport close translated
// through the close-code table in spec §4.4. It carries the code so
// callers can distinguish causes without string-matching Error().
type TransportClosedError struct {
	Code   int
	Reason string
}

func (e *TransportClosedError) Error() string {
	return fmt.Sprintf("session: %s", closeCodeMessage(e.Code, e.Reason))
}

// closeCodeMessage implements the stable close-code -> message contract
// from spec §4.4. A zero-length message (the 1000 case) means "no error".
func closeCodeMessage(code int, reason string) string {
	switch code {
	case 1000:
		return ""
	case 1006:
		return "connection lost unexpectedly"
	case 1002:
		return "protocol error"
	case 1003:
		return "server rejected connection (invalid data)"
	case 1008:
		return "rejected by policy"
	case 1011:
		return "server internal error"
	default:
		return fmt.Sprintf("closed with code %d: %s", code, reason)
	}
}
