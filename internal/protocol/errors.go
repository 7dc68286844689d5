package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error kinds in spec §7 that need no payload.
// ProtocolError and AuthFailed carry data and get their own types below;
// TransportClosed is internal/session's TransportClosedError.
var (
	ErrInvalidEndpoint = errors.New("protocol: invalid endpoint")
	ErrAlreadyActive   = errors.New("protocol: session already connecting or connected")
	ErrTimeout         = errors.New("protocol: connect timed out")
	ErrAuthRequired    = errors.New("protocol: server requires a password but none was configured")
)

// ProtocolError wraps a malformed-record or unsupported-offer failure with
// the detail the state machine observed. It is always terminal: no
// reconnect follows (spec §4.4, §7).
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s", e.Detail)
}

func newProtocolError(format string, args ...any) error {
	return &ProtocolError{Detail: fmt.Sprintf(format, args...)}
}

// AuthFailedError reports a non-zero VNC Authentication result, with the
// server's reason string when it provided one.
type AuthFailedError struct {
	Reason string
}

func (e *AuthFailedError) Error() string {
	if e.Reason == "" {
		return "protocol: authentication failed"
	}
	return fmt.Sprintf("protocol: authentication failed: %s", e.Reason)
}
