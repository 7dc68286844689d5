package session

import (
	"fmt"
	"net/url"
	"time"
)

// defaultConnectTimeout and defaultMaxReconnectAttempts mirror spec §3's
// documented defaults for the fields callers usually leave zero.
const (
	defaultConnectTimeout       = 10 * time.Second
	defaultMaxReconnectAttempts = 3

	minScale = 0.1
	maxScale = 2.0
)

// Options configures one Session. It is validated and defaulted exactly
// once, inside NewSession, and copied into the Session's private config —
// nothing about it is mutated afterward.
type Options struct {
	// Endpoint is a ws:// or wss:// URL. Any other scheme is rejected at
	// Connect time (not here), matching spec §4.4's InvalidEndpoint
	// timing: validation happens on every Connect, not at construction.
	Endpoint string

	// Password, if non-empty, is offered when the server requires VNC
	// Authentication (security type 2).
	Password string

	// ViewOnly, when true, makes every input-send operation a no-op.
	ViewOnly bool

	// Scale divides client-supplied pointer coordinates before wire
	// encoding. Clamped to [0.1, 2.0]; zero takes the default of 1.0.
	Scale float64

	// ConnectTimeout bounds how long Connect waits for the handshake to
	// reach Connected before failing with ErrTimeout. Zero takes the
	// default of 10s.
	ConnectTimeout time.Duration

	// Debug switches the session's logger from a discard sink to a text
	// handler on stderr, mirroring the teacher's Config.Profile switch.
	Debug bool

	// MaxReconnectAttempts bounds automatic reconnection after an
	// abnormal (1006) close following a prior successful connection.
	// Zero takes the default of 3.
	MaxReconnectAttempts int
}

// withDefaults returns a copy of o with zero-valued fields set to their
// documented defaults. It does not validate the endpoint — that happens
// at Connect time so a Session can be constructed before its endpoint is
// known to be reachable.
func (o Options) withDefaults() Options {
	if o.Scale == 0 {
		o.Scale = 1.0
	}
	if o.Scale < minScale {
		o.Scale = minScale
	}
	if o.Scale > maxScale {
		o.Scale = maxScale
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	return o
}

// validateEndpoint checks that Endpoint parses as a URL with scheme ws or
// wss. Called from Connect, not from NewSession (spec §4.4).
func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q, want ws or wss", ErrInvalidEndpoint, u.Scheme)
	}
	return nil
}
