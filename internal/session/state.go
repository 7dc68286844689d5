package session

import "time"

// State is the observable snapshot returned by Session.State (spec §3's
// SessionState). Connecting and Connected are mutually exclusive.
type State struct {
	Connecting bool
	Connected  bool
	Error      string
	ServerName string
	Width      uint16
	Height     uint16
}

// reconnectBackoff implements spec §4.4's schedule: min(1000*2^(n-1), 10s)
// for the nth reconnect attempt (n starting at 1).
func reconnectBackoff(attempt int) time.Duration {
	const backoffCap = 10 * time.Second
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 4 {
		// 1000*2^(4-1) = 8000ms is the last step below the 10s cap;
		// anything beyond overflows int before it would ever undercut it.
		return backoffCap
	}
	d := time.Duration(1000<<uint(attempt-1)) * time.Millisecond
	if d > backoffCap {
		return backoffCap
	}
	return d
}
