// Package protocol implements the five-state RFB handshake and the
// Connected-phase message dispatcher (spec §4.3). It knows nothing about
// the transport: Machine.Feed takes whatever bytes arrived, in whatever
// chunking the transport delivered them, and returns outbound bytes to
// send plus semantic events to publish. The session controller
// (internal/session) is the only thing that touches a transport handle.
package protocol

// Phase is the internal handshake stage, distinct from the externally
// visible SessionState (spec §3's ProtocolPhase).
type Phase int

const (
	AwaitVersion Phase = iota
	AwaitSecurityTypes
	AwaitAuthChallenge
	AwaitAuthResult
	AwaitServerInit
	Connected
)

func (p Phase) String() string {
	switch p {
	case AwaitVersion:
		return "AwaitVersion"
	case AwaitSecurityTypes:
		return "AwaitSecurityTypes"
	case AwaitAuthChallenge:
		return "AwaitAuthChallenge"
	case AwaitAuthResult:
		return "AwaitAuthResult"
	case AwaitServerInit:
		return "AwaitServerInit"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Security types this client understands (spec §6).
const (
	SecurityNone = 1
	SecurityVNC  = 2
)

// RFB protocol version this client speaks. Version negotiation is pinned
// to 3.8 regardless of what the server offers (spec §4.3, §9 — a known
// limitation, not a bug to fix).
const clientVersion = "RFB 003.008\n"

// versionLineSize is the fixed length of an RFB version line:
// "RFB " (4) + "xxx.yyy" (7) + "\n" (1).
const versionLineSize = 12
