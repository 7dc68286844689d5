package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sepandy/react-vnc-lib/internal/auth"
	"github.com/sepandy/react-vnc-lib/internal/eventbus"
	"github.com/sepandy/react-vnc-lib/internal/rfb"
)

// serverInitRecord builds a ServerInit record for width/height/name with
// the machine's own default pixel format, so tests don't hardcode the
// 16-byte pixel format layout.
func serverInitRecord(t *testing.T, width, height uint16, name string) []byte {
	t.Helper()
	pf := rfb.DefaultPixelFormat()
	var pfBuf [rfb.PixelFormatSize]byte
	pf.Encode(pfBuf[:])

	buf := make([]byte, 0, rfb.ServerInitHeaderSize+len(name))
	buf = append(buf, byte(width>>8), byte(width))
	buf = append(buf, byte(height>>8), byte(height))
	buf = append(buf, pfBuf[:]...)
	nl := len(name)
	buf = append(buf, byte(nl>>24), byte(nl>>16), byte(nl>>8), byte(nl))
	buf = append(buf, name...)
	return buf
}

func mustEncodeChallenge(t *testing.T, password string, challenge [16]byte) [16]byte {
	t.Helper()
	resp, err := auth.EncryptChallenge(password, challenge)
	if err != nil {
		t.Fatalf("EncryptChallenge: %v", err)
	}
	return resp
}

// feedAll drives m with the full byte sequence, split into pieces at every
// index in splits (in ascending order), collecting Sends/Events across all
// Feed calls.
func feedAll(t *testing.T, m *Machine, data []byte, splits []int) (sends [][]byte, events []eventbus.Event, err error) {
	t.Helper()
	prev := 0
	bounds := append(append([]int{}, splits...), len(data))
	for _, b := range bounds {
		if b < prev || b > len(data) {
			t.Fatalf("bad split bound %d for data len %d", b, len(data))
		}
		res, e := m.Feed(data[prev:b])
		sends = append(sends, res.Sends...)
		events = append(events, res.Events...)
		if e != nil {
			return sends, events, e
		}
		prev = b
	}
	return sends, events, nil
}

func noAuthScript(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RFB 003.008\n")
	buf.Write([]byte{1, byte(SecurityNone)})
	buf.Write(serverInitRecord(t, 800, 600, "Remote"))
	return buf.Bytes()
}

func TestHappyPathNoAuth(t *testing.T) {
	m := New(Options{})
	data := noAuthScript(t)

	sends, events, err := feedAll(t, m, data, nil)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.Phase() != Connected {
		t.Fatalf("phase = %v, want Connected", m.Phase())
	}
	if m.ServerInfo.Width != 800 || m.ServerInfo.Height != 600 || m.ServerInfo.Name != "Remote" {
		t.Fatalf("ServerInfo = %+v", m.ServerInfo)
	}

	// Sends: client version, chosen security type, ClientInit,
	// SetEncodings, FramebufferUpdateRequest.
	if len(sends) != 5 {
		t.Fatalf("got %d sends, want 5: %v", len(sends), sends)
	}
	if string(sends[0]) != "RFB 003.008\n" {
		t.Fatalf("sends[0] = %q", sends[0])
	}
	if len(sends[1]) != 1 || sends[1][0] != SecurityNone {
		t.Fatalf("sends[1] = %v, want [SecurityNone]", sends[1])
	}
	if len(sends[4]) != 10 || sends[4][0] != rfb.MsgFBUpdateRequest {
		t.Fatalf("sends[4] = %v, want FramebufferUpdateRequest", sends[4])
	}

	foundConnected := false
	for _, e := range events {
		if e.Kind == eventbus.Connected {
			foundConnected = true
		}
	}
	if !foundConnected {
		t.Fatal("no Connected event published")
	}
}

func vncAuthScript(t *testing.T, password string, challenge [16]byte, ok bool, reason string) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RFB 003.008\n")
	buf.Write([]byte{1, byte(SecurityVNC)})
	buf.Write(challenge[:])
	if ok {
		buf.Write([]byte{0, 0, 0, 0})
		buf.Write(serverInitRecord(t, 1024, 768, "Auth Box"))
	} else {
		buf.Write([]byte{0, 0, 0, 1})
		rb := []byte(reason)
		n := len(rb)
		buf.Write([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
		buf.Write(rb)
	}
	return buf.Bytes()
}

func TestVNCAuthSuccess(t *testing.T) {
	m := New(Options{Password: "secret"})
	var challenge [16]byte
	for i := range challenge {
		challenge[i] = byte(i)
	}
	data := vncAuthScript(t, "secret", challenge, true, "")

	sends, _, err := feedAll(t, m, data, nil)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.Phase() != Connected {
		t.Fatalf("phase = %v, want Connected", m.Phase())
	}

	wantResp := mustEncodeChallenge(t, "secret", challenge)
	// sends[1] is the chosen security type, sends[2] is the DES response.
	if !bytes.Equal(sends[2], wantResp[:]) {
		t.Fatalf("challenge response = %x, want %x", sends[2], wantResp)
	}
}

func TestVNCAuthFailureCarriesReason(t *testing.T) {
	m := New(Options{Password: "wrong"})
	var challenge [16]byte
	data := vncAuthScript(t, "wrong", challenge, false, "bad password")

	_, _, err := feedAll(t, m, data, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var authErr *AuthFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want *AuthFailedError", err)
	}
	if authErr.Reason != "bad password" {
		t.Fatalf("Reason = %q, want %q", authErr.Reason, "bad password")
	}
}

func TestSecurityHandshakeRejection(t *testing.T) {
	m := New(Options{})
	var buf bytes.Buffer
	buf.WriteString("RFB 003.008\n")
	buf.WriteByte(0)
	reason := "too many auth failures"
	rb := []byte(reason)
	n := len(rb)
	buf.Write([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	buf.Write(rb)

	_, _, err := feedAll(t, m, buf.Bytes(), nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
	if perr.Detail != reason {
		t.Fatalf("Detail = %q, want %q", perr.Detail, reason)
	}
}

func TestNoPasswordButOnlyVNCOffered(t *testing.T) {
	m := New(Options{})
	var buf bytes.Buffer
	buf.WriteString("RFB 003.008\n")
	buf.Write([]byte{1, byte(SecurityVNC)})

	_, _, err := feedAll(t, m, buf.Bytes(), nil)
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
}

// TestBoundarySplitting verifies that splitting the same byte sequence at
// every possible boundary produces an identical final state and identical
// events/sends as feeding it in one contiguous chunk, since the machine
// must not assume transport frames align with RFB record boundaries.
func TestBoundarySplitting(t *testing.T) {
	data := noAuthScript(t)

	baseline := New(Options{})
	wantSends, wantEvents, err := feedAll(t, baseline, data, nil)
	if err != nil {
		t.Fatalf("baseline Feed: %v", err)
	}

	for split := 1; split < len(data); split++ {
		m := New(Options{})
		sends, events, err := feedAll(t, m, data, []int{split})
		if err != nil {
			t.Fatalf("split at %d: Feed: %v", split, err)
		}
		if m.Phase() != baseline.Phase() {
			t.Fatalf("split at %d: phase = %v, want %v", split, m.Phase(), baseline.Phase())
		}
		if len(sends) != len(wantSends) {
			t.Fatalf("split at %d: got %d sends, want %d", split, len(sends), len(wantSends))
		}
		for i := range sends {
			if !bytes.Equal(sends[i], wantSends[i]) {
				t.Fatalf("split at %d: sends[%d] = %x, want %x", split, i, sends[i], wantSends[i])
			}
		}
		if len(events) != len(wantEvents) {
			t.Fatalf("split at %d: got %d events, want %d", split, len(events), len(wantEvents))
		}
	}
}

func TestByteAtATime(t *testing.T) {
	data := noAuthScript(t)
	m := New(Options{})
	splits := make([]int, 0, len(data)-1)
	for i := 1; i < len(data); i++ {
		splits = append(splits, i)
	}
	_, _, err := feedAll(t, m, data, splits)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.Phase() != Connected {
		t.Fatalf("phase = %v, want Connected", m.Phase())
	}
}

func TestFramebufferUpdateEvent(t *testing.T) {
	m := New(Options{})
	if _, _, err := feedAll(t, m, noAuthScript(t), nil); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	pf := rfb.DefaultPixelFormat()
	bpp := pf.BytesPerPixel()
	var buf bytes.Buffer
	buf.WriteByte(rfb.SMsgFramebufferUpdate)
	buf.WriteByte(0) // padding
	buf.Write([]byte{0, 1})
	buf.Write([]byte{0, 0, 0, 0, 0, 2, 0, 2}) // x=0 y=0 w=2 h=2
	buf.Write([]byte{0, 0, 0, 0})             // encoding = Raw
	buf.Write(make([]byte, 2*2*bpp))

	_, events, err := feedAll(t, m, buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != eventbus.FramebufferUpdate {
		t.Fatalf("events = %+v, want one FramebufferUpdate", events)
	}
}

func TestUnrecognisedMessageTypeIsTerminal(t *testing.T) {
	m := New(Options{})
	if _, _, err := feedAll(t, m, noAuthScript(t), nil); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	_, err := m.Feed([]byte{99})
	if err == nil {
		t.Fatal("expected error for unrecognised message type")
	}
}
