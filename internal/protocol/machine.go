package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"

	"github.com/sepandy/react-vnc-lib/internal/auth"
	"github.com/sepandy/react-vnc-lib/internal/eventbus"
	"github.com/sepandy/react-vnc-lib/internal/rfb"
)

// Options configures a Machine for one connection attempt.
type Options struct {
	// Password, if non-empty, may be used for VNC Authentication
	// (security type 2) if the server offers it.
	Password string
	Log      *slog.Logger
}

// Machine is the RFB handshake and Connected-phase dispatcher. It is not
// safe for concurrent use; the session controller drives it from its
// single event-loop goroutine (spec §5).
type Machine struct {
	opts Options
	log  *slog.Logger

	phase Phase
	buf   []byte // accumulator for not-yet-complete inbound records

	pixelFormat rfb.PixelFormat
	ServerInfo  rfb.ServerInit // populated once, at AwaitServerInit -> Connected
}

// New creates a Machine in AwaitVersion, ready to Feed the first bytes the
// server sends.
func New(opts Options) *Machine {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(nowhere{}, nil))
	}
	return &Machine{
		opts:        opts,
		log:         log,
		phase:       AwaitVersion,
		pixelFormat: rfb.DefaultPixelFormat(),
	}
}

// Phase returns the machine's current handshake phase.
func (m *Machine) Phase() Phase { return m.phase }

// Result is what one Feed call produced: bytes to send (in order, one
// slice per logical RFB message so the caller can preserve spec §5's
// "one transport write per RFB message" guarantee) and events to publish
// (in emission order).
type Result struct {
	Sends  [][]byte
	Events []eventbus.Event
}

// Feed appends chunk to the internal accumulator and processes as many
// complete records as are available, in a loop, until either the
// accumulator is exhausted (wait for more bytes) or a terminal error
// occurs. It never assumes chunk boundaries align with RFB record
// boundaries (spec §4.3, §9).
func (m *Machine) Feed(chunk []byte) (Result, error) {
	m.buf = append(m.buf, chunk...)

	var res Result
	for {
		progressed, err := m.step(&res)
		if err != nil {
			return res, err
		}
		if !progressed {
			return res, nil
		}
	}
}

// step attempts to consume exactly one record for the current phase. It
// returns progressed=false when the accumulator doesn't yet hold enough
// bytes, which is not an error — the caller waits for more chunks.
func (m *Machine) step(res *Result) (progressed bool, err error) {
	switch m.phase {
	case AwaitVersion:
		return m.stepAwaitVersion(res)
	case AwaitSecurityTypes:
		return m.stepAwaitSecurityTypes(res)
	case AwaitAuthChallenge:
		return m.stepAwaitAuthChallenge(res)
	case AwaitAuthResult:
		return m.stepAwaitAuthResult(res)
	case AwaitServerInit:
		return m.stepAwaitServerInit(res)
	case Connected:
		return m.stepConnected(res)
	default:
		return false, newProtocolError("unknown phase %v", m.phase)
	}
}

func (m *Machine) stepAwaitVersion(res *Result) (bool, error) {
	if len(m.buf) < versionLineSize {
		return false, nil
	}
	line := m.consume(versionLineSize)
	if string(line[0:4]) != "RFB " || line[11] != '\n' {
		return false, newProtocolError("malformed version line %q", string(line))
	}
	res.Sends = append(res.Sends, []byte(clientVersion))
	m.phase = AwaitSecurityTypes
	m.log.Debug("sent client version", "version", clientVersion)
	return true, nil
}

func (m *Machine) stepAwaitSecurityTypes(res *Result) (bool, error) {
	if len(m.buf) < 1 {
		return false, nil
	}
	n := int(m.buf[0])
	if n == 0 {
		total, reasonLen, ok := lengthPrefixedTotal(m.buf, 1)
		if !ok {
			return false, nil
		}
		if len(m.buf) < total {
			return false, nil
		}
		record := m.consume(total)
		reason := string(record[5 : 5+reasonLen])
		return false, newProtocolError("%s", reason)
	}
	total := 1 + n
	if len(m.buf) < total {
		return false, nil
	}
	record := m.consume(total)
	offered := record[1:total]

	chosen, err := chooseSecurityType(offered, m.opts.Password != "")
	if err != nil {
		return false, err
	}
	res.Sends = append(res.Sends, []byte{chosen})

	switch chosen {
	case SecurityVNC:
		m.phase = AwaitAuthChallenge
	case SecurityNone:
		m.sendClientInitAndEncodings(res)
		m.phase = AwaitServerInit
	}
	return true, nil
}

func chooseSecurityType(offered []byte, hasPassword bool) (byte, error) {
	has := func(t byte) bool {
		for _, o := range offered {
			if o == t {
				return true
			}
		}
		return false
	}
	switch {
	case hasPassword && has(SecurityVNC):
		return SecurityVNC, nil
	case has(SecurityNone):
		return SecurityNone, nil
	case has(SecurityVNC):
		// Only type 2 offered and no password configured.
		return 0, ErrAuthRequired
	default:
		return 0, newProtocolError("no supported security type in %v", offered)
	}
}

func (m *Machine) stepAwaitAuthChallenge(res *Result) (bool, error) {
	if len(m.buf) < auth.ChallengeSize {
		return false, nil
	}
	record := m.consume(auth.ChallengeSize)
	var challenge [auth.ChallengeSize]byte
	copy(challenge[:], record)

	response, err := auth.EncryptChallenge(m.opts.Password, challenge)
	if err != nil {
		return false, newProtocolError("DES challenge encryption failed: %v", err)
	}
	res.Sends = append(res.Sends, response[:])
	m.phase = AwaitAuthResult
	return true, nil
}

func (m *Machine) stepAwaitAuthResult(res *Result) (bool, error) {
	if len(m.buf) < 4 {
		return false, nil
	}
	status := binary.BigEndian.Uint32(m.buf[0:4])
	if status == 0 {
		m.consume(4)
		m.sendClientInitAndEncodings(res)
		m.phase = AwaitServerInit
		return true, nil
	}

	total, reasonLen, ok := lengthPrefixedTotal(m.buf, 4)
	if !ok {
		return false, nil
	}
	if len(m.buf) < total {
		return false, nil
	}
	record := m.consume(total)
	reason := string(record[8 : 8+reasonLen])
	return false, &AuthFailedError{Reason: reason}
}

func (m *Machine) stepAwaitServerInit(res *Result) (bool, error) {
	if len(m.buf) < rfb.ServerInitHeaderSize {
		return false, nil
	}
	nameLen, err := rfb.ServerInitNameLength(m.buf)
	if err != nil {
		return false, newProtocolError("%v", err)
	}
	total := rfb.ServerInitHeaderSize + int(nameLen)
	if len(m.buf) < total {
		return false, nil
	}
	record := m.consume(total)
	info, err := rfb.ParseServerInit(record)
	if err != nil {
		return false, newProtocolError("%v", err)
	}
	m.ServerInfo = info
	// No SetPixelFormat is sent, so the server keeps sending in the format
	// it announced here; Raw rectangle bodies are sized with it.
	m.pixelFormat = info.PixelFormat
	m.phase = Connected

	res.Events = append(res.Events, eventbus.Event{Kind: eventbus.Connected})

	var reqBuf writeBuf
	_ = rfb.WriteFramebufferUpdateRequest(&reqBuf, false, 0, 0, info.Width, info.Height)
	res.Sends = append(res.Sends, reqBuf.b)

	m.log.Debug("handshake complete", "width", info.Width, "height", info.Height, "name", info.Name)
	return true, nil
}

func (m *Machine) stepConnected(res *Result) (bool, error) {
	if len(m.buf) < 1 {
		return false, nil
	}
	msgType := m.buf[0]
	switch msgType {
	case rfb.SMsgFramebufferUpdate:
		_, bodyLen, err := rfb.ScanFramebufferUpdate(m.buf[1:], m.pixelFormat)
		if errors.Is(err, io.ErrShortBuffer) {
			return false, nil
		}
		if err != nil {
			return false, newProtocolError("framebuffer update: %v", err)
		}
		total := 1 + bodyLen
		record := m.consume(total)
		res.Events = append(res.Events, eventbus.Event{Kind: eventbus.FramebufferUpdate, Payload: append([]byte(nil), record[1:]...)})
		return true, nil

	case rfb.SMsgBell:
		m.consume(1)
		res.Events = append(res.Events, eventbus.Event{Kind: eventbus.Bell})
		return true, nil

	case rfb.SMsgServerCutText:
		if len(m.buf) < 1+rfb.ServerCutTextHeaderSize {
			return false, nil
		}
		textLen, err := rfb.ServerCutTextLength(m.buf[1:])
		if err != nil {
			return false, newProtocolError("server cut text: %v", err)
		}
		total := 1 + rfb.ServerCutTextHeaderSize + textLen
		if len(m.buf) < total {
			return false, nil
		}
		record := m.consume(total)
		text := record[1+rfb.ServerCutTextHeaderSize:]
		res.Events = append(res.Events, eventbus.Event{Kind: eventbus.ServerCutText, Payload: append([]byte(nil), text...)})
		return true, nil

	default:
		// An unrecognised message type carries an unknown length; there
		// is no safe way to resynchronise the byte stream, so this is
		// terminal rather than best-effort skipped.
		m.log.Warn("unrecognised server message type", "type", msgType)
		return false, newProtocolError("unrecognised message type %d", msgType)
	}
}

// sendClientInitAndEncodings appends the ClientInit and SetEncodings
// records that follow every successful security negotiation, regardless
// of which security type was chosen (spec §4.3 table; SetEncodings is the
// spec's §9-sanctioned addition).
func (m *Machine) sendClientInitAndEncodings(res *Result) {
	var initBuf, encBuf writeBuf
	_ = rfb.WriteClientInit(&initBuf, true) // shared=1, never evict other viewers
	_ = rfb.WriteSetEncodings(&encBuf, []int32{rfb.EncodingRaw})
	res.Sends = append(res.Sends, initBuf.b, encBuf.b)
}

// consume removes and returns the first n bytes of the accumulator.
func (m *Machine) consume(n int) []byte {
	record := make([]byte, n)
	copy(record, m.buf[:n])
	m.buf = append(m.buf[:0], m.buf[n:]...)
	return record
}

// lengthPrefixedTotal computes the total record length for a
// "u32 length + that many bytes" trailer starting at byte offset
// lenOffset, returning ok=false if the length field itself isn't
// available yet.
func lengthPrefixedTotal(buf []byte, lenOffset int) (total int, length int, ok bool) {
	if len(buf) < lenOffset+4 {
		return 0, 0, false
	}
	length = int(binary.BigEndian.Uint32(buf[lenOffset : lenOffset+4]))
	return lenOffset + 4 + length, length, true
}

// writeBuf is a tiny io.Writer over a growable slice, used to build
// outbound records with the rfb.Write* functions without importing
// bytes.Buffer for a handful of appends.
type writeBuf struct{ b []byte }

func (w *writeBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// nowhere is an io.Writer that discards everything, used to build a
// default no-op logger when the caller doesn't supply one.
type nowhere struct{}

func (nowhere) Write(p []byte) (int, error) { return len(p), nil }
