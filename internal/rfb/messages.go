package rfb

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Client-to-server message types (RFC 6143 §7.5).
const (
	MsgSetPixelFormat  = 0
	MsgSetEncodings    = 2
	MsgFBUpdateRequest = 3
	MsgKeyEvent        = 4
	MsgPointerEvent    = 5
)

// Server-to-client message types (RFC 6143 §7.6) that the Connected phase
// dispatches on.
const (
	SMsgFramebufferUpdate = 0
	SMsgBell              = 2
	SMsgServerCutText     = 3
)

// EncodingRaw is the only pixel encoding this client requests.
const EncodingRaw int32 = 0

// ServerInitHeaderSize is the number of bytes before the variable-length
// server name: width(2) + height(2) + PixelFormat(16) + name-length(4).
const ServerInitHeaderSize = 2 + 2 + PixelFormatSize + 4

// ServerInit is the handshake record that carries screen geometry, the
// server's default pixel format, and its desktop name.
type ServerInit struct {
	Width       uint16
	Height      uint16
	PixelFormat PixelFormat
	Name        string
}

// ServerInitNameLength reads the name-length field out of the first
// ServerInitHeaderSize bytes of a ServerInit record, so a caller buffering
// an unframed byte stream knows how many further bytes to wait for before
// the record is complete.
func ServerInitNameLength(header []byte) (uint32, error) {
	if len(header) < ServerInitHeaderSize {
		return 0, fmt.Errorf("rfb: ServerInit header needs %d bytes, got %d", ServerInitHeaderSize, len(header))
	}
	return binary.BigEndian.Uint32(header[20:24]), nil
}

// ParseServerInit decodes a complete ServerInit record (header plus the
// name bytes the header's length field promised).
func ParseServerInit(buf []byte) (ServerInit, error) {
	nameLen, err := ServerInitNameLength(buf)
	if err != nil {
		return ServerInit{}, err
	}
	total := ServerInitHeaderSize + int(nameLen)
	if len(buf) < total {
		return ServerInit{}, fmt.Errorf("rfb: ServerInit needs %d bytes, got %d", total, len(buf))
	}
	pf, err := DecodePixelFormat(buf[4:20])
	if err != nil {
		return ServerInit{}, err
	}
	return ServerInit{
		Width:       binary.BigEndian.Uint16(buf[0:2]),
		Height:      binary.BigEndian.Uint16(buf[2:4]),
		PixelFormat: pf,
		Name:        string(buf[24:total]),
	}, nil
}

// WriteClientInit writes the 1-byte ClientInit record.
func WriteClientInit(w io.Writer, shared bool) error {
	var b [1]byte
	if shared {
		b[0] = 1
	}
	_, err := w.Write(b[:])
	return err
}

// WriteSetPixelFormat writes the 20-byte SetPixelFormat record.
func WriteSetPixelFormat(w io.Writer, pf PixelFormat) error {
	var b [20]byte
	b[0] = MsgSetPixelFormat
	// b[1:4] padding
	pf.Encode(b[4:20])
	_, err := w.Write(b[:])
	return err
}

// WriteSetEncodings writes a SetEncodings record listing the given
// encoding types in preference order. This client only ever requests
// EncodingRaw, per spec.
func WriteSetEncodings(w io.Writer, encodings []int32) error {
	buf := make([]byte, 4+4*len(encodings))
	buf[0] = MsgSetEncodings
	// buf[1] padding
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(encodings)))
	for i, e := range encodings {
		binary.BigEndian.PutUint32(buf[4+4*i:8+4*i], uint32(e))
	}
	_, err := w.Write(buf)
	return err
}

// WriteFramebufferUpdateRequest writes the 10-byte FramebufferUpdateRequest
// record. incremental selects an incremental (changed-only) update.
func WriteFramebufferUpdateRequest(w io.Writer, incremental bool, x, y, width, height uint16) error {
	var b [10]byte
	b[0] = MsgFBUpdateRequest
	if incremental {
		b[1] = 1
	}
	binary.BigEndian.PutUint16(b[2:4], x)
	binary.BigEndian.PutUint16(b[4:6], y)
	binary.BigEndian.PutUint16(b[6:8], width)
	binary.BigEndian.PutUint16(b[8:10], height)
	_, err := w.Write(b[:])
	return err
}

// WriteKeyEvent writes the 8-byte KeyEvent record.
func WriteKeyEvent(w io.Writer, down bool, keysym uint32) error {
	var b [8]byte
	b[0] = MsgKeyEvent
	if down {
		b[1] = 1
	}
	// b[2:4] padding
	binary.BigEndian.PutUint32(b[4:8], keysym)
	_, err := w.Write(b[:])
	return err
}

// WritePointerEvent writes the 6-byte PointerEvent record. mask is the
// button bitmask (bit 0 = left, bit 1 = middle, bit 2 = right, ...).
func WritePointerEvent(w io.Writer, mask uint8, x, y uint16) error {
	var b [6]byte
	b[0] = MsgPointerEvent
	b[1] = mask
	binary.BigEndian.PutUint16(b[2:4], x)
	binary.BigEndian.PutUint16(b[4:6], y)
	_, err := w.Write(b[:])
	return err
}

// FramebufferUpdateHeaderSize is the number of bytes before the first
// rectangle header: 1 pad byte + u16 rectangle count.
const FramebufferUpdateHeaderSize = 3

// Rectangle is a FramebufferUpdate rectangle header (RFC 6143 §7.6.1). The
// pixel body itself is not decoded; ScanFramebufferUpdate skips the
// Width*Height*BytesPerPixel bytes that follow each Raw rectangle header.
type Rectangle struct {
	X, Y, Width, Height uint16
	EncodingType        int32
}

// RectHeaderSize is x+y+w+h (u16 each) + encoding-type (i32).
const RectHeaderSize = 2 + 2 + 2 + 2 + 4

// ScanFramebufferUpdate walks a complete FramebufferUpdate payload (the
// bytes following the message-type byte) far enough to confirm it is
// well-formed and to know its total length; it does not decode pixel data.
// Only EncodingRaw rectangles are recognized, per spec — any other
// encoding type is reported as ErrUnsupportedEncoding since this client
// never requests one.
func ScanFramebufferUpdate(payload []byte, pf PixelFormat) (rects []Rectangle, total int, err error) {
	if len(payload) < FramebufferUpdateHeaderSize {
		return nil, 0, io.ErrShortBuffer
	}
	count := int(binary.BigEndian.Uint16(payload[1:3]))
	off := FramebufferUpdateHeaderSize
	rects = make([]Rectangle, 0, count)
	for i := 0; i < count; i++ {
		if len(payload) < off+RectHeaderSize {
			return nil, 0, io.ErrShortBuffer
		}
		r := Rectangle{
			X:            binary.BigEndian.Uint16(payload[off : off+2]),
			Y:            binary.BigEndian.Uint16(payload[off+2 : off+4]),
			Width:        binary.BigEndian.Uint16(payload[off+4 : off+6]),
			Height:       binary.BigEndian.Uint16(payload[off+6 : off+8]),
			EncodingType: int32(binary.BigEndian.Uint32(payload[off+8 : off+12])),
		}
		off += RectHeaderSize
		if r.EncodingType != EncodingRaw {
			return nil, 0, ErrUnsupportedEncoding
		}
		bodyLen := int(r.Width) * int(r.Height) * pf.BytesPerPixel()
		if len(payload) < off+bodyLen {
			return nil, 0, io.ErrShortBuffer
		}
		off += bodyLen
		rects = append(rects, r)
	}
	return rects, off, nil
}

// ErrUnsupportedEncoding is returned when a server sends a rectangle
// encoding other than Raw despite this client never requesting one.
var ErrUnsupportedEncoding = fmt.Errorf("rfb: unsupported rectangle encoding")

// ServerCutTextHeaderSize is 3 pad bytes + u32 text length.
const ServerCutTextHeaderSize = 7

// ServerCutTextLength reads the length field out of a ServerCutText
// payload header (the bytes following the message-type byte).
func ServerCutTextLength(header []byte) (int, error) {
	if len(header) < ServerCutTextHeaderSize {
		return 0, io.ErrShortBuffer
	}
	return int(binary.BigEndian.Uint32(header[3:7])), nil
}
