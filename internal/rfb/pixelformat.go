// Package rfb implements the wire codec for the subset of the Remote
// Framebuffer protocol (RFC 6143) this client speaks: pixel format,
// ServerInit/ClientInit, and five client-to-server message types
// (SetPixelFormat, SetEncodings, FramebufferUpdateRequest, KeyEvent,
// PointerEvent). It is deliberately stateless — every
// function here reads or writes one fixed layout and has no notion of a
// connection, a phase, or a byte accumulator (that's internal/protocol).
package rfb

import (
	"encoding/binary"
	"fmt"
)

// PixelFormatSize is the encoded length of a PixelFormat record.
const PixelFormatSize = 16

// PixelFormat mirrors the 16-byte RFB pixel format structure (RFC 6143 §7.4).
type PixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    bool
	TrueColor    bool
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
}

// DefaultPixelFormat is the client's default pixel format: 32bpp, depth 24,
// little-endian, true-color, 8-bit channels packed as 0xBBGGRR (red shift
// 0, green shift 8, blue shift 16). WriteSetPixelFormat can encode it, but
// the handshake in internal/protocol does not send SetPixelFormat, so the
// server keeps the pixel format it announced in ServerInit.
func DefaultPixelFormat() PixelFormat {
	return PixelFormat{
		BitsPerPixel: 32,
		Depth:        24,
		BigEndian:    false,
		TrueColor:    true,
		RedMax:       255,
		GreenMax:     255,
		BlueMax:      255,
		RedShift:     0,
		GreenShift:   8,
		BlueShift:    16,
	}
}

// Encode writes the 16-byte wire representation of pf into buf[:16].
func (pf PixelFormat) Encode(buf []byte) {
	_ = buf[:PixelFormatSize] // bounds check hint
	buf[0] = pf.BitsPerPixel
	buf[1] = pf.Depth
	buf[2] = boolByte(pf.BigEndian)
	buf[3] = boolByte(pf.TrueColor)
	binary.BigEndian.PutUint16(buf[4:6], pf.RedMax)
	binary.BigEndian.PutUint16(buf[6:8], pf.GreenMax)
	binary.BigEndian.PutUint16(buf[8:10], pf.BlueMax)
	buf[10] = pf.RedShift
	buf[11] = pf.GreenShift
	buf[12] = pf.BlueShift
	buf[13], buf[14], buf[15] = 0, 0, 0 // padding
}

// DecodePixelFormat parses a 16-byte pixel format record.
func DecodePixelFormat(buf []byte) (PixelFormat, error) {
	if len(buf) < PixelFormatSize {
		return PixelFormat{}, fmt.Errorf("rfb: pixel format needs %d bytes, got %d", PixelFormatSize, len(buf))
	}
	return PixelFormat{
		BitsPerPixel: buf[0],
		Depth:        buf[1],
		BigEndian:    buf[2] != 0,
		TrueColor:    buf[3] != 0,
		RedMax:       binary.BigEndian.Uint16(buf[4:6]),
		GreenMax:     binary.BigEndian.Uint16(buf[6:8]),
		BlueMax:      binary.BigEndian.Uint16(buf[8:10]),
		RedShift:     buf[10],
		GreenShift:   buf[11],
		BlueShift:    buf[12],
	}, nil
}

// BytesPerPixel returns ceil(BitsPerPixel/8), used to size Raw rectangle
// bodies when scanning FramebufferUpdate headers (see messages.go).
func (pf PixelFormat) BytesPerPixel() int {
	return (int(pf.BitsPerPixel) + 7) / 8
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
