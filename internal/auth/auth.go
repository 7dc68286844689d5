// Package auth implements VNC Authentication (RFC 6143 §7.2.2): a legacy
// DES challenge-response scheme keyed by the first 8 bytes of the user's
// password, with a non-standard per-byte bit reversal required for
// interoperability with real VNC servers (RFC 6143 Errata 4951).
//
// crypto/des is used rather than a hand-rolled cipher — see DESIGN.md for
// why nothing in the reference corpus reimplements DES, and how two
// independent VNC client libraries in it (mitchellh/go-vnc, rnd/user-go-vnc)
// both reach for crypto/des for this exact quirk.
package auth

import (
	"crypto/des"
	"fmt"
)

// ChallengeSize is the length of the VNC authentication challenge and its
// encrypted response.
const ChallengeSize = 16

// keySize is the DES key length; VNC truncates or zero-pads the password
// to fit it.
const keySize = 8

// EncryptChallenge computes the VNC Authentication response for the given
// password and 16-byte challenge: DES-ECB-encrypt each 8-byte half of the
// challenge under the bit-reversed, zero-padded password key.
func EncryptChallenge(password string, challenge [ChallengeSize]byte) ([ChallengeSize]byte, error) {
	block, err := des.NewCipher(deriveKey(password))
	if err != nil {
		return [ChallengeSize]byte{}, fmt.Errorf("auth: build DES cipher: %w", err)
	}

	var response [ChallengeSize]byte
	block.Encrypt(response[0:8], challenge[0:8])
	block.Encrypt(response[8:16], challenge[8:16])
	return response, nil
}

// deriveKey takes the first 8 bytes of password (zero-padded if shorter)
// and reverses the bit order within each byte, per the VNC-specific quirk.
func deriveKey(password string) []byte {
	key := make([]byte, keySize)
	copy(key, password) // truncates if longer than 8, zero-pads if shorter
	for i, b := range key {
		key[i] = reverseBits(b)
	}
	return key
}

// reverseBits reverses the bit order of a single byte (LSB<->MSB).
func reverseBits(b byte) byte {
	b = (b&0x55)<<1 | (b&0xAA)>>1 // swap adjacent bits
	b = (b&0x33)<<2 | (b&0xCC)>>2 // swap adjacent pairs
	b = (b&0x0F)<<4 | (b&0xF0)>>4 // swap nibbles
	return b
}
