package rfb

import "unicode/utf8"

// namedKeysyms maps DOM-style KeyboardEvent.key values for navigation and
// editing keys to their X11 keysym. Function keys, modifier keys proper,
// and IME composition keys are not covered — see spec.md §9, an
// acknowledged open item, not an oversight.
var namedKeysyms = map[string]uint32{
	"Backspace": 0xff08,
	"Tab":       0xff09,
	"Enter":     0xff0d,
	"Return":    0xff0d,
	"Escape":    0xff1b,
	"Delete":    0xffff,
	"ArrowLeft": 0xff51,
	"Left":      0xff51,
	"ArrowUp":   0xff52,
	"Up":        0xff52,
	"ArrowRight": 0xff53,
	"Right":      0xff53,
	"ArrowDown":  0xff54,
	"Down":       0xff54,
	" ":          0x20,
	"Space":      0x20,
}

// KeysymForKey maps a key identifier to its X11 keysym. Named navigation
// and editing keys use the table above; a single printable rune maps to
// its own Unicode code point, which is only correct within Basic Latin —
// full X11 keysym coverage for other blocks is not implemented. Anything
// else, including empty strings and multi-rune identifiers with no table
// entry (e.g. "F1", "Control", "Dead"), maps to 0 and must be discarded by
// the caller before emission.
func KeysymForKey(key string) uint32 {
	if sym, ok := namedKeysyms[key]; ok {
		return sym
	}
	r, size := utf8.DecodeRuneInString(key)
	if r == utf8.RuneError || size != len(key) {
		return 0
	}
	return uint32(r)
}
