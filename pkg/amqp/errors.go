package amqp

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the small set of driver APIs that can fail
// outright. Most protocol-level problems are not returned this way; they are
// reported on the Transport's ErrorCondition per spec.md §7, the same way
// the teacher favors a logged/recorded condition over a bubbled error for
// anything that happens mid-negotiation.
var (
	// ErrShortFrame is returned by the frame codec when a frame claims a
	// size larger than the bytes available.
	ErrShortFrame = errors.New("amqp: short frame")

	// ErrFrameTooSmall is the condition description used when a purported
	// frame's declared size is smaller than the frame header itself
	// (spec.md §4.6).
	ErrFrameTooSmall = errors.New("amqp: frame size smaller than header")
)

// ErrorCondition is the Go rendition of proton's pn_condition_t as surfaced
// on the Transport: a symbolic name plus a human description. The zero value
// is "unset".
type ErrorCondition struct {
	Name        string
	Description string
}

// IsSet reports whether the condition carries a name, mirroring
// pn_condition_is_set.
func (c ErrorCondition) IsSet() bool { return c.Name != "" }

func (c ErrorCondition) Error() string {
	if !c.IsSet() {
		return "<no condition>"
	}
	return fmt.Sprintf("%s: %s", c.Name, c.Description)
}

// Condition names used by the framing and dispatch error paths, per
// spec.md §7.
const (
	CondFramingError = "amqp:connection:framing-error"
	CondException    = "exception"
)

// quoteBytes renders up to 1024 bytes of b as a hex-quoted string, the Go
// equivalent of proton's pn_quote_data used when reporting a bad protocol
// header (spec.md §4.3).
func quoteBytes(b []byte) string {
	const limit = 1024
	if len(b) > limit {
		b = b[:limit]
	}
	out := make([]byte, 0, len(b)*4)
	for _, c := range b {
		switch {
		case c == '\\':
			out = append(out, '\\', '\\')
		case c >= 0x20 && c < 0x7f:
			out = append(out, c)
		default:
			out = append(out, []byte(fmt.Sprintf("\\x%02x", c))...)
		}
	}
	return string(out)
}
