package phone

import (
	"errors"
	"strings"
)

// CountryCode is the Kenyan dialing prefix used by the gateway.
const CountryCode = "254"

// msisdnLength is the length of a canonical number: country code + 9 digits.
const msisdnLength = 12

// ErrInvalidPhoneNumber is returned when a number cannot be normalized to a 12 digit MSISDN.
var ErrInvalidPhoneNumber = errors.New("invalid phone number format: use 0722000000 or 254722000000")

// Normalize converts a loosely formatted number (spaces, dashes, "+", leading zero)
// into the canonical international form, e.g. "0722 000 000" -> "254722000000".
// It does not validate the result; use Parse for that.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "0"):
		return CountryCode + digits[1:]
	case !strings.HasPrefix(digits, CountryCode):
		return CountryCode + digits
	default:
		return digits
	}
}

// Valid reports whether s is already a canonical 12 digit MSISDN.
func Valid(s string) bool {
	if len(s) != msisdnLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Parse normalizes raw and returns ErrInvalidPhoneNumber unless the result is a valid MSISDN.
func Parse(raw string) (string, error) {
	n := Normalize(raw)
	if !Valid(n) {
		return "", ErrInvalidPhoneNumber
	}
	return n, nil
}
