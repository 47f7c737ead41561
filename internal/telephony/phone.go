package telephony

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("telephony: invalid phone number")

// NormalizePhone converts raw user input into E.164.
// defaultCountryCode (digits only, e.g. "1" or "44") is prepended to
// national numbers that arrive without one.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidPhone
	}

	plus := strings.HasPrefix(s, "+")
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	// "00" international prefix is equivalent to "+".
	if !plus && strings.HasPrefix(d, "00") {
		plus = true
		d = strings.TrimPrefix(d, "00")
	}

	if plus {
		if len(d) < 8 || len(d) > 15 {
			return "", ErrInvalidPhone
		}
		return "+" + d, nil
	}

	// National number: 10 digits is the common case; leading 0 is a trunk
	// prefix in most national plans and gets dropped.
	d = strings.TrimPrefix(d, "0")
	if len(d) < 7 || len(d) > 14 {
		return "", ErrInvalidPhone
	}
	cc := strings.TrimPrefix(defaultCountryCode, "+")
	if cc == "" {
		cc = "1"
	}
	return "+" + cc + d, nil
}
