package session

import (
	"errors"
	"strings"
)

// ErrInvalidPhone is returned for numbers that are not Ukrainian mobile numbers.
var ErrInvalidPhone = errors.New("phone must be a Ukrainian number in the form +380XXXXXXXXX")

const ukrainePrefix = "380"

// NormalizePhone converts user input such as "067 123 45 67", "0671234567"
// or "+38 (067) 123-45-67" into E.164 form "+380671234567".
func NormalizePhone(input string) (string, error) {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, ukrainePrefix):
	case len(digits) == 10 && digits[0] == '0':
		digits = "38" + digits
	case len(digits) == 9:
		digits = ukrainePrefix + digits
	default:
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}

// FormatPhone renders a phone number with Ukrainian grouping
// "+380 XX XXX XX XX". Input that cannot be normalized is returned as is.
func FormatPhone(input string) string {
	p, err := NormalizePhone(input)
	if err != nil {
		return input
	}
	d := p[4:] // nine subscriber digits
	return "+380 " + d[0:2] + " " + d[2:5] + " " + d[5:7] + " " + d[7:9]
}
