// Package phone normalizes channel identities so that every component keys
// conversation state the same way.
package phone

import (
	"regexp"
	"strings"
)

var digitsRe = regexp.MustCompile(`\d+`)

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
// Returns "" when no digits are present.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := Digits(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// Digits strips everything except 0-9 from the value.
func Digits(value string) string {
	if value == "" {
		return ""
	}
	parts := digitsRe.FindAllString(value, -1)
	return strings.Join(parts, "")
}
