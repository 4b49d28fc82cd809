// Package phone normalizes subscriber numbers to international format.
package phone

import "strings"

// DefaultCountryCode is the Kenyan dialing prefix.
const DefaultCountryCode = "254"

// Normalize converts a raw number to +<country><subscriber> form. Whitespace
// and hyphens are removed first. A leading 0 is replaced by the country code,
// a bare country-code number gets a plus, a plus-prefixed number passes
// through, and anything else is treated as local.
func Normalize(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	countryCode = strings.TrimPrefix(countryCode, "+")

	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, raw)

	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "+"):
		return s
	case strings.HasPrefix(s, "0"):
		return "+" + countryCode + s[1:]
	case strings.HasPrefix(s, countryCode):
		return "+" + s
	default:
		return "+" + countryCode + s
	}
}

// Mask returns the placeholder display name for a source created from a
// phone number: "USSD User" followed by the last four characters.
func Mask(phone string) string {
	if len(phone) > 4 {
		phone = phone[len(phone)-4:]
	}
	return "USSD User " + phone
}
