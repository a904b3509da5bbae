package services

import (
	"regexp"
	"strings"
	"unicode"
)

// postcodeRegexp loosely matches a UK postcode once spaces are removed.
var postcodeRegexp = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?[0-9][A-Z]{2}$`)

// NormalisePostcode upper-cases a postcode and rewrites its spacing to the
// canonical "outward inward" form. Input that does not look like a postcode
// is returned trimmed with internal whitespace collapsed.
func NormalisePostcode(raw string) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)

	if !postcodeRegexp.MatchString(compact) {
		return strings.Join(strings.Fields(raw), " ")
	}
	return compact[:len(compact)-3] + " " + compact[len(compact)-3:]
}

// LooksLikePostcode reports whether raw has the shape of a UK postcode.
func LooksLikePostcode(raw string) bool {
	return postcodeRegexp.MatchString(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", ""))
}
