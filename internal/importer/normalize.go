package importer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

// NormalizeText trims the value and collapses internal whitespace runs into a single space.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// NormalizeCompact trims the value and drops every whitespace rune (registration numbers).
func NormalizeCompact(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), "")
}

// StripQuotes removes one leading and one trailing double quote.
func StripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}

// NormalizeIdentifier returns the PAN in its stored form.
func NormalizeIdentifier(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidIdentifier reports whether s is a well formed, already normalised PAN.
func ValidIdentifier(s string) bool {
	return panPattern.MatchString(s)
}
