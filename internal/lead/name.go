package lead

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeName turns the CRM's "LAST, FIRST MIDDLE" header into
// "First Middle Last" and title-cases anything else.
func NormalizeName(raw string) string {
	n := strings.Join(strings.Fields(raw), " ")
	if n == "" {
		return ""
	}
	if last, rest, ok := strings.Cut(n, ","); ok {
		parts := strings.Fields(rest)
		parts = append(parts, strings.TrimSpace(last))
		n = strings.Join(parts, " ")
	}
	// Casers carry state, so each call gets its own.
	return strings.TrimSpace(cases.Title(language.AmericanEnglish).String(n))
}
