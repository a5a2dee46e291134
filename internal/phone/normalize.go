// Package phone normalizes, validates and de-duplicates phone numbers
// harvested from lead pages. Everything here is pure and safe to call
// from any number of goroutines.
package phone

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Flag values attached to candidates.
const (
	FlagNeedsAreaCode = "Needs Area Code"
	FlagFax           = "Fax"
	FlagInternational = "International"
	FlagHasExtension  = "Has Extension"
	FlagTollFree      = "Toll-free kept"
	FlagNANPInvalid   = "NANP invalid"
)

var (
	tollFreeNPA = map[string]bool{
		"800": true, "888": true, "877": true, "866": true,
		"855": true, "844": true, "833": true, "822": true,
	}
	serviceNPA = map[string]bool{
		"211": true, "311": true, "411": true, "511": true,
		"611": true, "711": true, "811": true, "911": true,
	}

	dncRe    = regexp.MustCompile(`(?i)\b(?:do[\s-]?not[\s-]?call|dnc)\b`)
	faxRe    = regexp.MustCompile(`(?i)fax`)
	nonDigit = regexp.MustCompile(`[^\d+]`)

	// The marker must follow a digit, whitespace or punctuation so that
	// words such as "fax" do not read as an extension.
	extRe = regexp.MustCompile(`(?i)(?:^|[\d\s)\-.])((?:ext\.?|x|#)\s*(\d{2,6}))\b`)
)

// Candidate is one normalized phone token.
type Candidate struct {
	Original      string   `json:"original"`
	Digits        string   `json:"digits"`
	Extension     string   `json:"extension,omitempty"`
	Display       string   `json:"display,omitempty"`
	Valid         bool     `json:"valid"`
	TollFree      bool     `json:"toll_free"`
	International bool     `json:"international"`
	Flags         []string `json:"flags,omitempty"`
}

// Key identifies a candidate for de-duplication.
type Key struct {
	Digits    string
	Extension string
}

// Key returns the canonical (digits, extension) pair.
func (c Candidate) Key() Key {
	return Key{Digits: c.Digits, Extension: c.Extension}
}

// HasFlag reports whether the candidate carries flag f.
func (c Candidate) HasFlag(f string) bool {
	for _, v := range c.Flags {
		if v == f {
			return true
		}
	}
	return false
}

// IsValid10 reports whether the candidate is a valid 10-digit NANP number.
func (c Candidate) IsValid10() bool {
	return c.Valid && len(c.Digits) == 10
}

// Normalize turns a raw phone-like token into a Candidate. label is the
// optional context the token was found under ("Fax", "Sec Ph", ...).
// The second return is false when the token is rejected: do-not-call
// markers, or a digit count that is neither 7, 10 nor a plausible
// international length.
func Normalize(raw, label string) (Candidate, bool) {
	if dncRe.MatchString(raw) {
		return Candidate{}, false
	}

	work := raw
	var ext string
	if m := extRe.FindStringSubmatchIndex(work); m != nil {
		ext = work[m[4]:m[5]]
		work = work[:m[2]] + work[m[3]:]
	}

	s := nonDigit.ReplaceAllString(work, "")

	var international bool
	switch {
	case strings.HasPrefix(s, "+1"):
		s = s[2:]
	case strings.HasPrefix(s, "+"):
		international = true
	}
	digits := strings.ReplaceAll(s, "+", "")
	if !international && len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}

	c := Candidate{Original: raw, Extension: ext}

	switch {
	case international:
		if len(digits) < 8 || len(digits) > 15 {
			return Candidate{}, false
		}
		c.Digits = "+" + digits
		c.International = true
		c.Display = formatInternational(c.Digits)
	case len(digits) == 10:
		c.Digits = digits
		c.Valid = IsValidNANP(digits)
		if c.Valid {
			c.Display = Format10(digits)
		} else {
			c.Flags = append(c.Flags, FlagNANPInvalid)
		}
		c.TollFree = tollFreeNPA[digits[:3]]
	case len(digits) == 7:
		c.Digits = digits
		c.Display = digits[:3] + "-" + digits[3:]
		c.Flags = append(c.Flags, FlagNeedsAreaCode)
	default:
		return Candidate{}, false
	}

	if label != "" && faxRe.MatchString(label) {
		c.Flags = append(c.Flags, FlagFax)
	}
	if c.International {
		c.Flags = append(c.Flags, FlagInternational)
	}
	if c.Extension != "" {
		c.Flags = append(c.Flags, FlagHasExtension)
	}
	if c.TollFree {
		c.Flags = append(c.Flags, FlagTollFree)
	}

	return c, true
}

// IsValidNANP checks a 10-digit NPA-NXX-LINE string against the numbering
// plan rules used for lead numbers.
func IsValidNANP(d string) bool {
	if len(d) != 10 {
		return false
	}
	for i := 0; i < 10; i++ {
		if d[i] < '0' || d[i] > '9' {
			return false
		}
	}
	if strings.Count(d, d[:1]) == 10 {
		return false
	}
	npa, nxx, line := d[:3], d[3:6], d[6:]
	if npa[0] == '0' || npa[0] == '1' || nxx[0] == '0' || nxx[0] == '1' {
		return false
	}
	if npa == "555" && strings.HasPrefix(line, "01") {
		return false
	}
	return !serviceNPA[npa]
}

// Format10 renders ten digits as (NNN) NNN-NNNN.
func Format10(d string) string {
	if len(d) != 10 {
		return d
	}
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
}

// formatInternational returns the international rendering of an E.164-ish
// digit string, or "" when the number does not parse as a valid number.
func formatInternational(e164 string) string {
	num, err := phonenumbers.Parse(e164, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}
