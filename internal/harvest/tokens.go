// Package harvest turns raw page snapshots of a lead into the phone tokens
// and policy sections the summarizer consumes.
package harvest

import (
	"regexp"
	"strings"

	"github.com/sells-group/lead-intake/internal/phone"
)

var (
	tokenRe = regexp.MustCompile(`(?i)(?:\+?1[\s-]?)?(?:\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}|\b\d{7}\b)(?:\s*(?:x|ext\.?|#)\s*\d{2,6})?`)
	telRe   = regexp.MustCompile(`(?i)\btel:\s*\+?[\d\-.() ]{7,}\d`)

	// A label followed by the run of phone-ish characters after it.
	labelSpanRe = regexp.MustCompile(`(?i)\b(Phone|Ph|Sec(?:ond(?:ary)?)?\s*Ph|Second(?:ary)?\s*Phone|Cell|Home|Work|Fax)\s*:?\s*([()\-\s.\d+xext#]{7,})`)

	stageRe = regexp.MustCompile(`(?i)\bStage:\s*`)
)

// ExtractTokens returns every phone-looking substring of text, tel: links
// included, de-duplicated in first-seen order.
func ExtractTokens(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	for _, m := range telRe.FindAllString(text, -1) {
		add(m)
	}
	// tel: links were taken whole; blank them so their digits are not
	// reported a second time.
	rest := telRe.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
	for _, m := range tokenRe.FindAllString(rest, -1) {
		add(m)
	}
	return out
}

// DiffTokens returns the tokens in after that were not in before, keeping
// the order of after. This is how numbers revealed by the click-to-call
// widget are told apart from the rest of the page.
func DiffTokens(before, after []string) []string {
	prior := make(map[string]bool, len(before))
	for _, t := range before {
		prior[strings.TrimSpace(t)] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, t := range after {
		t = strings.TrimSpace(t)
		if t == "" || prior[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// LabeledTokens finds "Ph:", "Sec Ph:", "Cell" and similar label spans in a
// policy section and returns the numbers inside each span tagged with its
// label.
func LabeledTokens(block string) []phone.Token {
	var out []phone.Token
	for _, m := range labelSpanRe.FindAllStringSubmatch(block, -1) {
		label := strings.Join(strings.Fields(m[1]), " ")
		for _, tok := range tokenRe.FindAllString(m[2], -1) {
			out = append(out, phone.Token{Text: strings.TrimSpace(tok), Label: label})
		}
	}
	return out
}

// SplitPolicyBlocks splits a lead's detail page text into policy sections,
// one per "Stage:" marker. Text before the first marker is page chrome and
// is dropped.
func SplitPolicyBlocks(pageText string) []string {
	parts := stageRe.Split(pageText, -1)
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Line types reported next to each harvested number.
const (
	LineClickToCall = "ClickToCall"
	LineSecondary   = "Secondary"
	LineCell        = "Cell"
	LineHome        = "Home"
	LineWork        = "Work"
	LineFax         = "Fax"
	LinePolicy      = "Policy"
)

// LineType maps a harvest label to the line type shown in reports. An empty
// label means the number came from the click-to-call widget.
func LineType(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.TrimSpace(l) == "":
		return LineClickToCall
	case strings.Contains(l, "sec"):
		return LineSecondary
	case strings.Contains(l, "cell"):
		return LineCell
	case strings.Contains(l, "home"):
		return LineHome
	case strings.Contains(l, "work"):
		return LineWork
	case strings.Contains(l, "fax"):
		return LineFax
	default:
		return LinePolicy
	}
}
