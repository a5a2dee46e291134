// Package policy reads the free-text policy sections of a lead's detail
// page and rolls up the monthly premium of the policies still in force.
package policy

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DefaultMaxBlockChars bounds how much of each policy section is read.
const DefaultMaxBlockChars = 2500

// Mode is a policy billing mode.
type Mode string

// Billing modes.
const (
	ModeMonthly   Mode = "monthly"
	ModeQuarterly Mode = "quarterly"
	ModeAnnual    Mode = "annual"
	ModeUnknown   Mode = "unknown"
)

// GraceDays is how long after the paid-to date a policy in this mode still
// counts as active.
func (m Mode) GraceDays() int {
	switch m {
	case ModeAnnual:
		return 366
	case ModeQuarterly:
		return 92
	default:
		return 60
	}
}

var (
	lapsedPolicyRe = regexp.MustCompile(`(?i)\bLAPSED\s+POLICY\b`)
	lapsedLeadRe   = regexp.MustCompile(`(?i)^\s*Lapsed\b`)
	lapsedStatRe   = regexp.MustCompile(`(?i)\bStat:\s*99\b`)

	specialRe = regexp.MustCompile(`(?i)\bSpecial:?\s+(\$?\s*\d[\d,]*(?:\.\d{1,2})?)`)
	modeRe    = regexp.MustCompile(`(?i)\bMode:?\s+([A-Za-z-]+)`)
	dueRe     = regexp.MustCompile(`(?i)\bDue\s*(?:Date|Day):?\s+(\d{1,2})\b`)
	paidToRe  = regexp.MustCompile(`(?i)\bPolicy\s+Paid\s+To:?\s+(\d{1,2}/\d{1,2}/\d{2,4}|\d{4}-\d{1,2}-\d{1,2})\b`)
)

// Block is one parsed policy section.
type Block struct {
	SpecialMonthly decimal.Decimal `json:"special_monthly"`
	Mode           Mode            `json:"mode"`
	DueDay         int             `json:"due_day,omitempty"` // 0 when absent
	PaidTo         *time.Time      `json:"paid_to,omitempty"`
	LapsedByText   bool            `json:"lapsed_by_text"`
	Active         bool            `json:"active"`
}

// Options controls aggregation. A zero Today means the current UTC date.
type Options struct {
	Today         time.Time
	MaxBlockChars int
}

// Result is the premium rollup for one lead.
type Result struct {
	MonthlyPremiumTotal decimal.Decimal `json:"monthly_premium_total"`
	AllPoliciesLapsed   bool            `json:"all_policies_lapsed"`
	BlockCount          int             `json:"block_count"`
	ActiveCount         int             `json:"active_count"`
	Blocks              []Block         `json:"blocks,omitempty"`
}

// Aggregate parses every block and sums the special monthly amount of the
// active ones. No policies at all is not "all lapsed".
func Aggregate(blocks []string, opts Options) Result {
	today := dateOf(opts.Today)
	if opts.Today.IsZero() {
		today = dateOf(time.Now().UTC())
	}
	limit := opts.MaxBlockChars
	if limit <= 0 {
		limit = DefaultMaxBlockChars
	}

	res := Result{MonthlyPremiumTotal: decimal.Zero}
	for _, text := range blocks {
		b := ParseBlock(truncate(text, limit), today)
		res.Blocks = append(res.Blocks, b)
		res.BlockCount++
		if !b.Active {
			continue
		}
		res.ActiveCount++
		if b.SpecialMonthly.IsPositive() {
			res.MonthlyPremiumTotal = res.MonthlyPremiumTotal.Add(b.SpecialMonthly)
		}
	}
	res.MonthlyPremiumTotal = res.MonthlyPremiumTotal.Round(2)
	res.AllPoliciesLapsed = res.BlockCount > 0 && res.ActiveCount == 0
	return res
}

// ParseBlock extracts the fields of one policy section and decides whether
// it is active as of today. Missing or unparsable fields are left at their
// zero values and never make a block inactive on their own.
func ParseBlock(text string, today time.Time) Block {
	today = dateOf(today)
	b := Block{
		SpecialMonthly: parseSpecial(text),
		Mode:           parseMode(text),
		DueDay:         parseDueDay(text, today),
		PaidTo:         parsePaidTo(text),
		LapsedByText:   IsLapsedText(text),
	}

	b.Active = !b.LapsedByText
	if b.Active && b.PaidTo != nil {
		elapsed := int(today.Sub(*b.PaidTo).Hours() / 24)
		b.Active = elapsed <= b.Mode.GraceDays()
	}
	return b
}

// IsLapsedText reports whether the block carries an explicit lapsed marker.
func IsLapsedText(text string) bool {
	return lapsedPolicyRe.MatchString(text) ||
		lapsedLeadRe.MatchString(text) ||
		lapsedStatRe.MatchString(text)
}

func parseSpecial(text string) decimal.Decimal {
	m := specialRe.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero
	}
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(m[1])
	d, err := decimal.NewFromString(clean)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func parseMode(text string) Mode {
	m := modeRe.FindStringSubmatch(text)
	if m == nil {
		return ModeUnknown
	}
	switch strings.ToLower(m[1]) {
	case "monthly", "month", "mo":
		return ModeMonthly
	case "quarterly", "qtrly", "quarter":
		return ModeQuarterly
	case "annual", "annually", "yearly", "year":
		return ModeAnnual
	default:
		return ModeUnknown
	}
}

// parseDueDay returns 1..31, mapping "00" to the last day of today's
// month, or 0 when absent.
func parseDueDay(text string, today time.Time) int {
	m := dueRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	if n == 0 {
		return lastDayOfMonth(today)
	}
	if n > 31 {
		return 0
	}
	return n
}

func parsePaidTo(text string) *time.Time {
	m := paidToRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	t, ok := ParseDate(m[1])
	if !ok {
		return nil
	}
	return &t
}

// ParseDate accepts M/D/YY, M/D/YYYY and YYYY-M-D. Two-digit years are in
// the 2000s. Dates that do not exist on the calendar are rejected.
func ParseDate(s string) (time.Time, bool) {
	var y, mo, d int
	var err error
	if strings.Contains(s, "-") {
		parts := strings.Split(s, "-")
		if len(parts) != 3 {
			return time.Time{}, false
		}
		y, mo, d, err = atoi3(parts[0], parts[1], parts[2])
	} else {
		parts := strings.Split(s, "/")
		if len(parts) != 3 {
			return time.Time{}, false
		}
		mo, d, y, err = atoi3(parts[0], parts[1], parts[2])
		if err == nil && y < 100 {
			y += 2000
		}
	}
	if err != nil || mo < 1 || mo > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != mo {
		return time.Time{}, false
	}
	return t, true
}

func atoi3(a, b, c string) (int, int, int, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, 0, err
	}
	z, err := strconv.Atoi(c)
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
