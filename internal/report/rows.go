// Package report flattens lead summaries into spreadsheet rows.
package report

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/lead-intake/internal/badge"
	"github.com/sells-group/lead-intake/internal/lead"
	"github.com/sells-group/lead-intake/internal/phone"
)

var glyphs = map[badge.Badge]string{
	badge.Star:   "⭐",
	badge.White:  "⚪",
	badge.Purple: "🟣",
	badge.Orange: "🟠",
	badge.Red:    "🔴",
}

// Glyph is the display form of a badge. Unknown badges render empty.
func Glyph(b badge.Badge) string {
	return glyphs[b]
}

// SummaryRow is one line of the Summary sheet.
type SummaryRow struct {
	Badge        string          `json:"badge"`
	Lead         string          `json:"lead"`
	TotalPremium decimal.Decimal `json:"total_premium"`
	ListedCount  int             `json:"listed_count"`
	PolicyCount  int             `json:"policy_count"`
}

// NumberRow is a valid number in the AllNumbers sheet.
type NumberRow struct {
	Lead  string `json:"lead"`
	Phone string `json:"phone"`
}

// FlaggedRow is a number that carries flags or failed validation.
type FlaggedRow struct {
	Lead  string `json:"lead"`
	Phone string `json:"phone"`
	Flag  string `json:"flag"`
}

// Rows is the full set of rows derived from a job.
type Rows struct {
	Summary []SummaryRow `json:"summary"`
	Valid   []NumberRow  `json:"valid"`
	Flagged []FlaggedRow `json:"flagged"`
}

// Build derives report rows from summaries, keeping their order. A number
// can appear in both Valid and Flagged, e.g. a toll-free line.
func Build(summaries []lead.Summary) Rows {
	var r Rows
	for _, s := range summaries {
		r.Summary = append(r.Summary, SummaryRow{
			Badge:        Glyph(s.Badge),
			Lead:         s.Name,
			TotalPremium: s.MonthlyPremiumTotal.Round(2),
			ListedCount:  len(s.Phones.Primary),
			PolicyCount:  len(s.Phones.Extra),
		})
		for _, c := range s.Phones.All() {
			if c.Valid {
				r.Valid = append(r.Valid, NumberRow{Lead: s.Name, Phone: display(c)})
			}
			if len(c.Flags) > 0 || !c.Valid {
				r.Flagged = append(r.Flagged, FlaggedRow{Lead: s.Name, Phone: display(c), Flag: flagText(c)})
			}
		}
	}
	return r
}

func display(c phone.Candidate) string {
	if c.Display == "" {
		return c.Original
	}
	if c.Extension != "" {
		return c.Display + " x" + c.Extension
	}
	return c.Display
}

func flagText(c phone.Candidate) string {
	if len(c.Flags) == 0 {
		return "Invalid"
	}
	return strings.Join(c.Flags, ", ")
}

// Totals returns the lead count and summed monthly premium.
func Totals(summaries []lead.Summary) (int, decimal.Decimal) {
	total := decimal.Zero
	for _, s := range summaries {
		total = total.Add(s.MonthlyPremiumTotal)
	}
	return len(summaries), total.Round(2)
}
