// Package lead assembles the per-lead record handed to reporting.
package lead

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/lead-intake/internal/badge"
	"github.com/sells-group/lead-intake/internal/phone"
	"github.com/sells-group/lead-intake/internal/policy"
)

// Input is everything harvested for one lead.
type Input struct {
	Name         string
	Primary      []phone.Token
	Extra        []phone.Token
	PolicyBlocks []string
}

// Options carries the per-run knobs. Rules may be nil.
type Options struct {
	Today         time.Time
	MaxBlockChars int
	Rules         badge.Rules
}

// Summary is the finished, read-only record for one lead.
type Summary struct {
	Name                string          `json:"name"`
	MonthlyPremiumTotal decimal.Decimal `json:"monthly_premium_total"`
	AllPoliciesLapsed   bool            `json:"all_policies_lapsed"`
	HasValidNumbers     bool            `json:"has_valid_numbers"`
	Badge               badge.Badge     `json:"badge"`
	Phones              phone.Set       `json:"phones"`
	PolicyCount         int             `json:"policy_count"`
	ActivePolicyCount   int             `json:"active_policy_count"`
}

// Summarize runs the collector, the premium aggregator and the classifier
// over one lead.
func Summarize(in Input, opts Options) Summary {
	set := phone.CollectTokens(in.Primary, in.Extra)
	agg := policy.Aggregate(in.PolicyBlocks, policy.Options{
		Today:         opts.Today,
		MaxBlockChars: opts.MaxBlockChars,
	})
	hasValid := set.HasValid()

	return Summary{
		Name:                NormalizeName(in.Name),
		MonthlyPremiumTotal: agg.MonthlyPremiumTotal,
		AllPoliciesLapsed:   agg.AllPoliciesLapsed,
		HasValidNumbers:     hasValid,
		Badge:               badge.Classify(agg.MonthlyPremiumTotal, hasValid, agg.AllPoliciesLapsed, opts.Rules),
		Phones:              set,
		PolicyCount:         agg.BlockCount,
		ActivePolicyCount:   agg.ActiveCount,
	}
}
