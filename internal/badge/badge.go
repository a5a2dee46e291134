// Package badge maps a lead's premium and number signals to a badge.
package badge

import "github.com/shopspring/decimal"

// Badge is the lead classification shown in the report.
type Badge string

// Badges in their fixed priority order.
const (
	Star   Badge = "star"
	White  Badge = "white"
	Purple Badge = "purple"
	Orange Badge = "orange"
	Red    Badge = "red"
)

// Order is the fixed badge priority used when several rules of the same
// kind could fire.
var Order = []Badge{Star, White, Purple, Orange, Red}

// Valid reports whether b is a known badge.
func (b Badge) Valid() bool {
	for _, o := range Order {
		if o == b {
			return true
		}
	}
	return false
}

var (
	fifty   = decimal.NewFromInt(50)
	hundred = decimal.NewFromInt(100)
)

// Classify returns the badge for a lead. The premium is rounded to cents
// first. A nil or invalid rule table falls back to the fixed thresholds;
// every input yields a badge.
func Classify(premium decimal.Decimal, hasValidNumbers, allPoliciesLapsed bool, rules Rules) Badge {
	premium = premium.Round(2)
	if rules == nil || rules.Validate() != nil {
		return Default(premium, hasValidNumbers, allPoliciesLapsed)
	}
	return rules.evaluate(premium, hasValidNumbers, allPoliciesLapsed)
}

// Default is the fixed-threshold classification. First match wins.
func Default(premium decimal.Decimal, hasValidNumbers, allPoliciesLapsed bool) Badge {
	switch {
	case premium.GreaterThanOrEqual(hundred):
		return Star
	case premium.IsPositive() && premium.LessThan(fifty):
		return Purple
	case premium.IsPositive() && !hasValidNumbers:
		return Orange
	case premium.IsZero() || allPoliciesLapsed:
		return Red
	default:
		return White
	}
}
