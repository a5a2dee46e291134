package badge

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Mode selects what signal a rule reacts to.
type Mode string

// Rule modes.
const (
	ModeNumber    Mode = "number"
	ModeLapsed    Mode = "lapsed"
	ModeNoNumbers Mode = "no_numbers"
)

var cent = decimal.New(1, -2)

// Rule configures one badge. Number rules fire when the premium is inside
// [Floor, Ceil]; a missing Ceil is inferred from the next higher floor.
// Lapsed and no_numbers rules fire on their signal, optionally narrowed to
// a premium range by Floor/Ceil.
type Rule struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Mode    Mode     `yaml:"mode" json:"mode"`
	Floor   *float64 `yaml:"floor,omitempty" json:"floor,omitempty"`
	Ceil    *float64 `yaml:"ceil,omitempty" json:"ceil,omitempty"`
}

// Rules is an operator-supplied badge table.
type Rules map[Badge]Rule

// Step is one resolved evaluation step.
type Step struct {
	Badge Badge
	Mode  Mode
	Floor *decimal.Decimal
	Ceil  *decimal.Decimal
}

func (s Step) String() string {
	lo, hi := "-inf", "+inf"
	if s.Floor != nil {
		lo = s.Floor.StringFixed(2)
	}
	if s.Ceil != nil {
		hi = s.Ceil.StringFixed(2)
	}
	if s.Mode != ModeNumber && s.Floor == nil && s.Ceil == nil {
		return fmt.Sprintf("%s -> %s", s.Mode, s.Badge)
	}
	return fmt.Sprintf("%s [%s, %s] -> %s", s.Mode, lo, hi, s.Badge)
}

func (s Step) inRange(p decimal.Decimal) bool {
	if s.Floor != nil && p.LessThan(*s.Floor) {
		return false
	}
	if s.Ceil != nil && p.GreaterThan(*s.Ceil) {
		return false
	}
	return true
}

// LoadRules reads a badge table from a YAML file with a top-level
// "badges" key.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "badge: read rules %s", path)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML badge table.
func ParseRules(data []byte) (Rules, error) {
	var wrapper struct {
		Badges Rules `yaml:"badges"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "badge: parse rules")
	}
	if err := wrapper.Badges.Validate(); err != nil {
		return nil, err
	}
	return wrapper.Badges, nil
}

// Validate checks that the table names known badges and modes and that
// every range is well formed.
func (r Rules) Validate() error {
	var errs []string
	enabled := 0
	for b, rule := range r {
		if !b.Valid() {
			errs = append(errs, fmt.Sprintf("unknown badge %q", b))
			continue
		}
		switch rule.Mode {
		case ModeNumber, ModeLapsed, ModeNoNumbers:
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown mode %q", b, rule.Mode))
			continue
		}
		if !rule.Enabled {
			continue
		}
		enabled++
		if rule.Mode == ModeNumber && rule.Floor == nil {
			errs = append(errs, fmt.Sprintf("%s: number rule needs a floor", b))
		}
		if rule.Floor != nil && *rule.Floor < 0 {
			errs = append(errs, fmt.Sprintf("%s: floor must be >= 0", b))
		}
		if rule.Floor != nil && rule.Ceil != nil && *rule.Ceil < *rule.Floor {
			errs = append(errs, fmt.Sprintf("%s: ceil must be >= floor", b))
		}
	}
	if len(r) > 0 && enabled == 0 {
		errs = append(errs, "no badge is enabled")
	}
	if len(r) == 0 {
		errs = append(errs, "empty rule table")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("badge: invalid rules: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Steps resolves the table into its evaluation order: lapsed rules, then
// no_numbers rules, both in badge priority order, then number rules by
// ascending floor. White is the fallback after the last step.
func (r Rules) Steps() []Step {
	var lapsed, noNumbers, number []Step
	for _, b := range Order {
		rule, ok := r[b]
		if !ok || !rule.Enabled {
			continue
		}
		s := Step{Badge: b, Mode: rule.Mode, Floor: toDecimal(rule.Floor), Ceil: toDecimal(rule.Ceil)}
		switch rule.Mode {
		case ModeLapsed:
			lapsed = append(lapsed, s)
		case ModeNoNumbers:
			noNumbers = append(noNumbers, s)
		case ModeNumber:
			number = append(number, s)
		}
	}

	sort.SliceStable(number, func(i, j int) bool {
		return number[i].Floor.LessThan(*number[j].Floor)
	})
	for i := range number {
		if number[i].Ceil != nil {
			continue
		}
		for _, next := range number[i+1:] {
			if next.Floor.GreaterThan(*number[i].Floor) {
				c := next.Floor.Sub(cent)
				number[i].Ceil = &c
				break
			}
		}
	}

	steps := make([]Step, 0, len(lapsed)+len(noNumbers)+len(number))
	steps = append(steps, lapsed...)
	steps = append(steps, noNumbers...)
	return append(steps, number...)
}

// evaluate expects a premium already rounded to cents.
func (r Rules) evaluate(p decimal.Decimal, hasValidNumbers, allPoliciesLapsed bool) Badge {
	for _, s := range r.Steps() {
		switch s.Mode {
		case ModeLapsed:
			if !allPoliciesLapsed {
				continue
			}
		case ModeNoNumbers:
			if hasValidNumbers {
				continue
			}
		}
		if s.inRange(p) {
			return s.Badge
		}
	}
	return White
}

// DefaultEquivalentRules returns a table that classifies like Default for
// every consistent input: an all-lapsed lead carries no active premium.
func DefaultEquivalentRules() Rules {
	f := func(v float64) *float64 { return &v }
	return Rules{
		Star:   {Enabled: true, Mode: ModeNumber, Floor: f(100)},
		White:  {Enabled: true, Mode: ModeNumber, Floor: f(50)},
		Purple: {Enabled: true, Mode: ModeNumber, Floor: f(0.01), Ceil: f(49.99)},
		Red:    {Enabled: true, Mode: ModeNumber, Floor: f(0), Ceil: f(0)},
		Orange: {Enabled: true, Mode: ModeNoNumbers, Floor: f(50), Ceil: f(99.99)},
	}
}

func toDecimal(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v).Round(2)
	return &d
}
