package badge

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDefault(t *testing.T) {
	tests := []struct {
		name    string
		premium string
		valid   bool
		lapsed  bool
		want    Badge
	}{
		{"star", "120.25", true, false, Star},
		{"star without numbers", "100", false, false, Star},
		{"zero and lapsed", "0", false, true, Red},
		{"zero with numbers", "0", true, false, Red},
		{"small premium", "30", true, false, Purple},
		{"mid premium", "70", true, false, White},
		// Purple is checked before the no-numbers rule.
		{"small premium no numbers", "40", false, false, Purple},
		{"mid premium no numbers", "70", false, false, Orange},
		{"mid premium lapsed", "70", true, true, Red},
		{"just under fifty", "49.99", true, false, Purple},
		{"fifty", "50", true, false, White},
		{"just under hundred", "99.99", true, false, White},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Default(d(tt.premium), tt.valid, tt.lapsed))
			assert.Equal(t, tt.want, Classify(d(tt.premium), tt.valid, tt.lapsed, nil))
		})
	}
}

func TestClassify_RoundsToCents(t *testing.T) {
	tests := []struct {
		premium string
		want    Badge
	}{
		{"0.004", Red},
		{"0.005", Purple},
		{"49.995", White},
		{"99.994", White},
		{"99.995", Star},
	}
	for _, tt := range tests {
		t.Run(tt.premium, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(d(tt.premium), true, false, nil))
			assert.Equal(t, tt.want, Classify(d(tt.premium), true, false, DefaultEquivalentRules()))
		})
	}
}

func TestClassify_InvalidRulesFallBack(t *testing.T) {
	bad := Rules{"gold": {Enabled: true, Mode: ModeNumber}}
	assert.Equal(t, Star, Classify(d("150"), true, false, bad))
	assert.Equal(t, Purple, Classify(d("30"), true, false, bad))
}

func TestClassify_Totality(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	tables := []Rules{nil, DefaultEquivalentRules(), {Red: {Enabled: true, Mode: ModeLapsed}}}
	for i := 0; i < 3000; i++ {
		p := decimal.NewFromInt(int64(r.IntN(50000))).Shift(-2)
		for _, tbl := range tables {
			got := Classify(p, r.IntN(2) == 0, r.IntN(2) == 0, tbl)
			assert.True(t, got.Valid())
		}
	}
}

func TestClassify_DefaultEquivalence(t *testing.T) {
	rules := DefaultEquivalentRules()
	r := rand.New(rand.NewPCG(9, 9))

	check := func(p decimal.Decimal, valid, lapsed bool) {
		assert.Equal(t,
			Classify(p, valid, lapsed, nil),
			Classify(p, valid, lapsed, rules),
			"premium=%s valid=%v lapsed=%v", p, valid, lapsed)
	}

	edges := []string{
		"0", "0.01", "49.99", "50", "50.01", "99.99", "100", "100.01", "5000",
		"0.004", "0.005", "49.994", "49.995", "99.994", "99.995",
	}
	for _, e := range edges {
		for _, v := range []bool{true, false} {
			check(d(e), v, false)
		}
	}
	check(decimal.Zero, true, true)
	check(decimal.Zero, false, true)

	for i := 0; i < 5000; i++ {
		p := decimal.NewFromInt(int64(r.IntN(20000))).Shift(-2)
		lapsed := p.IsZero() && r.IntN(2) == 0
		check(p, r.IntN(2) == 0, lapsed)
	}
}

func TestBadgeValid(t *testing.T) {
	for _, b := range Order {
		assert.True(t, b.Valid())
	}
	assert.False(t, Badge("gold").Valid())
}
