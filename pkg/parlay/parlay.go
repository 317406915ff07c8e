// Package parlay combines per-leg prices and probabilities into the figures
// for a single multi-leg bet.
package parlay

import (
	"math"
	"sort"

	"github.com/phenomenon0/propslip/pkg/odds"
)

// Leg is one selected proposition on a bet slip.
type Leg struct {
	ID          string    `json:"id"`
	Odds        odds.Odds `json:"odds"`
	Probability float64   `json:"probability"` // 0-1
	Group       string    `json:"group,omitempty"`
}

// Combine returns the product of the decimal prices.
//
// An empty slice returns 1 (no legs, neutral multiplier). Every element is
// used exactly once; a non-finite price or one at or below 1 turns the result
// into NaN instead of being skipped.
func Combine(decimalOdds []float64) float64 {
	combined := 1.0
	for _, d := range decimalOdds {
		if odds.ValidateDecimal(d) != nil {
			combined = math.NaN()
			continue
		}
		combined *= d
	}
	return combined
}

// CombineLegs combines the decimal prices of legs.
func CombineLegs(legs []Leg) float64 {
	prices := make([]float64, len(legs))
	for i, l := range legs {
		prices[i] = l.Odds.Decimal
	}
	return Combine(prices)
}

// CombinePercentages multiplies independent leg win probabilities given as
// percentages (0-100) and returns the parlay probability as a percentage
// rounded to the nearest integer. No legs returns 0.
//
// Example: [80, 50] -> 0.8 * 0.5 = 0.4 -> 40
func CombinePercentages(percentages []float64) float64 {
	if len(percentages) == 0 {
		return 0
	}
	p := 1.0
	for _, pct := range percentages {
		p *= pct / 100
	}
	return math.Round(p * 100)
}

// CombineProbabilities multiplies independent leg probabilities on the 0-1
// scale. ok is false when there are no legs, since the parlay probability is
// undefined in that case.
func CombineProbabilities(probs []float64) (p float64, ok bool) {
	if len(probs) == 0 {
		return 0, false
	}
	p = 1.0
	for _, q := range probs {
		p *= q
	}
	return p, true
}

// LegProbabilities extracts the 0-1 probability estimates of legs.
func LegProbabilities(legs []Leg) []float64 {
	out := make([]float64, len(legs))
	for i, l := range legs {
		out[i] = l.Probability
	}
	return out
}

// CorrelatedGroups returns the normalized groups shared by more than one
// leg, sorted. Legs without a group are ignored.
func CorrelatedGroups(legs []Leg) []string {
	counts := make(map[string]int)
	for _, l := range legs {
		g := odds.NormalizeGroup(l.Group)
		if g == "" {
			continue
		}
		counts[g]++
	}

	var out []string
	for g, n := range counts {
		if n > 1 {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}
