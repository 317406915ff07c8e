// Package arbitrage detects riskless two-way stake splits across prices for
// complementary outcomes.
package arbitrage

import (
	"github.com/phenomenon0/propslip/pkg/odds"
	"github.com/phenomenon0/propslip/pkg/payout"
)

// Result is a detected arbitrage. Split[0] goes on side A, Split[1] on side B,
// and both sides return the same amount.
type Result struct {
	Profit float64    `json:"profit"`
	Split  [2]float64 `json:"split"`
}

// Detect checks two decimal quotes for complementary outcomes.
//
// It returns nil when the implied probabilities sum to 1 or more. Otherwise
// totalStake is split in proportion to each side's implied probability so
// every outcome pays the same, and Profit is that payout minus totalStake.
func Detect(oddsA, oddsB, totalStake float64) (*Result, error) {
	if err := odds.ValidateDecimal(oddsA); err != nil {
		return nil, err
	}
	if err := odds.ValidateDecimal(oddsB); err != nil {
		return nil, err
	}
	if err := payout.ValidateStake(totalStake); err != nil {
		return nil, err
	}

	pA := 1 / oddsA
	pB := 1 / oddsB
	if pA+pB >= 1 {
		return nil, nil
	}

	stakeA := totalStake * pA / (pA + pB)
	stakeB := totalStake - stakeA
	profit := stakeA*oddsA - totalStake

	// A zero stake splits into nothing and earns nothing.
	if profit <= 0 {
		return nil, nil
	}

	return &Result{
		Profit: profit,
		Split:  [2]float64{stakeA, stakeB},
	}, nil
}

// Margin returns 1 - (pA + pB). Positive means an arbitrage exists.
func Margin(oddsA, oddsB float64) (float64, error) {
	if err := odds.ValidateDecimal(oddsA); err != nil {
		return 0, err
	}
	if err := odds.ValidateDecimal(oddsB); err != nil {
		return 0, err
	}
	return 1 - (1/oddsA + 1/oddsB), nil
}

// ReturnPercent is the guaranteed profit as a percentage of the total stake.
func (r *Result) ReturnPercent() float64 {
	total := r.Split[0] + r.Split[1]
	if total == 0 {
		return 0
	}
	return r.Profit / total * 100
}
