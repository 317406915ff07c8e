// Package payout computes potential returns and expected value of a bet.
package payout

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/propslip/pkg/kelly"
	"github.com/phenomenon0/propslip/pkg/odds"
)

// ErrInvalidStake is returned for a negative or non-finite stake or bankroll.
var ErrInvalidStake = errors.New("invalid stake")

// PotentialPayout returns the total return of stake at combinedOdds,
// rounded to cents.
//
// Example: 10 @ 3.0 -> 30.00
func PotentialPayout(stake, combinedOdds float64) (float64, error) {
	if err := ValidateStake(stake); err != nil {
		return 0, err
	}
	if err := odds.ValidateDecimal(combinedOdds); err != nil {
		return 0, err
	}
	total := stake * combinedOdds
	if math.IsInf(total, 0) {
		return 0, fmt.Errorf("%w: %v at %v overflows", ErrInvalidStake, stake, combinedOdds)
	}
	return RoundCents(total), nil
}

// ExpectedValue returns the probability-weighted profit of a bet:
//
//	EV = stake * (p * decimalOdds - 1)
//
// Example: 10 @ 3.0 with p=0.5 -> 10 * (1.5 - 1) = 5.00
func ExpectedValue(stake, probability, decimalOdds float64) (float64, error) {
	if err := ValidateStake(stake); err != nil {
		return 0, err
	}
	if err := odds.ValidateDecimal(decimalOdds); err != nil {
		return 0, err
	}
	if math.IsNaN(probability) || probability < 0 || probability > 1 {
		return 0, fmt.Errorf("%w: %v is outside [0, 1]", kelly.ErrInvalidProbability, probability)
	}
	ev := stake * (probability*decimalOdds - 1)
	if math.IsInf(ev, 0) || math.IsNaN(ev) {
		return 0, fmt.Errorf("%w: %v at %v overflows", ErrInvalidStake, stake, decimalOdds)
	}
	return ev, nil
}

// Profitable reports whether a bet with this EV should be offered.
// Callers disable "place bet" when it returns false.
func Profitable(ev float64) bool {
	return ev > 0
}

// ValidateStake rejects negative and non-finite amounts.
func ValidateStake(stake float64) error {
	if math.IsNaN(stake) || math.IsInf(stake, 0) {
		return fmt.Errorf("%w: %v is not finite", ErrInvalidStake, stake)
	}
	if stake < 0 {
		return fmt.Errorf("%w: %v is negative", ErrInvalidStake, stake)
	}
	return nil
}

// RoundCents rounds an amount to 2 decimal places, half away from zero.
// Rounding goes through decimal so 1.005 becomes 1.01, not 1.00.
// Non-finite amounts are returned unchanged.
func RoundCents(amount float64) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return amount
	}
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}
