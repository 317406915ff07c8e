// Package odds converts prices between American and decimal formats and
// derives implied probabilities from them.
//
// All probabilities in this module are on the 0-1 scale. Percentages only
// appear at the edges (display, parlay.CombinePercentages).
package odds

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidOdds is returned when a price is outside its format's domain:
// zero or |american| < 100, decimal <= 1, or a non-finite value.
var ErrInvalidOdds = errors.New("invalid odds")

// Format identifies a price encoding.
type Format int

const (
	FormatAmerican Format = iota
	FormatDecimal
)

func (f Format) String() string {
	switch f {
	case FormatAmerican:
		return "american"
	case FormatDecimal:
		return "decimal"
	default:
		return "unknown"
	}
}

// ParseFormat parses "american" or "decimal".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "american", "us":
		return FormatAmerican, nil
	case "decimal", "eu":
		return FormatDecimal, nil
	default:
		return 0, fmt.Errorf("unknown odds format %q", s)
	}
}

// Odds is a price for a single outcome carried in both encodings.
type Odds struct {
	American float64 `json:"american"`
	Decimal  float64 `json:"decimal"`
}

// FromAmerican builds Odds from an American price.
func FromAmerican(american float64) (Odds, error) {
	dec, err := AmericanToDecimal(american)
	if err != nil {
		return Odds{}, err
	}
	return Odds{American: american, Decimal: dec}, nil
}

// FromDecimal builds Odds from a decimal price.
func FromDecimal(decimal float64) (Odds, error) {
	am, err := DecimalToAmerican(decimal)
	if err != nil {
		return Odds{}, err
	}
	return Odds{American: am, Decimal: decimal}, nil
}

// ImpliedProbability returns the probability encoded by the decimal price.
func (o Odds) ImpliedProbability() float64 {
	if o.Decimal <= 1 {
		return 0
	}
	return 1 / o.Decimal
}

// AmericanToDecimal converts American odds to decimal odds.
// +150 -> 2.50, -150 -> 1.667
func AmericanToDecimal(american float64) (float64, error) {
	if err := validateAmerican(american); err != nil {
		return 0, err
	}
	if american > 0 {
		return american/100 + 1, nil
	}
	return 100/math.Abs(american) + 1, nil
}

// DecimalToAmerican converts decimal odds to American odds.
// 2.50 -> +150, 1.667 -> -150
//
// The result is not rounded, so AmericanToDecimal(DecimalToAmerican(d))
// returns d within floating point error.
func DecimalToAmerican(decimal float64) (float64, error) {
	if err := ValidateDecimal(decimal); err != nil {
		return 0, err
	}
	if decimal >= 2 {
		return (decimal - 1) * 100, nil
	}
	return -100 / (decimal - 1), nil
}

// ImpliedProbability returns the win probability a price encodes, ignoring
// the bookmaker's margin. Larger payouts map to smaller probabilities.
func ImpliedProbability(value float64, format Format) (float64, error) {
	switch format {
	case FormatAmerican:
		if err := validateAmerican(value); err != nil {
			return 0, err
		}
		if value > 0 {
			return 100 / (value + 100), nil
		}
		return -value / (-value + 100), nil
	case FormatDecimal:
		if err := ValidateDecimal(value); err != nil {
			return 0, err
		}
		return 1 / value, nil
	default:
		return 0, fmt.Errorf("%w: unknown format %d", ErrInvalidOdds, format)
	}
}

// ValidateDecimal reports whether d is a usable decimal price.
func ValidateDecimal(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return fmt.Errorf("%w: decimal %v is not finite", ErrInvalidOdds, d)
	}
	if d <= 1 {
		return fmt.Errorf("%w: decimal %v must be > 1", ErrInvalidOdds, d)
	}
	return nil
}

func validateAmerican(a float64) error {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return fmt.Errorf("%w: american %v is not finite", ErrInvalidOdds, a)
	}
	if a == 0 {
		return fmt.Errorf("%w: american odds cannot be 0", ErrInvalidOdds)
	}
	if math.Abs(a) < 100 {
		return fmt.Errorf("%w: american %v has magnitude below 100", ErrInvalidOdds, a)
	}
	return nil
}
