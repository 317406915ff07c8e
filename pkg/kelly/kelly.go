// Package kelly sizes stakes with the Kelly criterion.
package kelly

import (
	"errors"
	"fmt"
	"math"

	"github.com/phenomenon0/propslip/pkg/odds"
)

// ErrInvalidProbability is returned for a win probability outside [0, 1].
var ErrInvalidProbability = errors.New("invalid probability")

// Fraction returns the full Kelly fraction of bankroll to stake.
//
//	b  = decimalOdds - 1   (net odds)
//	f* = (b*p - (1-p)) / b
//
// A negative f* (no edge) is returned as 0: never recommend a negative stake.
func Fraction(probability, decimalOdds float64) (float64, error) {
	if err := odds.ValidateDecimal(decimalOdds); err != nil {
		return 0, err
	}
	if err := validateProbability(probability); err != nil {
		return 0, err
	}

	b := decimalOdds - 1
	f := (b*probability - (1 - probability)) / b
	if f < 0 {
		return 0, nil
	}
	return f, nil
}

// Config configures a Sizer.
type Config struct {
	FractionMultiplier float64 // Default: 0.5 (half Kelly)
	CapPercent         float64 // Default: 0.10 (10% of bankroll)
}

// DefaultConfig returns half Kelly capped at 10% of bankroll.
func DefaultConfig() Config {
	return Config{
		FractionMultiplier: 0.5,
		CapPercent:         0.10,
	}
}

// Sizing is the breakdown behind a recommended stake.
type Sizing struct {
	FullKelly float64 `json:"full_kelly"` // f*
	Fraction  float64 `json:"fraction"`   // f* * multiplier, after the cap
	Stake     float64 `json:"stake"`      // Fraction * bankroll
	Capped    bool    `json:"capped"`
}

// Sizer turns a probability estimate and a price into a stake.
type Sizer struct {
	multiplier float64
	capPct     float64
}

// NewSizer creates a sizer. Zero values in cfg fall back to DefaultConfig.
func NewSizer(cfg Config) *Sizer {
	defaults := DefaultConfig()
	if cfg.FractionMultiplier <= 0 {
		cfg.FractionMultiplier = defaults.FractionMultiplier
	}
	if cfg.CapPercent <= 0 {
		cfg.CapPercent = defaults.CapPercent
	}
	return &Sizer{
		multiplier: cfg.FractionMultiplier,
		capPct:     cfg.CapPercent,
	}
}

// Config returns the effective configuration.
func (s *Sizer) Config() Config {
	return Config{FractionMultiplier: s.multiplier, CapPercent: s.capPct}
}

// Size computes the full breakdown for a single bet.
func (s *Sizer) Size(probability, decimalOdds, bankroll float64) (Sizing, error) {
	full, err := Fraction(probability, decimalOdds)
	if err != nil {
		return Sizing{}, err
	}

	result := Sizing{FullKelly: full}
	if bankroll <= 0 || full == 0 {
		return result, nil
	}

	frac := full * s.multiplier
	if frac > s.capPct {
		frac = s.capPct
		result.Capped = true
	}

	result.Fraction = frac
	result.Stake = frac * bankroll
	return result, nil
}

// RecommendedStake returns the fractional Kelly stake capped at
// CapPercent of bankroll. It is 0 when there is no edge or no bankroll.
func (s *Sizer) RecommendedStake(probability, decimalOdds, bankroll float64) (float64, error) {
	sizing, err := s.Size(probability, decimalOdds, bankroll)
	if err != nil {
		return 0, err
	}
	return sizing.Stake, nil
}

// RecommendedStake is the one-shot form of Sizer.RecommendedStake.
// fractionMultiplier and capPercent are used as given.
func RecommendedStake(probability, decimalOdds, bankroll, fractionMultiplier, capPercent float64) (float64, error) {
	full, err := Fraction(probability, decimalOdds)
	if err != nil {
		return 0, err
	}
	if bankroll <= 0 || full == 0 {
		return 0, nil
	}
	stake := full * fractionMultiplier * bankroll
	return math.Max(0, math.Min(stake, capPercent*bankroll)), nil
}

func validateProbability(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: %v is outside [0, 1]", ErrInvalidProbability, p)
	}
	return nil
}
