// Package slip prices a bet slip: combined odds, win probability, payout,
// Kelly stakes and expected value in one pass.
package slip

import (
	"errors"
	"fmt"
	"math"

	"github.com/phenomenon0/propslip/pkg/kelly"
	"github.com/phenomenon0/propslip/pkg/odds"
	"github.com/phenomenon0/propslip/pkg/parlay"
	"github.com/phenomenon0/propslip/pkg/payout"
	"github.com/phenomenon0/propslip/pkg/preview"
)

// ErrEmptySlip is returned when a request has no legs.
var ErrEmptySlip = errors.New("slip has no legs")

// Request is a bet slip to price.
type Request struct {
	Legs     []parlay.Leg `json:"legs"`
	Stake    float64      `json:"stake"`
	Bankroll float64      `json:"bankroll"`
}

// Quote is the priced slip. Money amounts are rounded to cents.
type Quote struct {
	Legs               int      `json:"legs"`
	CombinedOdds       float64  `json:"combined_odds"`
	CombinedAmerican   float64  `json:"combined_american"`
	WinProbability     float64  `json:"win_probability"` // 0-1
	ImpliedProbability float64  `json:"implied_probability"`
	PotentialPayout    float64  `json:"potential_payout"`
	KellyStake         float64  `json:"kelly_stake"`
	RiskAdjustedStake  float64  `json:"risk_adjusted_stake"`
	ExpectedValue      float64  `json:"expected_value"`
	CanPlace           bool     `json:"can_place"`
	CorrelatedGroups   []string `json:"correlated_groups,omitempty"`
}

// Snapshot converts the quote into a full preview update.
func (q Quote) Snapshot() preview.Update {
	return preview.Update{
		PotentialPayout:   preview.Float(q.PotentialPayout),
		KellyStake:        preview.Float(q.KellyStake),
		RiskAdjustedStake: preview.Float(q.RiskAdjustedStake),
		ExpectedValue:     preview.Float(q.ExpectedValue),
	}
}

// Quoter prices slips with a fixed Kelly configuration.
type Quoter struct {
	sizer *kelly.Sizer
}

// NewQuoter creates a quoter. Zero values in cfg fall back to kelly defaults.
func NewQuoter(cfg kelly.Config) *Quoter {
	return &Quoter{sizer: kelly.NewSizer(cfg)}
}

// Config returns the effective Kelly configuration.
func (q *Quoter) Config() kelly.Config {
	return q.sizer.Config()
}

// Quote prices req.
//
// A leg with Probability 0 has no estimate of its own; its implied
// probability is used instead, which makes the slip's edge zero for that leg.
//
// KellyStake is full Kelly capped at the configured share of bankroll.
// RiskAdjustedStake applies the fraction multiplier before the cap.
func (q *Quoter) Quote(req Request) (Quote, error) {
	if len(req.Legs) == 0 {
		return Quote{}, ErrEmptySlip
	}
	if err := payout.ValidateStake(req.Stake); err != nil {
		return Quote{}, err
	}
	if math.IsNaN(req.Bankroll) || math.IsInf(req.Bankroll, 0) {
		return Quote{}, fmt.Errorf("%w: bankroll %v is not finite", payout.ErrInvalidStake, req.Bankroll)
	}

	probs := make([]float64, len(req.Legs))
	for i, leg := range req.Legs {
		if err := odds.ValidateDecimal(leg.Odds.Decimal); err != nil {
			return Quote{}, fmt.Errorf("leg %q: %w", leg.ID, err)
		}
		p := leg.Probability
		if p == 0 {
			p = leg.Odds.ImpliedProbability()
		}
		if p < 0 || p > 1 {
			return Quote{}, fmt.Errorf("leg %q: %w: %v is outside [0, 1]", leg.ID, kelly.ErrInvalidProbability, p)
		}
		probs[i] = p
	}

	combined := parlay.CombineLegs(req.Legs)
	winProb, _ := parlay.CombineProbabilities(probs)

	american, err := odds.DecimalToAmerican(combined)
	if err != nil {
		return Quote{}, err
	}
	potential, err := payout.PotentialPayout(req.Stake, combined)
	if err != nil {
		return Quote{}, err
	}
	ev, err := payout.ExpectedValue(req.Stake, winProb, combined)
	if err != nil {
		return Quote{}, err
	}
	sizing, err := q.sizer.Size(winProb, combined, req.Bankroll)
	if err != nil {
		return Quote{}, err
	}

	cfg := q.sizer.Config()
	var full float64
	if req.Bankroll > 0 {
		full = min(sizing.FullKelly, cfg.CapPercent) * req.Bankroll
	}

	ev = payout.RoundCents(ev)
	return Quote{
		Legs:               len(req.Legs),
		CombinedOdds:       combined,
		CombinedAmerican:   american,
		WinProbability:     winProb,
		ImpliedProbability: 1 / combined,
		PotentialPayout:    potential,
		KellyStake:         payout.RoundCents(full),
		RiskAdjustedStake:  payout.RoundCents(sizing.Stake),
		ExpectedValue:      ev,
		CanPlace:           req.Stake > 0 && payout.Profitable(ev),
		CorrelatedGroups:   parlay.CorrelatedGroups(req.Legs),
	}, nil
}
