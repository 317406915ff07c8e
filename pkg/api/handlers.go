package api

import (
	"fmt"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phenomenon0/propslip/pkg/arbitrage"
	"github.com/phenomenon0/propslip/pkg/kelly"
	"github.com/phenomenon0/propslip/pkg/odds"
	"github.com/phenomenon0/propslip/pkg/parlay"
	"github.com/phenomenon0/propslip/pkg/preview"
	"github.com/phenomenon0/propslip/pkg/slip"
)

type convertRequest struct {
	Value  float64 `json:"value"`
	Format string  `json:"format"`
}

type convertResponse struct {
	American           float64 `json:"american"`
	Decimal            float64 `json:"decimal"`
	ImpliedProbability float64 `json:"implied_probability"`
}

func (s *Server) convertOdds(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.Format == "" {
		req.Format = "american"
	}
	format, err := odds.ParseFormat(req.Format)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var o odds.Odds
	if format == odds.FormatAmerican {
		o, err = odds.FromAmerican(req.Value)
	} else {
		o, err = odds.FromDecimal(req.Value)
	}
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertResponse{
		American:           o.American,
		Decimal:            o.Decimal,
		ImpliedProbability: o.ImpliedProbability(),
	})
}

// quoteRequest is a slip plus an optional event ID. When EventID is set the
// quote is also pushed into the preview store.
type quoteRequest struct {
	slip.Request
	EventID string `json:"event_id,omitempty"`
}

type quoteResponse struct {
	slip.Quote
	Changed preview.FieldSet `json:"changed,omitempty"`
}

func (s *Server) quoteSlip(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if err := fillLegOdds(req.Legs); err != nil {
		s.quoteFailed(w, err)
		return
	}

	q, err := s.quoter.Quote(req.Request)
	if err != nil {
		s.quoteFailed(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordQuote(q.Legs, q.ExpectedValue, q.CanPlace)
	}

	resp := quoteResponse{Quote: q}
	if req.EventID != "" && s.store != nil {
		resp.Changed = s.store.ReceiveUpdate(req.EventID, q.Snapshot()).Changed
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) quoteFailed(w http.ResponseWriter, err error) {
	if s.metrics != nil {
		s.metrics.RecordQuoteError()
	}
	respondErr(w, err)
}

// oddsTolerance is how far a sent decimal price may sit from the one its
// American price implies. Books round decimals to two places.
const oddsTolerance = 0.01

// fillLegOdds completes legs that carry only one encoding of their price
// and rejects legs whose two encodings disagree.
func fillLegOdds(legs []parlay.Leg) error {
	for i := range legs {
		o, err := resolveOdds(legs[i].Odds.American, legs[i].Odds.Decimal)
		if err != nil {
			return fmt.Errorf("leg %q: %w", legs[i].ID, err)
		}
		legs[i].Odds = o
	}
	return nil
}

// resolveOdds builds Odds from whichever encodings were sent. When both are
// sent the decimal price is kept if it agrees with the American one.
func resolveOdds(american, decimal float64) (odds.Odds, error) {
	switch {
	case decimal == 0 && american != 0:
		return odds.FromAmerican(american)
	case decimal != 0 && american == 0:
		return odds.FromDecimal(decimal)
	case decimal != 0 && american != 0:
		implied, err := odds.AmericanToDecimal(american)
		if err != nil {
			return odds.Odds{}, err
		}
		if math.Abs(implied-decimal) > oddsTolerance {
			return odds.Odds{}, fmt.Errorf("%w: american %v implies decimal %.4f, got %v",
				odds.ErrInvalidOdds, american, implied, decimal)
		}
		return odds.FromDecimal(decimal)
	}
	return odds.Odds{}, nil
}

type kellyRequest struct {
	Probability        float64 `json:"probability"`
	Odds               float64 `json:"odds"` // decimal
	American           float64 `json:"american,omitempty"`
	Bankroll           float64 `json:"bankroll"`
	FractionMultiplier float64 `json:"fraction_multiplier,omitempty"`
	CapPercent         float64 `json:"cap_percent,omitempty"`
}

func (s *Server) sizeStake(w http.ResponseWriter, r *http.Request) {
	var req kellyRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}

	price, err := resolveOdds(req.American, req.Odds)
	if err != nil {
		respondErr(w, err)
		return
	}

	cfg := s.quoter.Config()
	if req.FractionMultiplier > 0 {
		cfg.FractionMultiplier = req.FractionMultiplier
	}
	if req.CapPercent > 0 {
		cfg.CapPercent = req.CapPercent
	}

	sizing, err := kelly.NewSizer(cfg).Size(req.Probability, price.Decimal, req.Bankroll)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sizing)
}

type arbitrageRequest struct {
	OddsA      float64 `json:"odds_a"`
	OddsB      float64 `json:"odds_b"`
	TotalStake float64 `json:"total_stake"`
}

type arbitrageResponse struct {
	Found         bool              `json:"found"`
	Margin        float64           `json:"margin"`
	ReturnPercent float64           `json:"return_percent,omitempty"`
	Result        *arbitrage.Result `json:"result,omitempty"`
}

func (s *Server) detectArbitrage(w http.ResponseWriter, r *http.Request) {
	var req arbitrageRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}

	res, err := arbitrage.Detect(req.OddsA, req.OddsB, req.TotalStake)
	if err != nil {
		respondErr(w, err)
		return
	}
	margin, err := arbitrage.Margin(req.OddsA, req.OddsB)
	if err != nil {
		respondErr(w, err)
		return
	}

	resp := arbitrageResponse{Found: res != nil, Margin: margin, Result: res}
	if res != nil {
		resp.ReturnPercent = res.ReturnPercent()
	}
	if s.metrics != nil {
		s.metrics.RecordArbitrage(resp.Found, margin)
	}
	respondJSON(w, http.StatusOK, resp)
}

// winProbRequest takes leg probabilities either as percentages (0-100) or on
// the 0-1 scale. Percentages win when both are given.
type winProbRequest struct {
	Percentages   []float64 `json:"percentages,omitempty"`
	Probabilities []float64 `json:"probabilities,omitempty"`
}

type winProbResponse struct {
	Percent     float64 `json:"percent"`
	Probability float64 `json:"probability"`
	Legs        int     `json:"legs"`
}

func (s *Server) winProbability(w http.ResponseWriter, r *http.Request) {
	var req winProbRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}

	if len(req.Percentages) > 0 {
		pct := parlay.CombinePercentages(req.Percentages)
		respondJSON(w, http.StatusOK, winProbResponse{
			Percent:     pct,
			Probability: pct / 100,
			Legs:        len(req.Percentages),
		})
		return
	}

	p, ok := parlay.CombineProbabilities(req.Probabilities)
	if !ok {
		respondError(w, http.StatusBadRequest, "no legs")
		return
	}
	respondJSON(w, http.StatusOK, winProbResponse{
		Percent:     p * 100,
		Probability: p,
		Legs:        len(req.Probabilities),
	})
}

type previewResponse struct {
	EventID  string           `json:"event_id"`
	State    string           `json:"state"`
	Snapshot preview.Snapshot `json:"snapshot"`
	Changed  preview.FieldSet `json:"changed"`
	Applied  *bool            `json:"applied,omitempty"`
}

func (s *Server) getPreview(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "preview store disabled")
		return
	}
	id := chi.URLParam(r, "eventId")

	snap, ok := s.store.Snapshot(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no preview for event %q", id))
		return
	}
	respondJSON(w, http.StatusOK, previewResponse{
		EventID:  id,
		State:    s.store.State(id).String(),
		Snapshot: snap,
		Changed:  s.store.ChangedFields(id),
	})
}

// pushPreviewRequest mirrors the payload of a payout_update message.
type pushPreviewRequest struct {
	PotentialPayout   *float64 `json:"potential_payout,omitempty"`
	KellyStake        *float64 `json:"kelly_stake,omitempty"`
	RiskAdjustedStake *float64 `json:"risk_adjusted_stake,omitempty"`
	ExpectedValue     *float64 `json:"expected_value,omitempty"`
	Version           uint64   `json:"version,omitempty"`
}

func (s *Server) pushPreview(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "preview store disabled")
		return
	}
	id := chi.URLParam(r, "eventId")

	var req pushPreviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondErr(w, err)
		return
	}
	u := preview.Update{
		PotentialPayout:   req.PotentialPayout,
		KellyStake:        req.KellyStake,
		RiskAdjustedStake: req.RiskAdjustedStake,
		ExpectedValue:     req.ExpectedValue,
		Version:           req.Version,
	}
	if u.Empty() {
		respondError(w, http.StatusBadRequest, "update carries no fields")
		return
	}

	res := s.store.ReceiveUpdate(id, u)
	applied := res.Applied
	respondJSON(w, http.StatusOK, previewResponse{
		EventID:  id,
		State:    s.store.State(id).String(),
		Snapshot: res.Snapshot,
		Changed:  res.Changed,
		Applied:  &applied,
	})
}
