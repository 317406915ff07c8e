package kelly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/propslip/pkg/odds"
)

func TestFraction(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		d    float64
		want float64
	}{
		// b=1: f = (0.6 - 0.4) / 1
		{"edge at even money", 0.6, 2.0, 0.2},
		// b=2: f = (2*0.4 - 0.6) / 2
		{"edge on underdog", 0.4, 3.0, 0.1},
		{"fair price", 0.5, 2.0, 0},
		{"negative edge clamps to zero", 0.3, 2.0, 0},
		{"certain win", 1.0, 1.5, 1.0},
		{"certain loss", 0, 5.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fraction(tt.p, tt.d)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestFraction_InvalidInput(t *testing.T) {
	_, err := Fraction(0.5, 1.0)
	assert.ErrorIs(t, err, odds.ErrInvalidOdds)

	_, err = Fraction(0.5, 0.8)
	assert.ErrorIs(t, err, odds.ErrInvalidOdds)

	_, err = Fraction(1.2, 2.0)
	assert.ErrorIs(t, err, ErrInvalidProbability)

	_, err = Fraction(-0.1, 2.0)
	assert.ErrorIs(t, err, ErrInvalidProbability)
}

func TestSizer_RecommendedStake(t *testing.T) {
	s := NewSizer(DefaultConfig())

	// f* = 0.1, half Kelly = 0.05, under the 10% cap
	stake, err := s.RecommendedStake(0.4, 3.0, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 50, stake, 1e-9)

	// f* = 0.2, half Kelly = 0.1, exactly the cap
	stake, err = s.RecommendedStake(0.6, 2.0, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 100, stake, 1e-9)
}

func TestSizer_Capping(t *testing.T) {
	s := NewSizer(Config{FractionMultiplier: 0.5, CapPercent: 0.02})

	// f* = 0.8, half Kelly = 0.4, capped to 2%
	sizing, err := s.Size(0.9, 2.0, 10000)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, sizing.FullKelly, 1e-12)
	assert.True(t, sizing.Capped)
	assert.InDelta(t, 0.02, sizing.Fraction, 1e-12)
	assert.InDelta(t, 200, sizing.Stake, 1e-9)
}

func TestSizer_NoEdgeOrBankroll(t *testing.T) {
	s := NewSizer(Config{})

	stake, err := s.RecommendedStake(0.45, 2.0, 1000)
	require.NoError(t, err)
	assert.Zero(t, stake)

	stake, err = s.RecommendedStake(0.6, 2.0, 0)
	require.NoError(t, err)
	assert.Zero(t, stake)

	stake, err = s.RecommendedStake(0.6, 2.0, -500)
	require.NoError(t, err)
	assert.Zero(t, stake)
}

func TestSizer_Defaults(t *testing.T) {
	s := NewSizer(Config{})
	assert.Equal(t, DefaultConfig(), s.Config())
}

func TestRecommendedStake_NeverNegativeNeverAboveCap(t *testing.T) {
	const bankroll = 2500.0
	for _, capPct := range []float64{0.01, 0.1, 0.25} {
		for _, mult := range []float64{0.25, 0.5, 1.0} {
			for p := 0.0; p <= 1.0; p += 0.01 {
				for _, d := range []float64{1.01, 1.5, 1.91, 2.0, 3.5, 10, 101} {
					stake, err := RecommendedStake(p, d, bankroll, mult, capPct)
					require.NoError(t, err)
					if stake < 0 {
						t.Fatalf("negative stake %v for p=%v d=%v", stake, p, d)
					}
					if stake > capPct*bankroll+1e-9 {
						t.Fatalf("stake %v above cap %v for p=%v d=%v", stake, capPct*bankroll, p, d)
					}
				}
			}
		}
	}
}

func TestRecommendedStake_InvalidOdds(t *testing.T) {
	_, err := RecommendedStake(0.6, 1.0, 1000, 0.5, 0.1)
	assert.ErrorIs(t, err, odds.ErrInvalidOdds)
}
