package payout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/propslip/pkg/kelly"
	"github.com/phenomenon0/propslip/pkg/odds"
)

func TestPotentialPayout(t *testing.T) {
	tests := []struct {
		name  string
		stake float64
		odds  float64
		want  float64
	}{
		{"simple", 10, 3.0, 30.00},
		{"zero stake", 0, 2.5, 0},
		{"rounds to cents", 10, 1.909090909, 19.09},
		{"parlay multiplier", 25, 6.5, 162.5},
		{"half cent rounds up", 1, 1.005 + 1e-12, 1.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PotentialPayout(tt.stake, tt.odds)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPotentialPayout_Invalid(t *testing.T) {
	_, err := PotentialPayout(-1, 2.0)
	assert.ErrorIs(t, err, ErrInvalidStake)

	_, err = PotentialPayout(math.NaN(), 2.0)
	assert.ErrorIs(t, err, ErrInvalidStake)

	_, err = PotentialPayout(10, 1.0)
	assert.ErrorIs(t, err, odds.ErrInvalidOdds)
}

func TestPotentialPayout_Overflow(t *testing.T) {
	assert.NotPanics(t, func() {
		_, err := PotentialPayout(1e308, 10)
		assert.ErrorIs(t, err, ErrInvalidStake)
	})

	_, err := ExpectedValue(1e308, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidStake)
}

func TestRoundCents_NonFinite(t *testing.T) {
	assert.True(t, math.IsInf(RoundCents(math.Inf(1)), 1))
	assert.True(t, math.IsNaN(RoundCents(math.NaN())))
}

func TestExpectedValue(t *testing.T) {
	ev, err := ExpectedValue(10, 0.5, 3.0)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, ev, 1e-12)
	assert.True(t, Profitable(ev))

	ev, err = ExpectedValue(100, 0.5, 1.909090909)
	require.NoError(t, err)
	assert.InDelta(t, -4.545, ev, 1e-3)
	assert.False(t, Profitable(ev))

	ev, err = ExpectedValue(100, 0.5, 2.0)
	require.NoError(t, err)
	assert.Zero(t, ev)
	assert.False(t, Profitable(ev))
}

func TestExpectedValue_Invalid(t *testing.T) {
	_, err := ExpectedValue(-5, 0.5, 2.0)
	assert.ErrorIs(t, err, ErrInvalidStake)

	_, err = ExpectedValue(5, 0.5, 0.9)
	assert.ErrorIs(t, err, odds.ErrInvalidOdds)

	_, err = ExpectedValue(5, 50, 2.0)
	assert.ErrorIs(t, err, kelly.ErrInvalidProbability)
}

func TestRoundCents(t *testing.T) {
	assert.Equal(t, 1.01, RoundCents(1.005))
	assert.Equal(t, -1.01, RoundCents(-1.005))
	assert.Equal(t, 2.5, RoundCents(2.5))
	assert.Equal(t, 33.33, RoundCents(100.0/3))
}
