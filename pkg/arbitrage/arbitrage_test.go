package arbitrage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/propslip/pkg/odds"
	"github.com/phenomenon0/propslip/pkg/payout"
)

func TestDetect_Arbitrage(t *testing.T) {
	res, err := Detect(2.10, 2.05, 1000)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Greater(t, res.Profit, 0.0)
	assert.InDelta(t, 1000, res.Split[0]+res.Split[1], 1e-9)

	returnA := res.Split[0] * 2.10
	returnB := res.Split[1] * 2.05
	assert.InEpsilon(t, returnA, returnB, 1e-6)

	// pA ~ 0.4762, pB ~ 0.4878 -> stakeA ~ 494.0, profit ~ 37.4
	assert.InDelta(t, 494.0, res.Split[0], 0.1)
	assert.InDelta(t, 37.4, res.Profit, 0.1)
	assert.InDelta(t, 3.74, res.ReturnPercent(), 0.01)
}

func TestDetect_NoArbitrage(t *testing.T) {
	res, err := Detect(1.80, 1.80, 1000)
	require.NoError(t, err)
	assert.Nil(t, res)

	// Exactly fair: pA + pB == 1
	res, err = Detect(2.0, 2.0, 1000)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDetect_ZeroStake(t *testing.T) {
	res, err := Detect(2.10, 2.05, 0)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDetect_Invalid(t *testing.T) {
	_, err := Detect(1.0, 2.0, 100)
	assert.ErrorIs(t, err, odds.ErrInvalidOdds)

	_, err = Detect(2.0, math.NaN(), 100)
	assert.ErrorIs(t, err, odds.ErrInvalidOdds)

	_, err = Detect(2.1, 2.1, -100)
	assert.ErrorIs(t, err, payout.ErrInvalidStake)
}

func TestDetect_EqualPayoutsAcrossPrices(t *testing.T) {
	pairs := [][2]float64{
		{2.10, 2.05},
		{3.5, 1.5},
		{1.2, 7.0},
		{2.5, 1.8},
	}

	for _, p := range pairs {
		res, err := Detect(p[0], p[1], 500)
		require.NoError(t, err)
		require.NotNil(t, res, "expected arbitrage for %v", p)
		assert.InEpsilon(t, res.Split[0]*p[0], res.Split[1]*p[1], 1e-6)
		assert.InEpsilon(t, res.Profit, res.Split[1]*p[1]-500, 1e-6)
	}
}

func TestMargin(t *testing.T) {
	m, err := Margin(2.10, 2.05)
	require.NoError(t, err)
	assert.InDelta(t, 0.0361, m, 1e-4)

	m, err = Margin(1.80, 1.80)
	require.NoError(t, err)
	assert.Less(t, m, 0.0)
}
