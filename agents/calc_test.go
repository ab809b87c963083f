package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentageChange(t *testing.T) {
	v, err := PercentageChange(100, 117)
	require.NoError(t, err)
	assert.InDelta(t, 17.0, v, 1e-9)

	v, err = PercentageChange(200, 150)
	require.NoError(t, err)
	assert.InDelta(t, -25.0, v, 1e-9)

	_, err = PercentageChange(0, 50)
	assert.Error(t, err)
}

func TestRatioCalculators(t *testing.T) {
	roe, err := ReturnOnEquity(1500, 10000)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, roe, 1e-9)

	ldr, err := LoanToDeposit(80000, 100000)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, ldr, 1e-9)

	nim, err := NetInterestMargin(450, 12000)
	require.NoError(t, err)
	assert.InDelta(t, 3.75, nim, 1e-9)
}

func TestRatioCalculatorsZeroDenominator(t *testing.T) {
	_, err := ReturnOnEquity(1500, 0)
	assert.Error(t, err)
	_, err = LoanToDeposit(80000, 0)
	assert.Error(t, err)
	_, err = NetInterestMargin(450, 0)
	assert.Error(t, err)
}

func TestTrend(t *testing.T) {
	res, err := Trend([]float64{100, 110, 121}, []string{"2020_Annual", "2021_Annual", "2022_Annual"})
	require.NoError(t, err)
	assert.InDelta(t, 110.333, res.Mean, 0.001)
	assert.Equal(t, "2020_Annual", res.MinPeriod)
	assert.Equal(t, "2022_Annual", res.MaxPeriod)
	require.Len(t, res.GrowthRates, 2)
	assert.InDelta(t, 10.0, res.AverageGrowth, 1e-9)
}

func TestTrendNeedsTwoPoints(t *testing.T) {
	_, err := Trend([]float64{100}, []string{"2022_Annual"})
	assert.Error(t, err)
	_, err = Trend([]float64{100, 110}, []string{"2022_Annual"})
	assert.Error(t, err)
}
