package agents

import "fmt"

// PercentageChange returns the relative change from old to new as a percent.
func PercentageChange(oldValue, newValue float64) (float64, error) {
	if oldValue == 0 {
		return 0, fmt.Errorf("cannot calculate percentage change from zero")
	}
	return (newValue - oldValue) / oldValue * 100, nil
}

// ReturnOnEquity returns net income over shareholder equity as a percent.
func ReturnOnEquity(netIncome, equity float64) (float64, error) {
	if equity == 0 {
		return 0, fmt.Errorf("cannot calculate ROE with zero equity")
	}
	return netIncome / equity * 100, nil
}

// LoanToDeposit returns total loans over total deposits as a percent.
func LoanToDeposit(loans, deposits float64) (float64, error) {
	if deposits == 0 {
		return 0, fmt.Errorf("cannot calculate LDR with zero deposits")
	}
	return loans / deposits * 100, nil
}

// NetInterestMargin returns net interest income over earning assets as a
// percent.
func NetInterestMargin(netInterestIncome, earningAssets float64) (float64, error) {
	if earningAssets == 0 {
		return 0, fmt.Errorf("cannot calculate NIM with zero earning assets")
	}
	return netInterestIncome / earningAssets * 100, nil
}

// TrendResult summarizes a series across periods.
type TrendResult struct {
	Mean          float64
	Min           float64
	MinPeriod     string
	Max           float64
	MaxPeriod     string
	GrowthRates   []float64
	AverageGrowth float64
}

// Trend computes period-over-period growth and extrema for a value series.
// Needs at least two points.
func Trend(values []float64, periods []string) (TrendResult, error) {
	if len(values) < 2 || len(values) != len(periods) {
		return TrendResult{}, fmt.Errorf("need at least 2 aligned values for trend analysis")
	}

	res := TrendResult{Min: values[0], Max: values[0], MinPeriod: periods[0], MaxPeriod: periods[0]}
	var sum float64
	for i, v := range values {
		sum += v
		if v < res.Min {
			res.Min, res.MinPeriod = v, periods[i]
		}
		if v > res.Max {
			res.Max, res.MaxPeriod = v, periods[i]
		}
	}
	res.Mean = sum / float64(len(values))

	var growthSum float64
	for i := 1; i < len(values); i++ {
		var g float64
		if values[i-1] != 0 {
			g = (values[i] - values[i-1]) / values[i-1] * 100
		}
		res.GrowthRates = append(res.GrowthRates, g)
		growthSum += g
	}
	res.AverageGrowth = growthSum / float64(len(res.GrowthRates))
	return res, nil
}
