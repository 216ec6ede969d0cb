package performance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

var nan = math.NaN()

func year(n int) time.Time {
	return time.Date(2000+n, 1, 1, 0, 0, 0, 0, time.UTC)
}

func yearlyPrices(t *testing.T, cols map[string][]float64) *timeseries.Table {
	t.Helper()
	b := timeseries.NewBuilder()
	for ticker, values := range cols {
		for i, v := range values {
			b.Set(ticker, year(i), v)
		}
	}
	return b.Build()
}

func TestEvaluate_ConstantPrices(t *testing.T) {
	prices := yearlyPrices(t, map[string][]float64{
		"AAPL": {100, 100, 100},
		"GOOG": {200, 200, 200},
	})

	sigma, ret, err := Evaluate(contracts.Weights{"AAPL": 0.5, "GOOG": 0.5}, prices, 252)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sigma)
	assert.Equal(t, 0.0, ret)
}

func TestEvaluate_DoublingPrices(t *testing.T) {
	prices := yearlyPrices(t, map[string][]float64{
		"AAPL": {100, 150, 200},
		"GOOG": {100, 150, 200},
	})

	sigma, ret, err := Evaluate(contracts.Weights{"AAPL": 0.5, "GOOG": 0.5}, prices, 252)
	require.NoError(t, err)
	assert.Greater(t, ret, 0.9)
	assert.InDelta(t, 1.0, ret, 1e-12)
	assert.Greater(t, sigma, 0.0)
}

func TestEvaluate_FillDirections(t *testing.T) {
	// first price is missing → bought at the next one; last is missing → sold at the previous one
	prices := yearlyPrices(t, map[string][]float64{
		"A": {nan, 100, 110, 120, nan},
		"B": {50, 50, 50, 50, 50},
	})

	_, ret, err := Evaluate(contracts.Weights{"A": 1}, prices, 252)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, ret, 1e-12)
}

func TestEvaluate_SubsetOfColumns(t *testing.T) {
	prices := yearlyPrices(t, map[string][]float64{
		"A": {10, 11, 12, 13},
		"B": {10, 5, 20, 1},
	})

	_, ret, err := Evaluate(contracts.Weights{"A": 1}, prices, 252)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, ret, 1e-12)
}

func TestEvaluate_EmptyWeights(t *testing.T) {
	prices := yearlyPrices(t, map[string][]float64{"A": {1, 2, 3}})

	sigma, ret, err := Evaluate(contracts.Weights{}, prices, 252)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(sigma))
	assert.True(t, math.IsNaN(ret))
}

func TestEvaluate_Errors(t *testing.T) {
	prices := yearlyPrices(t, map[string][]float64{"A": {1, 2, 3}})

	_, _, err := Evaluate(contracts.Weights{"Z": 1}, prices, 252)
	assert.ErrorIs(t, err, ErrUnknownTicker)

	short := yearlyPrices(t, map[string][]float64{"A": {1, 2}})
	_, _, err = Evaluate(contracts.Weights{"A": 1}, short, 252)
	assert.Error(t, err)
}

func TestEvaluate_SigmaScalesWithTradingDays(t *testing.T) {
	prices := yearlyPrices(t, map[string][]float64{
		"A": {100, 104, 99, 103, 101, 108},
		"B": {50, 49, 53, 52, 55, 54},
	})
	w := contracts.Weights{"A": 0.6, "B": 0.4}

	daily, _, err := Evaluate(w, prices, 1)
	require.NoError(t, err)
	annual, _, err := Evaluate(w, prices, 252)
	require.NoError(t, err)
	assert.InDelta(t, daily*math.Sqrt(252), annual, 1e-12)
}
