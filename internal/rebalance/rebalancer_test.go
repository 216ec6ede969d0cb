package rebalance

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/portfolio-backtest/internal/contracts"
)

func TestAllocateFromCash(t *testing.T) {
	tests := []struct {
		name        string
		weights     contracts.Weights
		prices      contracts.Prices
		cash        float64
		feesPercent float64
		wantShares  contracts.Shares
		wantFees    float64
		wantCash    float64
	}{
		{
			name:        "even split",
			weights:     contracts.Weights{"GOOG": 0.5, "AMZN": 0.5},
			prices:      contracts.Prices{"GOOG": 100, "AMZN": 100},
			cash:        1000,
			feesPercent: 0,
			wantShares:  contracts.Shares{"GOOG": 5, "AMZN": 5},
			wantFees:    0,
			wantCash:    0,
		},
		{
			name:        "rounding leaves cash",
			weights:     contracts.Weights{"GOOG": 0.5, "AMZN": 0.5},
			prices:      contracts.Prices{"GOOG": 100, "AMZN": 100},
			cash:        205,
			feesPercent: 0,
			wantShares:  contracts.Shares{"GOOG": 1, "AMZN": 1},
			wantFees:    0,
			wantCash:    5,
		},
		{
			name:        "fees paid from leftover",
			weights:     contracts.Weights{"GOOG": 0.5, "AMZN": 0.5},
			prices:      contracts.Prices{"GOOG": 100, "AMZN": 100},
			cash:        205,
			feesPercent: 1,
			wantShares:  contracts.Shares{"GOOG": 1, "AMZN": 1},
			wantFees:    2,
			wantCash:    3,
		},
		{
			name:        "fee-constrained trim sells cheapest first",
			weights:     contracts.Weights{"GOOG": 0.49, "AMZN": 0.51},
			prices:      contracts.Prices{"GOOG": 100, "AMZN": 10},
			cash:        190,
			feesPercent: 1,
			wantShares:  contracts.Shares{"GOOG": 1, "AMZN": 8},
			wantFees:    1.8,
			wantCash:    8.2,
		},
		{
			name:        "exact fit",
			weights:     contracts.Weights{"GOOG": 0.5, "AMZN": 0.5},
			prices:      contracts.Prices{"GOOG": 2000, "AMZN": 2000},
			cash:        4000,
			feesPercent: 0,
			wantShares:  contracts.Shares{"GOOG": 1, "AMZN": 1},
			wantFees:    0,
			wantCash:    0,
		},
		{
			name:        "exact fit with fees",
			weights:     contracts.Weights{"GOOG": 0.5, "AMZN": 0.5},
			prices:      contracts.Prices{"GOOG": 2000, "AMZN": 2000},
			cash:        5000,
			feesPercent: 1,
			wantShares:  contracts.Shares{"GOOG": 1, "AMZN": 1},
			wantFees:    40,
			wantCash:    960,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			portfolio, fees, err := AllocateFromCash(tt.weights, tt.prices, tt.cash, tt.feesPercent)
			require.NoError(t, err)

			assert.Equal(t, tt.wantShares, portfolio.Shares)
			assert.InDelta(t, tt.wantFees, fees, 1e-9)
			assert.InDelta(t, tt.wantCash, portfolio.Cash, 1e-9)
		})
	}
}

func TestReallocate_SamePortfolioIsNoOp(t *testing.T) {
	old := contracts.Portfolio{Cash: 100, Shares: contracts.Shares{"GOOG": 1, "AMZN": 1}}
	weights := contracts.Weights{"GOOG": 0.4, "AMZN": 0.6}
	prices := contracts.Prices{"GOOG": 1000, "AMZN": 2000}

	portfolio, fees, err := Reallocate(old, weights, prices, 1)
	require.NoError(t, err)

	assert.Equal(t, contracts.Shares{"GOOG": 1, "AMZN": 1}, portfolio.Shares)
	assert.Equal(t, 0.0, fees)
	assert.Equal(t, 100.0, portfolio.Cash)
}

func TestReallocate_ShiftsWeight(t *testing.T) {
	old := contracts.Portfolio{Cash: 100, Shares: contracts.Shares{"GOOG": 1, "AMZN": 2}}
	weights := contracts.Weights{"GOOG": 2.0 / 3.0, "AMZN": 1.0 / 3.0}
	prices := contracts.Prices{"GOOG": 1000, "AMZN": 1000}

	portfolio, fees, err := Reallocate(old, weights, prices, 1)
	require.NoError(t, err)

	assert.Equal(t, contracts.Shares{"GOOG": 2, "AMZN": 1}, portfolio.Shares)
	assert.InDelta(t, 20.0, fees, 1e-9)
	assert.InDelta(t, 80.0, portfolio.Cash, 1e-9)
}

func TestReallocate_EmptyWeightsLiquidates(t *testing.T) {
	old := contracts.Portfolio{Cash: 10, Shares: contracts.Shares{"AMZN": 2}}

	portfolio, fees, err := Reallocate(old, contracts.Weights{}, contracts.Prices{"AMZN": 100}, 1)
	require.NoError(t, err)

	assert.Empty(t, portfolio.Shares)
	assert.InDelta(t, 2.0, fees, 1e-9)
	assert.InDelta(t, 208.0, portfolio.Cash, 1e-9)
}

func TestReallocate_EmptyWeightsFromCash(t *testing.T) {
	portfolio, fees, err := AllocateFromCash(nil, contracts.Prices{"AMZN": 100}, 500, 1)
	require.NoError(t, err)

	assert.Empty(t, portfolio.Shares)
	assert.Equal(t, 0.0, fees)
	assert.Equal(t, 500.0, portfolio.Cash)
}

func TestReallocate_UnpricedWeightsIgnored(t *testing.T) {
	weights := contracts.Weights{"GOOG": 0.5, "NAN": 0.25, "MISSING": 0.25}
	prices := contracts.Prices{"GOOG": 100, "NAN": math.NaN()}

	portfolio, _, err := AllocateFromCash(weights, prices, 1000, 0)
	require.NoError(t, err)

	assert.Equal(t, contracts.Shares{"GOOG": 5}, portfolio.Shares)
	assert.Equal(t, 500.0, portfolio.Cash)
}

func TestReallocate_NegativeAndNaNWeightsDropped(t *testing.T) {
	weights := contracts.Weights{"GOOG": 1, "AMZN": -0.5, "MSFT": math.NaN()}
	prices := contracts.Prices{"GOOG": 100, "AMZN": 100, "MSFT": 100}

	portfolio, _, err := AllocateFromCash(weights, prices, 1000, 0)
	require.NoError(t, err)

	assert.Equal(t, contracts.Shares{"GOOG": 10}, portfolio.Shares)
}

func TestReallocate_BankersRounding(t *testing.T) {
	// 2.5 → 2, 7.5 → 8
	weights := contracts.Weights{"A": 0.25, "B": 0.75}
	prices := contracts.Prices{"A": 100, "B": 100}

	portfolio, _, err := AllocateFromCash(weights, prices, 1000, 0)
	require.NoError(t, err)

	assert.Equal(t, contracts.Shares{"A": 2, "B": 8}, portfolio.Shares)
}

func TestReallocate_EqualPricesTrimByTickerName(t *testing.T) {
	weights := contracts.Weights{"BBB": 0.5, "AAA": 0.5}
	prices := contracts.Prices{"AAA": 100, "BBB": 100}

	portfolio, fees, err := AllocateFromCash(weights, prices, 201, 1)
	require.NoError(t, err)

	assert.Equal(t, contracts.Shares{"BBB": 1}, portfolio.Shares)
	assert.InDelta(t, 1.0, fees, 1e-9)
	assert.InDelta(t, 100.0, portfolio.Cash, 1e-9)
}

func TestReallocate_InfeasibleIsReported(t *testing.T) {
	tests := []struct {
		name        string
		old         contracts.Portfolio
		weights     contracts.Weights
		feesPercent float64
	}{
		{
			name:        "fees above 100 percent",
			old:         contracts.Portfolio{Cash: 0, Shares: contracts.Shares{"A": 10}},
			weights:     contracts.Weights{},
			feesPercent: 150,
		},
		{
			name:        "negative fees",
			old:         contracts.NewPortfolio(1000),
			weights:     contracts.Weights{"A": 1},
			feesPercent: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Reallocate(tt.old, tt.weights, contracts.Prices{"A": 100}, tt.feesPercent)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAllocationInfeasible))

			var infeasible *InfeasibleError
			require.True(t, errors.As(err, &infeasible))
			assert.True(t, infeasible.Fees < 0 || infeasible.Leftover < 0)
		})
	}
}

func TestReallocate_DoesNotMutateInputs(t *testing.T) {
	old := contracts.Portfolio{Cash: 0, Shares: contracts.Shares{"A": 3}}
	weights := contracts.Weights{"B": 1}
	prices := contracts.Prices{"A": 100, "B": 10}

	_, _, err := Reallocate(old, weights, prices, 1)
	require.NoError(t, err)

	assert.Equal(t, contracts.Shares{"A": 3}, old.Shares)
	assert.Equal(t, contracts.Weights{"B": 1}, weights)
}

func TestReallocate_FeesAndLeftoverNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tickers := []string{"AAPL", "AMZN", "GOOG", "MSFT", "NVDA", "TSLA"}
	feeRates := []float64{0, 0.04, 1, 2.5, 10}

	for i := 0; i < 500; i++ {
		prices := contracts.Prices{}
		old := contracts.Portfolio{Cash: float64(rng.Intn(5000)), Shares: contracts.Shares{}}
		weights := contracts.Weights{}
		total := 0.0

		for _, ticker := range tickers {
			prices[ticker] = float64(1 + rng.Intn(500))
			if n := rng.Intn(4); n > 0 {
				old.Shares[ticker] = float64(rng.Intn(20))
			}
			if rng.Intn(3) > 0 {
				w := rng.Float64()
				weights[ticker] = w
				total += w
			}
		}
		for ticker := range weights {
			weights[ticker] /= total
		}
		feesPercent := feeRates[rng.Intn(len(feeRates))]

		portfolio, fees, err := Reallocate(old, weights, prices, feesPercent)
		require.NoError(t, err, "case %d", i)

		assert.GreaterOrEqual(t, fees, 0.0, "case %d", i)
		assert.GreaterOrEqual(t, portfolio.Cash, 0.0, "case %d", i)
		for ticker, n := range portfolio.Shares {
			assert.Equal(t, math.Trunc(n), n, "case %d: %s not integral", i, ticker)
			assert.Greater(t, n, 0.0)
		}
		// value is conserved up to fees
		assert.InDelta(t, old.Value(prices), portfolio.Value(prices)+fees, 1e-6, "case %d", i)
	}
}

func TestReallocate_NoDriftIsNoOp(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		old := contracts.Portfolio{
			Cash: float64(rng.Intn(1000)),
			Shares: contracts.Shares{
				"A": float64(1 + rng.Intn(30)),
				"B": float64(1 + rng.Intn(30)),
				"C": float64(1 + rng.Intn(30)),
			},
		}
		prices := contracts.Prices{
			"A": float64(1 + rng.Intn(900)),
			"B": float64(1 + rng.Intn(900)),
			"C": float64(1 + rng.Intn(900)),
		}
		value := old.Value(prices)
		weights := contracts.Weights{}
		for ticker, n := range old.Shares {
			weights[ticker] = n * prices[ticker] / value
		}

		portfolio, fees, err := Reallocate(old, weights, prices, 1)
		require.NoError(t, err)

		assert.Equal(t, 0.0, fees, "case %d", i)
		assert.Equal(t, old.Shares, portfolio.Shares, "case %d", i)
		assert.InDelta(t, old.Cash, portfolio.Cash, 1e-6, "case %d", i)
	}
}
