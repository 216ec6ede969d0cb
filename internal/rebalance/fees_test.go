package rebalance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/portfolio-backtest/internal/contracts"
)

func TestFees(t *testing.T) {
	tests := []struct {
		name        string
		oldShares   contracts.Shares
		newShares   contracts.Shares
		prices      contracts.Prices
		feesPercent float64
		want        float64
	}{
		{
			name:        "unchanged holdings",
			oldShares:   contracts.Shares{"GOOG": 1, "AMZN": 1},
			newShares:   contracts.Shares{"GOOG": 1, "AMZN": 1},
			prices:      contracts.Prices{"GOOG": 100, "AMZN": 200},
			feesPercent: 1,
			want:        0,
		},
		{
			name:        "sell everything",
			oldShares:   contracts.Shares{"GOOG": 1, "AMZN": 1},
			newShares:   contracts.Shares{"GOOG": 0, "AMZN": 0},
			prices:      contracts.Prices{"GOOG": 100, "AMZN": 100},
			feesPercent: 1,
			want:        2,
		},
		{
			name:        "missing keys count as zero",
			oldShares:   contracts.Shares{"GOOG": 1, "AMZN": 1},
			newShares:   contracts.Shares{"AAPL": 1, "GOOG": 0},
			prices:      contracts.Prices{"AAPL": 100, "GOOG": 100, "AMZN": 100},
			feesPercent: 1,
			want:        3,
		},
		{
			name:        "no fee rate",
			oldShares:   contracts.Shares{"GOOG": 3},
			newShares:   contracts.Shares{},
			prices:      contracts.Prices{"GOOG": 100},
			feesPercent: 0,
			want:        0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fees(tt.oldShares, tt.newShares, tt.prices, tt.feesPercent)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestFees_Symmetric(t *testing.T) {
	a := contracts.Shares{"GOOG": 3, "AMZN": 1, "AAPL": 7}
	b := contracts.Shares{"GOOG": 1, "MSFT": 4}
	prices := contracts.Prices{"GOOG": 101.5, "AMZN": 33, "AAPL": 12.25, "MSFT": 250}

	assert.Equal(t, Fees(a, b, prices, 0.04), Fees(b, a, prices, 0.04))
}

func TestLeftover(t *testing.T) {
	t.Run("same shares keeps cash", func(t *testing.T) {
		old := contracts.Portfolio{Cash: 100, Shares: contracts.Shares{"GOOG": 1, "AMZN": 1}}
		prices := contracts.Prices{"GOOG": 100, "AMZN": 100, "AAPL": 100, "NOTATICKER": 4000}

		assert.Equal(t, 100.0, Leftover(old, old.Shares, prices, 0.02))
	})

	t.Run("swap one ticker", func(t *testing.T) {
		old := contracts.Portfolio{Cash: 100, Shares: contracts.Shares{"GOOG": 1, "AMZN": 1}}
		newShares := contracts.Shares{"GOOG": 1, "AAPL": 1}
		prices := contracts.Prices{"GOOG": 100, "AMZN": 100, "AAPL": 100}

		// sell AMZN and buy AAPL, fees = 2
		assert.InDelta(t, 98.0, Leftover(old, newShares, prices, 1), 1e-12)
	})

	t.Run("unaffordable swap goes negative", func(t *testing.T) {
		old := contracts.Portfolio{Cash: 0, Shares: contracts.Shares{"GOOG": 1, "AMZN": 1}}
		newShares := contracts.Shares{"MSFT": 1, "AAPL": 1}
		prices := contracts.Prices{"GOOG": 100, "AMZN": 100, "AAPL": 200, "MSFT": 200}

		assert.InDelta(t, -206.0, Leftover(old, newShares, prices, 1), 1e-12)
	})
}
