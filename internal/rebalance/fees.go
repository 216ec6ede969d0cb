package rebalance

import (
	"math"

	"github.com/wonny/portfolio-backtest/internal/contracts"
)

// Fees returns Σ|old−new| × price × feesPercent/100 over the union of tickers.
// Missing share counts are 0; tickers without a price contribute nothing.
func Fees(oldShares, newShares contracts.Shares, prices contracts.Prices, feesPercent float64) float64 {
	traded := 0.0
	for _, ticker := range union(oldShares, newShares) {
		diff := math.Abs(oldShares[ticker] - newShares[ticker])
		if diff == 0 {
			continue
		}
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		traded += diff * price
	}
	return traded * feesPercent / 100.0
}

// Leftover returns the cash left after moving old into newShares and paying fees
func Leftover(old contracts.Portfolio, newShares contracts.Shares, prices contracts.Prices, feesPercent float64) float64 {
	return old.Value(prices) - newShares.Value(prices) - Fees(old.Shares, newShares, prices, feesPercent)
}

func union(a, b contracts.Shares) []string {
	merged := make(contracts.Shares, len(a)+len(b))
	for k := range a {
		merged[k] = 0
	}
	for k := range b {
		merged[k] = 0
	}
	return merged.Tickers()
}
