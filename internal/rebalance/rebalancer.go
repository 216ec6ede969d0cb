package rebalance

import (
	"math"
	"sort"

	"github.com/wonny/portfolio-backtest/internal/contracts"
)

// Reallocate converts target weights into an integer-share portfolio that
// fits the value of old at prices, paying feesPercent on every traded share.
// ⭐ SSOT: 이산 리밸런싱 알고리즘은 여기서만 구현
//
// Tickers held in old but absent from weights are sold. Weights whose ticker has
// no usable price (missing, NaN, ≤ 0) are ignored. Empty weights mean all cash.
func Reallocate(old contracts.Portfolio, weights contracts.Weights, prices contracts.Prices, feesPercent float64) (contracts.Portfolio, float64, error) {
	estimate := estimateShares(old.Value(prices), weights, prices)

	leftoverOf := func(shares contracts.Shares) float64 {
		return Leftover(old, shares, prices, feesPercent)
	}
	reduced := reduceUntilLeftoverPositive(estimate, prices, leftoverOf, feesPercent)

	leftover := leftoverOf(reduced)
	fees := Fees(old.Shares, reduced, prices, feesPercent)
	if fees < 0 || leftover < 0 || math.IsNaN(fees) || math.IsNaN(leftover) {
		return old, 0, &InfeasibleError{Fees: fees, Leftover: leftover}
	}

	return contracts.Portfolio{
		Cash:   leftover,
		Shares: reduced.Clean(contracts.DefaultEpsilon),
	}, fees, nil
}

// AllocateFromCash is Reallocate starting from an all-cash portfolio
func AllocateFromCash(weights contracts.Weights, prices contracts.Prices, cash, feesPercent float64) (contracts.Portfolio, float64, error) {
	return Reallocate(contracts.NewPortfolio(cash), weights, prices, feesPercent)
}

// estimateShares rounds w × value / price half-to-even and drops counts ≤ eps
func estimateShares(value float64, weights contracts.Weights, prices contracts.Prices) contracts.Shares {
	estimate := make(contracts.Shares, len(weights))
	for _, ticker := range weights.Tickers() {
		price, ok := prices[ticker]
		if !ok || math.IsNaN(price) || price <= 0 {
			continue
		}
		n := math.RoundToEven(weights[ticker] * value / price)
		if n > contracts.DefaultEpsilon {
			estimate[ticker] = n
		}
	}
	return estimate
}

// reduceUntilLeftoverPositive trims positions, cheapest first, until the
// running leftover estimate is non-negative. Single pass: the order is fixed
// up front and never recomputed; equal prices keep ticker-name order.
func reduceUntilLeftoverPositive(
	shares contracts.Shares,
	prices contracts.Prices,
	leftoverOf func(contracts.Shares) float64,
	feesPercent float64,
) contracts.Shares {
	if leftoverOf(shares) >= 0 {
		return shares
	}

	positive := make(contracts.Shares, len(shares))
	for t, n := range shares {
		if n > 0 {
			positive[t] = n
		}
	}

	order := positive.Tickers()
	sort.SliceStable(order, func(i, j int) bool {
		return prices[order[i]] < prices[order[j]]
	})

	leftover := leftoverOf(positive)
	for _, ticker := range order {
		if leftover >= 0 {
			break
		}
		price := prices[ticker]
		sold := math.Min(math.Ceil(-leftover/price), positive[ticker])
		positive[ticker] -= sold

		freed := sold * price
		leftover += freed
		// worst-case fee on the trim
		leftover -= freed * feesPercent / 100.0
	}
	return positive
}
