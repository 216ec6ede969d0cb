// Package performance evaluates continuous weight vectors over holding periods.
package performance

import (
	"errors"
	"fmt"
	"math"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/risk"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// DefaultTradingDaysPerYear annualises daily volatility
const DefaultTradingDaysPerYear = 252

var ErrUnknownTicker = errors.New("weight ticker has no price column")

// Evaluate returns the annualised volatility and the holding-period return of
// weights over prices.
//
// sigma = sqrt(wᵀ Σ w × tradingDaysPerYear), Σ the Ledoit-Wolf covariance of daily
// returns. The return buys at the backward-filled first row and sells at the
// forward-filled last row, weights acting as share multipliers.
// Empty weights give NaN for both.
func Evaluate(weights contracts.Weights, prices *timeseries.Table, tradingDaysPerYear int) (float64, float64, error) {
	if len(weights) == 0 {
		return math.NaN(), math.NaN(), nil
	}
	if tradingDaysPerYear <= 0 {
		tradingDaysPerYear = DefaultTradingDaysPerYear
	}

	tickers := weights.Tickers()
	for _, t := range tickers {
		if !prices.Has(t) {
			return math.NaN(), math.NaN(), fmt.Errorf("%w: %s", ErrUnknownTicker, t)
		}
	}
	reduced := prices.Select(tickers)

	w := make([]float64, len(tickers))
	for i, t := range tickers {
		w[i] = weights[t]
	}

	cov, _, err := risk.LedoitWolf(reduced.Returns())
	if err != nil {
		return math.NaN(), math.NaN(), fmt.Errorf("covariance: %w", err)
	}
	variance := risk.PortfolioVariance(cov, w) * float64(tradingDaysPerYear)
	// 수치 오차로 -0 근처 음수가 나올 수 있음
	sigma := math.Sqrt(math.Max(variance, 0))

	initial := dot(reduced.BackwardFill().FirstRow(), tickers, w)
	final := dot(reduced.ForwardFill().LastRow(), tickers, w)

	return sigma, (final - initial) / initial, nil
}

func dot(row map[string]float64, tickers []string, w []float64) float64 {
	sum := 0.0
	for i, t := range tickers {
		sum += row[t] * w[i]
	}
	return sum
}
