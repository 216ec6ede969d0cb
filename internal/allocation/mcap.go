package allocation

import (
	"math"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// MarketCap weights by market capitalisation at the end of the sample
type MarketCap struct{}

// Name returns the registry name
func (MarketCap) Name() string { return NameMarketCap }

// Weights uses forward-filled last price × shares outstanding.
// Tickers without either are skipped; zero total means hold cash.
func (MarketCap) Weights(sharesOutstanding map[string]float64, prices *timeseries.Table) (contracts.Weights, error) {
	last := prices.ForwardFill().LastRow()

	caps := make(map[string]float64, len(last))
	total := 0.0
	for ticker, price := range last {
		outstanding, ok := sharesOutstanding[ticker]
		if !ok {
			continue
		}
		mcap := price * outstanding
		if math.IsNaN(mcap) || math.IsInf(mcap, 0) {
			continue
		}
		caps[ticker] = mcap
		total += mcap
	}

	weights := make(contracts.Weights, len(caps))
	if total == 0 {
		return weights, nil
	}
	for ticker, mcap := range caps {
		if w := mcap / total; w > 0 {
			weights[ticker] = w
		}
	}
	return weights, nil
}
