package backtest

import (
	"time"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// ValuesHistory values portfolios[i] on the forward-filled price row at dates[i].
// Never backward-filled: a holding without a price yet makes the value NaN.
func ValuesHistory(dates []time.Time, portfolios []contracts.Portfolio, forwardFilled *timeseries.Table) []float64 {
	values := make([]float64, len(portfolios))
	for i, p := range portfolios {
		values[i] = p.Value(pricesAsOf(forwardFilled, dates[i]))
	}
	return values
}

// pricesAsOf returns the row at or before date, empty when none
func pricesAsOf(table *timeseries.Table, date time.Time) contracts.Prices {
	idx := table.AsOf(date)
	if idx < 0 {
		return contracts.Prices{}
	}
	return contracts.Prices(table.Row(idx))
}
