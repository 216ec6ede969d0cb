package marketdata

import (
	"math"
	"time"

	"github.com/wonny/portfolio-backtest/internal/contracts"
)

// Coverage summarises one ticker's price history
type Coverage struct {
	Ticker         string    `json:"ticker"`
	First          time.Time `json:"first"` // first date with a price
	Last           time.Time `json:"last"`  // last date with a price
	Rows           int       `json:"rows"`  // dates between First and Last
	Missing        int       `json:"missing"`
	MissingRatio   float64   `json:"missing_ratio"`
	HasOutstanding bool      `json:"has_outstanding"`
}

// Check reports coverage per price column, sorted by ticker.
// Missing counts NaN prices between a ticker's first and last observation.
func Check(history *contracts.SharesHistory) []Coverage {
	if history == nil || history.Prices == nil {
		return []Coverage{}
	}

	prices := history.Prices
	report := make([]Coverage, 0, prices.Width())
	for _, ticker := range history.Tickers() {
		col, _ := prices.Column(ticker)
		c := Coverage{Ticker: ticker}
		_, c.HasOutstanding = history.SharesOutstanding[ticker]

		first, last := -1, -1
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			if first < 0 {
				first = i
			}
			last = i
		}

		if first >= 0 {
			c.First, c.Last = prices.Date(first), prices.Date(last)
			c.Rows = last - first + 1
			for _, v := range col[first : last+1] {
				if math.IsNaN(v) {
					c.Missing++
				}
			}
			c.MissingRatio = float64(c.Missing) / float64(c.Rows)
		} else {
			c.MissingRatio = 1
		}
		report = append(report, c)
	}
	return report
}
