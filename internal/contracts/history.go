package contracts

import (
	"sort"

	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// SharesHistory is the market data a backtest runs on
// ⭐ SSOT: DataSource가 한 번 로드하고 이후에는 읽기 전용
type SharesHistory struct {
	Prices            *timeseries.Table  // adjusted close per ticker
	Volumes           *timeseries.Table  // traded volume per ticker
	SharesOutstanding map[string]float64 // ticker → outstanding shares
}

// Tickers returns the tickers that have a price column, sorted
func (h *SharesHistory) Tickers() []string {
	if h == nil || h.Prices == nil {
		return nil
	}
	cols := h.Prices.Columns()
	sort.Strings(cols)
	return cols
}

// Restrict returns a history limited to the given tickers
func (h *SharesHistory) Restrict(tickers []string) *SharesHistory {
	outstanding := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if v, ok := h.SharesOutstanding[t]; ok {
			outstanding[t] = v
		}
	}
	return &SharesHistory{
		Prices:            h.Prices.Select(tickers),
		Volumes:           h.Volumes.Select(tickers),
		SharesOutstanding: outstanding,
	}
}
