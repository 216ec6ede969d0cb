package backtest

import (
	"fmt"
	"time"

	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// RebalanceDates returns floor(days(end−start)/periodDays) dates start + k·period.
// The end date itself is never included.
func RebalanceDates(start, end time.Time, periodDays int) ([]time.Time, error) {
	if periodDays <= 0 {
		return nil, fmt.Errorf("rebalance period must be > 0 days, got %d", periodDays)
	}
	start, end = timeseries.Day(start), timeseries.Day(end)
	if !end.After(start) {
		return []time.Time{}, nil
	}

	days := int(end.Sub(start).Hours() / 24)
	n := days / periodDays

	dates := make([]time.Time, n)
	for k := 0; k < n; k++ {
		dates[k] = start.AddDate(0, 0, k*periodDays)
	}
	return dates, nil
}

// validDates reports whether dates has ≥ 2 strictly increasing entries
func validDates(dates []time.Time) bool {
	if len(dates) < 2 {
		return false
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return false
		}
	}
	return true
}
