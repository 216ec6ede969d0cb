// Package report exports backtest and rolling-evaluation results as CSV
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/portfolio-backtest/internal/contracts"
)

// DateLayout is the date column format
const DateLayout = "2006-01-02"

// ErrLengthMismatch is returned when a series does not line up with the dates
var ErrLengthMismatch = errors.New("series length does not match dates")

// WriteSeriesCSV writes one row per date and one column per name.
// Values are rounded half away from zero to places; NaN and ±Inf become empty cells.
func WriteSeriesCSV(w io.Writer, dates []time.Time, names []string, series map[string][]float64, places int32) error {
	for _, name := range names {
		if got := len(series[name]); got != len(dates) {
			return fmt.Errorf("%w: %s has %d values for %d dates", ErrLengthMismatch, name, got, len(dates))
		}
	}

	cw := csv.NewWriter(w)
	header := append([]string{"date"}, names...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i, d := range dates {
		record[0] = d.Format(DateLayout)
		for j, name := range names {
			record[j+1] = FormatValue(series[name][i], places)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WritePortfoliosCSV writes holdings in long format: date,cash,ticker,shares.
// A portfolio without holdings still gets one row with empty ticker and shares.
func WritePortfoliosCSV(w io.Writer, dates []time.Time, portfolios []contracts.Portfolio, places int32) error {
	if len(portfolios) != len(dates) {
		return fmt.Errorf("%w: %d portfolios for %d dates", ErrLengthMismatch, len(portfolios), len(dates))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "cash", "ticker", "shares"}); err != nil {
		return err
	}

	for i, p := range portfolios {
		date := dates[i].Format(DateLayout)
		cash := FormatValue(p.Cash, places)

		tickers := p.Shares.Tickers()
		if len(tickers) == 0 {
			if err := cw.Write([]string{date, cash, "", ""}); err != nil {
				return err
			}
			continue
		}
		for _, ticker := range tickers {
			if err := cw.Write([]string{date, cash, ticker, FormatValue(p.Shares[ticker], places)}); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatValue renders v with at most places decimals, trailing zeros trimmed
func FormatValue(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).Round(places).String()
}
