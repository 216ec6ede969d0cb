package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/portfolio-backtest/internal/backtest"
	"github.com/wonny/portfolio-backtest/internal/performance"
)

// Output file names inside the run directory
const (
	ValuesFile          = "values.csv"
	FeesFile            = "fees.csv"
	SummaryFile         = "summary.json"
	FailuresFile        = "failures.json"
	RollingSigmaFile    = "rolling_sigma.csv"
	RollingReturnsFile  = "rolling_returns.csv"
	RollingFailuresFile = "rolling_failures.json"
	SnapshotFile        = "run.json"
)

// PortfoliosFile is the holdings file of one calculator
func PortfoliosFile(calculator string) string {
	return "portfolios_" + calculator + ".csv"
}

// WriteBacktest writes values, fees, holdings, summaries and failures into dir.
// It returns the paths written.
func WriteBacktest(dir string, res *backtest.Result, places int32) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	written := make([]string, 0, 4+len(res.Calculators))
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		if err := writeFile(path, fn); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	if err := write(ValuesFile, func(w io.Writer) error {
		return WriteSeriesCSV(w, res.Dates, res.Calculators, res.Values, places)
	}); err != nil {
		return written, err
	}
	if err := write(FeesFile, func(w io.Writer) error {
		return WriteSeriesCSV(w, res.Dates, res.Calculators, res.Fees, places)
	}); err != nil {
		return written, err
	}
	for _, name := range res.Calculators {
		portfolios := res.Portfolios[name]
		if err := write(PortfoliosFile(name), func(w io.Writer) error {
			return WritePortfoliosCSV(w, res.Dates, portfolios, places)
		}); err != nil {
			return written, err
		}
	}
	if err := write(SummaryFile, jsonWriter(res.Summaries)); err != nil {
		return written, err
	}
	if err := write(FailuresFile, jsonWriter(res.Failures)); err != nil {
		return written, err
	}

	return written, nil
}

// WriteRolling writes sigma and return per window (dated by test end) and failures into dir
func WriteRolling(dir string, res *performance.RollingResult, places int32) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	dates := make([]time.Time, len(res.Windows))
	for i, w := range res.Windows {
		dates[i] = w.TestEnd
	}

	written := make([]string, 0, 3)
	files := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{RollingSigmaFile, func(w io.Writer) error {
			return WriteSeriesCSV(w, dates, res.Calculators, res.Sigma, places)
		}},
		{RollingReturnsFile, func(w io.Writer) error {
			return WriteSeriesCSV(w, dates, res.Calculators, res.Returns, places)
		}},
		{RollingFailuresFile, jsonWriter(res.Failures)},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeFile(path, f.fn); err != nil {
			return written, fmt.Errorf("write %s: %w", f.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// WriteJSON writes v as indented JSON to path
func WriteJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFile(path, jsonWriter(v))
}

func jsonWriter(v interface{}) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
