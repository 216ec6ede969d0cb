package report

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/portfolio-backtest/internal/backtest"
	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/performance"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestWriteBacktest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	res := &backtest.Result{
		Dates:       dates,
		Calculators: []string{"equal"},
		Values:      map[string][]float64{"equal": {1000, 1010, 990}},
		Fees:        map[string][]float64{"equal": {0, 0.4, 0}},
		Portfolios: map[string][]contracts.Portfolio{"equal": {
			contracts.NewPortfolio(1000),
			{Cash: 0, Shares: contracts.Shares{"A": 10}},
			{Cash: 0, Shares: contracts.Shares{"A": 10}},
		}},
		Failures: map[string][]contracts.Failure{"equal": {{
			Calculator: "equal", Start: dates[1], End: dates[2], Kind: contracts.FailureAllocator,
		}}},
		Summaries: map[string]backtest.Summary{"equal": {TotalReturn: -0.01, Rebalances: 1, Failures: 1}},
	}

	written, err := WriteBacktest(dir, res, 2)
	require.NoError(t, err)
	assert.Len(t, written, 5)

	assert.Equal(t, "date,equal\n2020-01-02,1000\n2020-04-01,1010\n2020-06-30,990\n",
		readFile(t, filepath.Join(dir, ValuesFile)))
	assert.Contains(t, readFile(t, filepath.Join(dir, FeesFile)), "2020-04-01,0.4\n")
	assert.Contains(t, readFile(t, filepath.Join(dir, PortfoliosFile("equal"))), "2020-06-30,0,A,10\n")

	var summaries map[string]backtest.Summary
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(dir, SummaryFile))), &summaries))
	assert.Equal(t, -0.01, summaries["equal"].TotalReturn)

	var failures map[string][]contracts.Failure
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(dir, FailuresFile))), &failures))
	require.Len(t, failures["equal"], 1)
	assert.Equal(t, contracts.FailureAllocator, failures["equal"][0].Kind)
}

func TestWriteRolling(t *testing.T) {
	dir := t.TempDir()
	res := &performance.RollingResult{
		Windows: []performance.Window{
			{SampleStart: dates[0], SampleEnd: dates[1], TestEnd: dates[2]},
		},
		Calculators: []string{"HRP", "equal"},
		Sigma:       map[string][]float64{"HRP": {0.123456}, "equal": {math.NaN()}},
		Returns:     map[string][]float64{"HRP": {0.05}, "equal": {math.NaN()}},
		Failures:    map[string][]contracts.Failure{"HRP": {}, "equal": {{Calculator: "equal", Kind: contracts.FailureNoLiquid}}},
	}

	written, err := WriteRolling(dir, res, 4)
	require.NoError(t, err)
	assert.Len(t, written, 3)

	assert.Equal(t, "date,HRP,equal\n2020-06-30,0.1235,\n", readFile(t, filepath.Join(dir, RollingSigmaFile)))
	assert.Equal(t, "date,HRP,equal\n2020-06-30,0.05,\n", readFile(t, filepath.Join(dir, RollingReturnsFile)))
	assert.Contains(t, readFile(t, filepath.Join(dir, RollingFailuresFile)), "no_liquid_tickers")
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", SnapshotFile)
	require.NoError(t, WriteJSON(path, map[string]string{"name": "x"}))
	assert.JSONEq(t, `{"name":"x"}`, readFile(t, path))
}
