package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/rebalance"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
	"github.com/wonny/portfolio-backtest/internal/universe"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

func day(n int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// buildHistory creates n days of prices and a constant volume for every ticker
func buildHistory(t *testing.T, n int, volume float64, prices map[string]func(i int) float64) *contracts.SharesHistory {
	t.Helper()
	pb := timeseries.NewBuilder()
	vb := timeseries.NewBuilder()
	outstanding := make(map[string]float64)
	for ticker, price := range prices {
		for i := 0; i < n; i++ {
			pb.Set(ticker, day(i), price(i))
			vb.Set(ticker, day(i), volume)
		}
		outstanding[ticker] = 1000
	}
	return &contracts.SharesHistory{
		Prices:            pb.Build(),
		Volumes:           vb.Build(),
		SharesOutstanding: outstanding,
	}
}

func constant(v float64) func(int) float64 {
	return func(int) float64 { return v }
}

// equalSplit allocates equally over the sample columns
var equalSplit = contracts.AllocatorFunc{
	Label: "split",
	Fn: func(_ map[string]float64, prices *timeseries.Table) (contracts.Weights, error) {
		w := contracts.Weights{}
		for _, col := range prices.Columns() {
			w[col] = 1.0 / float64(prices.Width())
		}
		return w, nil
	},
}

func failing(label string) contracts.AllocatorFunc {
	return contracts.AllocatorFunc{
		Label: label,
		Fn: func(map[string]float64, *timeseries.Table) (contracts.Weights, error) {
			return nil, errors.New("solver did not converge")
		},
	}
}

func request(calcs ...contracts.WeightAllocator) Request {
	return Request{
		Calculators:    calcs,
		InitialCash:    1000,
		RebalanceDates: []time.Time{day(0), day(10), day(20)},
		FeesPercent:    0,
		Criteria:       universe.DefaultCriteria(),
	}
}

func TestRun_EqualSplit(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{
		"A": constant(10),
		"B": constant(20),
	})

	result, err := NewEngine(logger.Nop()).Run(context.Background(), request(equalSplit), history)
	require.NoError(t, err)

	assert.Equal(t, []string{"split"}, result.Calculators)
	require.Len(t, result.Portfolios["split"], 3)
	assert.Equal(t, contracts.NewPortfolio(1000), result.Portfolios["split"][0])

	first := result.Portfolios["split"][1]
	assert.Equal(t, contracts.Shares{"A": 50, "B": 25}, first.Shares)
	assert.InDelta(t, 0, first.Cash, 1e-9)

	// same weights, same prices: nothing to trade
	assert.True(t, result.Portfolios["split"][2].Shares.Equal(first.Shares))
	assert.Equal(t, []float64{0, 0, 0}, result.Fees["split"])
	assert.InDeltaSlice(t, []float64{1000, 1000, 1000}, result.Values["split"], 1e-9)
	assert.Empty(t, result.Failures["split"])

	summary := result.Summaries["split"]
	assert.Equal(t, 2, summary.Rebalances)
	assert.Equal(t, 0, summary.Failures)
	assert.InDelta(t, 0, summary.TotalReturn, 1e-12)
}

func TestRun_ValuesFollowPrices(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{
		"A": func(i int) float64 {
			if i >= 15 {
				return 20
			}
			return 10
		},
		"B": constant(20),
	})

	req := request(equalSplit)
	req.FeesPercent = 0.5
	result, err := NewEngine(logger.Nop()).Run(context.Background(), req, history)
	require.NoError(t, err)

	values := result.Values["split"]
	fees := result.Fees["split"]
	require.Len(t, values, 3)
	assert.Equal(t, 1000.0, values[0])
	assert.InDelta(t, 1000-fees[1], values[1], 1e-9)

	// A doubled before the second rebalance
	held := result.Portfolios["split"][1]
	before := held.Cash + held.Shares["A"]*20 + held.Shares["B"]*20
	assert.InDelta(t, before-fees[2], values[2], 1e-9)
	assert.Greater(t, values[2], values[1])

	for i, p := range result.Portfolios["split"] {
		assert.GreaterOrEqual(t, p.Cash, 0.0, "cash at %d", i)
		assert.GreaterOrEqual(t, fees[i], 0.0, "fees at %d", i)
	}
	assert.InDelta(t, fees[1]+fees[2], result.Summaries["split"].TotalFees, 1e-9)
}

func TestRun_AllocatorFailureKeepsPortfolio(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{
		"A": constant(10),
	})

	result, err := NewEngine(logger.Nop()).Run(context.Background(), request(failing("broken")), history)
	require.NoError(t, err)

	require.Len(t, result.Portfolios["broken"], 3)
	for _, p := range result.Portfolios["broken"] {
		assert.Equal(t, contracts.NewPortfolio(1000), p)
	}
	assert.Equal(t, []float64{0, 0, 0}, result.Fees["broken"])
	assert.Equal(t, []float64{1000, 1000, 1000}, result.Values["broken"])

	failures := result.Failures["broken"]
	require.Len(t, failures, 2)
	assert.Equal(t, contracts.FailureAllocator, failures[0].Kind)
	assert.Equal(t, day(10), failures[0].End)
	assert.Equal(t, day(20), failures[1].End)
	assert.Contains(t, failures[0].Message, "converge")
	assert.Equal(t, 0, result.Summaries["broken"].Rebalances)
}

func TestRun_AllocatorPanicIsRecovered(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{
		"A": constant(10),
	})
	panicky := contracts.AllocatorFunc{
		Label: "panicky",
		Fn: func(map[string]float64, *timeseries.Table) (contracts.Weights, error) {
			panic("index out of range")
		},
	}

	result, err := NewEngine(logger.Nop()).Run(context.Background(), request(panicky), history)
	require.NoError(t, err)
	require.Len(t, result.Failures["panicky"], 2)
	assert.Contains(t, result.Failures["panicky"][0].Message, "index out of range")
}

func TestRun_FailureOnlyInOnePeriod(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{
		"A": constant(10),
	})
	calls := 0
	flaky := contracts.AllocatorFunc{
		Label: "flaky",
		Fn: func(map[string]float64, *timeseries.Table) (contracts.Weights, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("first period fails")
			}
			return contracts.Weights{"A": 1}, nil
		},
	}

	result, err := NewEngine(logger.Nop()).Run(context.Background(), request(flaky), history)
	require.NoError(t, err)

	portfolios := result.Portfolios["flaky"]
	assert.Equal(t, contracts.NewPortfolio(1000), portfolios[1])
	assert.Equal(t, contracts.Shares{"A": 100}, portfolios[2].Shares)
	require.Len(t, result.Failures["flaky"], 1)
	assert.Equal(t, day(10), result.Failures["flaky"][0].End)
}

func TestRun_InfeasibleIsFatal(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{
		"A": constant(10),
	})
	req := request(equalSplit)
	req.FeesPercent = -1

	result, err := NewEngine(logger.Nop()).Run(context.Background(), req, history)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, rebalance.ErrAllocationInfeasible))
}

func TestRun_NoLiquidTickersIsNoOp(t *testing.T) {
	history := buildHistory(t, 30, 10, map[string]func(int) float64{
		"A": constant(10),
	})

	result, err := NewEngine(logger.Nop()).Run(context.Background(), request(equalSplit), history)
	require.NoError(t, err)

	for _, p := range result.Portfolios["split"] {
		assert.Equal(t, contracts.NewPortfolio(1000), p)
	}
	require.Len(t, result.Failures["split"], 2)
	assert.Equal(t, contracts.FailureNoLiquid, result.Failures["split"][0].Kind)
}

func TestRun_InvalidDatesGiveEmptyResult(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{"A": constant(10)})
	engine := NewEngine(logger.Nop())

	cases := map[string][]time.Time{
		"none":           nil,
		"single":         {day(0)},
		"not increasing": {day(10), day(5)},
		"duplicate":      {day(0), day(0), day(5)},
	}
	for name, dates := range cases {
		t.Run(name, func(t *testing.T) {
			req := request(equalSplit)
			req.RebalanceDates = dates
			result, err := engine.Run(context.Background(), req, history)
			require.NoError(t, err)
			assert.Empty(t, result.Dates)
			assert.Empty(t, result.Values)
		})
	}
}

func TestRun_RejectsBadRequests(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{"A": constant(10)})
	engine := NewEngine(logger.Nop())

	_, err := engine.Run(context.Background(), request(), history)
	assert.ErrorIs(t, err, ErrNoCalculators)

	_, err = engine.Run(context.Background(), request(equalSplit, equalSplit), history)
	assert.ErrorIs(t, err, ErrDuplicateCalculator)

	_, err = engine.Run(context.Background(), request(equalSplit), nil)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestRun_TickersRestrictUniverse(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{
		"A": constant(10),
		"B": constant(20),
	})
	req := request(equalSplit)
	req.Tickers = []string{"B"}

	result, err := NewEngine(logger.Nop()).Run(context.Background(), req, history)
	require.NoError(t, err)
	assert.Equal(t, contracts.Shares{"B": 50}, result.Portfolios["split"][1].Shares)
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	history := buildHistory(t, 60, 100, map[string]func(int) float64{
		"A": func(i int) float64 { return 10 + float64(i%7) },
		"B": func(i int) float64 { return 30 - float64(i%5) },
		"C": func(i int) float64 { return 5 + 0.1*float64(i) },
	})
	onlyA := contracts.AllocatorFunc{
		Label: "onlyA",
		Fn: func(map[string]float64, *timeseries.Table) (contracts.Weights, error) {
			return contracts.Weights{"A": 1}, nil
		},
	}

	req := request(equalSplit, onlyA, failing("broken"))
	req.RebalanceDates = []time.Time{day(0), day(15), day(30), day(45)}
	req.FeesPercent = 0.1

	engine := NewEngine(logger.Nop())
	sequential, err := engine.Run(context.Background(), req, history)
	require.NoError(t, err)

	req.Parallel = true
	parallel, err := engine.Run(context.Background(), req, history)
	require.NoError(t, err)

	assert.Equal(t, sequential.Calculators, parallel.Calculators)
	assert.Equal(t, sequential.Values, parallel.Values)
	assert.Equal(t, sequential.Fees, parallel.Fees)
	assert.Equal(t, sequential.Portfolios, parallel.Portfolios)

	for _, name := range parallel.Calculators {
		assert.Len(t, parallel.Values[name], len(req.RebalanceDates), name)
		assert.Len(t, parallel.Fees[name], len(req.RebalanceDates), name)
		assert.Len(t, parallel.Portfolios[name], len(req.RebalanceDates), name)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	history := buildHistory(t, 30, 100, map[string]func(int) float64{"A": constant(10)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(logger.Nop()).Run(ctx, request(equalSplit), history)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValuesHistory_BeforeFirstPrice(t *testing.T) {
	history := buildHistory(t, 5, 100, map[string]func(int) float64{"A": constant(10)})
	portfolios := []contracts.Portfolio{
		contracts.NewPortfolio(50),
		{Cash: 1, Shares: contracts.Shares{"A": 2}},
	}
	values := ValuesHistory([]time.Time{day(-3), day(2)}, portfolios, history.Prices.ForwardFill())
	assert.Equal(t, []float64{50, 21}, values)
}

func TestValuesHistory_UnpricedHoldingIsNaN(t *testing.T) {
	table, err := timeseries.New([]time.Time{day(0), day(1)}, []string{"A"}, [][]float64{{math.NaN(), 5}})
	require.NoError(t, err)

	values := ValuesHistory([]time.Time{day(0), day(1)}, []contracts.Portfolio{
		{Cash: 0, Shares: contracts.Shares{"A": 1}},
		{Cash: 0, Shares: contracts.Shares{"A": 1}},
	}, table.ForwardFill())
	assert.True(t, math.IsNaN(values[0]))
	assert.Equal(t, 5.0, values[1])
}
