package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/rebalance"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
	"github.com/wonny/portfolio-backtest/internal/universe"
	"github.com/wonny/portfolio-backtest/pkg/logger"
	"github.com/wonny/portfolio-backtest/pkg/metrics"
)

var (
	ErrNoHistory           = errors.New("no market history")
	ErrNoCalculators       = errors.New("no calculators")
	ErrDuplicateCalculator = errors.New("duplicate calculator name")
)

// Engine runs rolling rebalancing simulations
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	logger *logger.Logger
}

// Request describes one backtest run
type Request struct {
	Calculators    []contracts.WeightAllocator
	Tickers        []string // empty = every ticker in the history
	InitialCash    float64
	RebalanceDates []time.Time
	FeesPercent    float64
	Criteria       universe.Criteria
	Parallel       bool // calculators run concurrently
}

// Result holds per-calculator histories, one entry per rebalance date
type Result struct {
	Dates       []time.Time
	Calculators []string // request order
	Values      map[string][]float64
	Fees        map[string][]float64
	Portfolios  map[string][]contracts.Portfolio
	Failures    map[string][]contracts.Failure
	Summaries   map[string]Summary
	Duration    time.Duration
}

// calculatorRun is the outcome of one calculator
type calculatorRun struct {
	portfolios []contracts.Portfolio
	fees       []float64
	values     []float64
	failures   []contracts.Failure
}

// NewEngine creates a new backtest engine
func NewEngine(logger *logger.Logger) *Engine {
	return &Engine{logger: logger}
}

func newResult(dates []time.Time) *Result {
	return &Result{
		Dates:       dates,
		Calculators: make([]string, 0),
		Values:      make(map[string][]float64),
		Fees:        make(map[string][]float64),
		Portfolios:  make(map[string][]contracts.Portfolio),
		Failures:    make(map[string][]contracts.Failure),
		Summaries:   make(map[string]Summary),
	}
}

// Run executes the backtest for every calculator in the request.
// Allocator failures are recovered per period; an infeasible rebalance aborts the run.
func (e *Engine) Run(ctx context.Context, req Request, history *contracts.SharesHistory) (*Result, error) {
	if history == nil || history.Prices == nil || history.Volumes == nil {
		return nil, ErrNoHistory
	}
	if len(req.Calculators) == 0 {
		return nil, ErrNoCalculators
	}

	names := make([]string, len(req.Calculators))
	seen := make(map[string]bool, len(req.Calculators))
	for i, calc := range req.Calculators {
		names[i] = calc.Name()
		if seen[names[i]] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCalculator, names[i])
		}
		seen[names[i]] = true
	}

	if !validDates(req.RebalanceDates) {
		e.logger.WithFields(map[string]interface{}{
			"dates": len(req.RebalanceDates),
		}).Warn("Rebalance dates must be at least two and strictly increasing, nothing to run")
		return newResult([]time.Time{}), nil
	}

	if len(req.Tickers) > 0 {
		history = history.Restrict(req.Tickers)
	}

	e.logger.WithFields(map[string]interface{}{
		"start_date":   req.RebalanceDates[0].Format("2006-01-02"),
		"end_date":     req.RebalanceDates[len(req.RebalanceDates)-1].Format("2006-01-02"),
		"rebalances":   len(req.RebalanceDates) - 1,
		"calculators":  names,
		"tickers":      history.Prices.Width(),
		"initial_cash": req.InitialCash,
		"fees_percent": req.FeesPercent,
	}).Info("Starting backtest")

	startTime := time.Now()
	forwardFilled := history.Prices.ForwardFill()

	runs := make([]*calculatorRun, len(req.Calculators))
	if req.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, calc := range req.Calculators {
			g.Go(func() error {
				run, err := e.runCalculator(gctx, calc, req, history, forwardFilled)
				runs[i] = run
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, calc := range req.Calculators {
			run, err := e.runCalculator(ctx, calc, req, history, forwardFilled)
			if err != nil {
				return nil, err
			}
			runs[i] = run
		}
	}

	result := newResult(req.RebalanceDates)
	for i, name := range names {
		run := runs[i]
		result.Calculators = append(result.Calculators, name)
		result.Values[name] = run.values
		result.Fees[name] = run.fees
		result.Portfolios[name] = run.portfolios
		result.Failures[name] = run.failures

		summary := Summarize(req.RebalanceDates, run.values)
		for _, f := range run.fees {
			summary.TotalFees += f
		}
		summary.Rebalances = len(req.RebalanceDates) - 1 - len(run.failures)
		summary.Failures = len(run.failures)
		result.Summaries[name] = summary
	}

	result.Duration = time.Since(startTime)
	metrics.RunSeconds.Observe(result.Duration.Seconds())

	e.logger.WithFields(map[string]interface{}{
		"duration":    result.Duration.Seconds(),
		"calculators": len(names),
		"rebalances":  len(req.RebalanceDates) - 1,
	}).Info("Backtest completed")

	return result, nil
}

// runCalculator walks consecutive rebalance date pairs for one calculator
func (e *Engine) runCalculator(
	ctx context.Context,
	calc contracts.WeightAllocator,
	req Request,
	history *contracts.SharesHistory,
	forwardFilled *timeseries.Table,
) (*calculatorRun, error) {
	name := calc.Name()
	dates := req.RebalanceDates

	run := &calculatorRun{
		portfolios: make([]contracts.Portfolio, 0, len(dates)),
		fees:       make([]float64, 0, len(dates)),
		failures:   make([]contracts.Failure, 0),
	}
	run.portfolios = append(run.portfolios, contracts.NewPortfolio(req.InitialCash))
	run.fees = append(run.fees, 0)

	for k := 0; k+1 < len(dates); k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start, end := dates[k], dates[k+1]
		old := run.portfolios[len(run.portfolios)-1]

		next, fees, failure, err := e.step(calc, old, start, end, req, history, forwardFilled)
		if err != nil {
			return nil, fmt.Errorf("calculator %s, period %s..%s: %w",
				name, start.Format("2006-01-02"), end.Format("2006-01-02"), err)
		}

		if failure != nil {
			run.failures = append(run.failures, *failure)
			outcome := metrics.OutcomeSkipped
			if failure.Kind == contracts.FailureAllocator {
				outcome = metrics.OutcomeAllocatorFailed
			}
			metrics.RebalancesTotal.WithLabelValues(name, outcome).Inc()
		} else {
			metrics.RebalancesTotal.WithLabelValues(name, metrics.OutcomeRebalanced).Inc()
			metrics.FeesTotal.WithLabelValues(name).Add(fees)
		}

		run.portfolios = append(run.portfolios, next)
		run.fees = append(run.fees, fees)
	}

	run.values = ValuesHistory(dates, run.portfolios, forwardFilled)

	if len(run.failures) > 0 {
		e.logger.WithFields(map[string]interface{}{
			"calculator": name,
			"count":      len(run.failures),
			"dates":      contracts.FailureDates(run.failures),
		}).Warn("Rebalance skipped, previous portfolio kept")
	}

	return run, nil
}

// step performs one rebalance over [start, end].
// A non-nil failure means the prior portfolio is carried over with zero fees.
func (e *Engine) step(
	calc contracts.WeightAllocator,
	old contracts.Portfolio,
	start, end time.Time,
	req Request,
	history *contracts.SharesHistory,
	forwardFilled *timeseries.Table,
) (contracts.Portfolio, float64, *contracts.Failure, error) {
	skip := func(kind contracts.FailureKind, msg string) (contracts.Portfolio, float64, *contracts.Failure, error) {
		return old, 0, &contracts.Failure{
			Calculator: calc.Name(),
			Start:      start,
			End:        end,
			Kind:       kind,
			Message:    msg,
		}, nil
	}

	liquid := universe.SelectLiquid(history.Volumes, start, end, req.Criteria)
	if len(liquid) == 0 {
		return skip(contracts.FailureNoLiquid, "")
	}

	asOf := forwardFilled.AsOf(end)
	if asOf < 0 {
		return skip(contracts.FailureNoPrices, "")
	}

	sample := history.Prices.Slice(start, end).Select(liquid)
	weights, err := contracts.SafeWeights(calc, history.SharesOutstanding, sample)
	if err != nil {
		e.logger.WithFields(map[string]interface{}{
			"calculator": calc.Name(),
			"start":      start.Format("2006-01-02"),
			"end":        end.Format("2006-01-02"),
		}).WithError(err).Debug("Allocator failed")
		return skip(contracts.FailureAllocator, err.Error())
	}

	latest := contracts.Prices(forwardFilled.Row(asOf))
	next, fees, err := rebalance.Reallocate(old, weights, latest, req.FeesPercent)
	if err != nil {
		return old, 0, nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"calculator": calc.Name(),
		"date":       end.Format("2006-01-02"),
		"liquid":     len(liquid),
		"holdings":   len(next.Shares),
		"fees":       fees,
		"cash":       next.Cash,
	}).Debug("Rebalanced")

	return next, fees, nil, nil
}
