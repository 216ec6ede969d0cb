package performance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
	"github.com/wonny/portfolio-backtest/internal/universe"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

var ErrInvalidWindow = errors.New("invalid rolling window")

// RollingConfig describes the sample/test windows
type RollingConfig struct {
	Start              time.Time
	End                time.Time
	SampleDays         int
	TestDays           int
	StepDays           int
	TradingDaysPerYear int
	Criteria           universe.Criteria
	Parallel           bool
}

// Window is one sample window followed by its test window (SampleEnd, TestEnd]
type Window struct {
	SampleStart time.Time `json:"sample_start"`
	SampleEnd   time.Time `json:"sample_end"`
	TestEnd     time.Time `json:"test_end"`
}

// Windows lays out windows from Start every StepDays until a test window would pass End
func Windows(cfg RollingConfig) ([]Window, error) {
	if cfg.SampleDays <= 0 || cfg.TestDays <= 0 || cfg.StepDays <= 0 {
		return nil, fmt.Errorf("%w: sample %d, test %d, step %d days",
			ErrInvalidWindow, cfg.SampleDays, cfg.TestDays, cfg.StepDays)
	}

	start, end := timeseries.Day(cfg.Start), timeseries.Day(cfg.End)
	windows := make([]Window, 0)
	for k := 0; ; k++ {
		sampleStart := start.AddDate(0, 0, k*cfg.StepDays)
		sampleEnd := sampleStart.AddDate(0, 0, cfg.SampleDays)
		testEnd := sampleEnd.AddDate(0, 0, cfg.TestDays)
		if testEnd.After(end) {
			break
		}
		windows = append(windows, Window{SampleStart: sampleStart, SampleEnd: sampleEnd, TestEnd: testEnd})
	}
	return windows, nil
}

// RollingResult holds sigma and return per window for each calculator.
// NaN marks windows the calculator could not be evaluated on.
type RollingResult struct {
	Windows     []Window
	Calculators []string
	Sigma       map[string][]float64
	Returns     map[string][]float64
	Weights     map[string][]contracts.Weights
	Failures    map[string][]contracts.Failure
}

// Rolling runs the rolling-window performance evaluation
type Rolling struct {
	logger *logger.Logger
}

// NewRolling creates a rolling evaluator
func NewRolling(logger *logger.Logger) *Rolling {
	return &Rolling{logger: logger}
}

type windowRun struct {
	sigma    []float64
	returns  []float64
	weights  []contracts.Weights
	failures []contracts.Failure
}

// Run evaluates every calculator on every window.
// Allocator or evaluation failures never abort the run.
func (r *Rolling) Run(
	ctx context.Context,
	calculators []contracts.WeightAllocator,
	history *contracts.SharesHistory,
	cfg RollingConfig,
) (*RollingResult, error) {
	if history == nil || history.Prices == nil || history.Volumes == nil {
		return nil, errors.New("no market history")
	}

	windows, err := Windows(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.TradingDaysPerYear <= 0 {
		cfg.TradingDaysPerYear = DefaultTradingDaysPerYear
	}

	r.logger.WithFields(map[string]interface{}{
		"windows":     len(windows),
		"calculators": len(calculators),
		"sample_days": cfg.SampleDays,
		"test_days":   cfg.TestDays,
		"step_days":   cfg.StepDays,
	}).Info("Starting rolling evaluation")

	runs := make([]*windowRun, len(calculators))
	evaluate := func(ctx context.Context, i int) error {
		run, err := r.runCalculator(ctx, calculators[i], windows, history, cfg)
		runs[i] = run
		return err
	}

	if cfg.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i := range calculators {
			g.Go(func() error { return evaluate(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range calculators {
			if err := evaluate(ctx, i); err != nil {
				return nil, err
			}
		}
	}

	result := &RollingResult{
		Windows:     windows,
		Calculators: make([]string, 0, len(calculators)),
		Sigma:       make(map[string][]float64),
		Returns:     make(map[string][]float64),
		Weights:     make(map[string][]contracts.Weights),
		Failures:    make(map[string][]contracts.Failure),
	}
	for i, calc := range calculators {
		name := calc.Name()
		result.Calculators = append(result.Calculators, name)
		result.Sigma[name] = runs[i].sigma
		result.Returns[name] = runs[i].returns
		result.Weights[name] = runs[i].weights
		result.Failures[name] = runs[i].failures
	}

	r.logger.WithField("windows", len(windows)).Info("Rolling evaluation completed")
	return result, nil
}

func (r *Rolling) runCalculator(
	ctx context.Context,
	calc contracts.WeightAllocator,
	windows []Window,
	history *contracts.SharesHistory,
	cfg RollingConfig,
) (*windowRun, error) {
	run := &windowRun{
		sigma:    make([]float64, len(windows)),
		returns:  make([]float64, len(windows)),
		weights:  make([]contracts.Weights, len(windows)),
		failures: make([]contracts.Failure, 0),
	}

	for i, win := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sigma, ret, weights, failure := r.evaluateWindow(calc, win, history, cfg)
		run.sigma[i], run.returns[i], run.weights[i] = sigma, ret, weights
		if failure != nil {
			run.failures = append(run.failures, *failure)
		}
	}

	if len(run.failures) > 0 {
		r.logger.WithFields(map[string]interface{}{
			"calculator": calc.Name(),
			"count":      len(run.failures),
			"dates":      contracts.FailureDates(run.failures),
		}).Warn("Windows could not be evaluated, recorded as NaN")
	}
	return run, nil
}

func (r *Rolling) evaluateWindow(
	calc contracts.WeightAllocator,
	win Window,
	history *contracts.SharesHistory,
	cfg RollingConfig,
) (float64, float64, contracts.Weights, *contracts.Failure) {
	fail := func(kind contracts.FailureKind, msg string) (float64, float64, contracts.Weights, *contracts.Failure) {
		return math.NaN(), math.NaN(), nil, &contracts.Failure{
			Calculator: calc.Name(),
			Start:      win.SampleStart,
			End:        win.SampleEnd,
			Kind:       kind,
			Message:    msg,
		}
	}

	liquid := universe.SelectLiquid(history.Volumes, win.SampleStart, win.SampleEnd, cfg.Criteria)
	if len(liquid) == 0 {
		return fail(contracts.FailureNoLiquid, "")
	}

	sample := history.Prices.Slice(win.SampleStart, win.SampleEnd).Select(liquid)
	weights, err := contracts.SafeWeights(calc, history.SharesOutstanding, sample)
	if err != nil {
		return fail(contracts.FailureAllocator, err.Error())
	}

	test := history.Prices.Slice(win.SampleEnd.AddDate(0, 0, 1), win.TestEnd)
	sigma, ret, err := Evaluate(weights, test, cfg.TradingDaysPerYear)
	if err != nil {
		return fail(contracts.FailureEvaluate, err.Error())
	}
	return sigma, ret, weights, nil
}
