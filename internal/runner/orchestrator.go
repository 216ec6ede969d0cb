// Package runner turns a run file into a loaded history, a backtest and a rolling evaluation
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/portfolio-backtest/internal/allocation"
	"github.com/wonny/portfolio-backtest/internal/backtest"
	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/internal/performance"
	"github.com/wonny/portfolio-backtest/internal/strategyconfig"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

// Stage names reported in RunResult.CompletedStages
const (
	StageLoad     = "load"
	StageBacktest = "backtest"
	StageRolling  = "rolling"
)

// Orchestrator coordinates one run: load → backtest → rolling
// ⭐ SSOT: 실행 조율은 여기서만
type Orchestrator struct {
	source  marketdata.Source
	engine  *backtest.Engine
	rolling *performance.Rolling
	logger  *logger.Logger
}

// Options selects the stages of a run
type Options struct {
	SkipBacktest bool
	SkipRolling  bool // rolling also runs only when performance.sample_days > 0
}

// RunResult holds the results of a complete run
type RunResult struct {
	Name            string
	ConfigHash      string
	CompletedStages []string
	Warnings        []strategyconfig.Warning
	Tickers         []string
	Backtest        *backtest.Result
	Rolling         *performance.RollingResult
	Duration        time.Duration
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(source marketdata.Source, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		source:  source,
		engine:  backtest.NewEngine(log.WithField("module", "backtest")),
		rolling: performance.NewRolling(log.WithField("module", "performance")),
		logger:  log.WithField("module", "runner"),
	}
}

// Run executes the stages cfg and opts ask for
func (o *Orchestrator) Run(ctx context.Context, cfg *strategyconfig.Config, opts Options) (*RunResult, error) {
	startTime := time.Now()

	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}

	result := &RunResult{
		Name:            cfg.Meta.Name,
		ConfigHash:      hash,
		CompletedStages: make([]string, 0, 3),
		Warnings:        strategyconfig.Warn(cfg),
	}
	for _, w := range result.Warnings {
		o.logger.WithField("code", w.Code).Warn(w.Message)
	}

	calculators, err := allocation.Resolve(cfg.Calculators)
	if err != nil {
		return nil, err
	}

	o.logger.WithFields(map[string]interface{}{
		"name":        cfg.Meta.Name,
		"config_hash": hash[:12],
		"source":      o.source.Name(),
	}).Info("Starting run")

	// Stage: load
	history, err := o.source.Load(ctx, cfg.Universe.Tickers)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	result.Tickers = history.Tickers()
	result.CompletedStages = append(result.CompletedStages, StageLoad)

	// Stage: backtest
	if !opts.SkipBacktest {
		result.Backtest, err = o.Backtest(ctx, cfg, calculators, history)
		if err != nil {
			return nil, err
		}
		result.CompletedStages = append(result.CompletedStages, StageBacktest)
	}

	// Stage: rolling
	if !opts.SkipRolling && cfg.Performance.Enabled() {
		result.Rolling, err = o.Rolling(ctx, cfg, calculators, history)
		if err != nil {
			return nil, err
		}
		result.CompletedStages = append(result.CompletedStages, StageRolling)
	}

	result.Duration = time.Since(startTime)
	o.logger.WithFields(map[string]interface{}{
		"stages":   result.CompletedStages,
		"duration": result.Duration.Seconds(),
	}).Info("Run completed")

	return result, nil
}

// Backtest runs the periodic rebalance comparison on an already loaded history
func (o *Orchestrator) Backtest(
	ctx context.Context,
	cfg *strategyconfig.Config,
	calculators []contracts.WeightAllocator,
	history *contracts.SharesHistory,
) (*backtest.Result, error) {
	dates, err := backtest.RebalanceDates(cfg.Backtest.Start.Time, cfg.Backtest.End.Time, cfg.Backtest.RebalancePeriodDays)
	if err != nil {
		return nil, err
	}

	res, err := o.engine.Run(ctx, backtest.Request{
		Calculators:    calculators,
		Tickers:        cfg.Universe.Tickers,
		InitialCash:    cfg.Backtest.InitialCash,
		RebalanceDates: dates,
		FeesPercent:    cfg.Backtest.FeesPercent,
		Criteria:       cfg.Universe.Criteria(),
		Parallel:       cfg.Backtest.Parallel,
	}, history)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	return res, nil
}

// Rolling runs the rolling sample/test evaluation on an already loaded history
func (o *Orchestrator) Rolling(
	ctx context.Context,
	cfg *strategyconfig.Config,
	calculators []contracts.WeightAllocator,
	history *contracts.SharesHistory,
) (*performance.RollingResult, error) {
	res, err := o.rolling.Run(ctx, calculators, history, performance.RollingConfig{
		Start:              cfg.Backtest.Start.Time,
		End:                cfg.Backtest.End.Time,
		SampleDays:         cfg.Performance.SampleDays,
		TestDays:           cfg.Performance.TestDays,
		StepDays:           cfg.Performance.StepDays,
		TradingDaysPerYear: cfg.Performance.TradingDaysPerYear,
		Criteria:           cfg.Universe.Criteria(),
		Parallel:           cfg.Performance.Parallel,
	})
	if err != nil {
		return nil, fmt.Errorf("rolling evaluation: %w", err)
	}
	return res, nil
}
