package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/wonny/portfolio-backtest/internal/allocation"
	"github.com/wonny/portfolio-backtest/internal/backtest"
	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/internal/performance"
	"github.com/wonny/portfolio-backtest/internal/runner"
	"github.com/wonny/portfolio-backtest/internal/strategyconfig"
	"github.com/wonny/portfolio-backtest/pkg/config"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

// BacktestHandler handles backtest API endpoints
// ⭐ SSOT: 백테스트 API 핸들러는 이 구조체에서만
type BacktestHandler struct {
	orchestrator *runner.Orchestrator
	defaults     config.BacktestConfig
	logger       *logger.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(orchestrator *runner.Orchestrator, defaults config.BacktestConfig, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{
		orchestrator: orchestrator,
		defaults:     defaults,
		logger:       log,
	}
}

// BacktestResponse is the JSON rendering of a run. NaN values are null.
type BacktestResponse struct {
	Name       string                   `json:"name"`
	ConfigHash string                   `json:"config_hash"`
	Stages     []string                 `json:"stages"`
	Warnings   []strategyconfig.Warning `json:"warnings"`
	Tickers    []string                 `json:"tickers"`
	Backtest   *BacktestSeries          `json:"backtest,omitempty"`
	Rolling    *RollingSeries           `json:"rolling,omitempty"`
	DurationMs int64                    `json:"duration_ms"`
}

// BacktestSeries holds one entry per rebalance date for each calculator
type BacktestSeries struct {
	Dates       []string                       `json:"dates"`
	Calculators []string                       `json:"calculators"`
	Values      map[string][]*float64          `json:"values"`
	Fees        map[string][]*float64          `json:"fees"`
	Final       map[string]contracts.Portfolio `json:"final_portfolios"`
	Failures    map[string][]contracts.Failure `json:"failures"`
	Summaries   map[string]backtest.Summary    `json:"summaries"`
}

// RollingSeries holds one entry per window for each calculator
type RollingSeries struct {
	Windows     []performance.Window           `json:"windows"`
	Calculators []string                       `json:"calculators"`
	Sigma       map[string][]*float64          `json:"sigma"`
	Returns     map[string][]*float64          `json:"returns"`
	Failures    map[string][]contracts.Failure `json:"failures"`
}

// ListCalculators returns the registered allocators
// GET /api/calculators
func (h *BacktestHandler) ListCalculators(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"calculators": allocation.Catalog(),
	})
}

// Run executes a backtest described by a JSON run file
// POST /api/backtests?rolling=false
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 환경 기본값 위에 요청 본문을 덮어씀
	cfg := strategyconfig.Defaults(h.defaults)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := strategyconfig.Validate(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := runner.Options{}
	if s := r.URL.Query().Get("rolling"); s != "" {
		rolling, err := strconv.ParseBool(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'rolling' parameter (expected true/false)")
			return
		}
		opts.SkipRolling = !rolling
	}

	res, err := h.orchestrator.Run(ctx, &cfg, opts)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.WithError(err).WithField("name", cfg.Meta.Name).Error("Backtest failed")
		respondError(w, http.StatusInternalServerError, "Backtest failed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, newBacktestResponse(res))
}

func newBacktestResponse(res *runner.RunResult) BacktestResponse {
	resp := BacktestResponse{
		Name:       res.Name,
		ConfigHash: res.ConfigHash,
		Stages:     res.CompletedStages,
		Warnings:   res.Warnings,
		Tickers:    res.Tickers,
		DurationMs: res.Duration.Milliseconds(),
	}
	if resp.Warnings == nil {
		resp.Warnings = []strategyconfig.Warning{}
	}

	if bt := res.Backtest; bt != nil {
		dates := make([]string, len(bt.Dates))
		for i, d := range bt.Dates {
			dates[i] = d.Format(time.DateOnly)
		}
		final := make(map[string]contracts.Portfolio, len(bt.Portfolios))
		for name, ps := range bt.Portfolios {
			if len(ps) > 0 {
				final[name] = ps[len(ps)-1]
			}
		}
		resp.Backtest = &BacktestSeries{
			Dates:       dates,
			Calculators: bt.Calculators,
			Values:      nullableSeries(bt.Values),
			Fees:        nullableSeries(bt.Fees),
			Final:       final,
			Failures:    bt.Failures,
			Summaries:   bt.Summaries,
		}
	}

	if rl := res.Rolling; rl != nil {
		resp.Rolling = &RollingSeries{
			Windows:     rl.Windows,
			Calculators: rl.Calculators,
			Sigma:       nullableSeries(rl.Sigma),
			Returns:     nullableSeries(rl.Returns),
			Failures:    rl.Failures,
		}
	}
	return resp
}
