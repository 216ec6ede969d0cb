package backtest

import (
	"math"
	"time"

	"github.com/wonny/portfolio-backtest/internal/risk"
)

// SummaryConfidence is the VaR/CVaR confidence level reported in summaries
const SummaryConfidence = 0.95

// Summary holds performance metrics of one value history
type Summary struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	InitialValue     float64   `json:"initial_value"`
	FinalValue       float64   `json:"final_value"`
	TotalReturn      float64   `json:"total_return"`
	AnnualizedReturn float64   `json:"annualized_return"`
	CAGR             float64   `json:"cagr"`
	Volatility       float64   `json:"volatility"`
	SharpeRatio      float64   `json:"sharpe_ratio"`
	SortinoRatio     float64   `json:"sortino_ratio"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	VaR              float64   `json:"var_95"`
	CVaR             float64   `json:"cvar_95"`
	ParametricVaR    float64   `json:"parametric_var_95"`
	ParametricCVaR   float64   `json:"parametric_cvar_95"`

	TotalFees  float64 `json:"total_fees"`
	Rebalances int     `json:"rebalances"`
	Failures   int     `json:"failures"`
}

// Summarize calculates performance metrics from a value history.
// Non-finite or non-positive values are skipped; the risk-free rate is 0.
func Summarize(dates []time.Time, values []float64) Summary {
	curve := make([]point, 0, len(values))
	for i, v := range values {
		if i >= len(dates) || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		curve = append(curve, point{date: dates[i], value: v})
	}

	var s Summary
	if len(curve) == 0 {
		return s
	}

	first, last := curve[0], curve[len(curve)-1]
	s.Start, s.End = first.date, last.date
	s.InitialValue, s.FinalValue = first.value, last.value
	s.TotalReturn = last.value/first.value - 1

	if len(curve) < 2 {
		return s
	}

	years := last.date.Sub(first.date).Hours() / 24 / 365.25
	if years > 0 {
		s.AnnualizedReturn = s.TotalReturn / years
		s.CAGR = math.Pow(last.value/first.value, 1.0/years) - 1.0
	}

	// 기간 수익률 (리밸런싱 간격)
	periodReturns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		periodReturns = append(periodReturns, curve[i].value/curve[i-1].value-1)
	}

	periodsPerYear := 0.0
	if years > 0 {
		periodsPerYear = float64(len(periodReturns)) / years
	}

	s.Volatility = risk.StdDev(periodReturns) * math.Sqrt(periodsPerYear)
	if s.Volatility > 0 {
		s.SharpeRatio = s.AnnualizedReturn / s.Volatility
	}

	downsideDeviation := risk.DownsideDeviation(periodReturns) * math.Sqrt(periodsPerYear)
	if downsideDeviation > 0 {
		s.SortinoRatio = s.AnnualizedReturn / downsideDeviation
	}

	s.MaxDrawdown = maxDrawdown(curve)

	tail := risk.CalculateVaR(periodReturns, SummaryConfidence)
	s.VaR, s.CVaR = tail.VaR, tail.CVaR

	normal := risk.CalculateParametricVaR(risk.Mean(periodReturns), risk.StdDev(periodReturns), SummaryConfidence)
	s.ParametricVaR, s.ParametricCVaR = normal.VaR, normal.CVaR

	return s
}

type point struct {
	date  time.Time
	value float64
}

// maxDrawdown returns the largest peak-to-trough loss as a positive fraction
func maxDrawdown(curve []point) float64 {
	if len(curve) == 0 {
		return 0
	}

	maxDD := 0.0
	peak := curve[0].value

	for _, p := range curve {
		if p.value > peak {
			peak = p.value
		}

		drawdown := (peak - p.value) / peak
		if drawdown > maxDD {
			maxDD = drawdown
		}
	}

	return maxDD
}
