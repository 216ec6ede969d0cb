package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/portfolio-backtest/internal/risk"
)

func yearly(n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = time.Date(2010+i, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return dates
}

func TestSummarize(t *testing.T) {
	s := Summarize(yearly(4), []float64{100, 110, 99, 121})

	assert.Equal(t, 100.0, s.InitialValue)
	assert.Equal(t, 121.0, s.FinalValue)
	assert.InDelta(t, 0.21, s.TotalReturn, 1e-12)
	assert.InDelta(t, 0.1, s.MaxDrawdown, 1e-12)
	years := s.End.Sub(s.Start).Hours() / 24 / 365.25
	assert.InDelta(t, math.Pow(1.21, 1/years)-1, s.CAGR, 1e-9)
	assert.Greater(t, s.Volatility, 0.0)
	assert.Greater(t, s.SharpeRatio, 0.0)
	assert.Greater(t, s.SortinoRatio, 0.0)

	// one losing period (−10%) among three: downside deviation sqrt(0.01/3)
	periodsPerYear := 3 / years
	downside := math.Sqrt(0.01/3) * math.Sqrt(periodsPerYear)
	assert.InDelta(t, s.AnnualizedReturn/downside, s.SortinoRatio, 1e-9)

	// worst period return is 99/110 − 1 = −10%
	assert.InDelta(t, 0.1, s.VaR, 1e-12)
	assert.InDelta(t, 0.1, s.CVaR, 1e-12)

	returns := []float64{0.1, -0.1, 121.0/99 - 1}
	normal := risk.CalculateParametricVaR(risk.Mean(returns), risk.StdDev(returns), SummaryConfidence)
	assert.InDelta(t, normal.VaR, s.ParametricVaR, 1e-12)
	assert.InDelta(t, normal.CVaR, s.ParametricCVaR, 1e-12)
	assert.GreaterOrEqual(t, s.ParametricCVaR, s.ParametricVaR)
}

func TestSummarize_SkipsNaN(t *testing.T) {
	s := Summarize(yearly(4), []float64{math.NaN(), 100, math.NaN(), 150})
	assert.Equal(t, 100.0, s.InitialValue)
	assert.Equal(t, yearly(4)[1], s.Start)
	assert.InDelta(t, 0.5, s.TotalReturn, 1e-12)
	assert.Equal(t, 0.0, s.MaxDrawdown)
}

func TestSummarize_Degenerate(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil, nil))

	s := Summarize(yearly(1), []float64{100})
	assert.Equal(t, 100.0, s.FinalValue)
	assert.Equal(t, 0.0, s.Volatility)

	flat := Summarize(yearly(3), []float64{100, 100, 100})
	assert.Equal(t, 0.0, flat.Volatility)
	assert.Equal(t, 0.0, flat.SharpeRatio)
	assert.Equal(t, 0.0, flat.MaxDrawdown)
}
