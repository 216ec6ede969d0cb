package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateVaR(t *testing.T) {
	returns := []float64{-0.10, -0.05, -0.02, 0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07,
		0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07, 0.08, 0.09, 0.10}

	result := CalculateVaR(returns, 0.95)
	// floor(0.05 × 20) = 1 → sorted[1] = -0.05
	assert.Equal(t, 0.95, result.Confidence)
	assert.InDelta(t, 0.05, result.VaR, 1e-12)
	assert.InDelta(t, 0.075, result.CVaR, 1e-12)
}

func TestCalculateVaR_SkipsNaNAndHandlesEmpty(t *testing.T) {
	empty := CalculateVaR(nil, 0.95)
	assert.Equal(t, 0.0, empty.VaR)

	onlyNaN := CalculateVaR([]float64{math.NaN()}, 0.95)
	assert.Equal(t, 0.0, onlyNaN.VaR)

	gains := CalculateVaR([]float64{0.01, math.NaN(), 0.02}, 0.95)
	assert.Equal(t, 0.0, gains.VaR, "no losses, no VaR")
	assert.Equal(t, 0.0, gains.CVaR)
}

func TestCalculateParametricVaR(t *testing.T) {
	result := CalculateParametricVaR(0, 0.02, 0.95)
	assert.InDelta(t, 1.6449*0.02, result.VaR, 1e-5)
	assert.Greater(t, result.CVaR, result.VaR)

	flat := CalculateParametricVaR(-0.01, 0, 0.95)
	assert.InDelta(t, 0.01, flat.VaR, 1e-12)
}

func TestMeanStdDev(t *testing.T) {
	values := []float64{1, 2, math.NaN(), 3, 4}

	assert.Equal(t, 2.5, Mean(values))
	assert.InDelta(t, math.Sqrt(5.0/3.0), StdDev(values), 1e-12)
	assert.True(t, math.IsNaN(Mean(nil)))
	assert.Equal(t, 0.0, StdDev([]float64{1}))
}

func TestPercentile(t *testing.T) {
	values := []float64{5, 1, math.NaN(), 3, 2, 4}

	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 3.0, Percentile(values, 0.5))
	assert.Equal(t, 5.0, Percentile(values, 1))
	assert.True(t, math.IsNaN(Percentile([]float64{math.NaN()}, 0.5)))
}

func TestDownsideDeviation(t *testing.T) {
	// one loss among four returns: sqrt(0.01/4)
	assert.InDelta(t, 0.05, DownsideDeviation([]float64{0.1, -0.1, 0.2, math.NaN(), 0.05}), 1e-12)
	assert.Equal(t, 0.0, DownsideDeviation([]float64{0.01, 0.02}))
	assert.Equal(t, 0.0, DownsideDeviation(nil))
}
