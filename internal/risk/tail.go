package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// CalculateVaR 과거 수익률 기반 VaR 계산 (Historical Simulation)
// returns: 기간 수익률 (양수=이익, 음수=손실), NaN은 무시
// 반환값: 손실을 양수로 표현 (예: 0.05 = 5% 손실 가능)
func CalculateVaR(returns []float64, confidence float64) VaRResult {
	sorted := finite(returns)
	if len(sorted) == 0 {
		return VaRResult{Confidence: confidence}
	}
	sort.Float64s(sorted)

	// (1-confidence) 백분위수, 손실이 앞에
	idx := int(math.Floor((1.0 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return VaRResult{
		Confidence: confidence,
		VaR:        lossOf(sorted[idx]),
		CVaR:       CalculateCVaR(sorted, idx),
	}
}

// CalculateCVaR Expected Shortfall: tail (sorted[0..varIdx]) 평균 손실
func CalculateCVaR(sorted []float64, varIdx int) float64 {
	if len(sorted) == 0 || varIdx < 0 {
		return 0
	}
	if varIdx >= len(sorted) {
		varIdx = len(sorted) - 1
	}
	return lossOf(stat.Mean(sorted[:varIdx+1], nil))
}

// CalculateParametricVaR 정규분포 가정 VaR
func CalculateParametricVaR(mean, stdDev, confidence float64) VaRResult {
	if stdDev <= 0 || math.IsNaN(stdDev) {
		return VaRResult{Confidence: confidence, VaR: lossOf(mean), CVaR: lossOf(mean)}
	}
	z := distuv.UnitNormal.Quantile(1 - confidence)
	varValue := lossOf(mean + z*stdDev)

	// E[R | R < q] = μ − σ·φ(z)/(1−c)
	tailMean := mean - stdDev*distuv.UnitNormal.Prob(z)/(1-confidence)

	return VaRResult{
		Confidence: confidence,
		VaR:        varValue,
		CVaR:       lossOf(tailMean),
	}
}

// Mean 평균 (NaN 제외), 값이 없으면 NaN
func Mean(values []float64) float64 {
	v := finite(values)
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}

// StdDev 표본 표준편차 (NaN 제외), 값이 2개 미만이면 0
func StdDev(values []float64) float64 {
	v := finite(values)
	if len(v) < 2 {
		return 0
	}
	return stat.StdDev(v, nil)
}

// DownsideDeviation 하방 편차 sqrt(mean(min(r, 0)²)), 모든 수익률 기준 (NaN 제외)
// 값이 없으면 0
func DownsideDeviation(returns []float64) float64 {
	v := finite(returns)
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range v {
		if r < 0 {
			sum += r * r
		}
	}
	return math.Sqrt(sum / float64(len(v)))
}

// Percentile p 분위수 (0 ≤ p ≤ 1, NaN 제외, 선형 보간 없음), 값이 없으면 NaN
func Percentile(values []float64, p float64) float64 {
	v := finite(values)
	if len(v) == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	return stat.Quantile(p, stat.Empirical, v, nil)
}

func lossOf(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
