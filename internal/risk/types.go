package risk

import "errors"

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrUnknownEstimator = errors.New("unknown covariance estimator")
)

// VaRConvention VaR 부호 규약
// ⭐ SSOT: Loss를 양수로 표현 (VaR=0.05 → 5% 손실 가능)
const VaRConvention = "loss_positive"

// VaRResult VaR 계산 결과
// - VaR=0.05 → 95% 신뢰수준에서 최대 5% 손실 가능
// - CVaR=0.07 → 5% tail에서 평균 7% 손실 예상
type VaRResult struct {
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
}

// Estimator names a covariance estimator
type Estimator string

const (
	EstimatorSample      Estimator = "sample"
	EstimatorLedoitWolf  Estimator = "ledoit_wolf"
	EstimatorExponential Estimator = "exponential"
)

// DefaultSpan is the EWM span used for the exponential estimator
const DefaultSpan = 179
