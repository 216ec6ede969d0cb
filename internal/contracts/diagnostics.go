package contracts

import (
	"fmt"
	"time"
)

// FailureKind classifies a period the drivers could not rebalance or evaluate
type FailureKind string

const (
	FailureAllocator FailureKind = "allocator_failed"  // allocator returned an error or panicked
	FailureNoLiquid  FailureKind = "no_liquid_tickers" // nothing passed the liquidity filter
	FailureNoPrices  FailureKind = "no_prices"         // no price row at or before the period end
	FailureEvaluate  FailureKind = "evaluation_failed" // weights could not be evaluated on the test window
)

// Failure records one recovered period
// ⭐ 계약: 복구 가능한 실패는 error가 아니라 이 값으로 반환 (전역 출력 금지)
type Failure struct {
	Calculator string      `json:"calculator"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message,omitempty"`
}

func (f Failure) String() string {
	s := fmt.Sprintf("%s %s..%s %s", f.Calculator, f.Start.Format("2006-01-02"), f.End.Format("2006-01-02"), f.Kind)
	if f.Message != "" {
		s += ": " + f.Message
	}
	return s
}

// FailureDates returns the period end dates of the failures, formatted
func FailureDates(failures []Failure) []string {
	dates := make([]string, len(failures))
	for i, f := range failures {
		dates[i] = f.End.Format("2006-01-02")
	}
	return dates
}
