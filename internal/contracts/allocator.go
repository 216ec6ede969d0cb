package contracts

import (
	"fmt"

	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// WeightAllocator produces target weights from a price sample
// ⭐ 계약: 실패는 error로 반환 (드라이버가 복구 경로로 변환)
type WeightAllocator interface {
	// Name identifies the allocator in results and logs
	Name() string

	// Weights returns target weights for the columns of prices.
	// An empty result means "hold cash".
	Weights(sharesOutstanding map[string]float64, prices *timeseries.Table) (Weights, error)
}

// AllocatorFunc adapts a plain function to WeightAllocator
type AllocatorFunc struct {
	Label string
	Fn    func(sharesOutstanding map[string]float64, prices *timeseries.Table) (Weights, error)
}

// Name returns the label
func (f AllocatorFunc) Name() string {
	return f.Label
}

// Weights calls the wrapped function
func (f AllocatorFunc) Weights(sharesOutstanding map[string]float64, prices *timeseries.Table) (Weights, error) {
	return f.Fn(sharesOutstanding, prices)
}

// SafeWeights calls the allocator and turns a panic into an error
func SafeWeights(calc WeightAllocator, sharesOutstanding map[string]float64, prices *timeseries.Table) (w Weights, err error) {
	defer func() {
		if r := recover(); r != nil {
			w, err = nil, fmt.Errorf("allocator %s panicked: %v", calc.Name(), r)
		}
	}()
	return calc.Weights(sharesOutstanding, prices)
}
