package allocation

import (
	"fmt"
	"math"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

const (
	// weights below this are zeroed
	cleanCutoff = 1e-4
	// decimal places kept by cleanWeights
	cleanPlaces = 5
)

// cleanWeights zeroes |w| < 1e-4, rounds to 5 places and drops zeros
func cleanWeights(cols []string, w []float64) contracts.Weights {
	scale := math.Pow(10, cleanPlaces)
	out := make(contracts.Weights, len(cols))
	for i, col := range cols {
		v := w[i]
		if math.Abs(v) < cleanCutoff {
			continue
		}
		v = math.RoundToEven(v*scale) / scale
		if v != 0 {
			out[col] = v
		}
	}
	return out
}

// pricedColumns keeps the columns that have at least one finite price
func pricedColumns(prices *timeseries.Table) []string {
	cols := make([]string, 0, prices.Width())
	for _, col := range prices.Columns() {
		values, _ := prices.Column(col)
		for _, v := range values {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				cols = append(cols, col)
				break
			}
		}
	}
	return cols
}

// returnsSample prepares the daily returns an optimizer works on
func returnsSample(prices *timeseries.Table) ([]string, *timeseries.Table, error) {
	cols := pricedColumns(prices)
	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("%w: no priced assets", ErrInvalidInput)
	}
	returns := prices.Select(cols).Returns()
	if returns.Len() < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 return rows, got %d", ErrInvalidInput, returns.Len())
	}
	return cols, returns, nil
}

// softmax maps unconstrained z onto the long-only simplex
func softmax(dst, z []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(z))
	}
	maxZ := math.Inf(-1)
	for _, v := range z {
		if v > maxZ {
			maxZ = v
		}
	}
	sum := 0.0
	for i, v := range z {
		dst[i] = math.Exp(v - maxZ)
		sum += dst[i]
	}
	for i := range dst {
		dst[i] /= sum
	}
	return dst
}
