package allocation

import (
	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// EqualWeight gives 1/N to every price column
type EqualWeight struct{}

// Name returns the registry name
func (EqualWeight) Name() string { return NameEqual }

// Weights returns 1/N per column, empty when there are no columns
func (EqualWeight) Weights(_ map[string]float64, prices *timeseries.Table) (contracts.Weights, error) {
	cols := prices.Columns()
	weights := make(contracts.Weights, len(cols))
	for _, col := range cols {
		weights[col] = 1.0 / float64(len(cols))
	}
	return weights, nil
}
