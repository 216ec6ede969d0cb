package allocation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/risk"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// TradingDaysPerYear annualises daily risk models
const TradingDaysPerYear = 252

// MinVolatility finds the long-only portfolio with minimal wᵀΣw
type MinVolatility struct {
	name      string
	estimator risk.Estimator
}

// NewLedoitWolfMinVol minimises volatility under a Ledoit-Wolf shrunk covariance
func NewLedoitWolfMinVol() *MinVolatility {
	return &MinVolatility{name: NameLedoitWolf, estimator: risk.EstimatorLedoitWolf}
}

// NewExpCovMinVol minimises volatility under an exponentially weighted covariance
func NewExpCovMinVol() *MinVolatility {
	return &MinVolatility{name: NameExpCov, estimator: risk.EstimatorExponential}
}

// Name returns the registry name
func (m *MinVolatility) Name() string { return m.name }

// Weights solves min wᵀΣw s.t. Σw = 1, w ≥ 0
func (m *MinVolatility) Weights(_ map[string]float64, prices *timeseries.Table) (contracts.Weights, error) {
	cols, returns, err := returnsSample(prices)
	if err != nil {
		return nil, err
	}
	if len(cols) == 1 {
		return contracts.Weights{cols[0]: 1}, nil
	}

	daily, err := risk.Covariance(returns, m.estimator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	sigma := risk.Annualize(daily, TradingDaysPerYear)

	w, err := minVolatility(sigma)
	if err != nil {
		return nil, err
	}
	return cleanWeights(cols, w), nil
}

func minVolatility(sigma *mat.SymDense) ([]float64, error) {
	n := sigma.SymmetricDim()
	sw := mat.NewVecDense(n, nil)

	return simplexProblem{
		n: n,
		f: func(w []float64) float64 {
			return risk.PortfolioVariance(sigma, w)
		},
		grad: func(g, w []float64) {
			sw.MulVec(sigma, mat.NewVecDense(n, w))
			for i := 0; i < n; i++ {
				g[i] = 2 * sw.AtVec(i)
			}
		},
	}.solve()
}
