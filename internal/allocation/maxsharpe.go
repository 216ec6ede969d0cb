package allocation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/risk"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// DefaultRiskFreeRate is the annual risk-free rate used by MaxSharpe
const DefaultRiskFreeRate = 0.02

// MaxSharpe maximises (μᵀw − r_f)/√(wᵀΣw) with CAPM expected returns
// and a Ledoit-Wolf covariance
type MaxSharpe struct {
	RiskFreeRate float64
}

// NewMaxSharpe creates the allocator with the default risk-free rate
func NewMaxSharpe() *MaxSharpe {
	return &MaxSharpe{RiskFreeRate: DefaultRiskFreeRate}
}

// Name returns the registry name
func (m *MaxSharpe) Name() string { return NameMaxSharpe }

// Weights solves the tangency portfolio, long-only
func (m *MaxSharpe) Weights(_ map[string]float64, prices *timeseries.Table) (contracts.Weights, error) {
	cols, returns, err := returnsSample(prices)
	if err != nil {
		return nil, err
	}

	mu, err := CAPMReturns(returns, m.RiskFreeRate, TradingDaysPerYear)
	if err != nil {
		return nil, err
	}

	beats := false
	for _, r := range mu {
		if r > m.RiskFreeRate {
			beats = true
			break
		}
	}
	if !beats {
		return nil, fmt.Errorf("%w: no asset has expected return above the risk-free rate %.4f", ErrInvalidInput, m.RiskFreeRate)
	}
	if len(cols) == 1 {
		return contracts.Weights{cols[0]: 1}, nil
	}

	daily, _, err := risk.LedoitWolf(returns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	sigma := risk.Annualize(daily, TradingDaysPerYear)

	w, err := maxSharpe(mu, sigma, m.RiskFreeRate)
	if err != nil {
		return nil, err
	}
	return cleanWeights(cols, w), nil
}

// CAPMReturns estimates annual expected returns r_f + β(E[R_m] − r_f), where the
// market is the equal-weighted average of the assets and E[R_m] is its
// compounded annual return over the sample
func CAPMReturns(returns *timeseries.Table, riskFree float64, periodsPerYear int) ([]float64, error) {
	x := risk.ReturnsMatrix(returns)
	if x == nil {
		return nil, fmt.Errorf("%w: empty returns", ErrInvalidInput)
	}
	t, n := x.Dims()

	market := make([]float64, t)
	for i := 0; i < t; i++ {
		market[i] = stat.Mean(x.RawRowView(i), nil)
	}
	marketVar := stat.Variance(market, nil)
	if marketVar == 0 || math.IsNaN(marketVar) {
		return nil, fmt.Errorf("%w: market returns have no variance", ErrInvalidInput)
	}

	growth := 1.0
	for _, r := range market {
		growth *= 1 + r
	}
	marketReturn := math.Pow(growth, float64(periodsPerYear)/float64(t)) - 1

	mu := make([]float64, n)
	col := make([]float64, t)
	for j := 0; j < n; j++ {
		mat.Col(col, j, x)
		beta := stat.Covariance(col, market, nil) / marketVar
		mu[j] = riskFree + beta*(marketReturn-riskFree)
	}
	return mu, nil
}

func maxSharpe(mu []float64, sigma *mat.SymDense, riskFree float64) ([]float64, error) {
	n := len(mu)
	muVec := mat.NewVecDense(n, mu)
	sw := mat.NewVecDense(n, nil)

	const minVariance = 1e-12

	return simplexProblem{
		n: n,
		f: func(w []float64) float64 {
			wv := mat.NewVecDense(n, w)
			excess := mat.Dot(muVec, wv) - riskFree
			sd := math.Sqrt(math.Max(risk.PortfolioVariance(sigma, w), minVariance))
			return -excess / sd
		},
		grad: func(g, w []float64) {
			wv := mat.NewVecDense(n, w)
			excess := mat.Dot(muVec, wv) - riskFree
			sw.MulVec(sigma, wv)
			variance := math.Max(mat.Dot(wv, sw), minVariance)
			sd := math.Sqrt(variance)
			for i := 0; i < n; i++ {
				g[i] = -mu[i]/sd + excess*sw.AtVec(i)/(variance*sd)
			}
		},
	}.solve()
}
