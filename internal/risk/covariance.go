package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// Covariance estimates a daily covariance matrix from a returns table.
// Columns keep the table order.
func Covariance(returns *timeseries.Table, estimator Estimator) (*mat.SymDense, error) {
	switch estimator {
	case EstimatorSample:
		return SampleCovariance(returns)
	case EstimatorLedoitWolf:
		cov, _, err := LedoitWolf(returns)
		return cov, err
	case EstimatorExponential:
		return ExponentialCovariance(returns, DefaultSpan)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEstimator, estimator)
	}
}

// ReturnsMatrix converts returns to a T×N matrix, NaN → 0
func ReturnsMatrix(returns *timeseries.Table) *mat.Dense {
	rows, cols := returns.Len(), returns.Width()
	if rows == 0 || cols == 0 {
		return nil
	}
	m := mat.NewDense(rows, cols, nil)
	for j, name := range returns.Columns() {
		col, _ := returns.Column(name)
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			m.Set(i, j, v)
		}
	}
	return m
}

// SampleCovariance returns the unbiased sample covariance
func SampleCovariance(returns *timeseries.Table) (*mat.SymDense, error) {
	x, err := checkedMatrix(returns)
	if err != nil {
		return nil, err
	}
	_, n := x.Dims()
	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, x, nil)
	return cov, nil
}

// LedoitWolf shrinks the biased empirical covariance towards μ·I with the
// Ledoit-Wolf optimal intensity. Returns the matrix and the shrinkage used.
func LedoitWolf(returns *timeseries.Table) (*mat.SymDense, float64, error) {
	x, err := checkedMatrix(returns)
	if err != nil {
		return nil, 0, err
	}
	t, n := x.Dims()
	centre(x)

	nf, tf := float64(n), float64(t)

	// emp = XᵀX / T
	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())

	if n == 1 {
		cov := mat.NewSymDense(1, []float64{xtx.At(0, 0) / tf})
		return cov, 0, nil
	}

	trace := 0.0
	for j := 0; j < n; j++ {
		trace += xtx.At(j, j) / tf
	}
	mu := trace / nf

	// β_ = Σ(X²ᵀX²) = Σ_t (Σ_j x_tj²)²
	betaRaw := 0.0
	for i := 0; i < t; i++ {
		rowSq := 0.0
		for j := 0; j < n; j++ {
			v := x.At(i, j)
			rowSq += v * v
		}
		betaRaw += rowSq * rowSq
	}

	// δ_ = Σ((XᵀX)²) / T²
	deltaRaw := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := xtx.At(i, j)
			deltaRaw += v * v
		}
	}
	deltaRaw /= tf * tf

	beta := (betaRaw/tf - deltaRaw) / (nf * tf)
	delta := (deltaRaw - 2*mu*trace + nf*mu*mu) / nf
	beta = math.Min(beta, delta)

	shrinkage := 0.0
	if beta != 0 && delta != 0 {
		shrinkage = beta / delta
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (1 - shrinkage) * xtx.At(i, j) / tf
			if i == j {
				v += shrinkage * mu
			}
			cov.SetSym(i, j, v)
		}
	}
	return cov, shrinkage, nil
}

// ExponentialCovariance weights recent co-movements more heavily: each pair is
// the EWM (adjusted, α = 2/(span+1)) of the centred cross-products, last value.
func ExponentialCovariance(returns *timeseries.Table, span int) (*mat.SymDense, error) {
	if span < 1 {
		return nil, fmt.Errorf("span must be ≥ 1, got %d", span)
	}
	x, err := checkedMatrix(returns)
	if err != nil {
		return nil, err
	}
	t, n := x.Dims()
	centre(x)

	alpha := 2.0 / (float64(span) + 1)
	weights := make([]float64, t)
	norm := 0.0
	for i := 0; i < t; i++ {
		// newest row gets weight 1
		weights[i] = math.Pow(1-alpha, float64(t-1-i))
		norm += weights[i]
	}

	cov := mat.NewSymDense(n, nil)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			s := 0.0
			for i := 0; i < t; i++ {
				s += weights[i] * x.At(i, a) * x.At(i, b)
			}
			cov.SetSym(a, b, s/norm)
		}
	}
	return cov, nil
}

// Annualize returns cov scaled by periodsPerYear
func Annualize(cov *mat.SymDense, periodsPerYear float64) *mat.SymDense {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.ScaleSym(periodsPerYear, cov)
	return out
}

// PortfolioVariance returns wᵀΣw
func PortfolioVariance(cov *mat.SymDense, w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, cov, v)
}

func checkedMatrix(returns *timeseries.Table) (*mat.Dense, error) {
	if returns.Width() < 1 || returns.Len() < 2 {
		return nil, fmt.Errorf("%w: %d rows × %d assets", ErrInsufficientData, returns.Len(), returns.Width())
	}
	return ReturnsMatrix(returns), nil
}

// centre subtracts each column mean in place
func centre(x *mat.Dense) {
	t, n := x.Dims()
	col := make([]float64, t)
	for j := 0; j < n; j++ {
		mat.Col(col, j, x)
		m := stat.Mean(col, nil)
		for i := 0; i < t; i++ {
			x.Set(i, j, col[i]-m)
		}
	}
}
