package allocation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// simplexProblem is an objective over long-only weights summing to 1
type simplexProblem struct {
	n    int
	f    func(w []float64) float64
	grad func(g, w []float64) // ∂f/∂w
}

var convergedStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
	optimize.StepConvergence:     true,
	optimize.MethodConverge:      true,
}

// solve minimizes p with w = softmax(z), BFGS first and Nelder-Mead as fallback.
// Starts from equal weights.
func (p simplexProblem) solve() ([]float64, error) {
	w := make([]float64, p.n)
	gw := make([]float64, p.n)

	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			return p.f(softmax(w, z))
		},
		Grad: func(grad, z []float64) {
			softmax(w, z)
			p.grad(gw, w)
			// chain rule through softmax: ∂f/∂z_i = w_i (g_i − wᵀg)
			dot := 0.0
			for i := range w {
				dot += w[i] * gw[i]
			}
			for i := range w {
				grad[i] = w[i] * (gw[i] - dot)
			}
		},
	}

	initial := make([]float64, p.n)

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !convergedStatuses[result.Status] || !finiteAll(result.X) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOptimization, err)
		}
		if !convergedStatuses[result.Status] {
			return nil, fmt.Errorf("%w: did not converge, status=%v", ErrOptimization, result.Status)
		}
	}

	weights := softmax(nil, result.X)
	if !finiteAll(weights) {
		return nil, fmt.Errorf("%w: non-finite weights", ErrOptimization)
	}
	return weights, nil
}

func finiteAll(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
