package allocation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/risk"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// HierarchicalRiskParity allocates by recursive bisection over a
// single-linkage correlation dendrogram
type HierarchicalRiskParity struct{}

// Name returns the registry name
func (HierarchicalRiskParity) Name() string { return NameHRP }

// Weights runs HRP on the sample covariance of daily returns:
// 1) distance d_ij = √((1 − ρ_ij)/2)
// 2) single-linkage clustering (ties broken by lowest leaf index)
// 3) quasi-diagonal leaf order
// 4) recursive bisection with inverse-variance cluster variance
func (HierarchicalRiskParity) Weights(_ map[string]float64, prices *timeseries.Table) (contracts.Weights, error) {
	cols, returns, err := returnsSample(prices)
	if err != nil {
		return nil, err
	}
	if len(cols) == 1 {
		return contracts.Weights{cols[0]: 1}, nil
	}

	cov, err := risk.SampleCovariance(returns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	order := quasiDiagonalOrder(buildDendrogram(correlationDistance(cov)))

	w := make([]float64, len(cols))
	for i := range w {
		w[i] = 1
	}
	bisect(w, cov, order)

	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: invalid HRP weight sum %v", ErrOptimization, sum)
	}
	for i := range w {
		w[i] /= sum
	}
	return cleanWeights(cols, w), nil
}

type clusterNode struct {
	left, right *clusterNode
	leaves      []int
	minLeaf     int
}

// correlationDistance turns covariance into √((1−ρ)/2); zero-variance assets get ρ = 0
func correlationDistance(cov *mat.SymDense) [][]float64 {
	n := cov.SymmetricDim()
	dist := make([][]float64, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			rho := 0.0
			if denom := math.Sqrt(cov.At(i, i) * cov.At(j, j)); denom > 0 {
				rho = cov.At(i, j) / denom
			}
			dist[i][j] = math.Sqrt(math.Min(math.Max((1-rho)/2, 0), 1))
		}
	}
	return dist
}

func buildDendrogram(dist [][]float64) *clusterNode {
	clusters := make([]*clusterNode, len(dist))
	for i := range dist {
		clusters[i] = &clusterNode{leaves: []int{i}, minLeaf: i}
	}

	for len(clusters) > 1 {
		bestI, bestJ := 0, 1
		bestD := linkageDistance(dist, clusters[0], clusters[1])
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := linkageDistance(dist, clusters[i], clusters[j])
				if d < bestD || (d == bestD && pairLess(clusters[i], clusters[j], clusters[bestI], clusters[bestJ])) {
					bestD, bestI, bestJ = d, i, j
				}
			}
		}

		left, right := clusters[bestI], clusters[bestJ]
		if right.minLeaf < left.minLeaf {
			left, right = right, left
		}
		merged := &clusterNode{
			left:    left,
			right:   right,
			leaves:  append(append([]int(nil), left.leaves...), right.leaves...),
			minLeaf: left.minLeaf,
		}

		next := make([]*clusterNode, 0, len(clusters)-1)
		for k, c := range clusters {
			if k != bestI && k != bestJ {
				next = append(next, c)
			}
		}
		clusters = append(next, merged)
	}
	return clusters[0]
}

// linkageDistance is the single-linkage (nearest pair) distance
func linkageDistance(dist [][]float64, a, b *clusterNode) float64 {
	best := math.Inf(1)
	for _, i := range a.leaves {
		for _, j := range b.leaves {
			if dist[i][j] < best {
				best = dist[i][j]
			}
		}
	}
	return best
}

func pairLess(a1, b1, a2, b2 *clusterNode) bool {
	x1, y1 := a1.minLeaf, b1.minLeaf
	if y1 < x1 {
		x1, y1 = y1, x1
	}
	x2, y2 := a2.minLeaf, b2.minLeaf
	if y2 < x2 {
		x2, y2 = y2, x2
	}
	if x1 != x2 {
		return x1 < x2
	}
	return y1 < y2
}

func quasiDiagonalOrder(node *clusterNode) []int {
	if node.left == nil && node.right == nil {
		return []int{node.leaves[0]}
	}
	return append(quasiDiagonalOrder(node.left), quasiDiagonalOrder(node.right)...)
}

// bisect splits order in halves and moves weight toward the less risky half
func bisect(w []float64, cov *mat.SymDense, order []int) {
	if len(order) <= 1 {
		return
	}
	split := len(order) / 2
	left, right := order[:split], order[split:]

	vLeft := clusterVariance(cov, left)
	vRight := clusterVariance(cov, right)

	alpha := 0.5
	if vLeft+vRight > 0 {
		alpha = 1 - vLeft/(vLeft+vRight)
	}

	for _, i := range left {
		w[i] *= alpha
	}
	for _, i := range right {
		w[i] *= 1 - alpha
	}
	bisect(w, cov, left)
	bisect(w, cov, right)
}

// clusterVariance is wᵀΣw of the inverse-variance portfolio inside the cluster
func clusterVariance(cov *mat.SymDense, idx []int) float64 {
	const eps = 1e-12

	ivp := make([]float64, len(idx))
	sum := 0.0
	for k, i := range idx {
		ivp[k] = 1 / math.Max(cov.At(i, i), eps)
		sum += ivp[k]
	}
	for k := range ivp {
		ivp[k] /= sum
	}

	v := 0.0
	for a, i := range idx {
		for b, j := range idx {
			v += ivp[a] * ivp[b] * cov.At(i, j)
		}
	}
	return math.Max(v, 0)
}
