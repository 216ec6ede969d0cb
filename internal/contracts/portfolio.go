package contracts

import (
	"math"
	"sort"
)

// DefaultEpsilon is the threshold below which share counts and weights are dropped
const DefaultEpsilon = 1e-4

// Shares maps ticker to number of shares held
// ⭐ 계약: 모든 연산은 ticker key 기준 정렬 (없는 key = 0), 위치 기준 연산 금지
type Shares map[string]float64

// Weights maps ticker to target fraction of portfolio value
type Weights map[string]float64

// Prices maps ticker to latest price
type Prices map[string]float64

// Portfolio is an immutable snapshot of cash and holdings
// ⭐ SSOT: 리밸런싱마다 통째로 교체됨 (in-place 수정 금지)
type Portfolio struct {
	Cash   float64 `json:"cash"`
	Shares Shares  `json:"shares"`
}

// NewPortfolio creates an all-cash portfolio
func NewPortfolio(cash float64) Portfolio {
	return Portfolio{Cash: cash, Shares: Shares{}}
}

// Value returns cash plus the market value of the holdings
func (p Portfolio) Value(prices Prices) float64 {
	return p.Cash + p.Shares.Value(prices)
}

// Clone returns a deep copy
func (p Portfolio) Clone() Portfolio {
	return Portfolio{Cash: p.Cash, Shares: p.Shares.Clone()}
}

// Value returns Σ shares × price.
// A ticker missing from prices contributes 0; a present NaN price makes the result NaN.
func (s Shares) Value(prices Prices) float64 {
	total := 0.0
	for _, ticker := range s.Tickers() {
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		total += s[ticker] * price
	}
	return total
}

// Clone returns a copy of the map
func (s Shares) Clone() Shares {
	out := make(Shares, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Clean keeps only entries strictly greater than eps (NaN entries are dropped)
func (s Shares) Clean(eps float64) Shares {
	out := make(Shares, len(s))
	for k, v := range s {
		if v > eps {
			out[k] = v
		}
	}
	return out
}

// Tickers returns the keys in sorted order
func (s Shares) Tickers() []string {
	return sortedKeys(s)
}

// Equal reports whether both maps hold the same tickers with the same counts
func (s Shares) Equal(other Shares) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		w, ok := other[k]
		if !ok || v != w {
			return false
		}
	}
	return true
}

// Tickers returns the keys in sorted order
func (w Weights) Tickers() []string {
	return sortedKeys(w)
}

// Sum returns the sum of all weights (NaN entries included)
func (w Weights) Sum() float64 {
	total := 0.0
	for _, t := range w.Tickers() {
		total += w[t]
	}
	return total
}

// Valid reports whether every weight is finite and non-negative
func (w Weights) Valid() bool {
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

func sortedKeys[M ~map[string]float64](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
