package contracts

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortfolio_Value(t *testing.T) {
	p := Portfolio{
		Cash:   100,
		Shares: Shares{"AMZN": 1, "GOOG": 2},
	}
	prices := Prices{"AMZN": 200, "GOOG": 100}

	if v := p.Value(prices); v != 500 {
		t.Errorf("Value() = %v, want 500", v)
	}
}

func TestPortfolio_ValueMissingPriceCountsAsZero(t *testing.T) {
	p := Portfolio{Cash: 10, Shares: Shares{"AMZN": 1, "GOOG": 2}}

	assert.Equal(t, 210.0, p.Value(Prices{"AMZN": 200}))
}

func TestPortfolio_ValueNaNPricePropagates(t *testing.T) {
	p := Portfolio{Cash: 10, Shares: Shares{"AMZN": 1}}

	assert.True(t, math.IsNaN(p.Value(Prices{"AMZN": math.NaN()})))
}

func TestNewPortfolio(t *testing.T) {
	p := NewPortfolio(1000)
	assert.Equal(t, 1000.0, p.Cash)
	assert.NotNil(t, p.Shares)
	assert.Empty(t, p.Shares)
	assert.Equal(t, 1000.0, p.Value(nil))
}

func TestPortfolio_CloneIsIndependent(t *testing.T) {
	p := Portfolio{Cash: 1, Shares: Shares{"GOOG": 3}}
	c := p.Clone()
	c.Shares["GOOG"] = 4

	assert.Equal(t, 3.0, p.Shares["GOOG"])
}

func TestShares_Clean(t *testing.T) {
	s := Shares{"A": 1, "B": DefaultEpsilon, "C": 0, "D": -1, "E": math.NaN(), "F": 2 * DefaultEpsilon}

	assert.Equal(t, Shares{"A": 1, "F": 2 * DefaultEpsilon}, s.Clean(DefaultEpsilon))
}

func TestShares_Equal(t *testing.T) {
	assert.True(t, Shares{"A": 1}.Equal(Shares{"A": 1}))
	assert.False(t, Shares{"A": 1}.Equal(Shares{"A": 2}))
	assert.False(t, Shares{"A": 1}.Equal(Shares{"B": 1}))
	assert.True(t, Shares{}.Equal(nil))
}

func TestWeights(t *testing.T) {
	w := Weights{"GOOG": 0.5, "AMZN": 0.5}
	assert.Equal(t, []string{"AMZN", "GOOG"}, w.Tickers())
	assert.Equal(t, 1.0, w.Sum())
	assert.True(t, w.Valid())

	assert.False(t, Weights{"A": -0.1}.Valid())
	assert.False(t, Weights{"A": math.NaN()}.Valid())
	assert.True(t, Weights{}.Valid())
}
