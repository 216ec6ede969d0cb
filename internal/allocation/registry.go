package allocation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/portfolio-backtest/internal/contracts"
)

// Registry names
const (
	NameMaxSharpe  = "max_sharpe"
	NameEqual      = "equal"
	NameMarketCap  = "mcap"
	NameLedoitWolf = "ledoitw_cov"
	NameExpCov     = "exp_cov"
	NameHRP        = "HRP"
)

// Info describes a registered allocator
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entry struct {
	info Info
	new  func() contracts.WeightAllocator
}

// ⭐ SSOT: 사용 가능한 allocator 목록은 여기서만 정의
var registry = []entry{
	{Info{NameMaxSharpe, "maximum Sharpe ratio, CAPM returns, Ledoit-Wolf covariance"},
		func() contracts.WeightAllocator { return NewMaxSharpe() }},
	{Info{NameEqual, "equal weight 1/N"},
		func() contracts.WeightAllocator { return EqualWeight{} }},
	{Info{NameMarketCap, "market capitalisation at the end of the sample"},
		func() contracts.WeightAllocator { return MarketCap{} }},
	{Info{NameLedoitWolf, "minimum volatility, Ledoit-Wolf covariance"},
		func() contracts.WeightAllocator { return NewLedoitWolfMinVol() }},
	{Info{NameExpCov, "minimum volatility, exponential covariance (span 179)"},
		func() contracts.WeightAllocator { return NewExpCovMinVol() }},
	{Info{NameHRP, "hierarchical risk parity, single linkage"},
		func() contracts.WeightAllocator { return HierarchicalRiskParity{} }},
}

// Catalog lists the registered allocators sorted by name
func Catalog() []Info {
	out := make([]Info, len(registry))
	for i, e := range registry {
		out[i] = e.info
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered names sorted
func Names() []string {
	catalog := Catalog()
	names := make([]string, len(catalog))
	for i, info := range catalog {
		names[i] = info.Name
	}
	return names
}

// Get returns a fresh allocator by name; exact match first, then case-insensitive
func Get(name string) (contracts.WeightAllocator, error) {
	for _, e := range registry {
		if e.info.Name == name {
			return e.new(), nil
		}
	}
	for _, e := range registry {
		if strings.EqualFold(e.info.Name, name) {
			return e.new(), nil
		}
	}
	return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownAllocator, name, strings.Join(Names(), ", "))
}

// Resolve looks up several names, failing on the first unknown one
func Resolve(names []string) ([]contracts.WeightAllocator, error) {
	out := make([]contracts.WeightAllocator, 0, len(names))
	for _, name := range names {
		a, err := Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
