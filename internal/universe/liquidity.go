package universe

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/portfolio-backtest/internal/timeseries"
)

// Default liquidity thresholds
const (
	DefaultMinVolume         = 50.0
	DefaultLiquidDaysPercent = 90.0
)

// Criteria holds liquidity filter thresholds
type Criteria struct {
	MinVolume         float64 `yaml:"min_volume"`          // 일 거래량 하한 (초과해야 유동)
	LiquidDaysPercent float64 `yaml:"liquid_days_percent"` // 유동 거래일 비율 하한 (%)
}

// DefaultCriteria returns the default thresholds (volume > 50 on more than 90% of days)
func DefaultCriteria() Criteria {
	return Criteria{
		MinVolume:         DefaultMinVolume,
		LiquidDaysPercent: DefaultLiquidDaysPercent,
	}
}

// Screen is the outcome of a liquidity check over one window
type Screen struct {
	Start       time.Time
	End         time.Time
	TradingDays int
	Liquid      []string          // sorted
	Excluded    map[string]string // ticker → reason
}

// SelectLiquid returns the tickers whose volume strictly exceeds MinVolume on
// strictly more than LiquidDaysPercent% of the trading days in [start, end].
// ⭐ SSOT: 유동성 필터는 여기서만 판단
func SelectLiquid(volumes *timeseries.Table, start, end time.Time, criteria Criteria) []string {
	return Check(volumes, start, end, criteria).Liquid
}

// Check runs the liquidity filter and keeps the exclusion reason per ticker
func Check(volumes *timeseries.Table, start, end time.Time, criteria Criteria) *Screen {
	window := volumes.Slice(start, end)
	screen := &Screen{
		Start:       start,
		End:         end,
		TradingDays: window.Len(),
		Liquid:      make([]string, 0),
		Excluded:    make(map[string]string),
	}

	required := float64(window.Len()) * criteria.LiquidDaysPercent / 100.0

	for _, ticker := range window.Columns() {
		col, _ := window.Column(ticker)
		liquidDays := 0
		for _, v := range col {
			// NaN > x is false, so missing days never count
			if v > criteria.MinVolume {
				liquidDays++
			}
		}

		if float64(liquidDays) > required {
			screen.Liquid = append(screen.Liquid, ticker)
			continue
		}
		screen.Excluded[ticker] = fmt.Sprintf("liquid days %d/%d (need > %.1f)", liquidDays, window.Len(), required)
	}

	sort.Strings(screen.Liquid)
	return screen
}
