package strategyconfig

import (
	"errors"
	"fmt"

	"github.com/wonny/portfolio-backtest/internal/allocation"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.Name == "" {
		return ValidationError{"meta.name", "required"}
	}

	// === Universe ===
	if err := validateNames(cfg.Universe.Tickers, "universe.tickers"); err != nil {
		return err
	}
	if cfg.Universe.MinVolume < 0 {
		return ValidationError{"universe.min_volume", "must be >= 0"}
	}
	if cfg.Universe.LiquidDaysPercent < 0 || cfg.Universe.LiquidDaysPercent > 100 {
		return ValidationError{"universe.liquid_days_percent", "must be in range [0, 100]"}
	}

	// === Backtest ===
	b := cfg.Backtest
	if b.Start.IsZero() {
		return ValidationError{"backtest.start", "required"}
	}
	if b.End.IsZero() {
		return ValidationError{"backtest.end", "required"}
	}
	if !b.Start.Before(b.End.Time) {
		return ValidationError{"backtest", "start must be before end"}
	}
	if b.RebalancePeriodDays <= 0 {
		return ValidationError{"backtest.rebalance_period_days", "must be > 0"}
	}
	if b.InitialCash <= 0 {
		return ValidationError{"backtest.initial_cash", "must be > 0"}
	}
	if b.FeesPercent < 0 || b.FeesPercent >= 100 {
		return ValidationError{"backtest.fees_percent", "must be in range [0, 100)"}
	}

	// === Calculators ===
	if len(cfg.Calculators) == 0 {
		return ValidationError{"calculators", "at least one required"}
	}
	if err := validateNames(cfg.Calculators, "calculators"); err != nil {
		return err
	}
	for i, name := range cfg.Calculators {
		if _, err := allocation.Get(name); err != nil {
			return ValidationError{fmt.Sprintf("calculators[%d]", i), err.Error()}
		}
	}

	// === Performance ===
	p := cfg.Performance
	if p.SampleDays < 0 {
		return ValidationError{"performance.sample_days", "must be >= 0"}
	}
	if p.Enabled() {
		if p.TestDays <= 0 {
			return ValidationError{"performance.test_days", "must be > 0"}
		}
		if p.StepDays <= 0 {
			return ValidationError{"performance.step_days", "must be > 0"}
		}
		if p.TradingDaysPerYear <= 0 {
			return ValidationError{"performance.trading_days_per_year", "must be > 0"}
		}
	}

	// === Output ===
	if cfg.Output.Dir == "" {
		return ValidationError{"output.dir", "required"}
	}
	if cfg.Output.DecimalPlaces < 0 || cfg.Output.DecimalPlaces > 12 {
		return ValidationError{"output.decimal_places", "must be in range [0, 12]"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if len(cfg.Universe.Tickers) == 0 {
		warnings = append(warnings, Warning{
			Code:    "ALL_TICKERS",
			Message: "universe.tickers is empty: every ticker with shares outstanding is loaded",
		})
	}

	// 리밸런싱 주기보다 짧은 구간은 날짜가 하나뿐
	span := int(cfg.Backtest.End.Sub(cfg.Backtest.Start.Time).Hours() / 24)
	if cfg.Backtest.RebalancePeriodDays > 0 && span < 2*cfg.Backtest.RebalancePeriodDays {
		warnings = append(warnings, Warning{
			Code:    "FEW_REBALANCES",
			Message: fmt.Sprintf("%d days span gives fewer than 2 rebalance dates at %d days", span, cfg.Backtest.RebalancePeriodDays),
		})
	}

	// 표본이 짧으면 공분산 추정이 불안정
	if cfg.Performance.Enabled() && cfg.Performance.SampleDays < 60 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_SAMPLE",
			Message: "performance.sample_days < 60: covariance estimates are noisy",
		})
	}

	if cfg.Backtest.FeesPercent > 1 {
		warnings = append(warnings, Warning{
			Code:    "HIGH_FEES",
			Message: "backtest.fees_percent > 1%: fees dominate turnover",
		})
	}

	return warnings
}

// === Helper Functions ===

// validateNames rejects empty and duplicate entries
func validateNames(names []string, field string) error {
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		if n == "" {
			return ValidationError{fmt.Sprintf("%s[%d]", field, i), "must not be empty"}
		}
		if seen[n] {
			return ValidationError{fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("duplicate %q", n)}
		}
		seen[n] = true
	}
	return nil
}

// IsValidationError reports whether err came from Validate
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
