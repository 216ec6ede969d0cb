package strategyconfig

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/portfolio-backtest/internal/universe"
)

// DateLayout is the only date format accepted in run files
const DateLayout = "2006-01-02"

// Config는 백테스트/성과평가 실행 한 건의 전체 설정
type Config struct {
	Meta        Meta        `yaml:"meta" json:"meta"`
	Universe    Universe    `yaml:"universe" json:"universe"`
	Backtest    Backtest    `yaml:"backtest" json:"backtest"`
	Calculators []string    `yaml:"calculators" json:"calculators"`
	Performance Performance `yaml:"performance" json:"performance"`
	Output      Output      `yaml:"output" json:"output"`
}

// Meta 메타 정보
type Meta struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Universe 투자 가능 풀. 비어 있으면 주식수 파일의 전 종목
type Universe struct {
	Tickers           []string `yaml:"tickers" json:"tickers"`
	MinVolume         float64  `yaml:"min_volume" json:"min_volume"`
	LiquidDaysPercent float64  `yaml:"liquid_days_percent" json:"liquid_days_percent"`
}

// Criteria returns the liquidity thresholds for the screen
func (u Universe) Criteria() universe.Criteria {
	return universe.Criteria{
		MinVolume:         u.MinVolume,
		LiquidDaysPercent: u.LiquidDaysPercent,
	}
}

// Backtest 주기적 리밸런싱 시뮬레이션
type Backtest struct {
	Start               Date    `yaml:"start" json:"start"`
	End                 Date    `yaml:"end" json:"end"`
	RebalancePeriodDays int     `yaml:"rebalance_period_days" json:"rebalance_period_days"`
	InitialCash         float64 `yaml:"initial_cash" json:"initial_cash"`
	FeesPercent         float64 `yaml:"fees_percent" json:"fees_percent"`
	Parallel            bool    `yaml:"parallel" json:"parallel"`
}

// Performance rolling sample/test evaluation. SampleDays == 0 disables it.
type Performance struct {
	SampleDays         int  `yaml:"sample_days" json:"sample_days"`
	TestDays           int  `yaml:"test_days" json:"test_days"`
	StepDays           int  `yaml:"step_days" json:"step_days"`
	TradingDaysPerYear int  `yaml:"trading_days_per_year" json:"trading_days_per_year"`
	Parallel           bool `yaml:"parallel" json:"parallel"`
}

// Enabled reports whether the run file asks for a rolling evaluation
func (p Performance) Enabled() bool {
	return p.SampleDays > 0
}

// Output 결과 파일 위치
type Output struct {
	Dir           string `yaml:"dir" json:"dir"`
	DecimalPlaces int32  `yaml:"decimal_places" json:"decimal_places"`
}

// Date is a calendar day written as YYYY-MM-DD
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// UnmarshalJSON implements json.Unmarshaler (API requests)
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.parse(s)
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d *Date) parse(s string) error {
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("date %q must be %s", s, DateLayout)
	}
	d.Time = t
	return nil
}

// RunSnapshot 실행 스냅샷 (재현성용)
type RunSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	Name       string    `json:"name"`
	DataSource string    `json:"data_source"`
	CreatedAt  time.Time `json:"created_at"`
}
