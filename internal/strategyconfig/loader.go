package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/portfolio-backtest/pkg/config"
)

// Default values used where the run file is silent
const (
	DefaultInitialCash   = 10000
	DefaultOutputDir     = "out"
	DefaultDecimalPlaces = 6
)

// Defaults builds the base Config from environment defaults
// ⭐ SSOT: 실행 파일에 없는 값은 여기서만 채움
func Defaults(b config.BacktestConfig) Config {
	return Config{
		Universe: Universe{
			MinVolume:         b.MinVolume,
			LiquidDaysPercent: b.LiquidDaysPercent,
		},
		Backtest: Backtest{
			InitialCash: DefaultInitialCash,
			FeesPercent: b.FeesPercent,
		},
		Performance: Performance{
			TradingDaysPerYear: b.TradingDaysPerYear,
		},
		Output: Output{
			Dir:           DefaultOutputDir,
			DecimalPlaces: DefaultDecimalPlaces,
		},
	}
}

// Load reads a YAML run file over base and returns Config with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string, base Config) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Parse(data, base)
	if err != nil {
		return nil, data, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, data, nil
}

// Parse decodes and validates a run file
func Parse(data []byte, base Config) (*Config, error) {
	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Hash generates SHA256 hash from Config (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewRunSnapshot records what a run was computed from
func NewRunSnapshot(cfg *Config, yamlData []byte, dataSource string) (*RunSnapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}

	return &RunSnapshot{
		ConfigHash: hash,
		ConfigYAML: string(yamlData),
		Name:       cfg.Meta.Name,
		DataSource: dataSource,
		CreatedAt:  time.Now(),
	}, nil
}
