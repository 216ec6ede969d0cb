package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/portfolio-backtest/pkg/config"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Portfolio backtest - 배분 전략 비교 도구",
	Long: `Portfolio Backtest Unified CLI

여러 비중 산출 전략(allocator)을 같은 과거 데이터 위에서
주기적 리밸런싱으로 비교하고, 롤링 구간 성과를 평가합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest run --config run.yaml
  go run ./cmd/quant performance rolling --config run.yaml
  go run ./cmd/quant data download AAPL MSFT
  go run ./cmd/quant api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// bootstrap loads the environment config and builds the logger.
// ⭐ SSOT: 모든 커맨드는 여기서 설정/로거를 얻음
func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}
