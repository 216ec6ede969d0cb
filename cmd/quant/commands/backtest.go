package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/portfolio-backtest/internal/allocation"
	"github.com/wonny/portfolio-backtest/internal/backtest"
	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/internal/report"
	"github.com/wonny/portfolio-backtest/internal/runner"
	"github.com/wonny/portfolio-backtest/internal/strategyconfig"
	"github.com/wonny/portfolio-backtest/pkg/config"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "주기적 리밸런싱 백테스트",
	Long: `여러 allocator를 같은 리밸런싱 날짜에서 비교합니다.

각 리밸런싱 구간마다:
- 유동성 필터를 통과한 종목만 사용
- allocator가 비중 산출 (실패 시 이전 포트폴리오 유지)
- 수수료를 반영해 정수 주식수로 재배분

Example:
  go run ./cmd/quant backtest run --config run.yaml
  go run ./cmd/quant backtest calculators`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		Long: `실행 파일(YAML)에 정의된 백테스트를 실행합니다.

결과 파일 (output.dir/<meta.name>/):
  values.csv, fees.csv, portfolios_<calculator>.csv,
  summary.json, failures.json, run.json
  rolling_*.csv (performance.sample_days > 0 일 때)

Example:
  go run ./cmd/quant backtest run --config run.yaml
  go run ./cmd/quant backtest run --config run.yaml --out results --no-rolling`,
		RunE: runBacktest,
	}

	backtestCalculatorsCmd = &cobra.Command{
		Use:   "calculators",
		Short: "등록된 allocator 목록",
		RunE:  listCalculators,
	}

	// Flags
	runConfigPath string
	outDir        string
	noRolling     bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)
	backtestCmd.AddCommand(backtestCalculatorsCmd)

	backtestRunCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "실행 파일 (YAML, 필수)")
	backtestRunCmd.Flags().StringVar(&outDir, "out", "", "결과 디렉토리 (기본: output.dir)")
	backtestRunCmd.Flags().BoolVar(&noRolling, "no-rolling", false, "롤링 성과 평가 생략")
	backtestRunCmd.MarkFlagRequired("config")
}

// loadRun reads the run file over the environment defaults
func loadRun(cfg *config.Config, path string) (*strategyconfig.Config, []byte, error) {
	run, yamlData, err := strategyconfig.Load(path, strategyconfig.Defaults(cfg.Backtest))
	if err != nil {
		return nil, nil, fmt.Errorf("load run file: %w", err)
	}
	return run, yamlData, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	run, yamlData, err := loadRun(cfg, runConfigPath)
	if err != nil {
		return err
	}
	if outDir != "" {
		run.Output.Dir = outDir
	}

	PrintHeader("Portfolio Backtest",
		fmt.Sprintf("Run         : %s", run.Meta.Name),
		fmt.Sprintf("Period      : %s ~ %s", run.Backtest.Start, run.Backtest.End),
		fmt.Sprintf("Rebalance   : every %d days", run.Backtest.RebalancePeriodDays),
		fmt.Sprintf("Calculators : %v", run.Calculators),
	)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stack, err := marketdata.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open market data: %w", err)
	}
	defer stack.Close()

	res, err := runner.NewOrchestrator(stack.Source, log).Run(ctx, run, runner.Options{SkipRolling: noRolling})
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		PrintWarning(w.Message)
	}
	printBacktestResult(res.Backtest)
	if res.Rolling != nil {
		printRollingResult(res.Rolling)
	}

	return writeRunOutputs(run, yamlData, stack.Source.Name(), res, log)
}

// writeRunOutputs stores results under output.dir/<meta.name>
func writeRunOutputs(run *strategyconfig.Config, yamlData []byte, source string, res *runner.RunResult, log *logger.Logger) error {
	dir := filepath.Join(run.Output.Dir, run.Meta.Name)
	places := run.Output.DecimalPlaces

	var written []string
	if res.Backtest != nil {
		files, err := report.WriteBacktest(dir, res.Backtest, places)
		if err != nil {
			return err
		}
		written = append(written, files...)
	}
	if res.Rolling != nil {
		files, err := report.WriteRolling(dir, res.Rolling, places)
		if err != nil {
			return err
		}
		written = append(written, files...)
	}

	snapshot, err := strategyconfig.NewRunSnapshot(run, yamlData, source)
	if err != nil {
		return err
	}
	snapshotPath := filepath.Join(dir, report.SnapshotFile)
	if err := report.WriteJSON(snapshotPath, snapshot); err != nil {
		return err
	}
	written = append(written, snapshotPath)

	log.WithFields(map[string]interface{}{
		"dir":   dir,
		"files": len(written),
	}).Info("Results written")

	fmt.Println()
	PrintSuccess(fmt.Sprintf("Results written to %s", dir))
	PrintList(written)
	return nil
}

func printBacktestResult(res *backtest.Result) {
	if res == nil {
		return
	}

	fmt.Println()
	fmt.Println("📊 Backtest Summary")
	if len(res.Dates) < 2 {
		PrintWarning("fewer than two rebalance dates, nothing was simulated")
		return
	}
	fmt.Printf("Period: %s ~ %s (%d rebalances, %.2fs)\n\n",
		res.Dates[0].Format("2006-01-02"),
		res.Dates[len(res.Dates)-1].Format("2006-01-02"),
		len(res.Dates)-1,
		res.Duration.Seconds())

	columns := []string{"Calculator", "Final Value", "Total", "CAGR", "Vol", "Sharpe", "MDD", "VaR95", "Fees", "Failed"}
	widths := []int{12, 14, 9, 9, 8, 7, 8, 8, 10, 6}
	PrintTableHeader(columns, widths)
	for _, name := range res.Calculators {
		s := res.Summaries[name]
		PrintTableRow([]string{
			name,
			formatMoney(s.FinalValue),
			formatPct(s.TotalReturn),
			formatPct(s.CAGR),
			formatPct(s.Volatility),
			formatFloat(s.SharpeRatio),
			formatPct(-s.MaxDrawdown),
			formatPct(-s.VaR),
			formatMoney(s.TotalFees),
			fmt.Sprintf("%d", s.Failures),
		}, widths)
	}

	for _, name := range res.Calculators {
		if failures := res.Failures[name]; len(failures) > 0 {
			fmt.Println()
			PrintWarning(fmt.Sprintf("%s: %d periods kept the previous portfolio", name, len(failures)))
			for _, f := range failures {
				fmt.Printf("   • %s\n", f)
			}
		}
	}
}

func listCalculators(cmd *cobra.Command, args []string) error {
	fmt.Println("Registered calculators:")
	for _, info := range allocation.Catalog() {
		PrintKeyValue(info.Name, info.Description, 12)
	}
	return nil
}

// signalContext is cancelled on Ctrl+C
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// elapsed formats a duration for progress lines
func elapsed(start time.Time) string {
	return fmt.Sprintf("%.2fs", time.Since(start).Seconds())
}
