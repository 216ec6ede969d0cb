package commands

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/internal/performance"
	"github.com/wonny/portfolio-backtest/internal/risk"
	"github.com/wonny/portfolio-backtest/internal/runner"
)

// performanceCmd represents the performance command
var performanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "롤링 구간 성과 평가",
	Long: `표본 구간에서 비중을 산출하고 바로 다음 테스트 구간에서
변동성(sigma)과 수익률을 측정합니다.

Example:
  go run ./cmd/quant performance rolling --config run.yaml`,
}

var performanceRollingCmd = &cobra.Command{
	Use:   "rolling",
	Short: "롤링 평가 실행",
	Long: `실행 파일의 performance 섹션으로 롤링 평가를 실행합니다.

  sample_days  : 비중 산출 표본 길이
  test_days    : 평가 구간 길이 (표본 종료 다음 날부터)
  step_days    : 구간 이동 간격

Example:
  go run ./cmd/quant performance rolling --config run.yaml --out results`,
	RunE: runRolling,
}

func init() {
	rootCmd.AddCommand(performanceCmd)
	performanceCmd.AddCommand(performanceRollingCmd)

	performanceRollingCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "실행 파일 (YAML, 필수)")
	performanceRollingCmd.Flags().StringVar(&outDir, "out", "", "결과 디렉토리 (기본: output.dir)")
	performanceRollingCmd.MarkFlagRequired("config")
}

func runRolling(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	run, yamlData, err := loadRun(cfg, runConfigPath)
	if err != nil {
		return err
	}
	if !run.Performance.Enabled() {
		return fmt.Errorf("%s: performance.sample_days must be > 0 for a rolling evaluation", runConfigPath)
	}
	if outDir != "" {
		run.Output.Dir = outDir
	}

	PrintHeader("Rolling Performance",
		fmt.Sprintf("Run         : %s", run.Meta.Name),
		fmt.Sprintf("Period      : %s ~ %s", run.Backtest.Start, run.Backtest.End),
		fmt.Sprintf("Windows     : sample %dd, test %dd, step %dd",
			run.Performance.SampleDays, run.Performance.TestDays, run.Performance.StepDays),
		fmt.Sprintf("Calculators : %v", run.Calculators),
	)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stack, err := marketdata.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open market data: %w", err)
	}
	defer stack.Close()

	res, err := runner.NewOrchestrator(stack.Source, log).Run(ctx, run, runner.Options{SkipBacktest: true})
	if err != nil {
		return err
	}

	printRollingResult(res.Rolling)
	return writeRunOutputs(run, yamlData, stack.Source.Name(), res, log)
}

func printRollingResult(res *performance.RollingResult) {
	if res == nil {
		return
	}

	fmt.Println()
	fmt.Printf("📈 Rolling Evaluation (%d windows)\n\n", len(res.Windows))
	if len(res.Windows) == 0 {
		PrintWarning("the period is shorter than one sample + test window")
		return
	}

	columns := []string{"Calculator", "Mean Sigma", "Mean Return", "Median Return", "Worst Return", "Evaluated"}
	widths := []int{12, 11, 12, 14, 13, 10}
	PrintTableHeader(columns, widths)
	for _, name := range res.Calculators {
		returns := finite(res.Returns[name])
		PrintTableRow([]string{
			name,
			formatPct(risk.Mean(res.Sigma[name])),
			formatPct(risk.Mean(returns)),
			formatPct(risk.Percentile(returns, 0.5)),
			formatPct(risk.Percentile(returns, 0)),
			fmt.Sprintf("%d/%d", len(returns), len(res.Windows)),
		}, widths)
	}
}

// finite drops NaN and ±Inf
func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
