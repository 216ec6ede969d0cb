package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/internal/strategyconfig"
)

// dataCmd represents the data command
var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "시세 데이터 관리",
	Long: `종목별 가격/거래량 CSV를 내려받거나 커버리지를 점검합니다.

Subcommands:
  download  - 시세 파일 다운로드 (DATA_DOWNLOAD_URL 필요)
  check     - 종목별 커버리지 점검
  sync      - 스케줄 갱신 (data_refresh, postgres_sync), --once로 즉시 1회 실행

Tickers를 생략하면 shares outstanding 파일의 모든 종목을 사용합니다.

Example:
  go run ./cmd/quant data download AAPL MSFT --workers 8
  go run ./cmd/quant data check
  go run ./cmd/quant data sync --once`,
}

var (
	dataDownloadCmd = &cobra.Command{
		Use:   "download [tickers...]",
		Short: "시세 파일 다운로드",
		RunE:  runDataDownload,
	}

	dataCheckCmd = &cobra.Command{
		Use:   "check [tickers...]",
		Short: "커버리지 점검",
		RunE:  runDataCheck,
	}

	dataSyncCmd = &cobra.Command{
		Use:   "sync",
		Short: "스케줄 데이터 갱신",
		RunE:  runDataSync,
	}

	downloadWorkers int
	syncOnce        bool
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataDownloadCmd)
	dataCmd.AddCommand(dataCheckCmd)
	dataCmd.AddCommand(dataSyncCmd)

	dataDownloadCmd.Flags().IntVar(&downloadWorkers, "workers", marketdata.DefaultWorkers, "동시 다운로드 수")
	dataSyncCmd.Flags().BoolVar(&syncOnce, "once", false, "등록된 작업을 한 번씩 실행하고 종료")
	dataSyncCmd.Flags().IntVar(&refreshWorkers, "workers", marketdata.DefaultWorkers, "동시 다운로드 수")
	dataSyncCmd.Flags().Float64Var(&refreshMaxFailed, "max-failed", 0.2, "허용 실패 비율 (초과 시 작업 실패)")
}

func runDataDownload(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stack, err := marketdata.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open market data: %w", err)
	}
	defer stack.Close()

	if stack.Downloader == nil {
		return fmt.Errorf("DATA_DOWNLOAD_URL is not set")
	}

	tickers, err := tickersOrAll(stack, args)
	if err != nil {
		return err
	}

	PrintHeader("Data Download",
		fmt.Sprintf("Tickers : %d", len(tickers)),
		fmt.Sprintf("Workers : %d", downloadWorkers),
		fmt.Sprintf("Dir     : %s", cfg.Data.Dir),
	)

	start := time.Now()
	results := stack.Downloader.Fetch(ctx, tickers, downloadWorkers)

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			PrintError(fmt.Sprintf("%s: %v", r.Ticker, r.Error))
		}
	}

	if stack.Cache != nil && failed < len(results) {
		if err := stack.Cache.Invalidate(ctx, nil); err != nil {
			log.WithError(err).Warn("Failed to invalidate cached history")
		}
	}

	fmt.Println()
	PrintKeyValue("Downloaded", fmt.Sprintf("%d", len(results)-failed), 10)
	PrintKeyValue("Failed", fmt.Sprintf("%d", failed), 10)
	PrintKeyValue("Elapsed", elapsed(start), 10)

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	PrintSuccess("all tickers downloaded")
	return nil
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stack, err := marketdata.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open market data: %w", err)
	}
	defer stack.Close()

	history, err := stack.Source.Load(ctx, args)
	if err != nil {
		return err
	}
	report := marketdata.Check(history)

	PrintHeader("Data Coverage",
		fmt.Sprintf("Source  : %s", stack.Source.Name()),
		fmt.Sprintf("Tickers : %d", len(report)),
	)

	columns := []string{"Ticker", "First", "Last", "Rows", "Missing", "Outstanding"}
	widths := []int{8, 10, 10, 6, 8, 11}
	PrintTableHeader(columns, widths)

	gaps := 0
	for _, c := range report {
		outstanding := "yes"
		if !c.HasOutstanding {
			outstanding = "no"
		}
		if c.Missing > 0 {
			gaps++
		}
		PrintTableRow([]string{
			c.Ticker,
			c.First.Format(strategyconfig.DateLayout),
			c.Last.Format(strategyconfig.DateLayout),
			fmt.Sprintf("%d", c.Rows),
			formatPct(c.MissingRatio),
			outstanding,
		}, widths)
	}

	fmt.Println()
	if gaps > 0 {
		PrintWarning(fmt.Sprintf("%d tickers have gaps; prices are forward-filled during the backtest", gaps))
	} else {
		PrintSuccess("no gaps")
	}
	return nil
}

// runDataSync starts the scheduler, or with --once runs every job in order
func runDataSync(cmd *cobra.Command, args []string) error {
	if !syncOnce {
		return runScheduler(cmd, args)
	}

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sched, cleanup, err := initScheduler(ctx, cfg, log, 0)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	names := sched.GetAllJobs()
	if len(names) == 0 {
		return fmt.Errorf("no jobs to run: set DATA_DOWNLOAD_URL or DATABASE_URL")
	}

	// data_refresh sorts before postgres_sync, so the database gets the fresh files
	failed := 0
	for _, name := range names {
		result, err := sched.RunJob(ctx, name)
		if err != nil {
			return err
		}
		if result.Success {
			PrintSuccess(fmt.Sprintf("%s (%s)", name, result.Duration.Round(time.Millisecond)))
		} else {
			failed++
			PrintError(fmt.Sprintf("%s: %s", name, result.Error))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(names))
	}
	return nil
}

// tickersOrAll returns args, or every ticker with outstanding shares on disk
func tickersOrAll(stack *marketdata.Stack, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if stack.CSV == nil {
		return nil, fmt.Errorf("tickers are required for the %s source", stack.Source.Name())
	}
	all, err := stack.CSV.SharesOutstanding()
	if err != nil {
		return nil, err
	}
	return marketdata.SortedTickers(all), nil
}
