package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/internal/scheduler"
	"github.com/wonny/portfolio-backtest/internal/scheduler/jobs"
	"github.com/wonny/portfolio-backtest/pkg/config"
	"github.com/wonny/portfolio-backtest/pkg/database"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `데이터 갱신 작업을 스케줄하거나 즉시 실행합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run data_refresh`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- data_refresh: 평일 22:30 (시세 파일 재다운로드, DATA_DOWNLOAD_URL 필요)
- postgres_sync: 평일 23:00 (CSV → PostgreSQL 복사, DATABASE_URL 필요)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	refreshWorkers   int
	refreshMaxFailed float64
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().IntVar(&refreshWorkers, "workers", marketdata.DefaultWorkers, "동시 다운로드 수")
	schedulerCmd.PersistentFlags().Float64Var(&refreshMaxFailed, "max-failed", 0.2, "허용 실패 비율 (초과 시 작업 실패)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sched, cleanup, err := initScheduler(ctx, cfg, log, scheduler.DefaultMaxRetries)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	if len(sched.GetAllJobs()) == 0 {
		return fmt.Errorf("no jobs to schedule: set DATA_DOWNLOAD_URL or DATABASE_URL")
	}

	sched.Start()

	PrintSuccess("Scheduler started")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		next, _ := sched.NextRun(jobName)
		fmt.Printf("  - %-15s next: %s\n", jobName, next.Format("2006-01-02 15:04:05"))
	}
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	printJobStats(sched)
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	sched, cleanup, err := initScheduler(cmd.Context(), cfg, log, 0)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	fmt.Println("Registered jobs:")
	PrintList(sched.GetAllJobs())
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

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

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJob(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	PrintKeyValue("Duration", result.Duration.Round(time.Millisecond).String(), 10)
	if !result.Success {
		return fmt.Errorf("job %s failed: %s", jobName, result.Error)
	}
	PrintSuccess(fmt.Sprintf("%s completed", jobName))
	return nil
}

func printJobStats(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()

	fmt.Println("\nJob Statistics:")
	for _, jobName := range sched.GetAllJobs() {
		stat := stats[jobName]
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)
		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}
	}
}

// initScheduler registers the jobs the environment can support.
// data_refresh needs a downloader; postgres_sync needs DATABASE_URL and the CSV store.
func initScheduler(ctx context.Context, cfg *config.Config, log *logger.Logger, retries int) (*scheduler.Scheduler, func(), error) {
	// The CSV store is the refresh target regardless of DATA_SOURCE
	csvCfg := *cfg
	csvCfg.Data.Source = config.SourceCSV

	stack, err := marketdata.Open(ctx, &csvCfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open market data: %w", err)
	}
	closers := []func(){stack.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	sched := scheduler.New(log, scheduler.WithRetry(retries, scheduler.DefaultRetryDelay))

	if stack.Downloader != nil {
		var inv jobs.Invalidator
		if stack.Cache != nil {
			inv = stack.Cache
		}
		lister := func() ([]string, error) {
			all, err := stack.CSV.SharesOutstanding()
			if err != nil {
				return nil, err
			}
			return marketdata.SortedTickers(all), nil
		}
		refresh := jobs.NewRefreshJob(stack.Downloader, lister, inv, jobs.RefreshConfig{
			Workers:        refreshWorkers,
			MaxFailedRatio: refreshMaxFailed,
		}, log)
		if err := sched.AddJob(refresh); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		closers = append(closers, db.Close)

		pg := marketdata.NewPostgresSource(db, log)
		if err := pg.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := sched.AddJob(jobs.NewSyncJob(stack.CSV, pg, "", log)); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return sched, cleanup, nil
}
