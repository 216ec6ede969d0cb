package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

// BarReader reads the on-disk CSV store
type BarReader interface {
	SharesOutstanding() (map[string]float64, error)
	ReadTicker(ticker string) ([]marketdata.Bar, error)
}

// BarWriter persists bars and outstanding shares (Postgres)
type BarWriter interface {
	SavePrices(ctx context.Context, ticker string, bars []marketdata.Bar) error
	SaveSharesOutstanding(ctx context.Context, outstanding map[string]float64) error
}

// SyncJob copies the CSV store into the database
type SyncJob struct {
	reader   BarReader
	writer   BarWriter
	schedule string
	logger   *logger.Logger
}

// NewSyncJob creates a new sync job
func NewSyncJob(reader BarReader, writer BarWriter, schedule string, log *logger.Logger) *SyncJob {
	if schedule == "" {
		schedule = "0 0 23 * * 1-5"
	}
	return &SyncJob{
		reader:   reader,
		writer:   writer,
		schedule: schedule,
		logger:   log.WithField("job", "postgres_sync"),
	}
}

// Name returns the job name
func (j *SyncJob) Name() string {
	return "postgres_sync"
}

// Schedule returns the cron schedule
func (j *SyncJob) Schedule() string {
	return j.schedule
}

// Run upserts outstanding shares and every readable ticker file.
// Unreadable files are skipped; a database error aborts the run.
func (j *SyncJob) Run(ctx context.Context) error {
	outstanding, err := j.reader.SharesOutstanding()
	if err != nil {
		return fmt.Errorf("read shares outstanding: %w", err)
	}
	if err := j.writer.SaveSharesOutstanding(ctx, outstanding); err != nil {
		return fmt.Errorf("save shares outstanding: %w", err)
	}

	tickers := make([]string, 0, len(outstanding))
	for t := range outstanding {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	saved, skipped := 0, 0
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return err
		}

		bars, err := j.reader.ReadTicker(ticker)
		if err != nil {
			j.logger.WithError(err).WithField("ticker", ticker).Debug("Skipping ticker")
			skipped++
			continue
		}
		if err := j.writer.SavePrices(ctx, ticker, bars); err != nil {
			return fmt.Errorf("save %s: %w", ticker, err)
		}
		saved++
	}

	j.logger.WithFields(map[string]interface{}{
		"saved":   saved,
		"skipped": skipped,
	}).Info("Postgres sync completed")
	return nil
}
