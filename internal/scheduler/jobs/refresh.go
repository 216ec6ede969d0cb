package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/portfolio-backtest/pkg/logger"
)

// DefaultRefreshSchedule is weekdays after the US close (seconds field first)
const DefaultRefreshSchedule = "0 30 22 * * 1-5"

// Downloader fetches price/volume files and reports the failed tickers
type Downloader interface {
	DownloadAll(ctx context.Context, tickers []string, workers int) []string
}

// TickerLister supplies the tickers to refresh at run time
type TickerLister func() ([]string, error)

// Invalidator drops cached histories after new data arrived
type Invalidator interface {
	Invalidate(ctx context.Context, tickers []string) error
}

// RefreshJob re-downloads price/volume history for a ticker list
// ⭐ SSOT: 시세 갱신 스케줄은 이 Job에서만
type RefreshJob struct {
	downloader  Downloader
	tickers     TickerLister
	invalidator Invalidator // optional
	schedule    string
	workers     int
	maxFailed   float64 // failed/total above this fails the run
	logger      *logger.Logger
}

// RefreshConfig configures a RefreshJob
type RefreshConfig struct {
	Schedule       string
	Workers        int
	MaxFailedRatio float64
}

// NewRefreshJob creates a new refresh job
func NewRefreshJob(d Downloader, tickers TickerLister, inv Invalidator, cfg RefreshConfig, log *logger.Logger) *RefreshJob {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultRefreshSchedule
	}
	return &RefreshJob{
		downloader:  d,
		tickers:     tickers,
		invalidator: inv,
		schedule:    cfg.Schedule,
		workers:     cfg.Workers,
		maxFailed:   cfg.MaxFailedRatio,
		logger:      log.WithField("job", "data_refresh"),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "data_refresh"
}

// Schedule returns the cron schedule
func (j *RefreshJob) Schedule() string {
	return j.schedule
}

// Run downloads every ticker and fails when too many downloads failed
func (j *RefreshJob) Run(ctx context.Context) error {
	tickers, err := j.tickers()
	if err != nil {
		return fmt.Errorf("list tickers: %w", err)
	}
	if len(tickers) == 0 {
		j.logger.Warn("No tickers to refresh")
		return nil
	}

	j.logger.WithField("tickers", len(tickers)).Info("Starting scheduled data refresh")
	failed := j.downloader.DownloadAll(ctx, tickers, j.workers)

	if j.invalidator != nil && len(failed) < len(tickers) {
		if err := j.invalidator.Invalidate(ctx, nil); err != nil {
			j.logger.WithError(err).Warn("Failed to invalidate cached history")
		}
	}

	ratio := float64(len(failed)) / float64(len(tickers))
	if len(failed) > 0 {
		j.logger.WithFields(map[string]interface{}{
			"failed": failed,
			"ratio":  ratio,
		}).Warn("Some tickers failed to refresh")
	}
	if ratio > j.maxFailed {
		return fmt.Errorf("refresh failed for %d of %d tickers", len(failed), len(tickers))
	}

	j.logger.Info("Scheduled data refresh completed")
	return nil
}
