package marketdata

import (
	"context"
	"fmt"

	"github.com/wonny/portfolio-backtest/pkg/config"
	"github.com/wonny/portfolio-backtest/pkg/database"
	"github.com/wonny/portfolio-backtest/pkg/httputil"
	"github.com/wonny/portfolio-backtest/pkg/logger"
	"github.com/wonny/portfolio-backtest/pkg/redis"
)

// Stack is a configured data source with its resources
type Stack struct {
	Source     Source
	CSV        *CSVSource      // nil for the postgres source
	Postgres   *PostgresSource // nil for the csv source
	Downloader *Downloader     // nil without DATA_DOWNLOAD_URL
	Cache      *CachedSource   // nil without Redis

	closers []func()
}

// Close releases database and Redis connections
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Open builds the source selected by DATA_SOURCE.
// With Redis enabled the source is cached and downloads share a Redis rate limit.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Stack, error) {
	stack := &Stack{}

	rc, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stack.closers = append(stack.closers, func() { _ = rc.Close() })

	if cfg.Data.DownloadURL != "" {
		client := httputil.New(cfg, log)
		if rc.Enabled() {
			client.WithLimiter(redis.NewRateLimiter(rc, "portfolio", redis.DownloadRateLimit(cfg.Data.RateLimit)))
		}
		stack.Downloader = NewDownloader(client, cfg.Data.DownloadURL, cfg.Data.Dir, log)
	}

	switch cfg.Data.Source {
	case config.SourceCSV:
		stack.CSV = NewCSVSource(cfg.Data.Dir, cfg.Data.SharesOutstandingPath, stack.Downloader, log)
		stack.Source = stack.CSV
	case config.SourcePostgres:
		db, err := database.New(ctx, cfg)
		if err != nil {
			stack.Close()
			return nil, err
		}
		stack.closers = append(stack.closers, db.Close)
		stack.Postgres = NewPostgresSource(db, log)
		stack.Source = stack.Postgres
	default:
		stack.Close()
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}

	if rc.Enabled() {
		stack.Cache = NewCachedSource(stack.Source, redis.NewCache(rc, "portfolio"), cfg.Data.CacheTTL, log)
		stack.Source = stack.Cache
	}

	return stack, nil
}
