package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
	"github.com/wonny/portfolio-backtest/pkg/logger"
	"github.com/wonny/portfolio-backtest/pkg/metrics"
	"github.com/wonny/portfolio-backtest/pkg/redis"
)

// CachedSource keeps loaded histories in Redis, keyed by ticker set.
// Cache failures are logged and never fail the load.
type CachedSource struct {
	inner  Source
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedSource wraps inner with a Redis cache
func NewCachedSource(inner Source, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	return &CachedSource{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithField("module", "marketdata.cache"),
	}
}

// Name implements Source
func (s *CachedSource) Name() string { return s.inner.Name() + "+redis" }

// Load implements Source
func (s *CachedSource) Load(ctx context.Context, tickers []string) (*contracts.SharesHistory, error) {
	key := redis.HistoryKey(tickers)

	var snap historySnapshot
	found, err := s.cache.Get(ctx, key, &snap)
	if err != nil {
		s.logger.WithError(err).Warn("History cache read failed")
	}
	if found {
		history, err := snap.restore()
		if err == nil {
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return history, nil
		}
		s.logger.WithError(err).Warn("Discarding corrupt history snapshot")
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	history, err := s.inner.Load(ctx, tickers)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, snapshotOf(history), s.ttl); err != nil {
		s.logger.WithError(err).Warn("History cache write failed")
	}
	return history, nil
}

// Invalidate drops the cached history for tickers
func (s *CachedSource) Invalidate(ctx context.Context, tickers []string) error {
	return s.cache.Delete(ctx, redis.HistoryKey(tickers))
}

// historySnapshot is the msgpack form of a SharesHistory
type historySnapshot struct {
	Prices      tableSnapshot      `msgpack:"prices"`
	Volumes     tableSnapshot      `msgpack:"volumes"`
	Outstanding map[string]float64 `msgpack:"outstanding"`
}

type tableSnapshot struct {
	Dates   []time.Time `msgpack:"dates"`
	Columns []string    `msgpack:"columns"`
	Values  [][]float64 `msgpack:"values"` // column-major
}

func snapshotOf(h *contracts.SharesHistory) historySnapshot {
	return historySnapshot{
		Prices:      tableSnapshotOf(h.Prices),
		Volumes:     tableSnapshotOf(h.Volumes),
		Outstanding: h.SharesOutstanding,
	}
}

func tableSnapshotOf(t *timeseries.Table) tableSnapshot {
	snap := tableSnapshot{
		Dates:   t.Dates(),
		Columns: t.Columns(),
		Values:  make([][]float64, t.Width()),
	}
	for j, col := range snap.Columns {
		snap.Values[j], _ = t.Column(col)
	}
	return snap
}

func (s historySnapshot) restore() (*contracts.SharesHistory, error) {
	prices, err := s.Prices.restore()
	if err != nil {
		return nil, fmt.Errorf("prices: %w", err)
	}
	volumes, err := s.Volumes.restore()
	if err != nil {
		return nil, fmt.Errorf("volumes: %w", err)
	}
	outstanding := s.Outstanding
	if outstanding == nil {
		outstanding = make(map[string]float64)
	}
	return &contracts.SharesHistory{Prices: prices, Volumes: volumes, SharesOutstanding: outstanding}, nil
}

func (s tableSnapshot) restore() (*timeseries.Table, error) {
	dates := make([]time.Time, len(s.Dates))
	for i, d := range s.Dates {
		dates[i] = d.UTC()
	}
	return timeseries.New(dates, s.Columns, s.Values)
}
