package marketdata

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
	"github.com/wonny/portfolio-backtest/pkg/database"
	"github.com/wonny/portfolio-backtest/pkg/logger"
	"github.com/wonny/portfolio-backtest/pkg/metrics"
)

// Schema creates the market tables
const Schema = `
CREATE SCHEMA IF NOT EXISTS market;

CREATE TABLE IF NOT EXISTS market.daily_prices (
	ticker     TEXT             NOT NULL,
	trade_date DATE             NOT NULL,
	adj_close  DOUBLE PRECISION,
	volume     DOUBLE PRECISION,
	PRIMARY KEY (ticker, trade_date)
);

CREATE TABLE IF NOT EXISTS market.shares_outstanding (
	ticker             TEXT PRIMARY KEY,
	shares_outstanding DOUBLE PRECISION NOT NULL,
	updated_at         TIMESTAMPTZ      NOT NULL DEFAULT now()
);
`

// PostgresSource reads and writes histories in the market schema
// ⭐ SSOT: DB 기반 시세 저장소는 여기서만
type PostgresSource struct {
	db     *database.DB
	logger *logger.Logger
}

// NewPostgresSource creates a Postgres-backed source
func NewPostgresSource(db *database.DB, log *logger.Logger) *PostgresSource {
	return &PostgresSource{
		db:     db,
		logger: log.WithField("module", "marketdata.postgres"),
	}
}

// Name implements Source
func (s *PostgresSource) Name() string { return "postgres" }

// HealthCheck pings the pool behind the source
func (s *PostgresSource) HealthCheck(ctx context.Context) (*database.HealthStatus, error) {
	return s.db.HealthCheck(ctx)
}

// EnsureSchema creates the market tables if they do not exist
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure market schema: %w", err)
	}
	return nil
}

// Load implements Source. Empty tickers loads every ticker with outstanding shares.
func (s *PostgresSource) Load(ctx context.Context, tickers []string) (*contracts.SharesHistory, error) {
	history, err := s.load(ctx, uniqueSorted(tickers))
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.DataLoadsTotal.WithLabelValues(s.Name(), result).Inc()
	return history, err
}

func (s *PostgresSource) load(ctx context.Context, tickers []string) (*contracts.SharesHistory, error) {
	outstanding, err := s.sharesOutstanding(ctx, tickers)
	if err != nil {
		return nil, err
	}
	if len(outstanding) == 0 {
		return nil, fmt.Errorf("%w: no shares outstanding for %d tickers", ErrNoData, len(tickers))
	}

	query := `
		SELECT ticker, trade_date, adj_close, volume
		FROM market.daily_prices
		WHERE ticker = ANY($1)
		ORDER BY trade_date ASC
	`
	rows, err := s.db.Pool.Query(ctx, query, SortedTickers(outstanding))
	if err != nil {
		return nil, fmt.Errorf("query daily prices: %w", err)
	}
	defer rows.Close()

	prices := timeseries.NewBuilder()
	volumes := timeseries.NewBuilder()
	seen := make(map[string]bool)
	for rows.Next() {
		var (
			ticker   string
			date     time.Time
			adjClose *float64
			volume   *float64
		)
		if err := rows.Scan(&ticker, &date, &adjClose, &volume); err != nil {
			return nil, fmt.Errorf("scan daily price: %w", err)
		}
		prices.Set(ticker, date, orNaN(adjClose))
		volumes.Set(ticker, date, orNaN(volume))
		seen[ticker] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	missing := make([]string, 0)
	for ticker := range outstanding {
		if !seen[ticker] {
			missing = append(missing, ticker)
			delete(outstanding, ticker)
		}
	}
	if len(missing) > 0 {
		s.logger.WithField("tickers", uniqueSorted(missing)).Warn("Skipped tickers without price/volume data")
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: no daily prices", ErrNoData)
	}

	return &contracts.SharesHistory{
		Prices:            prices.Build(),
		Volumes:           volumes.Build(),
		SharesOutstanding: outstanding,
	}, nil
}

func (s *PostgresSource) sharesOutstanding(ctx context.Context, tickers []string) (map[string]float64, error) {
	query := `
		SELECT ticker, shares_outstanding
		FROM market.shares_outstanding
		WHERE cardinality($1::text[]) = 0 OR ticker = ANY($1)
	`
	rows, err := s.db.Pool.Query(ctx, query, tickers)
	if err != nil {
		return nil, fmt.Errorf("query shares outstanding: %w", err)
	}
	defer rows.Close()

	outstanding := make(map[string]float64)
	for rows.Next() {
		var ticker string
		var count float64
		if err := rows.Scan(&ticker, &count); err != nil {
			return nil, fmt.Errorf("scan shares outstanding: %w", err)
		}
		outstanding[ticker] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(tickers) > 0 {
		ignored := make([]string, 0)
		for _, t := range tickers {
			if _, ok := outstanding[t]; !ok {
				ignored = append(ignored, t)
			}
		}
		if len(ignored) > 0 {
			s.logger.WithField("tickers", ignored).Warn("Ignored tickers without shares outstanding")
		}
	}
	return outstanding, nil
}

// SavePrices upserts one ticker's bars in a single transaction
func (s *PostgresSource) SavePrices(ctx context.Context, ticker string, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO market.daily_prices (ticker, trade_date, adj_close, volume)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ticker, trade_date) DO UPDATE SET
			adj_close = EXCLUDED.adj_close,
			volume = EXCLUDED.volume`

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, b := range bars {
			batch.Queue(query, ticker, timeseries.Day(b.Date), nullable(b.AdjClose), nullable(b.Volume))
		}

		br := tx.SendBatch(ctx, batch)
		for range bars {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert %s prices: %w", ticker, err)
			}
		}
		return br.Close()
	})
}

// SaveSharesOutstanding upserts outstanding share counts
func (s *PostgresSource) SaveSharesOutstanding(ctx context.Context, outstanding map[string]float64) error {
	if len(outstanding) == 0 {
		return nil
	}

	query := `
		INSERT INTO market.shares_outstanding (ticker, shares_outstanding, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (ticker) DO UPDATE SET
			shares_outstanding = EXCLUDED.shares_outstanding,
			updated_at = now()`

	tickers := SortedTickers(outstanding)
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range tickers {
			batch.Queue(query, t, outstanding[t])
		}

		br := tx.SendBatch(ctx, batch)
		for range tickers {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert shares outstanding: %w", err)
			}
		}
		return br.Close()
	})
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// nullable stores NaN as NULL
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
