package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/internal/timeseries"
	"github.com/wonny/portfolio-backtest/pkg/logger"
	"github.com/wonny/portfolio-backtest/pkg/metrics"
)

// CSVSource reads <dir>/<TICKER>.csv files and a shares outstanding CSV
// ⭐ SSOT: 파일 기반 시세 로딩은 여기서만
type CSVSource struct {
	dir             string
	outstandingPath string
	downloader      *Downloader // optional, fetches missing files
	logger          *logger.Logger
}

// NewCSVSource creates a CSV source; downloader may be nil
func NewCSVSource(dir, outstandingPath string, downloader *Downloader, log *logger.Logger) *CSVSource {
	return &CSVSource{
		dir:             dir,
		outstandingPath: outstandingPath,
		downloader:      downloader,
		logger:          log.WithField("module", "marketdata.csv"),
	}
}

// PriceVolumePath returns the file holding a ticker's history
func PriceVolumePath(dir, ticker string) string {
	return filepath.Join(dir, ticker+".csv")
}

// Name implements Source
func (s *CSVSource) Name() string { return "csv" }

// Load implements Source. Tickers without outstanding shares are ignored
// with one warning; missing files are downloaded when a downloader is set.
func (s *CSVSource) Load(ctx context.Context, tickers []string) (*contracts.SharesHistory, error) {
	history, err := s.load(ctx, tickers)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.DataLoadsTotal.WithLabelValues(s.Name(), result).Inc()
	return history, err
}

func (s *CSVSource) load(ctx context.Context, tickers []string) (*contracts.SharesHistory, error) {
	all, err := s.SharesOutstanding()
	if err != nil {
		return nil, err
	}

	if len(tickers) == 0 {
		tickers = make([]string, 0, len(all))
		for t := range all {
			tickers = append(tickers, t)
		}
	}
	tickers = uniqueSorted(tickers)

	outstanding := make(map[string]float64, len(tickers))
	ignored := make([]string, 0)
	for _, t := range tickers {
		if v, ok := all[t]; ok {
			outstanding[t] = v
		} else {
			ignored = append(ignored, t)
		}
	}
	if len(ignored) > 0 {
		s.logger.WithField("tickers", ignored).Warn("Ignored tickers without shares outstanding")
	}

	prices := timeseries.NewBuilder()
	volumes := timeseries.NewBuilder()
	loaded := 0
	skipped := make([]string, 0)

	for _, ticker := range SortedTickers(outstanding) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bars, err := s.readTicker(ctx, ticker)
		if err != nil {
			s.logger.WithError(err).WithField("ticker", ticker).Debug("Skipping ticker")
			skipped = append(skipped, ticker)
			delete(outstanding, ticker)
			continue
		}

		prices.AddColumn(ticker)
		volumes.AddColumn(ticker)
		for _, b := range bars {
			prices.Set(ticker, b.Date, b.AdjClose)
			volumes.Set(ticker, b.Date, b.Volume)
		}
		loaded++
	}

	if len(skipped) > 0 {
		s.logger.WithField("tickers", skipped).Warn("Skipped tickers without price/volume data")
	}
	if loaded == 0 {
		return nil, fmt.Errorf("%w for %d requested tickers", ErrNoData, len(tickers))
	}

	s.logger.WithFields(map[string]interface{}{
		"loaded":  loaded,
		"ignored": len(ignored),
		"skipped": len(skipped),
	}).Info("Loaded price/volume history")

	return &contracts.SharesHistory{
		Prices:            prices.Build(),
		Volumes:           volumes.Build(),
		SharesOutstanding: outstanding,
	}, nil
}

// SharesOutstanding reads the outstanding shares file
func (s *CSVSource) SharesOutstanding() (map[string]float64, error) {
	f, err := os.Open(s.outstandingPath)
	if err != nil {
		return nil, fmt.Errorf("open shares outstanding: %w", err)
	}
	defer f.Close()
	return ReadSharesOutstanding(f)
}

// ReadTicker reads one ticker's bars from disk without downloading
func (s *CSVSource) ReadTicker(ticker string) ([]Bar, error) {
	f, err := os.Open(PriceVolumePath(s.dir, ticker))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadPriceVolume(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}
	return bars, nil
}

func (s *CSVSource) readTicker(ctx context.Context, ticker string) ([]Bar, error) {
	bars, err := s.ReadTicker(ticker)
	if !errors.Is(err, fs.ErrNotExist) || s.downloader == nil {
		return bars, err
	}

	if err := s.downloader.Download(ctx, ticker); err != nil {
		return nil, err
	}
	return s.ReadTicker(ticker)
}

func uniqueSorted(values []string) []string {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SortedTickers returns the keys of an outstanding-shares map in order
func SortedTickers(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
