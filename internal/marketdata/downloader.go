package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wonny/portfolio-backtest/pkg/httputil"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

// TickerPlaceholder is substituted in the download URL template
const TickerPlaceholder = "{ticker}"

// DefaultWorkers is the download concurrency when none is given
const DefaultWorkers = 4

// Downloader fetches per-ticker price/volume CSVs into the data directory
// ⭐ SSOT: 외부 시세 다운로드는 여기서만
type Downloader struct {
	client      *httputil.Client
	urlTemplate string
	dir         string
	logger      *logger.Logger
}

// DownloadResult is the outcome for one ticker
type DownloadResult struct {
	Ticker string
	Rows   int
	Error  error
}

// NewDownloader creates a downloader writing into dir
func NewDownloader(client *httputil.Client, urlTemplate, dir string, log *logger.Logger) *Downloader {
	return &Downloader{
		client:      client,
		urlTemplate: urlTemplate,
		dir:         dir,
		logger:      log.WithField("module", "marketdata.download"),
	}
}

// URL returns the download URL for ticker
func (d *Downloader) URL(ticker string) string {
	return strings.ReplaceAll(d.urlTemplate, TickerPlaceholder, url.PathEscape(ticker))
}

// Download fetches one ticker and replaces its file atomically.
// The body must parse as a price/volume CSV with at least one row.
func (d *Downloader) Download(ctx context.Context, ticker string) error {
	_, err := d.download(ctx, ticker)
	return err
}

func (d *Downloader) download(ctx context.Context, ticker string) (int, error) {
	body, err := d.client.GetBytes(ctx, d.URL(ticker))
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", ticker, err)
	}

	bars, err := ReadPriceVolume(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", ticker, err)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("download %s: %w", ticker, ErrNoData)
	}

	if err := writeAtomic(PriceVolumePath(d.dir, ticker), body); err != nil {
		return 0, fmt.Errorf("save %s: %w", ticker, err)
	}
	return len(bars), nil
}

// DownloadAll fetches tickers with a worker pool and returns the failed ones, sorted
func (d *Downloader) DownloadAll(ctx context.Context, tickers []string, workers int) []string {
	results := d.Fetch(ctx, tickers, workers)

	failed := make([]string, 0)
	for _, r := range results {
		if r.Error != nil {
			failed = append(failed, r.Ticker)
		}
	}
	sort.Strings(failed)
	return failed
}

// Fetch downloads tickers concurrently and reports every result
func (d *Downloader) Fetch(ctx context.Context, tickers []string, workers int) []DownloadResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	tickers = uniqueSorted(tickers)

	d.logger.WithFields(map[string]interface{}{
		"tickers": len(tickers),
		"workers": workers,
	}).Info("Starting download")

	tickerCh := make(chan string, len(tickers))
	resultCh := make(chan DownloadResult, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			d.worker(ctx, workerID, tickerCh, resultCh)
		}(i)
	}

	for _, t := range tickers {
		tickerCh <- t
	}
	close(tickerCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]DownloadResult, 0, len(tickers))
	failCount := 0
	for r := range resultCh {
		results = append(results, r)
		if r.Error != nil {
			failCount++
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Ticker < results[j].Ticker })

	d.logger.WithFields(map[string]interface{}{
		"success": len(results) - failCount,
		"failed":  failCount,
		"total":   len(results),
	}).Info("Download completed")

	return results
}

func (d *Downloader) worker(ctx context.Context, workerID int, tickerCh <-chan string, resultCh chan<- DownloadResult) {
	for ticker := range tickerCh {
		if err := ctx.Err(); err != nil {
			resultCh <- DownloadResult{Ticker: ticker, Error: err}
			continue
		}

		rows, err := d.download(ctx, ticker)
		if err != nil {
			d.logger.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID,
				"ticker": ticker,
			}).Warn("Failed to download")
		}
		resultCh <- DownloadResult{Ticker: ticker, Rows: rows, Error: err}
	}
}

// writeAtomic writes data next to path and renames it into place
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
