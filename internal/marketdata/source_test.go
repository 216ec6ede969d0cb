package marketdata

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/portfolio-backtest/internal/contracts"
	"github.com/wonny/portfolio-backtest/pkg/config"
	"github.com/wonny/portfolio-backtest/pkg/httputil"
	"github.com/wonny/portfolio-backtest/pkg/logger"
	"github.com/wonny/portfolio-backtest/pkg/redis"
)

const outstandingCSV = "ticker,sharesOutstanding\nAAA,100\nBBB,200\nCCC,300\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// dataDir lays out AAA and BBB price files plus the outstanding file
func dataDir(t *testing.T) (dir, outstandingPath string) {
	t.Helper()
	dir = t.TempDir()
	outstandingPath = filepath.Join(dir, "info", "shares_outstanding.csv")
	writeFile(t, outstandingPath, outstandingCSV)
	writeFile(t, PriceVolumePath(dir, "AAA"), "Date,Adj Close,Volume\n2020-01-02,10,100\n2020-01-03,11,110\n")
	writeFile(t, PriceVolumePath(dir, "BBB"), "Date,Adj Close,Volume\n2020-01-03,20,200\n2020-01-06,21,210\n")
	return dir, outstandingPath
}

func TestCSVSource_Load(t *testing.T) {
	dir, outstandingPath := dataDir(t)
	source := NewCSVSource(dir, outstandingPath, nil, logger.Nop())

	history, err := source.Load(context.Background(), []string{"BBB", "AAA", "ZZZ"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, history.Tickers())
	assert.Equal(t, map[string]float64{"AAA": 100, "BBB": 200}, history.SharesOutstanding)

	// outer join on dates
	require.Equal(t, 3, history.Prices.Len())
	assert.True(t, math.IsNaN(history.Prices.At(2, "AAA")))
	assert.True(t, math.IsNaN(history.Prices.At(0, "BBB")))
	assert.Equal(t, 11.0, history.Prices.At(1, "AAA"))
	assert.Equal(t, 210.0, history.Volumes.At(2, "BBB"))
}

func TestCSVSource_SkipsMissingFilesWithoutDownloader(t *testing.T) {
	dir, outstandingPath := dataDir(t)
	source := NewCSVSource(dir, outstandingPath, nil, logger.Nop())

	history, err := source.Load(context.Background(), []string{"AAA", "CCC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, history.Tickers())
	assert.NotContains(t, history.SharesOutstanding, "CCC")
}

func TestCSVSource_NoData(t *testing.T) {
	dir, outstandingPath := dataDir(t)
	source := NewCSVSource(dir, outstandingPath, nil, logger.Nop())

	_, err := source.Load(context.Background(), []string{"CCC", "ZZZ"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCSVSource_EmptyTickersLoadsEverything(t *testing.T) {
	dir, outstandingPath := dataDir(t)
	source := NewCSVSource(dir, outstandingPath, nil, logger.Nop())

	history, err := source.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, history.Tickers())
}

func priceServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Path {
		case "/CCC.csv":
			w.Write([]byte("Date,Adj Close,Volume\n2020-01-02,30,300\n2020-01-03,31,310\n"))
		case "/EMPTY.csv":
			w.Write([]byte("Date,Adj Close,Volume\n"))
		case "/HTML.csv":
			w.Write([]byte("<html>not found</html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newDownloader(t *testing.T, serverURL, dir string) *Downloader {
	t.Helper()
	client := httputil.New(&config.Config{}, logger.Nop()).WithRetry(1, time.Millisecond)
	return NewDownloader(client, serverURL+"/{ticker}.csv", dir, logger.Nop())
}

func TestCSVSource_DownloadsMissingFiles(t *testing.T) {
	var hits int32
	server := priceServer(t, &hits)
	defer server.Close()

	dir, outstandingPath := dataDir(t)
	source := NewCSVSource(dir, outstandingPath, newDownloader(t, server.URL, dir), logger.Nop())

	history, err := source.Load(context.Background(), []string{"AAA", "CCC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "CCC"}, history.Tickers())
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.FileExists(t, PriceVolumePath(dir, "CCC"))
}

func TestDownloader_URL(t *testing.T) {
	d := NewDownloader(nil, "https://example.com/history/{ticker}?range=max", "", logger.Nop())
	assert.Equal(t, "https://example.com/history/BRK.B?range=max", d.URL("BRK.B"))
	assert.Equal(t, "https://example.com/history/A%2FB?range=max", d.URL("A/B"))
}

func TestDownloader_DownloadAll(t *testing.T) {
	var hits int32
	server := priceServer(t, &hits)
	defer server.Close()

	dir := t.TempDir()
	failed := newDownloader(t, server.URL, dir).DownloadAll(context.Background(),
		[]string{"HTML", "CCC", "EMPTY", "MISSING", "CCC"}, 2)

	assert.Equal(t, []string{"EMPTY", "HTML", "MISSING"}, failed)
	assert.FileExists(t, PriceVolumePath(dir, "CCC"))
	assert.NoFileExists(t, PriceVolumePath(dir, "HTML"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestDownloader_KeepsExistingFileOnFailure(t *testing.T) {
	var hits int32
	server := priceServer(t, &hits)
	defer server.Close()

	dir := t.TempDir()
	existing := "Date,Adj Close,Volume\n2020-01-02,1,1\n"
	writeFile(t, PriceVolumePath(dir, "HTML"), existing)

	err := newDownloader(t, server.URL, dir).Download(context.Background(), "HTML")
	require.Error(t, err)

	data, err := os.ReadFile(PriceVolumePath(dir, "HTML"))
	require.NoError(t, err)
	assert.Equal(t, existing, string(data))
}

func TestCachedSource_DisabledRedisPassesThrough(t *testing.T) {
	dir, outstandingPath := dataDir(t)
	inner := NewCSVSource(dir, outstandingPath, nil, logger.Nop())
	cached := NewCachedSource(inner, redis.NewCache(redis.Disabled(), "test"), 0, logger.Nop())

	history, err := cached.Load(context.Background(), []string{"AAA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, history.Tickers())
	assert.Equal(t, "csv+redis", cached.Name())
}

func TestHistorySnapshot_RoundTrip(t *testing.T) {
	dir, outstandingPath := dataDir(t)
	history, err := NewCSVSource(dir, outstandingPath, nil, logger.Nop()).Load(context.Background(), nil)
	require.NoError(t, err)

	data, err := redis.Encode(snapshotOf(history))
	require.NoError(t, err)

	var snap historySnapshot
	require.NoError(t, redis.Decode(data, &snap))
	restored, err := snap.restore()
	require.NoError(t, err)

	assert.Equal(t, history.SharesOutstanding, restored.SharesOutstanding)
	assert.Equal(t, history.Prices.Columns(), restored.Prices.Columns())
	require.Equal(t, history.Prices.Len(), restored.Prices.Len())
	for i := 0; i < history.Prices.Len(); i++ {
		assert.True(t, history.Prices.Date(i).Equal(restored.Prices.Date(i)))
		for _, col := range history.Prices.Columns() {
			want, got := history.Prices.At(i, col), restored.Prices.At(i, col)
			if math.IsNaN(want) {
				assert.True(t, math.IsNaN(got))
			} else {
				assert.Equal(t, want, got)
			}
		}
	}
}

func TestCheck(t *testing.T) {
	dir, outstandingPath := dataDir(t)
	writeFile(t, PriceVolumePath(dir, "CCC"), "Date,Adj Close,Volume\n2020-01-02,1,1\n2020-01-06,3,3\n")
	history, err := NewCSVSource(dir, outstandingPath, nil, logger.Nop()).Load(context.Background(), nil)
	require.NoError(t, err)

	report := Check(history)
	require.Len(t, report, 3)

	assert.Equal(t, Coverage{
		Ticker: "AAA", First: date("2020-01-02"), Last: date("2020-01-03"),
		Rows: 2, Missing: 0, MissingRatio: 0, HasOutstanding: true,
	}, report[0])
	// CCC has no row on 2020-01-03
	assert.Equal(t, 3, report[2].Rows)
	assert.Equal(t, 1, report[2].Missing)
	assert.InDelta(t, 1.0/3, report[2].MissingRatio, 1e-12)

	assert.Empty(t, Check(&contracts.SharesHistory{}))
}
