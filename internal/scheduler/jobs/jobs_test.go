package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

type fakeDownloader struct {
	failed []string
	asked  []string
}

func (d *fakeDownloader) DownloadAll(_ context.Context, tickers []string, _ int) []string {
	d.asked = tickers
	return d.failed
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate(context.Context, []string) error {
	f.calls++
	return nil
}

func list(tickers ...string) TickerLister {
	return func() ([]string, error) { return tickers, nil }
}

func TestRefreshJob(t *testing.T) {
	d := &fakeDownloader{failed: []string{"C"}}
	inv := &fakeInvalidator{}
	job := NewRefreshJob(d, list("A", "B", "C", "D"), inv, RefreshConfig{MaxFailedRatio: 0.5}, logger.Nop())

	assert.Equal(t, "data_refresh", job.Name())
	assert.Equal(t, DefaultRefreshSchedule, job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"A", "B", "C", "D"}, d.asked)
	assert.Equal(t, 1, inv.calls)
}

func TestRefreshJob_TooManyFailures(t *testing.T) {
	d := &fakeDownloader{failed: []string{"A", "B"}}
	inv := &fakeInvalidator{}
	job := NewRefreshJob(d, list("A", "B"), inv, RefreshConfig{}, logger.Nop())

	assert.Error(t, job.Run(context.Background()))
	assert.Zero(t, inv.calls, "nothing new to invalidate")
}

func TestRefreshJob_ListError(t *testing.T) {
	job := NewRefreshJob(&fakeDownloader{}, func() ([]string, error) {
		return nil, errors.New("no file")
	}, nil, RefreshConfig{Schedule: "@daily"}, logger.Nop())

	assert.Equal(t, "@daily", job.Schedule())
	assert.Error(t, job.Run(context.Background()))
}

type memoryStore struct {
	outstanding map[string]float64
	bars        map[string][]marketdata.Bar
	saved       map[string]int
	failOn      string
}

func (m *memoryStore) SharesOutstanding() (map[string]float64, error) {
	return m.outstanding, nil
}

func (m *memoryStore) ReadTicker(ticker string) ([]marketdata.Bar, error) {
	bars, ok := m.bars[ticker]
	if !ok {
		return nil, errors.New("missing file")
	}
	return bars, nil
}

func (m *memoryStore) SavePrices(_ context.Context, ticker string, bars []marketdata.Bar) error {
	if ticker == m.failOn {
		return errors.New("db down")
	}
	m.saved[ticker] = len(bars)
	return nil
}

func (m *memoryStore) SaveSharesOutstanding(_ context.Context, outstanding map[string]float64) error {
	m.saved["__outstanding"] = len(outstanding)
	return nil
}

func TestSyncJob(t *testing.T) {
	day := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	store := &memoryStore{
		outstanding: map[string]float64{"A": 1, "B": 2, "C": 3},
		bars: map[string][]marketdata.Bar{
			"A": {{Date: day, AdjClose: 1, Volume: 10}},
			"C": {{Date: day, AdjClose: 3, Volume: 30}, {Date: day.AddDate(0, 0, 1), AdjClose: 3, Volume: 30}},
		},
		saved: map[string]int{},
	}

	job := NewSyncJob(store, store, "", logger.Nop())
	assert.Equal(t, "postgres_sync", job.Name())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, map[string]int{"__outstanding": 3, "A": 1, "C": 2}, store.saved)
}

func TestSyncJob_WriteErrorAborts(t *testing.T) {
	store := &memoryStore{
		outstanding: map[string]float64{"A": 1},
		bars:        map[string][]marketdata.Bar{"A": {}},
		saved:       map[string]int{},
		failOn:      "A",
	}
	err := NewSyncJob(store, store, "@daily", logger.Nop()).Run(context.Background())
	assert.ErrorContains(t, err, "save A")
}
