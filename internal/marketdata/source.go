// Package marketdata loads price/volume histories and outstanding shares.
package marketdata

import (
	"context"
	"errors"

	"github.com/wonny/portfolio-backtest/internal/contracts"
)

var (
	ErrNoData    = errors.New("no market data")
	ErrBadFormat = errors.New("malformed price/volume data")
)

// Source loads the history a backtest runs on
// ⭐ 계약: 한 번 로드된 SharesHistory는 읽기 전용
type Source interface {
	// Name labels the source in logs and metrics
	Name() string

	// Load returns prices, volumes and outstanding shares for tickers.
	// Tickers without data are skipped; ErrNoData when nothing is left.
	Load(ctx context.Context, tickers []string) (*contracts.SharesHistory, error)
}
