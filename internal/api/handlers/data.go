package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/pkg/logger"
)

// DataHandler handles market data API endpoints
// ⭐ SSOT: 데이터 API 핸들러는 이 구조체에서만
type DataHandler struct {
	source marketdata.Source
	logger *logger.Logger
}

// NewDataHandler creates a new data handler
func NewDataHandler(source marketdata.Source, log *logger.Logger) *DataHandler {
	return &DataHandler{
		source: source,
		logger: log,
	}
}

// GetCoverage returns the coverage report for the requested tickers
// GET /api/data/coverage?tickers=AAPL,MSFT (empty = all)
func (h *DataHandler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var tickers []string
	for _, t := range strings.Split(r.URL.Query().Get("tickers"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, t)
		}
	}

	history, err := h.source.Load(ctx, tickers)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to load history")
		respondError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"source":   h.source.Name(),
		"coverage": marketdata.Check(history),
	})
}
