package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/portfolio-backtest/internal/api/handlers"
	"github.com/wonny/portfolio-backtest/pkg/database"
	"github.com/wonny/portfolio-backtest/pkg/logger"
	"github.com/wonny/portfolio-backtest/pkg/metrics"
)

// HealthChecker reports database health (PostgresSource)
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// RouterConfig selects optional routes
type RouterConfig struct {
	MetricsEnabled bool
	Database       HealthChecker // nil unless DATA_SOURCE=postgres
}

// healthCheckTimeout bounds the database ping on /health
const healthCheckTimeout = 3 * time.Second

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(
	backtestHandler *handlers.BacktestHandler,
	dataHandler *handlers.DataHandler,
	cfg RouterConfig,
	log *logger.Logger,
) http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	// Health check
	r.HandleFunc("/health", healthCheckHandler(cfg.Database)).Methods("GET")

	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	// Backtest endpoints
	r.HandleFunc("/api/calculators", backtestHandler.ListCalculators).Methods("GET")
	r.HandleFunc("/api/backtests", backtestHandler.Run).Methods("POST")

	// Data endpoints
	r.HandleFunc("/api/data/coverage", dataHandler.GetCoverage).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))
	if cfg.MetricsEnabled {
		r.Use(metrics.Middleware)
	}

	return r
}

// healthCheckHandler returns server health status.
// With a database configured an unhealthy pool answers 503.
func healthCheckHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{
			"status":  "ok",
			"service": "portfolio-backtest-api",
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			health, err := db.HealthCheck(ctx)
			if err != nil || health == nil || !health.Healthy {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
			if health != nil {
				body["database"] = health
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

// methodNotAllowedHandler answers a known path with the wrong method
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "Method not allowed",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
