package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/portfolio-backtest/internal/api"
	"github.com/wonny/portfolio-backtest/internal/api/handlers"
	"github.com/wonny/portfolio-backtest/internal/marketdata"
	"github.com/wonny/portfolio-backtest/internal/runner"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 백테스트 실행 엔드포인트 제공
- 데이터 커버리지 조회 제공

Endpoints:
  GET  /health               - Health check
  GET  /metrics              - Prometheus metrics (METRICS_ENABLED)
  GET  /api/calculators      - 등록된 allocator 목록
  POST /api/backtests        - 백테스트 실행 (실행 파일과 같은 스키마, JSON)
  GET  /api/data/coverage    - 종목별 커버리지 (?tickers=A,B)

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Portfolio Backtest API Server ===")

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	log.WithFields(map[string]interface{}{
		"port":   cfg.Port,
		"env":    cfg.Env,
		"source": cfg.Data.Source,
	}).Info("Initializing API server")

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stack, err := marketdata.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open market data: %w", err)
	}
	defer stack.Close()

	orchestrator := runner.NewOrchestrator(stack.Source, log)
	backtestHandler := handlers.NewBacktestHandler(orchestrator, cfg.Backtest, log)
	dataHandler := handlers.NewDataHandler(stack.Source, log)

	routerCfg := api.RouterConfig{MetricsEnabled: cfg.MetricsEnabled}
	if stack.Postgres != nil {
		routerCfg.Database = stack.Postgres
	}
	router := api.NewRouter(backtestHandler, dataHandler, routerCfg, log)
	server := api.New(cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost%s (source: %s)\n", server.Addr(), stack.Source.Name())
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
