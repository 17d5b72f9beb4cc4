/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the zap logger
  3. Load and validate the rates document
  4. Open the store (sqlite or postgres)
  5. Create engine, metrics collector, API handler and router
  6. Start the batch scheduler (when BATCH_INTERVAL > 0)
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port    HTTP server port
  -driver  sqlite | postgres
  -db      SQLite path or Postgres URL; ":memory:" for an in-memory SQLite
  -rates   Rates document (JSON or YAML)
  -seed    Load a demo scenario for the current month and enable
           /api/scenarios/load

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -rates=rates.yaml -db="./data/payroll.db"
  ./server -rates=rates.yaml -db=":memory:" -seed=sales-team
  DB_DRIVER=postgres DB_DSN=postgres://localhost/payroll ./server -rates=rates.json

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - factory/rates.go: Rates document format
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.App.Port, "HTTP server port")
	driver := flag.String("driver", cfg.Database.Driver, "Store driver: sqlite or postgres")
	dsn := flag.String("db", cfg.Database.DSN, "SQLite path or Postgres URL")
	ratesFile := flag.String("rates", cfg.Payroll.RatesFile, "Rates document (JSON or YAML)")
	seed := flag.String("seed", "", "Demo scenario to load at startup (enables /api/scenarios)")
	flag.Parse()

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(logger, cfg, *port, *driver, *dsn, *ratesFile, *seed); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, cfg *config.Config, port int, driver, dsn, ratesFile, seed string) error {
	if ratesFile == "" {
		return errors.New("a rates document is required (-rates or RATES_FILE)")
	}
	rates, err := factory.LoadRatesFile(ratesFile)
	if err != nil {
		return fmt.Errorf("load rates: %w", err)
	}

	ctx := context.Background()
	backend, err := store.Open(ctx, driver, dsn)
	if err != nil {
		return err
	}
	defer backend.Close()

	collector := metrics.New()
	engine, err := payroll.NewEngine(backend, rates,
		payroll.WithLogger(logger),
		payroll.WithObserver(collector),
		payroll.WithBatchConcurrency(cfg.Payroll.BatchConcurrency),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	handler := api.NewHandler(engine, logger)
	if seed != "" {
		now := time.Now().UTC()
		if err := api.LoadScenario(ctx, backend, seed, payroll.NewPeriod(now.Year(), now.Month())); err != nil {
			return fmt.Errorf("seed %s: %w", seed, err)
		}
		handler.Seeder = backend
		logger.Info("demo scenario loaded", zap.String("scenario", seed))
	}

	scheduler := api.NewBatchScheduler(engine, logger, cfg.Payroll.BatchInterval)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      api.NewRouter(handler, collector.Handler()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", port),
			zap.String("driver", driver),
			zap.String("env", cfg.App.Env),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
