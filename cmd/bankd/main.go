/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger engine daemon. Handles configuration,
  dependency injection, the periodic sweep jobs, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment
  2. Initialize the selected store (sqlite, postgres, or memory)
  3. Seed the card catalog
  4. Construct core services and the sweep coordinator
  5. Start HTTP server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the cron runner and drain any in-flight sweep
  4. Close the store
  5. Exit

ENVIRONMENT:
  LISTEN_ADDR                 HTTP listen address (default :8080)
  STORAGE_BACKEND             sqlite | postgres | memory (default sqlite)
  SQLITE_PATH                 SQLite database path (default bank.db)
  DATABASE_URL                Postgres URL, required for the postgres backend
  INVESTMENT_SWEEP_SCHEDULE   cron spec (default @every 10m)
  SALARY_TICK_SCHEDULE        cron spec (default @every 3h)

SEE ALSO:
  - config/config.go: Environment loading and validation
  - api/server.go:    Router configuration
  - sweep/coordinator.go: Periodic job wiring
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/bank"
	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
	"github.com/warp/ledger-engine/store/memory"
	"github.com/warp/ledger-engine/store/postgres"
	"github.com/warp/ledger-engine/store/sqlite"
	"github.com/warp/ledger-engine/sweep"
)

func main() {
	root := &cobra.Command{
		Use:   "bankd",
		Short: "Closed-economy ledger engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
		SilenceUsage: true,
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()
	log.Info("store ready", zap.String("backend", cfg.StorageBackend))

	clock := ledger.SystemClock{}

	accounts := bank.NewAccountService(st, clock, log)
	transfers := bank.NewTransferService(st, clock, log)
	cards := bank.NewCardCatalog(st, clock, log)
	ministries := bank.NewMinistryTreasury(st, clock, log)
	investments := bank.NewInvestmentEngine(st, clock, log)
	salaries := bank.NewSalaryScheduler(st, clock, log)

	if err := cards.Seed(ctx); err != nil {
		return fmt.Errorf("seed card catalog: %w", err)
	}

	coordinator := sweep.New(investments, salaries, clock, log,
		cfg.InvestmentSweepSchedule, cfg.SalaryTickSchedule)
	if err := coordinator.Start(); err != nil {
		return fmt.Errorf("start sweep coordinator: %w", err)
	}

	handler := &api.Handler{
		Accounts:    accounts,
		Transfers:   transfers,
		Cards:       cards,
		Ministries:  ministries,
		Investments: investments,
		Salaries:    salaries,
		Clock:       clock,
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown", zap.Error(err))
		}

		// Drain any in-flight sweep before the store closes underneath it.
		<-coordinator.Stop().Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	case "postgres":
		return postgres.New(ctx, cfg.DatabaseURL)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
