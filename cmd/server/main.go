// Package main is the entry point for the GRNI API server.
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

	"orvit/internal/app"
	v1 "orvit/internal/infrastructure/http/v1"
	"orvit/internal/infrastructure/storage/postgres"
	"orvit/pkg/logger"
)

func main() {
	cfg, err := app.LoadConfig(int(postgres.DefaultPoolConfig("").MaxConns))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
		Service:     "orvit-grni-api",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("database unavailable", "error", err)
	}
	defer pool.Close()

	ledger, err := app.NewLedger(postgres.NewTxManager(pool), app.LedgerConfig{OwnerStrategy: cfg.OwnerStrategy})
	if err != nil {
		log.Fatalw("build ledger", "error", err)
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: v1.NewRouter(v1.RouterConfig{
			Ledger:      ledger.Service,
			DB:          pool,
			Logger:      log,
			Development: cfg.Development(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("grni api listening", "port", cfg.Port, "env", cfg.Env)
		serveErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Infow("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server failed", "error", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
	log.Info("grni api stopped")
}
