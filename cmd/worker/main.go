// Package main runs the GRNI background jobs: the periodic aging sweep of
// every active company and the notification relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"orvit/internal/app"
	"orvit/internal/core/clock"
	"orvit/internal/infrastructure/lock"
	"orvit/internal/infrastructure/storage/postgres"
	"orvit/pkg/logger"
)

const workerPoolSize = 5

func main() {
	cfg, err := app.LoadConfig(workerPoolSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
		Service:     "orvit-grni-worker",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(logger.WithLogger(context.Background(), log), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.ApplicationName = "orvit-grni-worker"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("database unavailable", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	ledger, err := app.NewLedger(txManager, app.LedgerConfig{OwnerStrategy: cfg.OwnerStrategy})
	if err != nil {
		log.Fatalw("build ledger", "error", err)
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalw("redis unavailable", "address", cfg.RedisAddress, "error", err)
		}
		locker = lock.NewRedisLocker(rdb, cfg.SweepLockTTL)
		log.Infow("sweep lock is distributed", "address", cfg.RedisAddress)
	}

	worker := NewWorker(WorkerConfig{
		Sweeper:       ledger.Service,
		Companies:     ledger.Configs,
		Locker:        locker,
		Relay:         postgres.NewNotificationRelay(txManager, LogDispatcher{}, clock.System{}, cfg.RelayBatch),
		SweepInterval: cfg.SweepInterval,
		RelayInterval: cfg.RelayInterval,
		Logger:        log,
	})

	log.Infow("grni worker started", "sweep_interval", cfg.SweepInterval, "relay_interval", cfg.RelayInterval)
	worker.Run(ctx)
	log.Info("grni worker stopped")
}
