package main

import (
	"context"
	"errors"
	"time"

	appctx "orvit/internal/core/context"
	"orvit/internal/domain/grni"
	"orvit/internal/infrastructure/lock"
	"orvit/pkg/logger"
)

// Sweeper runs the aging sweep for one company.
type Sweeper interface {
	RunAgingSweep(ctx context.Context, companyID int64) (grni.SweepResult, error)
}

// CompanySource lists companies to sweep.
type CompanySource interface {
	ActiveCompanies(ctx context.Context) ([]int64, error)
}

// Relay drains one batch of the notification outbox.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
}

// WorkerConfig wires the worker.
type WorkerConfig struct {
	Sweeper       Sweeper
	Companies     CompanySource
	Locker        lock.Locker
	Relay         Relay
	SweepInterval time.Duration
	RelayInterval time.Duration
	Logger        *logger.Logger
}

// Worker schedules the aging sweep and the outbox relay.
type Worker struct {
	cfg WorkerConfig
	log *logger.Logger
}

// NewWorker creates a worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Worker{cfg: cfg, log: cfg.Logger.WithComponent("grni-worker")}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	sweepTicker := time.NewTicker(w.cfg.SweepInterval)
	defer sweepTicker.Stop()
	relayTicker := time.NewTicker(w.cfg.RelayInterval)
	defer relayTicker.Stop()

	w.SweepAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			w.SweepAll(ctx)
		case <-relayTicker.C:
			w.RelayOnce(ctx)
		}
	}
}

// SweepAll runs the aging sweep for every active company. Each company is
// swept under its own lock; a busy lock means another worker has it.
// Returns the number of companies swept.
func (w *Worker) SweepAll(ctx context.Context) int {
	companies, err := w.cfg.Companies.ActiveCompanies(ctx)
	if err != nil {
		w.log.Errorw("failed to list companies", "error", err)
		return 0
	}

	swept := 0
	for _, companyID := range companies {
		if ctx.Err() != nil {
			break
		}
		if w.sweepCompany(ctx, companyID) {
			swept++
		}
	}
	return swept
}

func (w *Worker) sweepCompany(ctx context.Context, companyID int64) bool {
	runCtx := appctx.WithTrace(ctx, appctx.NewTraceContext())
	runCtx = appctx.WithActor(runCtx, &appctx.Actor{CompanyID: companyID, UserID: appctx.SystemUserID})

	err := w.cfg.Locker.WithLock(runCtx, lock.SweepKey(companyID), func(ctx context.Context) error {
		res, err := w.cfg.Sweeper.RunAgingSweep(ctx, companyID)
		if err != nil {
			return err
		}
		if res.AlertsSent > 0 {
			logger.Info(ctx, "aging sweep finished",
				"alerts_sent", res.AlertsSent,
				"notifications", res.NotificationsCreated)
		}
		return nil
	})
	switch {
	case errors.Is(err, lock.ErrNotObtained):
		logger.Debug(runCtx, "sweep already running elsewhere")
		return false
	case err != nil:
		logger.Error(runCtx, "aging sweep failed", "error", err)
		return false
	}
	return true
}

// RelayOnce drains the outbox until a batch delivers nothing.
func (w *Worker) RelayOnce(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		sent, err := w.cfg.Relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("notification relay failed", "error", err)
			return total
		}
		total += sent
		if sent == 0 {
			return total
		}
	}
	return total
}
