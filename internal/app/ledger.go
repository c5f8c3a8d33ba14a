// Package app assembles the GRNI ledger from its PostgreSQL adapters.
// Both the API server and the worker build it the same way.
package app

import (
	"fmt"

	"orvit/internal/core/clock"
	"orvit/internal/domain/grni"
	"orvit/internal/infrastructure/storage/postgres"
	"orvit/internal/infrastructure/storage/postgres/grni_repo"
)

// Ledger is the wired service plus the adapters callers need directly.
type Ledger struct {
	Service *grni.Service
	Configs *grni_repo.AlertConfigReader
}

// LedgerConfig selects runtime options.
type LedgerConfig struct {
	// OwnerStrategy is "random" (default) or "round_robin".
	OwnerStrategy string
	Clock         clock.Clock
}

// NewLedger wires every ledger port to txManager.
func NewLedger(txManager *postgres.TxManager, cfg LedgerConfig) (*Ledger, error) {
	auditLog, err := postgres.NewAuditLog(txManager)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	configs := grni_repo.NewAlertConfigReader(txManager)

	svc := grni.NewService(grni.ServiceConfig{
		Repo:      grni_repo.NewAccrualRepo(txManager),
		AuditLog:  auditLog,
		Configs:   configs,
		Directory: grni_repo.NewOwnerDirectory(txManager),
		Notifier:  postgres.NewNotificationOutbox(txManager),
		TxManager: txManager,
		Clock:     cfg.Clock,
		Picker:    grni.PickerFor(cfg.OwnerStrategy),
	})
	return &Ledger{Service: svc, Configs: configs}, nil
}
