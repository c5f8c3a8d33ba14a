package grni

import (
	"orvit/internal/core/clock"
	"orvit/internal/core/tx"
)

// Service is the accrual ledger. It is invoked synchronously by the receipt
// confirmation, invoice linking and receipt void flows, and by the aging
// sweep scheduler.
type Service struct {
	repo      Repository
	auditLog  AuditLog
	configs   ConfigSource
	directory OwnerDirectory
	notifier  Notifier
	txManager tx.Manager
	clock     clock.Clock
	picker    OwnerPicker
}

// ServiceConfig wires the ledger collaborators. Clock and Picker are optional.
type ServiceConfig struct {
	Repo      Repository
	AuditLog  AuditLog
	Configs   ConfigSource
	Directory OwnerDirectory
	Notifier  Notifier
	TxManager tx.Manager
	Clock     clock.Clock
	Picker    OwnerPicker
}

// NewService creates the ledger service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:      cfg.Repo,
		auditLog:  cfg.AuditLog,
		configs:   cfg.Configs,
		directory: cfg.Directory,
		notifier:  cfg.Notifier,
		txManager: cfg.TxManager,
		clock:     cfg.Clock,
		picker:    cfg.Picker,
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.picker == nil {
		s.picker = RandomPicker{}
	}
	return s
}
