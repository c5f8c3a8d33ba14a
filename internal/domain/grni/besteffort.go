package grni

import (
	"context"

	"orvit/pkg/logger"
)

// sideEffect is a write whose failure must never fail or roll back the
// accrual mutation it accompanies (audit rows, outbox rows).
type sideEffect struct {
	name      string
	accrualID string
	run       func(ctx context.Context) error
}

// fire runs the effect in its own savepoint and reports success.
// Errors stop here: they are logged and cannot reach the caller.
func (s *Service) fire(ctx context.Context, e sideEffect) bool {
	err := s.txManager.RunInSavepoint(ctx, e.run)
	if err != nil {
		logger.Warn(ctx, "grni side effect failed",
			"effect", e.name,
			"accrual_id", e.accrualID,
			"error", err)
		return false
	}
	return true
}

func (s *Service) audit(ctx context.Context, entry *AuditEntry) bool {
	return s.fire(ctx, sideEffect{
		name:      "audit:" + string(entry.Action),
		accrualID: entry.AccrualID.String(),
		run: func(ctx context.Context) error {
			return s.auditLog.Append(ctx, entry)
		},
	})
}

func (s *Service) notify(ctx context.Context, n *Notification, accrualID string) bool {
	return s.fire(ctx, sideEffect{
		name:      "notification",
		accrualID: accrualID,
		run: func(ctx context.Context) error {
			return s.notifier.Enqueue(ctx, n)
		},
	})
}
