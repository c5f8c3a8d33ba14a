package main

import (
	"context"

	"orvit/internal/domain/grni"
	"orvit/pkg/logger"
)

// LogDispatcher delivers notifications by logging them. The ERP inbox reads
// grni_notifications directly, so the log line is the delivery record.
type LogDispatcher struct{}

// Dispatch implements postgres.Dispatcher.
func (LogDispatcher) Dispatch(ctx context.Context, n *grni.Notification) error {
	logger.Info(ctx, "grni notification",
		"notification_id", n.ID,
		"company_id", n.CompanyID,
		"recipient", n.UserID,
		"priority", n.Priority,
		"subject", n.Subject)
	return nil
}
