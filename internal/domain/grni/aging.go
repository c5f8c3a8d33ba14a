package grni

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"orvit/internal/core/clock"
	appctx "orvit/internal/core/context"
	"orvit/internal/core/id"
	"orvit/internal/core/types"
	"orvit/pkg/logger"
)

var tracer = otel.Tracer("orvit/grni")

// RunAgingSweep alerts on unalerted PENDIENTE accruals of one company that
// crossed an aging threshold.
//
// A company without an active AlertConfig yields a zero result. Each accrual
// is claimed with a conditional update in the same transaction as its
// notification, so concurrent sweeps of one company fire at most once per
// accrual. Alerting is once per lifetime: a claimed accrual is never
// re-evaluated when it later crosses a higher threshold.
func (s *Service) RunAgingSweep(ctx context.Context, companyID int64) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "grni.aging_sweep")
	span.SetAttributes(attribute.Int64("company.id", companyID))
	defer span.End()

	var res SweepResult

	cfg, err := s.configs.ActiveAlertConfig(ctx, companyID)
	if err != nil {
		return res, fmt.Errorf("load alert config: %w", err)
	}
	if cfg == nil {
		logger.Debug(ctx, "grni sweep skipped: no active alert config", "company_id", companyID)
		return res, nil
	}
	if err := cfg.Validate(); err != nil {
		// Unordered thresholds would misclassify every accrual.
		logger.Warn(ctx, "grni sweep skipped: malformed alert config", "company_id", companyID, "error", err)
		return res, nil
	}

	candidates, err := s.repo.ListUnalertedPending(ctx, companyID)
	if err != nil {
		return res, fmt.Errorf("list unalerted accruals: %w", err)
	}

	now := s.clock.Now()
	for _, a := range candidates {
		days := clock.DaysBetween(a.CreatedAt, now)
		level, priority, ok := cfg.Classify(days)
		if !ok {
			continue
		}

		var claimed, notified bool
		err := s.txManager.RunInSavepoint(ctx, func(ctx context.Context) error {
			var err error
			claimed, err = s.repo.MarkAlerted(ctx, a.ID, now, days)
			if err != nil {
				return fmt.Errorf("mark alerted: %w", err)
			}
			if !claimed {
				return nil
			}

			if a.OwnerID != nil {
				notified = s.notify(ctx, alertNotification(a, level, priority, days, now), a.ID.String())
			}

			s.audit(ctx, &AuditEntry{
				ID:         id.New(),
				AccrualID:  a.ID,
				CompanyID:  a.CompanyID,
				Action:     ActionSendAlert,
				ReasonCode: level.ReasonCode(),
				Metadata: map[string]any{
					"level":   string(level),
					"days":    days,
					"ownerId": a.OwnerID,
				},
				UserID:    appctx.SystemUserID,
				CreatedAt: now,
			})
			return nil
		})
		if err != nil {
			logger.Error(ctx, "grni alert not recorded", "accrual_id", a.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		res.AlertsSent++
		if notified {
			res.NotificationsCreated++
		}
	}

	span.SetAttributes(
		attribute.Int("grni.alerts", res.AlertsSent),
		attribute.Int("grni.notifications", res.NotificationsCreated),
	)
	if res.AlertsSent > 0 {
		logger.Info(ctx, "grni aging sweep done",
			"company_id", companyID,
			"alerts", res.AlertsSent,
			"notifications", res.NotificationsCreated)
	}
	return res, nil
}

func alertNotification(a *Accrual, level AlertLevel, priority Priority, days int, now time.Time) *Notification {
	amount := a.EstimatedAmount.StringFixed(types.MoneyScale)
	return &Notification{
		ID:        id.New(),
		CompanyID: a.CompanyID,
		UserID:    *a.OwnerID,
		Type:      NotificationType,
		Priority:  priority,
		Subject:   fmt.Sprintf("[GRNI %s] %s - %d días sin facturar", level, supplierLabel(a), days),
		Body: fmt.Sprintf("La recepción %s lleva %d días sin factura. Monto estimado: %s %s.",
			receiptLabel(a), days, a.Currency, amount),
		Metadata: map[string]any{
			"accrualId":  a.ID.String(),
			"level":      string(level),
			"days":       days,
			"amount":     amount,
			"supplierId": a.SupplierID,
			"receiptId":  a.GoodsReceiptID,
		},
		CreatedAt: now,
	}
}

func supplierLabel(a *Accrual) string {
	if a.SupplierName != "" {
		return a.SupplierName
	}
	return "proveedor #" + strconv.FormatInt(a.SupplierID, 10)
}

func receiptLabel(a *Accrual) string {
	if a.ReceiptNumber != "" {
		return a.ReceiptNumber
	}
	return "#" + strconv.FormatInt(a.GoodsReceiptID, 10)
}
