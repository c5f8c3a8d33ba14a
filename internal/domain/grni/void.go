package grni

import (
	"context"
	"fmt"

	appctx "orvit/internal/core/context"
	"orvit/internal/core/id"
	"orvit/pkg/logger"
)

// VoidForReceipt moves every PENDIENTE accrual of a cancelled receipt to
// ANULADO in one statement and appends one VOID audit entry per accrual.
func (s *Service) VoidForReceipt(ctx context.Context, companyID, receiptID int64, reason string) (VoidResult, error) {
	var res VoidResult
	now := s.clock.Now()
	userID := appctx.GetUserID(ctx)

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		pending, err := s.repo.ListPendingByReceiptForUpdate(ctx, companyID, receiptID)
		if err != nil {
			return fmt.Errorf("lock pending accruals: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}

		ids := make([]id.ID, len(pending))
		byID := make(map[id.ID]*Accrual, len(pending))
		for i, a := range pending {
			ids[i] = a.ID
			byID[a.ID] = a
		}

		voided, err := s.repo.VoidPending(ctx, companyID, ids, VoidUpdate{At: now, By: userID, Reason: reason})
		if err != nil {
			return fmt.Errorf("void accruals: %w", err)
		}

		from, to := StatusPending, StatusVoided
		for _, accrualID := range voided {
			a := byID[accrualID]
			if a == nil {
				continue
			}
			res.Voided++
			s.audit(ctx, &AuditEntry{
				ID:           id.New(),
				AccrualID:    a.ID,
				CompanyID:    a.CompanyID,
				Action:       ActionVoid,
				FromStatus:   &from,
				ToStatus:     &to,
				AmountBefore: nullMoney(a.EstimatedAmount),
				ReasonCode:   ReasonReceiptVoided,
				Reason:       reason,
				Metadata:     map[string]any{"receiptId": receiptID},
				UserID:       userID,
				CreatedAt:    now,
			})
		}
		return nil
	})
	if err != nil {
		return VoidResult{}, err
	}

	if res.Voided > 0 {
		logger.Info(ctx, "grni accruals voided", "receipt_id", receiptID, "voided", res.Voided)
	}
	return res, nil
}
