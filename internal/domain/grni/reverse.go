package grni

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	appctx "orvit/internal/core/context"
	"orvit/internal/core/id"
	"orvit/internal/core/types"
	"orvit/pkg/logger"
)

// ReverseForInvoice closes every PENDIENTE accrual of the receipt against
// the linked invoice.
//
// Pending rows are locked for the duration of the transaction, so a second
// concurrent link of the same receipt sees them already FACTURADO. Accruals
// without a matching invoice line are still closed with an invoiced amount
// of NULL and a variance of minus the estimate.
func (s *Service) ReverseForInvoice(ctx context.Context, companyID, receiptID int64, inv Invoice) (ReverseResult, error) {
	res := ReverseResult{TotalVariance: types.Zero()}
	now := s.clock.Now()
	userID := appctx.GetUserID(ctx)

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		pending, err := s.repo.ListPendingByReceiptForUpdate(ctx, companyID, receiptID)
		if err != nil {
			return fmt.Errorf("lock pending accruals: %w", err)
		}

		for _, a := range pending {
			line, matched := matchInvoiceLine(inv.Lines, a)
			next := *a
			applyInvoice(&next, inv, line, matched, now, userID)

			err := s.txManager.RunInSavepoint(ctx, func(ctx context.Context) error {
				return s.repo.Update(ctx, &next, StatusPending)
			})
			if err != nil {
				res.Failed++
				logger.Error(ctx, "grni accrual not reversed",
					"accrual_id", a.ID,
					"invoice_id", inv.ID,
					"error", err)
				continue
			}

			from, to := StatusPending, StatusInvoiced
			s.audit(ctx, &AuditEntry{
				ID:           id.New(),
				AccrualID:    a.ID,
				CompanyID:    a.CompanyID,
				Action:       ActionFactured,
				FromStatus:   &from,
				ToStatus:     &to,
				AmountBefore: nullMoney(a.EstimatedAmount),
				AmountAfter:  next.InvoicedAmount,
				ReasonCode:   ReasonInvoiceLinked,
				Reason:       *next.ReversalReason,
				Metadata: map[string]any{
					"invoiceId":     inv.ID,
					"variance":      next.Variance.Decimal.StringFixed(types.MoneyScale),
					"invoicePeriod": next.InvoicePeriod.String(),
					"matched":       matched,
				},
				UserID:    userID,
				CreatedAt: now,
			})

			*a = next
			res.Reversed++
			res.TotalVariance = res.TotalVariance.Add(next.Variance.Decimal)
		}
		return nil
	})
	if err != nil {
		return ReverseResult{TotalVariance: types.Zero()}, err
	}

	if res.Reversed > 0 {
		logger.Info(ctx, "grni accruals reversed",
			"receipt_id", receiptID,
			"invoice_id", inv.ID,
			"reversed", res.Reversed,
			"variance", res.TotalVariance.StringFixed(types.MoneyScale))
	}
	return res, nil
}

// matchInvoiceLine finds the invoice line for an accrual: by receipt item
// reference first, then by case-insensitive description.
func matchInvoiceLine(lines []InvoiceLine, a *Accrual) (InvoiceLine, bool) {
	for _, l := range lines {
		if l.ReceiptItemID != nil && *l.ReceiptItemID == a.GoodsReceiptItemID {
			return l, true
		}
	}
	desc := strings.TrimSpace(a.Description)
	if desc == "" {
		return InvoiceLine{}, false
	}
	for _, l := range lines {
		if strings.EqualFold(strings.TrimSpace(l.Description), desc) {
			return l, true
		}
	}
	return InvoiceLine{}, false
}

// applyInvoice performs the PENDIENTE -> FACTURADO transition in memory.
// An unmatched accrual keeps a NULL invoiced amount; a line matched at a
// zero total stores 0. Variance is always set.
func applyInvoice(a *Accrual, inv Invoice, line InvoiceLine, matched bool, now time.Time, userID int64) {
	invoiced := types.Zero()
	a.InvoicedAmount = decimal.NullDecimal{}
	if matched {
		invoiced = types.LineAmount(line.Quantity, line.UnitPrice)
		a.InvoicedAmount = nullMoney(invoiced)
	}
	a.Variance = nullMoney(invoiced.Sub(a.EstimatedAmount))

	period := types.PeriodOf(now)
	code := ReasonInvoiceLinked
	reason := fmt.Sprintf("Facturado con factura %s", invoiceRef(inv))
	a.InvoicePeriod = &period
	a.InvoiceID = &inv.ID
	a.ReversedAt = &now
	a.ReversedBy = &userID
	a.ReversalReasonCode = &code
	a.ReversalReason = &reason
	a.Status = StatusInvoiced
	a.UpdatedAt = now
}

func invoiceRef(inv Invoice) string {
	if inv.Number != "" {
		return inv.Number
	}
	return fmt.Sprintf("#%d", inv.ID)
}
