package grni

import (
	"context"
	"fmt"

	"orvit/internal/core/apperror"
	appctx "orvit/internal/core/context"
	"orvit/internal/core/id"
	"orvit/internal/core/types"
	"orvit/pkg/logger"
)

// CreateFromReceipt opens one PENDIENTE accrual per priceable receipt line.
//
// Lines with a non-positive quantity or unit price are ignored. Each line is
// written in its own savepoint so one failing line does not abort the rest;
// failures are reported in CreateResult.Failed. Lines that already carry an
// accrual are counted as Skipped, which makes re-delivery of the same
// confirmation harmless.
func (s *Service) CreateFromReceipt(ctx context.Context, r Receipt) (CreateResult, error) {
	res := CreateResult{TotalEstimated: types.Zero()}

	accrued, err := s.repo.AccruedItemIDs(ctx, r.CompanyID, r.ID)
	if err != nil {
		return res, fmt.Errorf("load accrued items: %w", err)
	}

	now := s.clock.Now()
	userID := appctx.GetUserID(ctx)
	currency := r.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	docType := r.DocType
	if docType == "" {
		docType = DefaultDocType
	}

	var owners *ownerPool
	for _, item := range r.Items {
		if !item.Quantity.IsPositive() || !item.UnitPrice.IsPositive() {
			continue
		}
		// A line that rounds to zero carries no liability.
		amount := types.LineAmount(item.Quantity, item.UnitPrice)
		if !amount.IsPositive() {
			continue
		}
		if _, ok := accrued[item.ID]; ok {
			res.Skipped++
			continue
		}
		if owners == nil {
			owners = s.resolveOwnerPool(ctx, r.CompanyID)
		}

		a := &Accrual{
			ID:                 id.New(),
			CompanyID:          r.CompanyID,
			GoodsReceiptID:     r.ID,
			GoodsReceiptItemID: item.ID,
			SupplierID:         r.SupplierID,
			SupplierItemID:     item.SupplierItemID,
			Description:        item.Description,
			EstimatedAmount:    amount,
			Currency:           currency,
			DocType:            docType,
			Period:             types.PeriodOf(now),
			OwnerID:            owners.pick(s.picker),
			OwnerRole:          owners.role,
			Status:             StatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
			Version:            1,
		}

		err := s.txManager.RunInSavepoint(ctx, func(ctx context.Context) error {
			if err := s.repo.Create(ctx, a); err != nil {
				return fmt.Errorf("create accrual: %w", err)
			}
			to := StatusPending
			s.audit(ctx, &AuditEntry{
				ID:          id.New(),
				AccrualID:   a.ID,
				CompanyID:   a.CompanyID,
				Action:      ActionCreate,
				ToStatus:    &to,
				AmountAfter: nullMoney(a.EstimatedAmount),
				ToOwnerID:   a.OwnerID,
				Metadata: map[string]any{
					"receiptId":     r.ID,
					"receiptItemId": item.ID,
					"ownerRole":     a.OwnerRole,
				},
				UserID:    userID,
				CreatedAt: now,
			})
			return nil
		})
		if apperror.IsDuplicate(err) {
			// A concurrent delivery of the same receipt won the insert.
			res.Skipped++
			continue
		}
		if err != nil {
			res.Failed++
			logger.Error(ctx, "grni accrual not created",
				"receipt_id", r.ID,
				"receipt_item_id", item.ID,
				"error", err)
			continue
		}

		res.Created++
		res.TotalEstimated = res.TotalEstimated.Add(a.EstimatedAmount)
	}

	if res.Created > 0 || res.Failed > 0 {
		logger.Info(ctx, "grni accruals created",
			"receipt_id", r.ID,
			"created", res.Created,
			"failed", res.Failed,
			"total", res.TotalEstimated.StringFixed(types.MoneyScale))
	}

	return res, nil
}

// ownerPool is the resolved role and its candidates for one company.
type ownerPool struct {
	key        string
	role       string
	candidates []Candidate
}

func (p *ownerPool) pick(picker OwnerPicker) *int64 {
	if len(p.candidates) == 0 {
		return nil
	}
	userID := p.candidates[picker.Pick(p.key, len(p.candidates))].UserID
	return &userID
}

// resolveOwnerPool never fails: lookup errors degrade to the default role
// and no candidates, leaving accruals unowned.
func (s *Service) resolveOwnerPool(ctx context.Context, companyID int64) *ownerPool {
	pool := &ownerPool{role: DefaultOwnerRole}

	s.fire(ctx, sideEffect{
		name: "resolve_owner",
		run: func(ctx context.Context) error {
			cfg, err := s.configs.ActiveAlertConfig(ctx, companyID)
			if err != nil {
				return fmt.Errorf("load alert config: %w", err)
			}
			if cfg != nil && cfg.OwnerRoleDefault != "" {
				pool.role = cfg.OwnerRoleDefault
			}
			candidates, err := s.directory.CandidatesForRole(ctx, companyID, pool.role)
			if err != nil {
				return fmt.Errorf("resolve role %s: %w", pool.role, err)
			}
			pool.candidates = candidates
			return nil
		},
	})

	pool.key = fmt.Sprintf("%d:%s", companyID, pool.role)
	return pool
}
