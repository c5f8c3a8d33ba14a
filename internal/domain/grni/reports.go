package grni

import (
	"context"
	"fmt"
	"sort"

	"orvit/internal/core/apperror"
	"orvit/internal/core/clock"
	"orvit/internal/core/id"
	"orvit/internal/core/types"
)

// Reports aggregate over the accrual set in Go rather than in SQL so any
// Repository implementation can serve them.

// AgingBucket is one age band of outstanding accruals. MaxDays < 0 means open-ended.
type AgingBucket struct {
	Label   string      `json:"label"`
	MinDays int         `json:"minDays"`
	MaxDays int         `json:"maxDays"`
	Count   int         `json:"count"`
	Amount  types.Money `json:"amount"`
}

// SupplierExposure is a supplier's outstanding total.
type SupplierExposure struct {
	SupplierID   int64       `json:"supplierId"`
	SupplierName string      `json:"supplierName"`
	Amount       types.Money `json:"amount"`
	Count        int         `json:"count"`
	OldestDays   int         `json:"oldestDays"`
}

// Stats is the outstanding GRNI dashboard.
type Stats struct {
	TotalPending types.Money        `json:"totalPending"`
	PendingCount int                `json:"pendingCount"`
	Buckets      []AgingBucket      `json:"buckets"`
	TopSuppliers []SupplierExposure `json:"topSuppliers"`
}

const topSupplierCount = 5

func newAgingBuckets() []AgingBucket {
	return []AgingBucket{
		{Label: "0-30", MinDays: 0, MaxDays: 30, Amount: types.Zero()},
		{Label: "31-60", MinDays: 31, MaxDays: 60, Amount: types.Zero()},
		{Label: "61-90", MinDays: 61, MaxDays: 90, Amount: types.Zero()},
		{Label: "90+", MinDays: 91, MaxDays: -1, Amount: types.Zero()},
	}
}

func bucketIndex(days int) int {
	switch {
	case days <= 30:
		return 0
	case days <= 60:
		return 1
	case days <= 90:
		return 2
	}
	return 3
}

// Stats sums outstanding accruals, buckets them by age and ranks the top
// suppliers by outstanding amount. docType is optional.
func (s *Service) Stats(ctx context.Context, companyID int64, docType string) (*Stats, error) {
	pending, err := s.repo.List(ctx, ListFilter{CompanyID: companyID, Status: StatusPending, DocType: docType})
	if err != nil {
		return nil, fmt.Errorf("list pending accruals: %w", err)
	}

	now := s.clock.Now()
	stats := &Stats{TotalPending: types.Zero(), Buckets: newAgingBuckets()}
	bySupplier := make(map[int64]*SupplierExposure)

	for _, a := range pending {
		days := clock.DaysBetween(a.CreatedAt, now)
		stats.PendingCount++
		stats.TotalPending = stats.TotalPending.Add(a.EstimatedAmount)

		b := &stats.Buckets[bucketIndex(days)]
		b.Count++
		b.Amount = b.Amount.Add(a.EstimatedAmount)

		sup, ok := bySupplier[a.SupplierID]
		if !ok {
			sup = &SupplierExposure{SupplierID: a.SupplierID, SupplierName: a.SupplierName, Amount: types.Zero()}
			bySupplier[a.SupplierID] = sup
		}
		sup.Count++
		sup.Amount = sup.Amount.Add(a.EstimatedAmount)
		if days > sup.OldestDays {
			sup.OldestDays = days
		}
	}

	ranking := make([]SupplierExposure, 0, len(bySupplier))
	for _, sup := range bySupplier {
		ranking = append(ranking, *sup)
	}
	sort.Slice(ranking, func(i, j int) bool {
		if c := ranking[i].Amount.Cmp(ranking[j].Amount); c != 0 {
			return c > 0
		}
		return ranking[i].SupplierID < ranking[j].SupplierID
	})
	if len(ranking) > topSupplierCount {
		ranking = ranking[:topSupplierCount]
	}
	stats.TopSuppliers = ranking

	return stats, nil
}

// AccrualView is a listing row with its computed age.
type AccrualView struct {
	*Accrual
	DaysPending int `json:"daysPending"`
}

// List returns the filtered detail listing. DaysPending is 0 for closed accruals.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]AccrualView, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.NewValidation("unknown accrual status").WithDetail("status", filter.Status)
	}
	if filter.PeriodFrom != "" && filter.PeriodTo != "" && filter.PeriodTo.Before(filter.PeriodFrom) {
		return nil, apperror.NewValidation("period range is inverted").
			WithDetail("from", filter.PeriodFrom).
			WithDetail("to", filter.PeriodTo)
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list accruals: %w", err)
	}

	now := s.clock.Now()
	views := make([]AccrualView, len(rows))
	for i, a := range rows {
		views[i] = AccrualView{Accrual: a}
		if a.Status == StatusPending {
			views[i].DaysPending = clock.DaysBetween(a.CreatedAt, now)
		}
	}
	return views, nil
}

// PeriodSummary is the month-end close view of one period.
type PeriodSummary struct {
	Period types.Period `json:"period"`

	CreatedCount  int         `json:"createdCount"`
	CreatedAmount types.Money `json:"createdAmount"`

	InvoicedCount    int         `json:"invoicedCount"`
	InvoicedAmount   types.Money `json:"invoicedAmount"`
	InvoicedVariance types.Money `json:"invoicedVariance"`

	// Running liability: every PENDIENTE accrual created on or before Period.
	OutstandingCount   int         `json:"outstandingCount"`
	OutstandingBalance types.Money `json:"outstandingBalance"`
}

// PeriodClose computes the close summary for period.
func (s *Service) PeriodClose(ctx context.Context, companyID int64, period types.Period) (*PeriodSummary, error) {
	sum := &PeriodSummary{
		Period:             period,
		CreatedAmount:      types.Zero(),
		InvoicedAmount:     types.Zero(),
		InvoicedVariance:   types.Zero(),
		OutstandingBalance: types.Zero(),
	}

	created, err := s.repo.List(ctx, ListFilter{CompanyID: companyID, PeriodFrom: period, PeriodTo: period})
	if err != nil {
		return nil, fmt.Errorf("list created accruals: %w", err)
	}
	for _, a := range created {
		sum.CreatedCount++
		sum.CreatedAmount = sum.CreatedAmount.Add(a.EstimatedAmount)
	}

	invoiced, err := s.repo.List(ctx, ListFilter{CompanyID: companyID, Status: StatusInvoiced, InvoicePeriod: period})
	if err != nil {
		return nil, fmt.Errorf("list invoiced accruals: %w", err)
	}
	for _, a := range invoiced {
		sum.InvoicedCount++
		if a.InvoicedAmount.Valid {
			sum.InvoicedAmount = sum.InvoicedAmount.Add(a.InvoicedAmount.Decimal)
		}
		if a.Variance.Valid {
			sum.InvoicedVariance = sum.InvoicedVariance.Add(a.Variance.Decimal)
		}
	}

	outstanding, err := s.repo.List(ctx, ListFilter{CompanyID: companyID, Status: StatusPending, PeriodTo: period})
	if err != nil {
		return nil, fmt.Errorf("list outstanding accruals: %w", err)
	}
	for _, a := range outstanding {
		sum.OutstandingCount++
		sum.OutstandingBalance = sum.OutstandingBalance.Add(a.EstimatedAmount)
	}

	return sum, nil
}

// History returns the audit trail of one accrual, newest first.
func (s *Service) History(ctx context.Context, companyID int64, accrualID id.ID) ([]AuditEntry, error) {
	if _, err := s.repo.GetByID(ctx, companyID, accrualID); err != nil {
		return nil, err
	}
	entries, err := s.auditLog.History(ctx, companyID, accrualID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}
