// Package grni_repo provides PostgreSQL implementations of the GRNI ledger ports.
package grni_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"orvit/internal/core/apperror"
	"orvit/internal/core/id"
	"orvit/internal/domain/grni"
	"orvit/internal/infrastructure/storage/postgres"
)

const (
	accrualTable    = "grni_accruals"
	itemUniqueIndex = "grni_accruals_item_uq"
)

// Columns resolved through joins; never written.
var readOnlyCols = map[string]struct{}{
	"supplier_name":  {},
	"receipt_number": {},
}

// Immutable after insert.
var immutableCols = map[string]struct{}{
	"id":                    {},
	"company_id":            {},
	"goods_receipt_id":      {},
	"goods_receipt_item_id": {},
	"created_at":            {},
	"version":               {},
}

var (
	accrualCols  = postgres.ExtractDBColumns[grni.Accrual]()
	writableCols = filterCols(accrualCols, readOnlyCols)
	updateCols   = filterCols(writableCols, immutableCols)
)

func filterCols(cols []string, drop map[string]struct{}) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if _, skip := drop[c]; !skip {
			out = append(out, c)
		}
	}
	return out
}

var _ grni.Repository = (*AccrualRepo)(nil)

// AccrualRepo stores accruals in grni_accruals.
type AccrualRepo struct {
	txManager *postgres.TxManager
}

// NewAccrualRepo creates the accrual repository.
func NewAccrualRepo(txManager *postgres.TxManager) *AccrualRepo {
	return &AccrualRepo{txManager: txManager}
}

// Builder returns a new squirrel builder.
func (r *AccrualRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// baseSelect reads accruals with supplier and receipt labels joined in.
func (r *AccrualRepo) baseSelect() squirrel.SelectBuilder {
	cols := make([]string, 0, len(writableCols)+2)
	for _, c := range writableCols {
		cols = append(cols, "a."+c)
	}
	cols = append(cols,
		"COALESCE(s.name, '') AS supplier_name",
		"COALESCE(g.number, '') AS receipt_number",
	)
	return r.Builder().
		Select(cols...).
		From(accrualTable + " a").
		LeftJoin("suppliers s ON s.id = a.supplier_id").
		LeftJoin("goods_receipts g ON g.id = a.goods_receipt_id")
}

func (r *AccrualRepo) insertQuery(a *grni.Accrual) (string, []any, error) {
	data := postgres.StructToMap(a)
	filtered := make(map[string]any, len(writableCols))
	for _, col := range writableCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}
	return r.Builder().Insert(accrualTable).SetMap(filtered).ToSql()
}

// Create inserts a new accrual. The (company, receipt item) unique index
// rejects a second accrual for the same line.
func (r *AccrualRepo) Create(ctx context.Context, a *grni.Accrual) error {
	sql, args, err := r.insertQuery(a)
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, itemUniqueIndex) {
			return apperror.NewDuplicate("accrual", a.GoodsReceiptItemID)
		}
		return fmt.Errorf("insert %s: %w", accrualTable, err)
	}
	return nil
}

func (r *AccrualRepo) get(ctx context.Context, q squirrel.SelectBuilder, accrualID id.ID) (*grni.Accrual, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var a grni.Accrual
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &a, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("accrual", accrualID.String())
		}
		return nil, fmt.Errorf("get accrual: %w", err)
	}
	return &a, nil
}

// GetByID implements grni.Repository.
func (r *AccrualRepo) GetByID(ctx context.Context, companyID int64, accrualID id.ID) (*grni.Accrual, error) {
	q := r.baseSelect().Where(squirrel.Eq{"a.company_id": companyID, "a.id": accrualID})
	return r.get(ctx, q, accrualID)
}

// GetForUpdate implements grni.Repository.
func (r *AccrualRepo) GetForUpdate(ctx context.Context, companyID int64, accrualID id.ID) (*grni.Accrual, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"a.company_id": companyID, "a.id": accrualID}).
		Suffix("FOR UPDATE OF a")
	return r.get(ctx, q, accrualID)
}

// AccruedItemIDs implements grni.Repository.
func (r *AccrualRepo) AccruedItemIDs(ctx context.Context, companyID, receiptID int64) (map[int64]struct{}, error) {
	sql, args, err := r.Builder().
		Select("goods_receipt_item_id").
		From(accrualTable).
		Where(squirrel.Eq{"company_id": companyID, "goods_receipt_id": receiptID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []int64
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select accrued items: %w", err)
	}
	out := make(map[int64]struct{}, len(ids))
	for _, itemID := range ids {
		out[itemID] = struct{}{}
	}
	return out, nil
}

// ListPendingByReceiptForUpdate implements grni.Repository.
func (r *AccrualRepo) ListPendingByReceiptForUpdate(ctx context.Context, companyID, receiptID int64) ([]*grni.Accrual, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{
			"a.company_id":       companyID,
			"a.goods_receipt_id": receiptID,
			"a.status":           grni.StatusPending,
		}).
		OrderBy("a.created_at", "a.id").
		Suffix("FOR UPDATE OF a")
	return r.selectMany(ctx, q)
}

func (r *AccrualRepo) updateQuery(a *grni.Accrual, expect grni.Status) (string, []any, error) {
	data := postgres.StructToMap(a)
	filtered := make(map[string]any, len(updateCols))
	for _, col := range updateCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}
	return r.Builder().
		Update(accrualTable).
		SetMap(filtered).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{
			"id":         a.ID,
			"company_id": a.CompanyID,
			"version":    a.Version,
			"status":     expect,
		}).
		ToSql()
}

// Update implements grni.Repository with optimistic locking on version and status.
func (r *AccrualRepo) Update(ctx context.Context, a *grni.Accrual, expect grni.Status) error {
	sql, args, err := r.updateQuery(a, expect)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", accrualTable, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("accrual", a.ID.String())
	}
	a.Version++
	return nil
}

// VoidPending implements grni.Repository.
func (r *AccrualRepo) VoidPending(ctx context.Context, companyID int64, ids []id.ID, v grni.VoidUpdate) ([]id.ID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sql, args, err := r.Builder().
		Update(accrualTable).
		Set("status", grni.StatusVoided).
		Set("reversed_at", v.At).
		Set("reversed_by", v.By).
		Set("reversal_reason_code", grni.ReasonReceiptVoided).
		Set("reversal_reason", v.Reason).
		Set("updated_at", v.At).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{
			"company_id": companyID,
			"id":         ids,
			"status":     grni.StatusPending,
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build void: %w", err)
	}

	var voided []id.ID
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &voided, sql, args...); err != nil {
		return nil, fmt.Errorf("void accruals: %w", err)
	}
	return voided, nil
}

// ListUnalertedPending implements grni.Repository.
func (r *AccrualRepo) ListUnalertedPending(ctx context.Context, companyID int64) ([]*grni.Accrual, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{
			"a.company_id": companyID,
			"a.status":     grni.StatusPending,
			"a.alert_sent": false,
		}).
		OrderBy("a.created_at", "a.id")
	return r.selectMany(ctx, q)
}

// MarkAlerted implements grni.Repository. The WHERE clause makes the claim
// atomic: only one sweeper flips the flag.
func (r *AccrualRepo) MarkAlerted(ctx context.Context, accrualID id.ID, at time.Time, days int) (bool, error) {
	sql, args, err := r.Builder().
		Update(accrualTable).
		Set("alert_sent", true).
		Set("alert_sent_at", at).
		Set("alert_days", days).
		Where(squirrel.Eq{
			"id":         accrualID,
			"status":     grni.StatusPending,
			"alert_sent": false,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build mark alerted: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("mark alerted: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// AppendNote implements grni.Repository.
func (r *AccrualRepo) AppendNote(ctx context.Context, companyID int64, accrualID id.ID, line string, at time.Time) (bool, error) {
	sql, args, err := r.Builder().
		Update(accrualTable).
		Set("notes", squirrel.Expr("CASE WHEN notes = '' THEN ? ELSE notes || E'\\n' || ? END", line, line)).
		Set("updated_at", at).
		Where(squirrel.Eq{"company_id": companyID, "id": accrualID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build append note: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("append note: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *AccrualRepo) listQuery(f grni.ListFilter) squirrel.SelectBuilder {
	q := r.baseSelect().Where(squirrel.Eq{"a.company_id": f.CompanyID})

	if f.Status != "" {
		q = q.Where(squirrel.Eq{"a.status": f.Status})
	}
	if f.SupplierID != 0 {
		q = q.Where(squirrel.Eq{"a.supplier_id": f.SupplierID})
	}
	if f.PeriodFrom != "" {
		q = q.Where(squirrel.GtOrEq{"a.period": f.PeriodFrom})
	}
	if f.PeriodTo != "" {
		q = q.Where(squirrel.LtOrEq{"a.period": f.PeriodTo})
	}
	if f.InvoicePeriod != "" {
		q = q.Where(squirrel.Eq{"a.invoice_period": f.InvoicePeriod})
	}
	if f.DocType != "" {
		q = q.Where(squirrel.Eq{"a.doc_type": f.DocType})
	}

	q = q.OrderBy("a.created_at", "a.id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

// List implements grni.Repository.
func (r *AccrualRepo) List(ctx context.Context, f grni.ListFilter) ([]*grni.Accrual, error) {
	return r.selectMany(ctx, r.listQuery(f))
}

func (r *AccrualRepo) selectMany(ctx context.Context, q squirrel.SelectBuilder) ([]*grni.Accrual, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []*grni.Accrual
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select accruals: %w", err)
	}
	return out, nil
}
