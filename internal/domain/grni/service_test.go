package grni

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orvit/internal/core/apperror"
	appctx "orvit/internal/core/context"
	"orvit/internal/core/id"
	"orvit/internal/core/types"
)

func int64p(v int64) *int64 { return &v }

func receiptA() Receipt {
	return Receipt{
		ID:         1001,
		CompanyID:  testCompany,
		Number:     "REC-0001",
		SupplierID: 300,
		Items: []ReceiptItem{
			{ID: 1, Description: "Cemento portland x 50kg", Quantity: types.MustMoney("500"), UnitPrice: types.MustMoney("2800")},
			{ID: 2, Description: "Arena fina", Quantity: types.MustMoney("0"), UnitPrice: types.MustMoney("100")},
		},
	}
}

func userCtx(userID int64) context.Context {
	return appctx.WithActor(context.Background(), &appctx.Actor{CompanyID: testCompany, UserID: userID, UserName: "Carla"})
}

func TestCreateFromReceipt_ScenarioA(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.CreateFromReceipt(userCtx(5), receiptA())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Failed)
	assert.True(t, res.TotalEstimated.Equal(types.MustMoney("1400000")), res.TotalEstimated.String())

	rows := env.repo.all()
	require.Len(t, rows, 1)
	a := rows[0]
	assert.Equal(t, StatusPending, a.Status)
	assert.True(t, a.EstimatedAmount.Equal(types.MustMoney("1400000")))
	assert.Equal(t, types.Period("2026-01"), a.Period)
	assert.Equal(t, DefaultCurrency, a.Currency)
	assert.Equal(t, DefaultDocType, a.DocType)
	assert.Equal(t, DefaultOwnerRole, a.OwnerRole)
	require.NotNil(t, a.OwnerID)
	assert.Equal(t, int64(41), *a.OwnerID)
	assert.False(t, a.InvoicedAmount.Valid)

	creates := env.audit.byAction(ActionCreate)
	require.Len(t, creates, 1)
	assert.Equal(t, a.ID, creates[0].AccrualID)
	assert.Equal(t, StatusPending, *creates[0].ToStatus)
	assert.Nil(t, creates[0].FromStatus)
	assert.True(t, creates[0].AmountAfter.Decimal.Equal(a.EstimatedAmount))
	assert.Equal(t, int64(41), *creates[0].ToOwnerID)
	assert.Equal(t, int64(5), creates[0].UserID)
	assert.Equal(t, int64(1001), creates[0].Metadata["receiptId"])
}

func TestCreateFromReceipt_SkipsUnpriceableLines(t *testing.T) {
	tests := []struct {
		name  string
		qty   string
		price string
	}{
		{"zero quantity", "0", "10"},
		{"negative quantity", "-1", "10"},
		{"zero price", "3", "0"},
		{"negative price", "3", "-0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			r := Receipt{ID: 1, CompanyID: testCompany, Items: []ReceiptItem{
				{ID: 1, Quantity: types.MustMoney(tt.qty), UnitPrice: types.MustMoney(tt.price)},
			}}

			res, err := env.svc.CreateFromReceipt(context.Background(), r)
			require.NoError(t, err)
			assert.Zero(t, res.Created)
			assert.True(t, res.TotalEstimated.IsZero())
			assert.Empty(t, env.repo.all())
			assert.Empty(t, env.audit.entries)
		})
	}
}

func TestCreateFromReceipt_SkipsLinesRoundingToZero(t *testing.T) {
	env := newTestEnv(t)
	r := Receipt{ID: 9, CompanyID: testCompany, SupplierID: 300, Items: []ReceiptItem{
		{ID: 1, Quantity: types.MustMoney("0.001"), UnitPrice: types.MustMoney("1")},
		{ID: 2, Quantity: types.MustMoney("1"), UnitPrice: types.MustMoney("0.004")},
		{ID: 3, Quantity: types.MustMoney("1"), UnitPrice: types.MustMoney("0.005")},
	}}

	res, err := env.svc.CreateFromReceipt(context.Background(), r)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Failed)
	rows := env.repo.all()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].GoodsReceiptItemID)
	assert.True(t, rows[0].EstimatedAmount.Equal(types.MustMoney("0.01")))
	assert.Len(t, env.audit.byAction(ActionCreate), 1)
}

func TestAdjustEstimate_RejectsAmountRoundingToZero(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)
	a := env.repo.all()[0]

	_, err = env.svc.AdjustEstimate(context.Background(), testCompany, a.ID, types.MustMoney("0.004"), "redondeo")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	stored := env.repo.all()[0]
	assert.True(t, stored.EstimatedAmount.Equal(types.MustMoney("1400000")))
	assert.Empty(t, env.audit.byAction(ActionAdjust))
}

func TestCreateFromReceipt_ReceiptDefaultsAndConfigRole(t *testing.T) {
	env := newTestEnv(t)
	env.configs.cfg[testCompany] = &AlertConfig{OwnerRoleDefault: "JEFE_COMPRAS", YellowDays: 15, RedDays: 45, CriticalDays: 90}

	r := receiptA()
	r.Currency = "USD"
	r.DocType = "T2"
	_, err := env.svc.CreateFromReceipt(context.Background(), r)
	require.NoError(t, err)

	a := env.repo.all()[0]
	assert.Equal(t, "USD", a.Currency)
	assert.Equal(t, "T2", a.DocType)
	assert.Equal(t, "JEFE_COMPRAS", a.OwnerRole)
	assert.Nil(t, a.OwnerID, "no user holds the configured role")
}

func TestCreateFromReceipt_FailingItemDoesNotAbortBatch(t *testing.T) {
	env := newTestEnv(t)
	env.repo.createErr[2] = errors.New("check constraint violated")

	r := Receipt{ID: 9, CompanyID: testCompany, Items: []ReceiptItem{
		{ID: 1, Quantity: types.MustMoney("1"), UnitPrice: types.MustMoney("10")},
		{ID: 2, Quantity: types.MustMoney("1"), UnitPrice: types.MustMoney("20")},
		{ID: 3, Quantity: types.MustMoney("1"), UnitPrice: types.MustMoney("30")},
	}}

	res, err := env.svc.CreateFromReceipt(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.TotalEstimated.Equal(types.MustMoney("40")))
	assert.Len(t, env.audit.byAction(ActionCreate), 2)
}

func TestCreateFromReceipt_SideEffectFailuresKeepAccrual(t *testing.T) {
	env := newTestEnv(t)
	env.audit.err = errors.New("audit table locked")
	env.directory.err = errors.New("directory unavailable")

	res, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	a := env.repo.all()[0]
	assert.Nil(t, a.OwnerID)
	assert.Equal(t, DefaultOwnerRole, a.OwnerRole)
	assert.Empty(t, env.audit.entries)
}

func TestCreateFromReceipt_RedeliveryIsSkipped(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)
	res, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)

	assert.Zero(t, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, env.repo.all(), 1)
	assert.Len(t, env.audit.byAction(ActionCreate), 1)
}

func TestCreateFromReceipt_ConcurrentDuplicateIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.repo.createErr[1] = apperror.NewDuplicate("accrual", int64(1))

	res, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)

	assert.Zero(t, res.Created)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, env.audit.byAction(ActionCreate))
}

func TestReverseForInvoice_ScenarioB(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)

	env.clock.Set(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	inv := Invoice{ID: 77, Number: "A-0001-00000077", Lines: []InvoiceLine{
		{ReceiptItemID: int64p(1), Description: "otra cosa", Quantity: types.MustMoney("500"), UnitPrice: types.MustMoney("2950")},
	}}

	res, err := env.svc.ReverseForInvoice(userCtx(8), testCompany, 1001, inv)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reversed)
	assert.True(t, res.TotalVariance.Equal(types.MustMoney("75000")), res.TotalVariance.String())

	a := env.repo.all()[0]
	assert.Equal(t, StatusInvoiced, a.Status)
	require.True(t, a.InvoicedAmount.Valid)
	assert.True(t, a.InvoicedAmount.Decimal.Equal(types.MustMoney("1475000")))
	require.True(t, a.Variance.Valid)
	assert.True(t, a.Variance.Decimal.Equal(types.MustMoney("75000")))
	assert.Equal(t, types.Period("2026-02"), *a.InvoicePeriod)
	assert.Equal(t, ReasonInvoiceLinked, *a.ReversalReasonCode)
	assert.Contains(t, *a.ReversalReason, "A-0001-00000077")
	assert.Equal(t, int64(77), *a.InvoiceID)
	assert.Equal(t, int64(8), *a.ReversedBy)

	factured := env.audit.byAction(ActionFactured)
	require.Len(t, factured, 1)
	assert.Equal(t, StatusPending, *factured[0].FromStatus)
	assert.Equal(t, StatusInvoiced, *factured[0].ToStatus)
	assert.True(t, factured[0].AmountBefore.Decimal.Equal(types.MustMoney("1400000")))
	assert.True(t, factured[0].AmountAfter.Decimal.Equal(types.MustMoney("1475000")))
	assert.Equal(t, "75000.00", factured[0].Metadata["variance"])
	assert.Equal(t, "2026-02", factured[0].Metadata["invoicePeriod"])
}

func TestReverseForInvoice_FallbackAndUnmatched(t *testing.T) {
	env := newTestEnv(t)
	r := Receipt{ID: 5, CompanyID: testCompany, SupplierID: 1, Items: []ReceiptItem{
		{ID: 10, Description: "Tornillo M8", Quantity: types.MustMoney("100"), UnitPrice: types.MustMoney("12.5")},
		{ID: 11, Description: "Tuerca M8", Quantity: types.MustMoney("100"), UnitPrice: types.MustMoney("4")},
	}}
	_, err := env.svc.CreateFromReceipt(context.Background(), r)
	require.NoError(t, err)

	inv := Invoice{ID: 3, Lines: []InvoiceLine{
		{Description: "  TORNILLO m8 ", Quantity: types.MustMoney("100"), UnitPrice: types.MustMoney("12")},
	}}
	res, err := env.svc.ReverseForInvoice(context.Background(), testCompany, 5, inv)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Reversed)
	// (1200 - 1250) + (0 - 400)
	assert.True(t, res.TotalVariance.Equal(types.MustMoney("-450")), res.TotalVariance.String())

	rows := env.repo.all()
	matched, unmatched := rows[0], rows[1]
	assert.True(t, matched.InvoicedAmount.Valid)
	assert.True(t, matched.Variance.Decimal.Equal(types.MustMoney("-50")))

	assert.Equal(t, StatusInvoiced, unmatched.Status)
	assert.False(t, unmatched.InvoicedAmount.Valid, "unmatched keeps a NULL invoiced amount")
	require.True(t, unmatched.Variance.Valid)
	assert.True(t, unmatched.Variance.Decimal.Equal(types.MustMoney("-400")))
	assert.Len(t, env.audit.byAction(ActionFactured), 2)
}

func TestReverseForInvoice_MatchedAtZeroStoresZero(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)

	inv := Invoice{ID: 4, Lines: []InvoiceLine{
		{ReceiptItemID: int64p(1), Quantity: types.MustMoney("500"), UnitPrice: types.MustMoney("0")},
	}}
	_, err = env.svc.ReverseForInvoice(context.Background(), testCompany, 1001, inv)
	require.NoError(t, err)

	a := env.repo.all()[0]
	require.True(t, a.InvoicedAmount.Valid)
	assert.True(t, a.InvoicedAmount.Decimal.IsZero())
}

func TestReverseForInvoice_NothingPending(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.ReverseForInvoice(context.Background(), testCompany, 404, Invoice{ID: 1})
	require.NoError(t, err)
	assert.Zero(t, res.Reversed)
	assert.True(t, res.TotalVariance.IsZero())
}

func TestVoidForReceipt_ScenarioC(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)

	res, err := env.svc.VoidForReceipt(userCtx(5), testCompany, 1001, "Recepción duplicada")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Voided)

	a := env.repo.all()[0]
	assert.Equal(t, StatusVoided, a.Status)
	assert.Equal(t, ReasonReceiptVoided, *a.ReversalReasonCode)
	assert.Equal(t, "Recepción duplicada", *a.ReversalReason)

	voids := env.audit.byAction(ActionVoid)
	require.Len(t, voids, 1)
	assert.Equal(t, StatusPending, *voids[0].FromStatus)
	assert.Equal(t, StatusVoided, *voids[0].ToStatus)
	assert.True(t, voids[0].AmountBefore.Decimal.Equal(types.MustMoney("1400000")))
	assert.Equal(t, int64(1001), voids[0].Metadata["receiptId"])
}

func TestVoidForReceipt_OneAuditEntryPerAccrual(t *testing.T) {
	env := newTestEnv(t)
	r := Receipt{ID: 6, CompanyID: testCompany, Items: []ReceiptItem{
		{ID: 1, Quantity: types.MustMoney("1"), UnitPrice: types.MustMoney("1")},
		{ID: 2, Quantity: types.MustMoney("2"), UnitPrice: types.MustMoney("1")},
		{ID: 3, Quantity: types.MustMoney("3"), UnitPrice: types.MustMoney("1")},
	}}
	_, err := env.svc.CreateFromReceipt(context.Background(), r)
	require.NoError(t, err)

	res, err := env.svc.VoidForReceipt(context.Background(), testCompany, 6, "anulada")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Voided)
	assert.Len(t, env.audit.byAction(ActionVoid), 3)

	res, err = env.svc.VoidForReceipt(context.Background(), testCompany, 6, "anulada otra vez")
	require.NoError(t, err)
	assert.Zero(t, res.Voided)
	assert.Len(t, env.audit.byAction(ActionVoid), 3)
}

func TestVoidForReceipt_ConcurrentlyVoidedRowsAreNotAudited(t *testing.T) {
	env := newTestEnv(t)
	r := Receipt{ID: 6, CompanyID: testCompany, Items: []ReceiptItem{
		{ID: 1, Quantity: types.MustMoney("1"), UnitPrice: types.MustMoney("1")},
		{ID: 2, Quantity: types.MustMoney("2"), UnitPrice: types.MustMoney("1")},
	}}
	_, err := env.svc.CreateFromReceipt(context.Background(), r)
	require.NoError(t, err)
	rows := env.repo.all()
	require.Len(t, rows, 2)

	env.useRepo(&racingRepo{
		memRepo:         env.repo,
		voidedElsewhere: map[id.ID]bool{rows[0].ID: true},
		strayVoided:     []id.ID{id.New()},
	})

	res, err := env.svc.VoidForReceipt(context.Background(), testCompany, 6, "anulada")
	require.NoError(t, err)

	voids := env.audit.byAction(ActionVoid)
	require.Len(t, voids, 1)
	assert.Equal(t, rows[1].ID, voids[0].AccrualID)
	assert.Equal(t, 1, res.Voided)
}

func TestTerminalStatesAreClosed(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)
	_, err = env.svc.VoidForReceipt(context.Background(), testCompany, 1001, "x")
	require.NoError(t, err)

	inv := Invoice{ID: 1, Lines: []InvoiceLine{{ReceiptItemID: int64p(1), Quantity: types.MustMoney("1"), UnitPrice: types.MustMoney("1")}}}
	res, err := env.svc.ReverseForInvoice(context.Background(), testCompany, 1001, inv)
	require.NoError(t, err)
	assert.Zero(t, res.Reversed)

	a := env.repo.all()[0]
	assert.Equal(t, StatusVoided, a.Status)

	_, err = env.svc.AssignOwner(context.Background(), testCompany, a.ID, 99)
	assert.True(t, apperror.IsInvalidState(err), "got %v", err)
	_, err = env.svc.AdjustEstimate(context.Background(), testCompany, a.ID, types.MustMoney("5"), "")
	assert.True(t, apperror.IsInvalidState(err), "got %v", err)
}

func TestReverseForInvoice_LostRaceCountsAsFailed(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateFromReceipt(context.Background(), receiptA())
	require.NoError(t, err)

	racing := &racingRepo{memRepo: env.repo}
	env.svc.repo = racing

	res, err := env.svc.ReverseForInvoice(context.Background(), testCompany, 1001, Invoice{ID: 2})
	require.NoError(t, err)
	assert.Zero(t, res.Reversed)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, env.audit.byAction(ActionFactured))
	assert.Equal(t, StatusVoided, env.repo.all()[0].Status)
}

// racingRepo voids the receipt between the read and the write, as a
// concurrent void would without row locks.
type racingRepo struct {
	*memRepo
}

func (r *racingRepo) ListPendingByReceiptForUpdate(ctx context.Context, companyID, receiptID int64) ([]*Accrual, error) {
	rows, err := r.memRepo.ListPendingByReceiptForUpdate(ctx, companyID, receiptID)
	if err != nil {
		return nil, err
	}
	ids := make([]id.ID, len(rows))
	for i, a := range rows {
		ids[i] = a.ID
	}
	_, err = r.memRepo.VoidPending(ctx, companyID, ids, VoidUpdate{At: time.Now(), Reason: "race"})
	return rows, err
}
