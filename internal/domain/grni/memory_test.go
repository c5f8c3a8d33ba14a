package grni

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"orvit/internal/core/apperror"
	"orvit/internal/core/clock"
	"orvit/internal/core/id"
)

// =============================================================================
// In-memory collaborators for service tests
// =============================================================================

type memRepo struct {
	mu    sync.Mutex
	rows  map[id.ID]*Accrual
	order []id.ID

	createErr map[int64]error // keyed by receipt item id
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[id.ID]*Accrual), createErr: make(map[int64]error)}
}

func (m *memRepo) Create(_ context.Context, a *Accrual) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createErr[a.GoodsReceiptItemID]; err != nil {
		return err
	}
	cp := *a
	m.rows[a.ID] = &cp
	m.order = append(m.order, a.ID)
	return nil
}

func (m *memRepo) get(companyID int64, accrualID id.ID) (*Accrual, error) {
	a, ok := m.rows[accrualID]
	if !ok || a.CompanyID != companyID {
		return nil, apperror.NewNotFound("accrual", accrualID)
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetByID(_ context.Context, companyID int64, accrualID id.ID) (*Accrual, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(companyID, accrualID)
}

func (m *memRepo) GetForUpdate(ctx context.Context, companyID int64, accrualID id.ID) (*Accrual, error) {
	return m.GetByID(ctx, companyID, accrualID)
}

func (m *memRepo) AccruedItemIDs(_ context.Context, companyID, receiptID int64) (map[int64]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]struct{})
	for _, a := range m.rows {
		if a.CompanyID == companyID && a.GoodsReceiptID == receiptID {
			out[a.GoodsReceiptItemID] = struct{}{}
		}
	}
	return out, nil
}

func (m *memRepo) ListPendingByReceiptForUpdate(_ context.Context, companyID, receiptID int64) ([]*Accrual, error) {
	return m.filter(func(a *Accrual) bool {
		return a.CompanyID == companyID && a.GoodsReceiptID == receiptID && a.Status == StatusPending
	}), nil
}

func (m *memRepo) Update(_ context.Context, a *Accrual, expect Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[a.ID]
	if !ok {
		return apperror.NewNotFound("accrual", a.ID)
	}
	if cur.Status != expect || cur.Version != a.Version {
		return apperror.NewConcurrentModification("accrual", a.ID)
	}
	a.Version++
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memRepo) VoidPending(_ context.Context, companyID int64, ids []id.ID, v VoidUpdate) ([]id.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []id.ID
	for _, accrualID := range ids {
		a, ok := m.rows[accrualID]
		if !ok || a.CompanyID != companyID || a.Status != StatusPending {
			continue
		}
		at, by, code, reason := v.At, v.By, ReasonReceiptVoided, v.Reason
		a.Status = StatusVoided
		a.ReversedAt = &at
		a.ReversedBy = &by
		a.ReversalReasonCode = &code
		a.ReversalReason = &reason
		a.UpdatedAt = v.At
		a.Version++
		out = append(out, accrualID)
	}
	return out, nil
}

func (m *memRepo) ListUnalertedPending(_ context.Context, companyID int64) ([]*Accrual, error) {
	return m.filter(func(a *Accrual) bool {
		return a.CompanyID == companyID && a.Status == StatusPending && !a.AlertSent
	}), nil
}

func (m *memRepo) MarkAlerted(_ context.Context, accrualID id.ID, at time.Time, days int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[accrualID]
	if !ok || a.AlertSent || a.Status != StatusPending {
		return false, nil
	}
	a.AlertSent = true
	a.AlertSentAt = &at
	a.AlertDays = &days
	return true, nil
}

func (m *memRepo) AppendNote(_ context.Context, companyID int64, accrualID id.ID, line string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[accrualID]
	if !ok || a.CompanyID != companyID {
		return false, nil
	}
	if a.Notes == "" {
		a.Notes = line
	} else {
		a.Notes += "\n" + line
	}
	a.UpdatedAt = at
	return true, nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]*Accrual, error) {
	return m.filter(func(a *Accrual) bool {
		switch {
		case a.CompanyID != f.CompanyID:
			return false
		case f.Status != "" && a.Status != f.Status:
			return false
		case f.SupplierID != 0 && a.SupplierID != f.SupplierID:
			return false
		case f.PeriodFrom != "" && a.Period.Before(f.PeriodFrom):
			return false
		case f.PeriodTo != "" && f.PeriodTo.Before(a.Period):
			return false
		case f.InvoicePeriod != "" && (a.InvoicePeriod == nil || *a.InvoicePeriod != f.InvoicePeriod):
			return false
		case f.DocType != "" && a.DocType != f.DocType:
			return false
		}
		return true
	}), nil
}

func (m *memRepo) filter(keep func(*Accrual) bool) []*Accrual {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Accrual
	for _, accrualID := range m.order {
		if a := m.rows[accrualID]; keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// all returns snapshots of every stored accrual in insertion order.
func (m *memRepo) all() []*Accrual {
	return m.filter(func(*Accrual) bool { return true })
}

// seed inserts or replaces a row as-is.
func (m *memRepo) seed(a *Accrual) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[a.ID]; !ok {
		m.order = append(m.order, a.ID)
	}
	cp := *a
	m.rows[a.ID] = &cp
}

// racingRepo simulates a concurrent writer that wins between the
// service's read and its conditional write.
type racingRepo struct {
	*memRepo
	loseAlertClaims bool
	voidedElsewhere map[id.ID]bool
	strayVoided     []id.ID
}

func (r *racingRepo) MarkAlerted(ctx context.Context, accrualID id.ID, at time.Time, days int) (bool, error) {
	if r.loseAlertClaims {
		return false, nil
	}
	return r.memRepo.MarkAlerted(ctx, accrualID, at, days)
}

func (r *racingRepo) VoidPending(ctx context.Context, companyID int64, ids []id.ID, v VoidUpdate) ([]id.ID, error) {
	var mine []id.ID
	for _, accrualID := range ids {
		if !r.voidedElsewhere[accrualID] {
			mine = append(mine, accrualID)
		}
	}
	out, err := r.memRepo.VoidPending(ctx, companyID, mine, v)
	return append(out, r.strayVoided...), err
}

// useRepo rebuilds the service over repo, keeping the other fakes.
func (env *testEnv) useRepo(repo Repository) {
	env.svc = NewService(ServiceConfig{
		Repo:      repo,
		AuditLog:  env.audit,
		Configs:   env.configs,
		Directory: env.directory,
		Notifier:  env.notifier,
		TxManager: passthroughTx{},
		Clock:     env.clock,
		Picker:    firstPicker{},
	})
}

type memAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *memAudit) Append(_ context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAudit) History(_ context.Context, companyID int64, accrualID id.ID) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.CompanyID == companyID && e.AccrualID == accrualID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memAudit) byAction(action AuditAction) []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type memConfigs struct {
	cfg map[int64]*AlertConfig
	err error
}

func (m *memConfigs) ActiveAlertConfig(_ context.Context, companyID int64) (*AlertConfig, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.cfg[companyID], nil
}

type memDirectory struct {
	byRole map[string][]Candidate
	err    error
}

func (m *memDirectory) CandidatesForRole(_ context.Context, _ int64, role string) ([]Candidate, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byRole[role], nil
}

type memNotifier struct {
	mu   sync.Mutex
	sent []*Notification
	err  error
}

func (m *memNotifier) Enqueue(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

// passthroughTx runs callbacks inline; the fakes apply writes immediately.
type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passthroughTx) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// firstPicker always picks candidate 0.
type firstPicker struct{}

func (firstPicker) Pick(string, int) int { return 0 }

const testCompany int64 = 7

type testEnv struct {
	svc       *Service
	repo      *memRepo
	audit     *memAudit
	configs   *memConfigs
	directory *memDirectory
	notifier  *memNotifier
	clock     *clock.Fixed
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     newMemRepo(),
		audit:    &memAudit{},
		configs:  &memConfigs{cfg: make(map[int64]*AlertConfig)},
		notifier: &memNotifier{},
		directory: &memDirectory{byRole: map[string][]Candidate{
			DefaultOwnerRole: {{UserID: 41, Name: "Ana"}, {UserID: 42, Name: "Bruno"}},
		}},
		clock: clock.NewFixed(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
	}
	env.svc = NewService(ServiceConfig{
		Repo:      env.repo,
		AuditLog:  env.audit,
		Configs:   env.configs,
		Directory: env.directory,
		Notifier:  env.notifier,
		TxManager: passthroughTx{},
		Clock:     env.clock,
		Picker:    firstPicker{},
	})
	return env
}
