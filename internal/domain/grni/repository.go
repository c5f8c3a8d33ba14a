package grni

import (
	"context"
	"time"

	"orvit/internal/core/id"
	"orvit/internal/core/types"
)

// Repository is the accrual store contract.
// Methods named *ForUpdate must run inside a transaction; they lock the rows
// they return until commit.
type Repository interface {
	Create(ctx context.Context, a *Accrual) error
	GetByID(ctx context.Context, companyID int64, accrualID id.ID) (*Accrual, error)
	GetForUpdate(ctx context.Context, companyID int64, accrualID id.ID) (*Accrual, error)

	// AccruedItemIDs returns receipt item ids that already carry an accrual.
	AccruedItemIDs(ctx context.Context, companyID, receiptID int64) (map[int64]struct{}, error)
	ListPendingByReceiptForUpdate(ctx context.Context, companyID, receiptID int64) ([]*Accrual, error)

	// Update persists mutable fields when the stored row still has the
	// expected status and version. A lost race yields CONCURRENT_MODIFICATION.
	Update(ctx context.Context, a *Accrual, expect Status) error

	// VoidPending moves the given accruals to ANULADO if still pending and
	// returns the ids actually transitioned.
	VoidPending(ctx context.Context, companyID int64, ids []id.ID, v VoidUpdate) ([]id.ID, error)

	ListUnalertedPending(ctx context.Context, companyID int64) ([]*Accrual, error)

	// MarkAlerted sets the alert flag unless already set. The bool reports
	// whether this call claimed the accrual.
	MarkAlerted(ctx context.Context, accrualID id.ID, at time.Time, days int) (bool, error)

	// AppendNote concatenates line to notes. False when the accrual is unknown.
	AppendNote(ctx context.Context, companyID int64, accrualID id.ID, line string, at time.Time) (bool, error)

	List(ctx context.Context, filter ListFilter) ([]*Accrual, error)
}

// VoidUpdate carries the reversal metadata of a bulk void.
type VoidUpdate struct {
	At     time.Time
	By     int64
	Reason string
}

// ListFilter narrows List. Zero values mean "no filter".
type ListFilter struct {
	CompanyID     int64
	Status        Status
	SupplierID    int64
	PeriodFrom    types.Period
	PeriodTo      types.Period
	InvoicePeriod types.Period
	DocType       string
	Limit         int
	Offset        int
}

// AuditLog stores the append-only audit trail.
type AuditLog interface {
	Append(ctx context.Context, entry *AuditEntry) error
	History(ctx context.Context, companyID int64, accrualID id.ID) ([]AuditEntry, error)
}

// ConfigSource reads the active per-company alert configuration.
// It returns (nil, nil) when the company has none.
type ConfigSource interface {
	ActiveAlertConfig(ctx context.Context, companyID int64) (*AlertConfig, error)
}

// OwnerDirectory resolves company + role to active users.
type OwnerDirectory interface {
	CandidatesForRole(ctx context.Context, companyID int64, role string) ([]Candidate, error)
}

// Notifier writes notification outbox entries.
type Notifier interface {
	Enqueue(ctx context.Context, n *Notification) error
}
