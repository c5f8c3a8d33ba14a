// Package grni implements the Goods-Received-Not-Invoiced accrual ledger
// (Provisiones GRNI): one liability accrual per received receipt line,
// closed by invoice linking or receipt voiding, aged and alerted while open.
package grni

import (
	"time"

	"github.com/shopspring/decimal"

	"orvit/internal/core/apperror"
	"orvit/internal/core/id"
	"orvit/internal/core/types"
)

// Status is the accrual state (estado).
type Status string

const (
	StatusPending  Status = "PENDIENTE"
	StatusInvoiced Status = "FACTURADO"
	StatusVoided   Status = "ANULADO"
)

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusInvoiced || s == StatusVoided
}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInvoiced, StatusVoided:
		return true
	}
	return false
}

// AuditAction tags an audit log entry.
type AuditAction string

const (
	ActionCreate      AuditAction = "CREATE"
	ActionFactured    AuditAction = "FACTURED"
	ActionVoid        AuditAction = "VOID"
	ActionAdjust      AuditAction = "ADJUST"
	ActionAssignOwner AuditAction = "ASSIGN_OWNER"
	ActionSendAlert   AuditAction = "SEND_ALERT"
	ActionAddNote     AuditAction = "ADD_NOTE"
)

// Reason codes recorded on transitions.
const (
	ReasonInvoiceLinked = "INVOICE_LINKED"
	ReasonReceiptVoided = "RECEIPT_VOIDED"
	reasonAlertPrefix   = "ALERT_"
)

// Defaults applied when the receipt or company config omits them.
const (
	DefaultCurrency  = "ARS"
	DefaultDocType   = "T1"
	DefaultOwnerRole = "COMPRAS_ANALISTA"
)

// Accrual is a liability for one received-but-unbilled receipt line.
type Accrual struct {
	ID                 id.ID  `db:"id" json:"id"`
	CompanyID          int64  `db:"company_id" json:"companyId"`
	GoodsReceiptID     int64  `db:"goods_receipt_id" json:"goodsReceiptId"`
	GoodsReceiptItemID int64  `db:"goods_receipt_item_id" json:"goodsReceiptItemId"`
	SupplierID         int64  `db:"supplier_id" json:"supplierId"`
	SupplierItemID     *int64 `db:"supplier_item_id" json:"supplierItemId,omitempty"`
	Description        string `db:"description" json:"description"`

	EstimatedAmount types.Money         `db:"estimated_amount" json:"estimatedAmount"`
	InvoicedAmount  decimal.NullDecimal `db:"invoiced_amount" json:"invoicedAmount"`
	Variance        decimal.NullDecimal `db:"variance" json:"variance"`
	Currency        string              `db:"currency" json:"currency"`
	DocType         string              `db:"doc_type" json:"docType"`

	Period        types.Period  `db:"period" json:"period"`
	InvoicePeriod *types.Period `db:"invoice_period" json:"invoicePeriod,omitempty"`

	OwnerID   *int64 `db:"owner_id" json:"ownerId,omitempty"`
	OwnerRole string `db:"owner_role" json:"ownerRole"`

	AlertSent   bool       `db:"alert_sent" json:"alertSent"`
	AlertSentAt *time.Time `db:"alert_sent_at" json:"alertSentAt,omitempty"`
	AlertDays   *int       `db:"alert_days" json:"alertDays,omitempty"`

	Notes  string `db:"notes" json:"notes"`
	Status Status `db:"status" json:"status"`

	ReversedAt         *time.Time `db:"reversed_at" json:"reversedAt,omitempty"`
	ReversedBy         *int64     `db:"reversed_by" json:"reversedBy,omitempty"`
	ReversalReasonCode *string    `db:"reversal_reason_code" json:"reversalReasonCode,omitempty"`
	ReversalReason     *string    `db:"reversal_reason" json:"reversalReason,omitempty"`
	InvoiceID          *int64     `db:"invoice_id" json:"invoiceId,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	Version   int       `db:"version" json:"version"`

	// Read-side joins, never written.
	SupplierName  string `db:"supplier_name" json:"supplierName,omitempty"`
	ReceiptNumber string `db:"receipt_number" json:"receiptNumber,omitempty"`
}

// CanTransition returns an INVALID_STATE error unless the accrual is pending.
func (a *Accrual) CanTransition(operation string) error {
	if a.Status.IsTerminal() {
		return apperror.NewInvalidTransition("accrual", a.ID.String(), string(a.Status), operation)
	}
	return nil
}

func nullMoney(m types.Money) decimal.NullDecimal {
	return decimal.NewNullDecimal(m)
}

// AuditEntry is one append-only row of the accrual audit trail.
type AuditEntry struct {
	ID           id.ID               `db:"id" json:"id"`
	AccrualID    id.ID               `db:"accrual_id" json:"accrualId"`
	CompanyID    int64               `db:"company_id" json:"companyId"`
	Action       AuditAction         `db:"action" json:"action"`
	FromStatus   *Status             `db:"from_status" json:"fromStatus,omitempty"`
	ToStatus     *Status             `db:"to_status" json:"toStatus,omitempty"`
	AmountBefore decimal.NullDecimal `db:"amount_before" json:"amountBefore"`
	AmountAfter  decimal.NullDecimal `db:"amount_after" json:"amountAfter"`
	FromOwnerID  *int64              `db:"from_owner_id" json:"fromOwnerId,omitempty"`
	ToOwnerID    *int64              `db:"to_owner_id" json:"toOwnerId,omitempty"`
	ReasonCode   string              `db:"reason_code" json:"reasonCode,omitempty"`
	Reason       string              `db:"reason" json:"reason,omitempty"`
	Metadata     map[string]any      `db:"-" json:"metadata,omitempty"`
	UserID       int64               `db:"user_id" json:"userId"`
	UserName     string              `db:"user_name" json:"userName,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"createdAt"`
}

// AlertConfig is the per-company aging configuration. Read-only here.
type AlertConfig struct {
	CompanyID        int64  `db:"company_id"`
	OwnerRoleDefault string `db:"owner_role_default"`
	YellowDays       int    `db:"yellow_days"`
	RedDays          int    `db:"red_days"`
	CriticalDays     int    `db:"critical_days"`
	Active           bool   `db:"active"`
}

// Validate checks that thresholds are strictly ascending.
func (c *AlertConfig) Validate() error {
	if c.YellowDays < 0 || c.YellowDays >= c.RedDays || c.RedDays >= c.CriticalDays {
		return apperror.NewValidation("alert thresholds must be strictly ascending").
			WithDetail("yellow", c.YellowDays).
			WithDetail("red", c.RedDays).
			WithDetail("critical", c.CriticalDays)
	}
	return nil
}

// AlertLevel is the aging severity.
type AlertLevel string

const (
	LevelYellow   AlertLevel = "AMARILLA"
	LevelRed      AlertLevel = "ROJA"
	LevelCritical AlertLevel = "CRITICA"
)

// Priority is the notification priority for a level.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "ALTA"
	PriorityUrgent Priority = "URGENTE"
)

// ReasonCode returns ALERT_<LEVEL>.
func (l AlertLevel) ReasonCode() string { return reasonAlertPrefix + string(l) }

// Classify maps an age in days to the highest crossed threshold.
// Critical is checked first so an accrual is classified once at its top level.
func (c *AlertConfig) Classify(daysOld int) (AlertLevel, Priority, bool) {
	switch {
	case daysOld >= c.CriticalDays:
		return LevelCritical, PriorityUrgent, true
	case daysOld >= c.RedDays:
		return LevelRed, PriorityHigh, true
	case daysOld >= c.YellowDays:
		return LevelYellow, PriorityNormal, true
	}
	return "", "", false
}

// NotificationType tags outbox rows produced by the ledger.
const NotificationType = "GRNI_ALERT"

// Notification is an outbox entry addressed to an accrual owner.
type Notification struct {
	ID        id.ID          `json:"id"`
	CompanyID int64          `json:"companyId"`
	UserID    int64          `json:"userId"`
	Type      string         `json:"type"`
	Priority  Priority       `json:"priority"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Candidate is an active user holding the owner role.
type Candidate struct {
	UserID int64  `db:"user_id"`
	Name   string `db:"name"`
}

// Receipt is a confirmed goods receipt handed to CreateFromReceipt.
type Receipt struct {
	ID         int64
	CompanyID  int64
	Number     string
	SupplierID int64
	Currency   string
	DocType    string
	Items      []ReceiptItem
}

// ReceiptItem is one accepted receipt line.
type ReceiptItem struct {
	ID             int64
	SupplierItemID *int64
	Description    string
	Quantity       types.Quantity
	UnitPrice      types.Money
}

// Invoice is a supplier invoice linked to a receipt.
type Invoice struct {
	ID     int64
	Number string
	Lines  []InvoiceLine
}

// InvoiceLine is one billed line. ReceiptItemID is set when the invoice
// was created from the receipt and carries the original line reference.
type InvoiceLine struct {
	ReceiptItemID *int64
	Description   string
	Quantity      types.Quantity
	UnitPrice     types.Money
}

// CreateResult summarises CreateFromReceipt. Skipped counts lines that
// already carried an accrual; unpriceable lines are not counted at all.
type CreateResult struct {
	Created        int         `json:"created"`
	TotalEstimated types.Money `json:"totalEstimated"`
	Skipped        int         `json:"skipped"`
	Failed         int         `json:"failed"`
}

// ReverseResult summarises ReverseForInvoice.
type ReverseResult struct {
	Reversed      int         `json:"reversed"`
	TotalVariance types.Money `json:"totalVariance"`
	Failed        int         `json:"failed"`
}

// VoidResult summarises VoidForReceipt.
type VoidResult struct {
	Voided int `json:"voided"`
}

// SweepResult summarises RunAgingSweep.
type SweepResult struct {
	AlertsSent           int `json:"alertsSent"`
	NotificationsCreated int `json:"notificationsCreated"`
}

// NoteResult reports AddNote. Success is false when the accrual is unknown.
type NoteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
