package dto

import (
	"strings"

	"github.com/shopspring/decimal"

	"orvit/internal/core/apperror"
	"orvit/internal/core/types"
	"orvit/internal/domain/grni"
)

// --- Collaborator triggers ---

// ConfirmReceiptRequest carries a confirmed goods receipt.
// Amounts accept JSON numbers or strings.
type ConfirmReceiptRequest struct {
	Number     string               `json:"number"`
	SupplierID int64                `json:"supplierId" binding:"required,gt=0"`
	Currency   string               `json:"currency,omitempty" binding:"omitempty,max=3"`
	DocType    string               `json:"docType,omitempty" binding:"omitempty,max=4"`
	Items      []ReceiptItemRequest `json:"items" binding:"dive"`
}

// ReceiptItemRequest is one accepted receipt line.
type ReceiptItemRequest struct {
	ID             int64           `json:"id" binding:"required,gt=0"`
	SupplierItemID *int64          `json:"supplierItemId,omitempty"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
}

// ToReceipt converts the request into the ledger input.
func (r *ConfirmReceiptRequest) ToReceipt(companyID, receiptID int64) grni.Receipt {
	rec := grni.Receipt{
		ID:         receiptID,
		CompanyID:  companyID,
		Number:     r.Number,
		SupplierID: r.SupplierID,
		Currency:   r.Currency,
		DocType:    r.DocType,
		Items:      make([]grni.ReceiptItem, len(r.Items)),
	}
	for i, it := range r.Items {
		rec.Items[i] = grni.ReceiptItem{
			ID:             it.ID,
			SupplierItemID: it.SupplierItemID,
			Description:    it.Description,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
		}
	}
	return rec
}

// LinkInvoiceRequest carries a supplier invoice linked to a receipt.
type LinkInvoiceRequest struct {
	InvoiceID int64                `json:"invoiceId" binding:"required,gt=0"`
	Number    string               `json:"number"`
	Lines     []InvoiceLineRequest `json:"lines" binding:"dive"`
}

// InvoiceLineRequest is one billed line.
type InvoiceLineRequest struct {
	ReceiptItemID *int64          `json:"receiptItemId,omitempty"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
}

// ToInvoice converts the request into the ledger input.
func (r *LinkInvoiceRequest) ToInvoice() grni.Invoice {
	inv := grni.Invoice{ID: r.InvoiceID, Number: r.Number, Lines: make([]grni.InvoiceLine, len(r.Lines))}
	for i, l := range r.Lines {
		inv.Lines[i] = grni.InvoiceLine{
			ReceiptItemID: l.ReceiptItemID,
			Description:   l.Description,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
		}
	}
	return inv
}

// VoidReceiptRequest carries the cancellation reason.
type VoidReceiptRequest struct {
	Reason string `json:"reason"`
}

// --- Follow-up ---

// AddNoteRequest appends a follow-up note.
type AddNoteRequest struct {
	Note string `json:"note" binding:"required"`
}

// AssignOwnerRequest reassigns the follow-up owner.
type AssignOwnerRequest struct {
	OwnerID int64 `json:"ownerId" binding:"required,gt=0"`
}

// AdjustEstimateRequest changes the estimated amount.
type AdjustEstimateRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// --- Read side ---

// ListAccrualsQuery holds listing filters.
type ListAccrualsQuery struct {
	PaginationRequest
	Status        string `form:"status"`
	SupplierID    int64  `form:"supplierId"`
	PeriodFrom    string `form:"periodFrom"`
	PeriodTo      string `form:"periodTo"`
	InvoicePeriod string `form:"invoicePeriod"`
	DocType       string `form:"docType"`
}

// ToFilter validates periods and builds the repository filter.
// paged=false drops limit/offset (used by the export).
func (q *ListAccrualsQuery) ToFilter(companyID int64, paged bool) (grni.ListFilter, error) {
	f := grni.ListFilter{
		CompanyID:  companyID,
		Status:     grni.Status(strings.ToUpper(strings.TrimSpace(q.Status))),
		SupplierID: q.SupplierID,
		DocType:    q.DocType,
	}
	for _, p := range []struct {
		raw string
		dst *types.Period
		key string
	}{
		{q.PeriodFrom, &f.PeriodFrom, "periodFrom"},
		{q.PeriodTo, &f.PeriodTo, "periodTo"},
		{q.InvoicePeriod, &f.InvoicePeriod, "invoicePeriod"},
	} {
		if p.raw == "" {
			continue
		}
		parsed, err := types.ParsePeriod(p.raw)
		if err != nil {
			return f, apperror.NewValidation("invalid period").WithDetail(p.key, p.raw)
		}
		*p.dst = parsed
	}
	if paged {
		q.Defaults()
		f.Limit = q.PageSize
		f.Offset = q.Offset()
	}
	return f, nil
}
