package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"orvit/internal/core/apperror"
	"orvit/internal/core/id"
	"orvit/internal/core/types"
	"orvit/internal/domain/grni"
	"orvit/internal/infrastructure/http/v1/dto"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Ledger is the subset of *grni.Service the HTTP layer calls.
type Ledger interface {
	CreateFromReceipt(ctx context.Context, r grni.Receipt) (grni.CreateResult, error)
	ReverseForInvoice(ctx context.Context, companyID, receiptID int64, inv grni.Invoice) (grni.ReverseResult, error)
	VoidForReceipt(ctx context.Context, companyID, receiptID int64, reason string) (grni.VoidResult, error)
	RunAgingSweep(ctx context.Context, companyID int64) (grni.SweepResult, error)

	Stats(ctx context.Context, companyID int64, docType string) (*grni.Stats, error)
	List(ctx context.Context, filter grni.ListFilter) ([]grni.AccrualView, error)
	PeriodClose(ctx context.Context, companyID int64, period types.Period) (*grni.PeriodSummary, error)
	History(ctx context.Context, companyID int64, accrualID id.ID) ([]grni.AuditEntry, error)

	AddNote(ctx context.Context, companyID int64, accrualID id.ID, note string) (grni.NoteResult, error)
	AssignOwner(ctx context.Context, companyID int64, accrualID id.ID, ownerID int64) (*grni.Accrual, error)
	AdjustEstimate(ctx context.Context, companyID int64, accrualID id.ID, amount types.Money, reason string) (*grni.Accrual, error)
}

var _ Ledger = (*grni.Service)(nil)

// GRNIHandler exposes the accrual ledger.
type GRNIHandler struct {
	*BaseHandler
	ledger Ledger
}

// NewGRNIHandler creates the ledger handler.
func NewGRNIHandler(base *BaseHandler, ledger Ledger) *GRNIHandler {
	return &GRNIHandler{BaseHandler: base, ledger: ledger}
}

// ConfirmReceipt accrues every priced line of a confirmed receipt.
// POST /grni/receipts/:receiptId/confirm
func (h *GRNIHandler) ConfirmReceipt(c *gin.Context) {
	receiptID, ok := h.ParamInt64(c, "receiptId")
	if !ok {
		return
	}
	var req dto.ConfirmReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.ledger.CreateFromReceipt(c.Request.Context(), req.ToReceipt(h.CompanyID(c), receiptID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// LinkInvoice reverses the receipt's pending accruals against an invoice.
// POST /grni/receipts/:receiptId/invoice
func (h *GRNIHandler) LinkInvoice(c *gin.Context) {
	receiptID, ok := h.ParamInt64(c, "receiptId")
	if !ok {
		return
	}
	var req dto.LinkInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.ledger.ReverseForInvoice(c.Request.Context(), h.CompanyID(c), receiptID, req.ToInvoice())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// VoidReceipt voids the receipt's pending accruals.
// POST /grni/receipts/:receiptId/void
func (h *GRNIHandler) VoidReceipt(c *gin.Context) {
	receiptID, ok := h.ParamInt64(c, "receiptId")
	if !ok {
		return
	}
	var req dto.VoidReceiptRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	res, err := h.ledger.VoidForReceipt(c.Request.Context(), h.CompanyID(c), receiptID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Sweep runs the aging sweep for the calling company.
// POST /grni/sweep
func (h *GRNIHandler) Sweep(c *gin.Context) {
	res, err := h.ledger.RunAgingSweep(c.Request.Context(), h.CompanyID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Stats returns the outstanding dashboard.
// GET /grni/stats?docType=T1
func (h *GRNIHandler) Stats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context(), h.CompanyID(c), c.Query("docType"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, stats)
}

// List returns one page of the detail listing.
// GET /grni/accruals
func (h *GRNIHandler) List(c *gin.Context) {
	var q dto.ListAccrualsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter(h.CompanyID(c), true)
	if err != nil {
		h.Error(c, err)
		return
	}

	views, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	if views == nil {
		views = []grni.AccrualView{}
	}
	h.OK(c, dto.ListResponse[grni.AccrualView]{Items: views, Page: q.Page, PageSize: q.PageSize})
}

// Export streams the unpaged listing as an XLSX workbook.
// GET /grni/accruals/export.xlsx
func (h *GRNIHandler) Export(c *gin.Context) {
	var q dto.ListAccrualsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	companyID := h.CompanyID(c)
	filter, err := q.ToFilter(companyID, false)
	if err != nil {
		h.Error(c, err)
		return
	}

	views, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	var buf bytes.Buffer
	if err := grni.WriteXLSX(&buf, views); err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="grni-%d.xlsx"`, companyID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// PeriodClose returns the month-end summary.
// GET /grni/period-close/:period
func (h *GRNIHandler) PeriodClose(c *gin.Context) {
	period, err := types.ParsePeriod(c.Param("period"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid period").WithDetail("period", c.Param("period")))
		return
	}

	sum, err := h.ledger.PeriodClose(c.Request.Context(), h.CompanyID(c), period)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sum)
}

// History returns the audit trail of one accrual, newest first.
// GET /grni/accruals/:id/history
func (h *GRNIHandler) History(c *gin.Context) {
	accrualID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	entries, err := h.ledger.History(c.Request.Context(), h.CompanyID(c), accrualID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if entries == nil {
		entries = []grni.AuditEntry{}
	}
	h.OK(c, gin.H{"items": entries})
}

// AddNote appends a follow-up note.
// POST /grni/accruals/:id/notes
func (h *GRNIHandler) AddNote(c *gin.Context) {
	accrualID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.AddNoteRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.ledger.AddNote(c.Request.Context(), h.CompanyID(c), accrualID, req.Note)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.SuccessResponse{Success: res.Success, Message: res.Message})
}

// AssignOwner reassigns the follow-up owner.
// PUT /grni/accruals/:id/owner
func (h *GRNIHandler) AssignOwner(c *gin.Context) {
	accrualID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.AssignOwnerRequest
	if !h.BindJSON(c, &req) {
		return
	}

	a, err := h.ledger.AssignOwner(c.Request.Context(), h.CompanyID(c), accrualID, req.OwnerID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// AdjustEstimate changes the estimated amount of a pending accrual.
// PUT /grni/accruals/:id/estimate
func (h *GRNIHandler) AdjustEstimate(c *gin.Context) {
	accrualID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.AdjustEstimateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	a, err := h.ledger.AdjustEstimate(c.Request.Context(), h.CompanyID(c), accrualID, req.Amount, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}
