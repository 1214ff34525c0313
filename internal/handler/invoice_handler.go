package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rentledger/internal/domain"
	"rentledger/internal/service"
	"rentledger/pkg/logger"
	"rentledger/pkg/response"
)

type InvoiceHandler struct {
	service service.InvoiceService
}

func NewInvoiceHandler(service service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

type InvoiceLineRequest struct {
	Description string  `json:"description" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" binding:"required,gte=0"`
	TaxRate     float64 `json:"tax_rate" binding:"gte=0"`
}

type CreateInvoiceRequest struct {
	TenancyID string               `json:"tenancy_id" binding:"required"`
	IssueDate string               `json:"issue_date" binding:"required"`
	DueDate   string               `json:"due_date" binding:"required"`
	Lines     []InvoiceLineRequest `json:"lines" binding:"required,min=1"`
}

// CreateInvoice godoc
// @Summary Create a new invoice
// @Description Issue an invoice for a tenancy with its line items
// @Tags invoices
// @Accept json
// @Produce json
// @Param invoice body CreateInvoiceRequest true "Invoice data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Error("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}

	issueDate, err := time.Parse("2006-01-02", req.IssueDate)
	if err != nil {
		response.BadRequest(c, "Invalid issue_date format", "Use YYYY-MM-DD format")
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		response.BadRequest(c, "Invalid due_date format", "Use YYYY-MM-DD format")
		return
	}

	lines := make([]domain.InvoiceLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, domain.InvoiceLine{
			Description: l.Description,
			Quantity:    decimal.NewFromFloat(l.Quantity),
			UnitPrice:   decimal.NewFromFloat(l.UnitPrice),
			TaxRate:     decimal.NewFromFloat(l.TaxRate),
		})
	}

	invoice, err := h.service.Create(service.CreateInvoiceParams{
		LandlordID: landlord,
		TenancyID:  req.TenancyID,
		IssueDate:  issueDate,
		DueDate:    dueDate,
		Lines:      lines,
	})
	if err != nil {
		respondError(c, err, "Failed to create invoice")
		return
	}

	response.Success(c, http.StatusCreated, "Invoice created successfully", invoice)
}

// GetInvoice godoc
// @Summary Get invoice by ID
// @Description Get a single invoice with its lines, paid amount and balance
// @Tags invoices
// @Produce json
// @Param invoice_id path string true "Invoice ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/invoices/{invoice_id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	invoice, err := h.service.Get(c.Param("invoice_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to get invoice")
		return
	}

	response.Success(c, http.StatusOK, "Invoice retrieved successfully", invoice)
}

// ListInvoices godoc
// @Summary List invoices
// @Description List the landlord's invoices with derived paid amounts and balances
// @Tags invoices
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	invoices, err := h.service.List(landlord)
	if err != nil {
		respondError(c, err, "Failed to list invoices")
		return
	}

	response.Success(c, http.StatusOK, "Invoices retrieved successfully", invoices)
}

// RecomputeInvoiceStatus godoc
// @Summary Recompute invoice status
// @Description Re-derive the invoice status from payments and due date, marking overdue invoices LATE
// @Tags invoices
// @Produce json
// @Param invoice_id path string true "Invoice ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/invoices/{invoice_id}/recompute [post]
func (h *InvoiceHandler) RecomputeInvoiceStatus(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	invoice, err := h.service.RecomputeStatus(c.Param("invoice_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to recompute invoice status")
		return
	}

	response.Success(c, http.StatusOK, "Invoice status recomputed successfully", invoice)
}

// VoidInvoice godoc
// @Summary Void an invoice
// @Description Void an invoice that has no allocated payments
// @Tags invoices
// @Produce json
// @Param invoice_id path string true "Invoice ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/invoices/{invoice_id}/void [post]
func (h *InvoiceHandler) VoidInvoice(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	invoice, err := h.service.Void(c.Param("invoice_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to void invoice")
		return
	}

	response.Success(c, http.StatusOK, "Invoice voided successfully", invoice)
}
