package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rentledger/internal/allocator"
	"rentledger/internal/domain"
	"rentledger/internal/service"
	"rentledger/pkg/logger"
	"rentledger/pkg/response"
)

type PaymentHandler struct {
	service service.PaymentService
	engine  *allocator.Engine
}

func NewPaymentHandler(service service.PaymentService, engine *allocator.Engine) *PaymentHandler {
	return &PaymentHandler{service: service, engine: engine}
}

type RecordPaymentRequest struct {
	InvoiceID    string  `json:"invoice_id" binding:"required"`
	Amount       float64 `json:"amount" binding:"required,gt=0"`
	Fee          float64 `json:"fee" binding:"gte=0"`
	FeeVAT       float64 `json:"fee_vat" binding:"gte=0"`
	Method       string  `json:"method" binding:"required,oneof=DIRECT_DEBIT CARD BANK_TRANSFER CASH"`
	Provider     string  `json:"provider"`
	ProviderRef  string  `json:"provider_ref" binding:"required"`
	ReceivedAt   string  `json:"received_at" binding:"required"`
	AutoAllocate bool    `json:"auto_allocate"`
}

type AllocationEntryRequest struct {
	InvoiceID string  `json:"invoice_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
}

type AllocatePaymentRequest struct {
	Allocations []AllocationEntryRequest `json:"allocations" binding:"required,min=1"`
}

// RecordPayment godoc
// @Summary Record a payment
// @Description Record an inbound payment idempotently by provider reference
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body RecordPaymentRequest true "Payment data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/payments [post]
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Error("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}

	receivedAt, err := time.Parse(time.RFC3339, req.ReceivedAt)
	if err != nil {
		response.BadRequest(c, "Invalid received_at format", "Use RFC3339 format")
		return
	}

	payment, err := h.service.Record(service.RecordPaymentParams{
		LandlordID:   landlord,
		InvoiceID:    req.InvoiceID,
		Amount:       decimal.NewFromFloat(req.Amount),
		Fee:          decimal.NewFromFloat(req.Fee),
		FeeVAT:       decimal.NewFromFloat(req.FeeVAT),
		Method:       domain.PaymentMethod(req.Method),
		Provider:     req.Provider,
		ProviderRef:  req.ProviderRef,
		ReceivedAt:   receivedAt,
		AutoAllocate: req.AutoAllocate,
	})
	if err != nil {
		respondError(c, err, "Failed to record payment")
		return
	}

	response.Success(c, http.StatusCreated, "Payment recorded successfully", payment)
}

// GetPayment godoc
// @Summary Get payment by ID
// @Description Get a payment with its allocations and unallocated amount
// @Tags payments
// @Produce json
// @Param payment_id path string true "Payment ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/payments/{payment_id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	payment, err := h.service.Get(c.Param("payment_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to get payment")
		return
	}

	response.Success(c, http.StatusOK, "Payment retrieved successfully", payment)
}

// ListInvoicePayments godoc
// @Summary List payments for an invoice
// @Description List every payment recorded against or allocated to an invoice
// @Tags payments
// @Produce json
// @Param invoice_id path string true "Invoice ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/invoices/{invoice_id}/payments [get]
func (h *PaymentHandler) ListInvoicePayments(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	payments, err := h.service.ListByInvoice(c.Param("invoice_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to list payments")
		return
	}

	response.Success(c, http.StatusOK, "Payments retrieved successfully", payments)
}

// AllocatePayment godoc
// @Summary Allocate a payment manually
// @Description Apply parts of a payment against specific invoice balances
// @Tags payments
// @Accept json
// @Produce json
// @Param payment_id path string true "Payment ID"
// @Param allocations body AllocatePaymentRequest true "Allocation instructions"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/payments/{payment_id}/allocations [post]
func (h *PaymentHandler) AllocatePayment(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	var req AllocatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	requests := make([]allocator.Request, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		requests = append(requests, allocator.Request{
			InvoiceID: a.InvoiceID,
			Amount:    decimal.NewFromFloat(a.Amount),
		})
	}

	payment, err := h.engine.Allocate(c.Param("payment_id"), landlord, requests)
	if err != nil {
		respondError(c, err, "Failed to allocate payment")
		return
	}

	response.Success(c, http.StatusOK, "Payment allocated successfully", payment)
}

// AutoAllocatePayment godoc
// @Summary Auto-allocate a payment
// @Description Apply the payment's unallocated amount oldest-due-first
// @Tags payments
// @Produce json
// @Param payment_id path string true "Payment ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/payments/{payment_id}/allocations/auto [post]
func (h *PaymentHandler) AutoAllocatePayment(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	payment, err := h.engine.AutoAllocate(c.Param("payment_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to auto-allocate payment")
		return
	}

	response.Success(c, http.StatusOK, "Payment allocated successfully", payment)
}
