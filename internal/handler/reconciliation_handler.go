package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rentledger/internal/domain"
	"rentledger/internal/matcher"
	"rentledger/internal/service"
	"rentledger/pkg/logger"
	"rentledger/pkg/response"
)

type ReconciliationHandler struct {
	transactions service.BankTransactionService
	matcher      *matcher.Matcher
}

func NewReconciliationHandler(transactions service.BankTransactionService, m *matcher.Matcher) *ReconciliationHandler {
	return &ReconciliationHandler{transactions: transactions, matcher: m}
}

type CreateBankTransactionRequest struct {
	Amount      float64 `json:"amount" binding:"required"`
	PostedAt    string  `json:"posted_at" binding:"required"`
	Description string  `json:"description"`
	Source      string  `json:"source"`
}

type ImportBankTransactionsRequest struct {
	FilePath string `json:"file_path" binding:"required"`
}

type ConfirmMatchRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
}

// CreateBankTransaction godoc
// @Summary Record an imported bank transaction
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param transaction body CreateBankTransactionRequest true "Transaction data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/bank-transactions [post]
func (h *ReconciliationHandler) CreateBankTransaction(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	var req CreateBankTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Error("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}

	postedAt, err := time.Parse("2006-01-02", req.PostedAt)
	if err != nil {
		response.BadRequest(c, "Invalid posted_at format", "Use YYYY-MM-DD format")
		return
	}

	transaction := &domain.BankTransaction{
		LandlordID:  landlord,
		Amount:      decimal.NewFromFloat(req.Amount),
		PostedAt:    postedAt,
		Description: req.Description,
		Source:      req.Source,
	}

	if err := h.transactions.Create(transaction); err != nil {
		respondError(c, err, "Failed to create bank transaction")
		return
	}

	response.Success(c, http.StatusCreated, "Bank transaction created successfully", transaction)
}

// ImportBankTransactions godoc
// @Summary Import a bank statement CSV
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param request body ImportBankTransactionsRequest true "Import request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/bank-transactions/import [post]
func (h *ReconciliationHandler) ImportBankTransactions(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	var req ImportBankTransactionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	imported, err := h.transactions.ImportCSV(landlord, req.FilePath)
	if err != nil {
		respondError(c, err, "Failed to import bank statement")
		return
	}

	response.Success(c, http.StatusOK, "Bank statement imported successfully", map[string]int{"imported": imported})
}

// ListUnmatched godoc
// @Summary List unmatched bank transactions
// @Tags reconciliation
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/bank-transactions [get]
func (h *ReconciliationHandler) ListUnmatched(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	transactions, err := h.transactions.ListUnmatched(landlord)
	if err != nil {
		respondError(c, err, "Failed to list bank transactions")
		return
	}

	response.Success(c, http.StatusOK, "Bank transactions retrieved successfully", transactions)
}

// GetBankTransaction godoc
// @Summary Get bank transaction by ID
// @Tags reconciliation
// @Produce json
// @Param transaction_id path string true "Bank transaction ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/bank-transactions/{transaction_id} [get]
func (h *ReconciliationHandler) GetBankTransaction(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	transaction, err := h.transactions.Get(c.Param("transaction_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to get bank transaction")
		return
	}

	response.Success(c, http.StatusOK, "Bank transaction retrieved successfully", transaction)
}

// SuggestMatches godoc
// @Summary Suggest invoice matches for a bank transaction
// @Description Propose candidate invoices with confidence scores
// @Tags reconciliation
// @Produce json
// @Param transaction_id path string true "Bank transaction ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/bank-transactions/{transaction_id}/suggestions [get]
func (h *ReconciliationHandler) SuggestMatches(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	candidates, err := h.matcher.SuggestMatches(c.Param("transaction_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to suggest matches")
		return
	}

	response.Success(c, http.StatusOK, "Match suggestions retrieved successfully", candidates)
}

// ConfirmMatch godoc
// @Summary Confirm a manual match
// @Description Record a manual reconciliation between a transaction and an invoice
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param transaction_id path string true "Bank transaction ID"
// @Param request body ConfirmMatchRequest true "Match confirmation"
// @Success 201 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/bank-transactions/{transaction_id}/match [post]
func (h *ReconciliationHandler) ConfirmMatch(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	var req ConfirmMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	rec, err := h.matcher.Confirm(c.Param("transaction_id"), landlord, req.InvoiceID)
	if err != nil {
		respondError(c, err, "Failed to confirm match")
		return
	}

	response.Success(c, http.StatusCreated, "Match confirmed successfully", rec)
}

// AutoMatch godoc
// @Summary Automatically match a bank transaction
// @Description Confirm the top suggestion when its confidence clears the auto-match threshold
// @Tags reconciliation
// @Produce json
// @Param transaction_id path string true "Bank transaction ID"
// @Success 201 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/bank-transactions/{transaction_id}/match/auto [post]
func (h *ReconciliationHandler) AutoMatch(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	rec, err := h.matcher.AutoConfirm(c.Param("transaction_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to auto-match transaction")
		return
	}

	response.Success(c, http.StatusCreated, "Match confirmed automatically", rec)
}
