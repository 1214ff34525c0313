package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rentledger/internal/service"
	"rentledger/pkg/logger"
	"rentledger/pkg/response"
)

type MandateHandler struct {
	service service.MandateService
}

func NewMandateHandler(service service.MandateService) *MandateHandler {
	return &MandateHandler{service: service}
}

type CreateMandateRequest struct {
	TenantID   string `json:"tenant_id" binding:"required"`
	Provider   string `json:"provider" binding:"required,oneof=directdebit card"`
	CustomerID string `json:"customer_id" binding:"required"`
	Scheme     string `json:"scheme" binding:"required"`
}

// CreateMandate godoc
// @Summary Create a mandate
// @Description Set up a recurring-payment authorization with a provider
// @Tags mandates
// @Accept json
// @Produce json
// @Param mandate body CreateMandateRequest true "Mandate data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/mandates [post]
func (h *MandateHandler) CreateMandate(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	var req CreateMandateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Error("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}

	mandate, err := h.service.Create(c.Request.Context(), service.CreateMandateParams{
		LandlordID: landlord,
		TenantID:   req.TenantID,
		Provider:   req.Provider,
		CustomerID: req.CustomerID,
		Scheme:     req.Scheme,
	})
	if err != nil {
		respondError(c, err, "Failed to create mandate")
		return
	}

	response.Success(c, http.StatusCreated, "Mandate created successfully", mandate)
}

// GetMandate godoc
// @Summary Get mandate by ID
// @Tags mandates
// @Produce json
// @Param mandate_id path string true "Mandate ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/mandates/{mandate_id} [get]
func (h *MandateHandler) GetMandate(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	mandate, err := h.service.Get(c.Param("mandate_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to get mandate")
		return
	}

	response.Success(c, http.StatusOK, "Mandate retrieved successfully", mandate)
}

// CancelMandate godoc
// @Summary Cancel a mandate
// @Description Revoke the authorization at the provider and locally
// @Tags mandates
// @Produce json
// @Param mandate_id path string true "Mandate ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/mandates/{mandate_id}/cancel [post]
func (h *MandateHandler) CancelMandate(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	mandate, err := h.service.Cancel(c.Request.Context(), c.Param("mandate_id"), landlord)
	if err != nil {
		respondError(c, err, "Failed to cancel mandate")
		return
	}

	response.Success(c, http.StatusOK, "Mandate cancelled successfully", mandate)
}
