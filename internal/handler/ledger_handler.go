package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rentledger/internal/service"
	"rentledger/pkg/response"
)

type LedgerHandler struct {
	service service.LedgerService
}

func NewLedgerHandler(service service.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// ListLedgerEntries godoc
// @Summary List ledger entries
// @Description List the landlord's double-entry ledger, newest first
// @Tags ledger
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/ledger [get]
func (h *LedgerHandler) ListLedgerEntries(c *gin.Context) {
	landlord, ok := landlordID(c)
	if !ok {
		return
	}

	entries, err := h.service.List(landlord)
	if err != nil {
		respondError(c, err, "Failed to list ledger entries")
		return
	}

	response.Success(c, http.StatusOK, "Ledger entries retrieved successfully", entries)
}
