package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rentledger/internal/domain"
	"rentledger/internal/middleware"
	"rentledger/internal/webhook"
	"rentledger/pkg/logger"
	"rentledger/pkg/response"
)

// Signature header names per provider.
const (
	directDebitSignatureHeader = "Webhook-Signature"
	cardSignatureHeader        = "Signature"
)

// WebhookHandler receives provider webhook deliveries. These endpoints sit
// outside session auth; the signature is the only trust gate.
type WebhookHandler struct {
	dispatcher *webhook.Dispatcher
}

func NewWebhookHandler(dispatcher *webhook.Dispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// HandleWebhook godoc
// @Summary Receive a provider webhook
// @Description Verify, log and apply a payment-provider webhook delivery
// @Tags webhooks
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /webhooks/{provider} [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	providerName := c.Param("provider")
	middleware.CountWebhookEvent(providerName)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to read webhook body")
		response.BadRequest(c, "Failed to read request body", "")
		return
	}

	signature := c.GetHeader(directDebitSignatureHeader)
	if signature == "" {
		signature = c.GetHeader(cardSignatureHeader)
	}

	err = h.dispatcher.Handle(providerName, payload, signature)
	if errors.Is(err, domain.ErrUnauthorized) {
		response.Unauthorized(c, "Invalid webhook signature")
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		response.NotFound(c, "Unknown provider")
		return
	}

	// Processing failures inside dispatch are swallowed and logged; the
	// provider always gets its acknowledgement so it stops retrying.
	response.Success(c, http.StatusOK, "Webhook received", nil)
}

// ListWebhookLogs godoc
// @Summary List recent webhook deliveries
// @Description List the latest logged webhook events for a provider
// @Tags webhooks
// @Produce json
// @Param provider path string true "Provider name"
// @Param limit query int false "Maximum rows" default(50)
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/webhook-logs/{provider} [get]
func (h *WebhookHandler) ListWebhookLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	logs, err := h.dispatcher.RecentLogs(c.Param("provider"), limit)
	if err != nil {
		respondError(c, err, "Failed to list webhook logs")
		return
	}

	response.Success(c, http.StatusOK, "Webhook logs retrieved successfully", logs)
}
