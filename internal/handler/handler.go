package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"rentledger/internal/domain"
	"rentledger/pkg/response"
)

// landlordIDHeader carries the authenticated landlord identity, supplied
// by the auth layer in front of this service.
const landlordIDHeader = "X-Landlord-ID"

func landlordID(c *gin.Context) (string, bool) {
	id := c.GetHeader(landlordIDHeader)
	if id == "" {
		response.BadRequest(c, "Missing landlord identity", "X-Landlord-ID header is required")
		return "", false
	}
	return id, true
}

// respondError maps the domain error taxonomy onto HTTP envelopes.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrConflict):
		response.Conflict(c, fallback, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, domain.ErrUpstream):
		response.Error(c, 502, "UPSTREAM_ERROR", fallback, err.Error())
	default:
		response.InternalError(c, fallback, err.Error())
	}
}
