package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"rentledger/pkg/logger"
)

// landlordIDHeader mirrors the identity header the handlers authenticate
// with, so request logs can be filtered per landlord.
const landlordIDHeader = "X-Landlord-ID"

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)

		fields := map[string]interface{}{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"query":   c.Request.URL.RawQuery,
			"ip":      c.ClientIP(),
			"latency": latency.Milliseconds(),
			"errors":  c.Errors.String(),
		}
		// The route template groups log lines the same way the request
		// metrics are labelled.
		if route := c.FullPath(); route != "" {
			fields["route"] = route
		}
		if landlord := c.GetHeader(landlordIDHeader); landlord != "" {
			fields["landlord_id"] = landlord
		}

		logger.GetLogger().WithFields(fields).Info("Request processed")
	}
}
