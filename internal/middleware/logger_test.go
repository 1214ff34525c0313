package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentledger/pkg/logger"
)

func TestLogger_RecordsLandlordAndRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hook := test.NewLocal(logger.GetLogger())
	defer hook.Reset()

	router := gin.New()
	router.Use(Logger())
	router.GET("/api/v1/invoices/:invoice_id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/inv-1", nil)
	req.Header.Set("X-Landlord-ID", "ll-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.NotEmpty(t, hook.Entries)
	entry := hook.LastEntry()
	assert.Equal(t, "ll-1", entry.Data["landlord_id"])
	assert.Equal(t, "/api/v1/invoices/:invoice_id", entry.Data["route"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
}

func TestLogger_OmitsMissingIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hook := test.NewLocal(logger.GetLogger())
	defer hook.Reset()

	router := gin.New()
	router.Use(Logger())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotEmpty(t, hook.Entries)
	_, present := hook.LastEntry().Data["landlord_id"]
	assert.False(t, present)
}

func TestRecovery_PanicReturnsEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(Recovery())
	router.GET("/boom", func(c *gin.Context) { panic("kaput") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}
