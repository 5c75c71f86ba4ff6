package traces

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledWithoutEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	shutdown, err := Init(t.Context(), "", logger)
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}

func TestMiddlewarePassesRequestThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(Middleware())
	router.GET("/lookup-address", func(c *gin.Context) {
		// The span context must reach the handler.
		require.NotNil(t, c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"status": "SUCCESS"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/lookup-address", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
