package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newOriginRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(OriginFilter([]string{"http://localhost:3000"}))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func TestOriginFilter_AllowsKnownOrigin(t *testing.T) {
	req := require.New(t)
	router := newOriginRouter()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	router.ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)
	req.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	req.Equal("true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestOriginFilter_RejectsUnknownOrigin(t *testing.T) {
	req := require.New(t)
	router := newOriginRouter()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://evil.example")
	router.ServeHTTP(w, r)

	req.Equal(http.StatusForbidden, w.Code)
}

func TestOriginFilter_NoOriginPasses(t *testing.T) {
	req := require.New(t)
	router := newOriginRouter()

	// Direct requests (curl, health checks) carry no Origin header
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	req.Equal(http.StatusOK, w.Code)
}

func TestOriginFilter_Preflight(t *testing.T) {
	req := require.New(t)
	router := newOriginRouter()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "/health", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	router.ServeHTTP(w, r)

	req.Equal(http.StatusNoContent, w.Code)
}
