package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/silent-echo/signaling/internal/middleware"
)

const testSecret = "test-secret"

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/auth/guest", Guest(testSecret))
	router.GET("/whoami", middleware.GuestAuth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"participantId": c.GetString("participant_id"),
			"alias":         c.GetString("alias"),
		})
	})
	return router
}

func issueGuest(t *testing.T, router *gin.Engine, body string) GuestResponse {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/auth/guest", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp GuestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGuest_IssuesAnonymousIdentity(t *testing.T) {
	req := require.New(t)
	router := newAuthRouter()

	resp := issueGuest(t, router, `{"alias":"Moonlight"}`)

	req.NotEmpty(resp.ParticipantID)
	req.Equal("Moonlight", resp.Alias)

	claims, err := middleware.ParseGuestToken(testSecret, resp.Token)
	req.NoError(err)
	req.Equal(resp.ParticipantID, claims.ParticipantID)
	req.Equal("Moonlight", claims.Alias)
}

func TestGuest_DefaultsAlias(t *testing.T) {
	req := require.New(t)
	router := newAuthRouter()

	resp := issueGuest(t, router, `{}`)
	req.Equal("Stranger", resp.Alias)
}

func TestGuest_FreshIdentityPerRequest(t *testing.T) {
	req := require.New(t)
	router := newAuthRouter()

	first := issueGuest(t, router, `{"alias":"Echo"}`)
	second := issueGuest(t, router, `{"alias":"Echo"}`)
	req.NotEqual(first.ParticipantID, second.ParticipantID)
}

func TestGuestAuth_AcceptsQueryToken(t *testing.T) {
	req := require.New(t)
	router := newAuthRouter()
	guest := issueGuest(t, router, `{"alias":"Echo"}`)

	// WebSocket clients cannot set headers, so the query form must work
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami?token="+guest.Token, nil))

	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), guest.ParticipantID)
	req.Contains(w.Body.String(), "Echo")
}

func TestGuestAuth_AcceptsBearerHeader(t *testing.T) {
	req := require.New(t)
	router := newAuthRouter()
	guest := issueGuest(t, router, `{"alias":"Echo"}`)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+guest.Token)
	router.ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)
}

func TestGuestAuth_RejectsMissingOrBadToken(t *testing.T) {
	req := require.New(t)
	router := newAuthRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	req.Equal(http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami?token=not-a-token", nil))
	req.Equal(http.StatusUnauthorized, w.Code)
}
