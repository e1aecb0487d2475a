package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/silent-echo/signaling/internal/store"
)

// SessionResponse is the public view of a session: lifecycle facts only,
// never content.
type SessionResponse struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GetSession returns session metadata from the Redis mirror (public).
func GetSession(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		rec, err := st.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}

		c.JSON(http.StatusOK, SessionResponse{
			ID:          rec.ID,
			State:       rec.State,
			MemberCount: rec.MemberCount,
			CreatedAt:   rec.CreatedAt,
		})
	}
}
