package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/silent-echo/signaling/internal/middleware"
)

// GuestRequest asks for an anonymous identity. The alias is display-only
// and optional.
type GuestRequest struct {
	Alias string `json:"alias" binding:"omitempty,max=32"`
}

// GuestResponse carries the fresh identity and the token that pins it to
// this connection attempt.
type GuestResponse struct {
	Token         string `json:"token"`
	ParticipantID string `json:"participantId"`
	Alias         string `json:"alias"`
}

// Guest issues an anonymous guest identity: a fresh participant id plus a
// signed token binding id and alias. No password, no account; strangers
// stay strangers.
func Guest(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GuestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
		if req.Alias == "" {
			req.Alias = "Stranger"
		}

		participantID := uuid.NewString()
		claims := middleware.GuestClaims{
			ParticipantID: participantID,
			Alias:         req.Alias,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				NotBefore: jwt.NewNumericDate(time.Now()),
			},
		}

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte(jwtSecret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, GuestResponse{
			Token:         tokenString,
			ParticipantID: participantID,
			Alias:         req.Alias,
		})
	}
}
