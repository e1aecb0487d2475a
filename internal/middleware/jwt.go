package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// GuestClaims binds an anonymous participant identity and display alias to
// a connection attempt. There is no account behind it.
type GuestClaims struct {
	ParticipantID string `json:"participant_id"`
	Alias         string `json:"alias"`
	jwt.RegisteredClaims
}

// ParseGuestToken validates a guest token and returns its claims.
func ParseGuestToken(jwtSecret, tokenString string) (*GuestClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &GuestClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*GuestClaims)
	if !ok || !token.Valid || claims.ParticipantID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// GuestAuth validates the guest token and stores the participant identity
// in the request context. WebSocket clients cannot set headers, so the
// token is also accepted as a query parameter.
func GuestAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Guest token required",
				})
				return
			}
			tokenString = parts[1]
		}

		claims, err := ParseGuestToken(jwtSecret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			return
		}

		c.Set("participant_id", claims.ParticipantID)
		c.Set("alias", claims.Alias)
		c.Next()
	}
}
