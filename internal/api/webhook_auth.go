package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// WebhookAuth validates courier callbacks. The provider signs each callback
// with a JWT over the shared secret agreed at onboarding; anything else is
// rejected before it reaches the state machine.
type WebhookAuth struct {
	secret []byte
}

// NewWebhookAuth creates a webhook authenticator.
func NewWebhookAuth(sharedSecret string) *WebhookAuth {
	return &WebhookAuth{secret: []byte(sharedSecret)}
}

// Middleware returns the gin middleware enforcing the shared-secret JWT.
func (w *WebhookAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return w.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))

		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Next()
	}
}
