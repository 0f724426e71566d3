// README: Bearer token middleware; resolves the caller identity for every protected route.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rideshare/internal/infra"
	"rideshare/internal/types"
)

const (
	callerUIDKey   = "caller_uid"
	callerEmailKey = "caller_email"
)

// Auth rejects requests without a valid bearer token. Websocket upgrades may pass the
// token as ?access_token= because browsers cannot set headers on them.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(callerUIDKey, types.ID(token.UID))
		c.Set(callerEmailKey, token.Email)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if websocket.IsWebSocketUpgrade(c.Request) {
		return c.Query("access_token")
	}
	return ""
}

// CallerUID returns the authenticated user, or "" outside Auth.
func CallerUID(c *gin.Context) types.ID {
	v, _ := c.Get(callerUIDKey)
	uid, _ := v.(types.ID)
	return uid
}

func CallerEmail(c *gin.Context) string {
	return c.GetString(callerEmailKey)
}
