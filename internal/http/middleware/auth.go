// Session middleware.
//
// This file authenticates requests carrying a Bearer session token and makes
// the resulting session available to downstream handlers. Requests without an
// Authorization header proceed anonymously; several read paths and the
// fire-and-forget save tolerate that, so rejection is left to RequireSession
// on the routes that genuinely need an owner.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nereus-ai/chat-backend/internal/auth"
)

const (
	// sessionKey is the Gin context key under which the session is stored.
	sessionKey = "session"
	// userIDKey mirrors the session's user id for the access log.
	userIDKey = "userID"
)

// Session validates the Authorization header when present and stores the
// verified session in the Gin context.
//
// Behavior:
//   - No Authorization header: the request continues anonymously.
//   - Malformed header or invalid/expired token: 401 with a structured body.
//   - Valid token: session stored under "session", user id under "userID".
//
// Place this after RequestID() and before the access logger so log lines can
// carry the user id.
func Session(verifier *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "authorization header must be a bearer token")
			return
		}
		sess, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, "invalid or expired session token")
			return
		}
		c.Set(sessionKey, sess)
		c.Set(userIDKey, sess.UserID)
		c.Next()
	}
}

// RequireSession rejects anonymous requests. It must run after Session().
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if SessionFrom(c) == nil {
			abortUnauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

// SessionFrom returns the verified session attached by Session(), or nil for
// anonymous requests.
func SessionFrom(c *gin.Context) *auth.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*auth.Session); ok {
			return s
		}
	}
	return nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": asString(rid),
		"code":       "unauthorized",
		"message":    msg,
	})
}
