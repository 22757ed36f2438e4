package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "sessionId"

// SessionValidator is the minimal interface the auth gates depend on: it
// resolves a token to the owning username when the session is live.
type SessionValidator interface {
	Resolve(ctx context.Context, token string) (username string, ok bool)
}

// TokenFromRequest extracts the session token from the sessionId cookie or,
// failing that, from an 'Authorization: Bearer <token>' header. Both forms
// validate identically.
func TokenFromRequest(c *gin.Context) string {
	if tok, err := c.Cookie(SessionCookie); err == nil && tok != "" {
		return tok
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// RequireSession rejects with 401 unless the request carries a valid
// session token. Valid requests are annotated with the session's username.
func RequireSession(v SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		user, ok := "", false
		if token != "" {
			user, ok = v.Resolve(c.Request.Context(), token)
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("authenticated", true)
		c.Set("username", user)
		c.Next()
	}
}

// OptionalSession annotates the request with an authenticated flag (and the
// username when the session is live) and always proceeds. Handlers enforce
// per-document permissions themselves.
func OptionalSession(v SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := "", false
		if token := TokenFromRequest(c); token != "" {
			user, ok = v.Resolve(c.Request.Context(), token)
		}
		c.Set("authenticated", ok)
		if ok {
			c.Set("username", user)
		}
		c.Next()
	}
}
