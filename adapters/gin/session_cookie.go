package authgin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// SessionCookie binds a browser to its pending login and stored tokens.
const SessionCookie = "ocid_sid"

// sessionContext scopes the request context to the caller's session cookie.
// It reports false when the request carries none.
func sessionContext(c *gin.Context) (context.Context, bool) {
	sid, err := c.Cookie(SessionCookie)
	if err != nil || sid == "" {
		return nil, false
	}
	return oidckit.WithSessionID(c.Request.Context(), sid), true
}

// ensureSession reuses the caller's session or issues a fresh cookie.
func ensureSession(c *gin.Context) context.Context {
	if ctx, ok := sessionContext(c); ok {
		return ctx
	}
	sid := uuid.NewString()
	setSessionCookie(c, sid, 0)
	return oidckit.WithSessionID(c.Request.Context(), sid)
}

func clearSessionCookie(c *gin.Context) {
	setSessionCookie(c, "", -1)
}

// Lax so the cookie survives the provider's top-level redirect back.
func setSessionCookie(c *gin.Context, sid string, maxAge int) {
	secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sid, maxAge, "/", "", secure, true)
}
