package authgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

const ctxAuthState = "ocid.auth_state"

// UserView is the caller's identity as exposed to handlers.
type UserView struct {
	Subject    string `json:"sub"`
	OCID       string `json:"ocid,omitempty"`
	EthAddress string `json:"eth_address,omitempty"`
	ExpiresAt  int64  `json:"expires_at"`
}

// AuthRequired loads the caller's session state and aborts with 401 when
// logged out.
func AuthRequired(sess *oidckit.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := sessionContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
			return
		}
		state, err := sess.State(ctx)
		if err != nil {
			serverErr(c, "failed_to_load_state")
			return
		}
		if !state.Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
			return
		}
		c.Set(ctxAuthState, state)
		c.Next()
	}
}

// CurrentAuth returns the state attached by AuthRequired.
func CurrentAuth(c *gin.Context) (*oidckit.AuthState, bool) {
	v, ok := c.Get(ctxAuthState)
	if !ok {
		return nil, false
	}
	s, ok := v.(*oidckit.AuthState)
	return s, ok && s != nil && s.Authenticated
}

// CurrentUser returns a UserView for the authenticated caller.
func CurrentUser(c *gin.Context) (UserView, bool) {
	s, ok := CurrentAuth(c)
	if !ok {
		return UserView{}, false
	}
	return UserView{
		Subject:    s.Subject(),
		OCID:       s.OCID(),
		EthAddress: s.EthAddress(),
		ExpiresAt:  s.ExpiresAt.Unix(),
	}, true
}
