package authgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// RateLimiter matches ratelimit/memory.Limiter.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// RLCallback is the rate-limit bucket for login callbacks.
const RLCallback = "callback"

// Service mounts the login endpoints of a session on a gin router.
type Service struct {
	sess *oidckit.Session
	rl   RateLimiter
	log  logrus.FieldLogger
	// successURL, when set, turns a completed callback into a redirect.
	successURL string
}

// NewService wraps a session. rl may be nil.
func NewService(sess *oidckit.Session, rl RateLimiter) *Service {
	return &Service{sess: sess, rl: rl, log: logrus.StandardLogger()}
}

// WithSuccessRedirect redirects the browser to url after a successful callback
// instead of answering with JSON.
func (s *Service) WithSuccessRedirect(url string) *Service {
	s.successURL = url
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l logrus.FieldLogger) *Service {
	if l != nil {
		s.log = l
	}
	return s
}

// GinRegisterAPI mounts the routes below. Each browser is identified by the
// SessionCookie issued at /auth/login; callers without it are logged out.
//
//	GET  /auth/login
//	GET  /auth/callback
//	GET  /auth/state
//	POST /auth/logout
func (s *Service) GinRegisterAPI(r gin.IRouter) {
	g := r.Group("/auth")
	g.GET("/login", HandleLoginGET(s.sess))
	g.GET("/callback", HandleCallbackGET(s.sess, s.rl, s.successURL, s.log))
	g.GET("/state", HandleStateGET(s.sess))
	g.POST("/logout", HandleLogoutPOST(s.sess))
}

func HandleLoginGET(sess *oidckit.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		authURL, err := sess.BeginLogin(ensureSession(c), oidckit.LoginOptions{
			OriginURL: c.Query("origin_url"),
		})
		if err != nil {
			serverErr(c, "failed_to_start_login")
			return
		}
		c.Redirect(http.StatusFound, authURL)
	}
}

func HandleCallbackGET(sess *oidckit.Session, rl RateLimiter, successURL string, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl != nil {
			ok, err := rl.AllowNamed(RLCallback, c.ClientIP())
			if err != nil || !ok {
				tooMany(c)
				return
			}
		}
		ctx, ok := sessionContext(c)
		if !ok {
			writeLoginError(c, oidckit.ErrSessionMismatch, log)
			return
		}
		state, err := sess.CompleteLogin(ctx, c.Request.URL.String())
		if err != nil {
			writeLoginError(c, err, log)
			return
		}
		if successURL != "" {
			c.Redirect(http.StatusSeeOther, successURL)
			return
		}
		c.JSON(http.StatusOK, state.View())
	}
}

func HandleStateGET(sess *oidckit.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := sessionContext(c)
		if !ok {
			c.JSON(http.StatusOK, oidckit.AuthView{})
			return
		}
		state, err := sess.State(ctx)
		if err != nil {
			serverErr(c, "failed_to_load_state")
			return
		}
		c.JSON(http.StatusOK, state.View())
	}
}

func HandleLogoutPOST(sess *oidckit.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ctx, ok := sessionContext(c); ok {
			if err := sess.Logout(ctx); err != nil {
				serverErr(c, "failed_to_logout")
				return
			}
			clearSessionCookie(c)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func writeLoginError(c *gin.Context, err error, log logrus.FieldLogger) {
	var verr *oidckit.VerificationError
	var xerr *oidckit.ExchangeError
	switch {
	case errors.Is(err, oidckit.ErrUnknownState):
		badRequest(c, "unknown_state")
	case errors.Is(err, oidckit.ErrMissingCode):
		badRequest(c, "missing_code")
	case errors.Is(err, oidckit.ErrProviderError):
		badRequest(c, "provider_error")
	case errors.Is(err, oidckit.ErrSessionMismatch):
		badRequest(c, "session_mismatch")
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "id_token_rejected", "reason": verr.Outcome.Reason})
	case errors.As(err, &xerr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "token_exchange_failed"})
	default:
		if log != nil {
			log.WithError(err).Error("login callback failed")
		}
		serverErr(c, "login_failed")
	}
}

func badRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func serverErr(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": code})
}

func tooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}
