package authhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// SessionCookie binds a browser to its pending login and stored tokens.
const SessionCookie = "ocid_sid"

// LoginHandler starts a login and redirects the browser to the provider.
// Browsers without a SessionCookie are issued one.
func LoginHandler(sess *oidckit.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := sessionContext(r)
		if !ok {
			sid := uuid.NewString()
			setSessionCookie(w, r, sid, 0)
			ctx = oidckit.WithSessionID(r.Context(), sid)
		}
		authURL, err := sess.BeginLogin(ctx, oidckit.LoginOptions{
			OriginURL: r.URL.Query().Get("origin_url"),
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed_to_start_login"})
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	})
}

// CallbackHandler completes a login. On success the browser goes to
// successURL; on failure to failureURL with an "error" query parameter.
// Either URL may be empty, in which case the result is written as JSON.
func CallbackHandler(sess *oidckit.Session, successURL, failureURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var state *oidckit.AuthState
		ctx, ok := sessionContext(r)
		err := oidckit.ErrSessionMismatch
		if ok {
			state, err = sess.CompleteLogin(ctx, r.URL.String())
		}
		if err != nil {
			code, status := classify(err)
			if status == http.StatusInternalServerError {
				logrus.WithError(err).Error("login callback failed")
			}
			if failureURL != "" {
				http.Redirect(w, r, withQuery(failureURL, "error", code), http.StatusSeeOther)
				return
			}
			writeJSON(w, status, map[string]string{"error": code})
			return
		}
		if successURL != "" {
			http.Redirect(w, r, successURL, http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusOK, state.View())
	})
}

// StateHandler writes the caller's login state without its tokens.
func StateHandler(sess *oidckit.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := sessionContext(r)
		if !ok {
			writeJSON(w, http.StatusOK, oidckit.AuthView{})
			return
		}
		state, err := sess.State(ctx)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed_to_load_state"})
			return
		}
		writeJSON(w, http.StatusOK, state.View())
	})
}

// LogoutHandler clears the caller's stored tokens and session cookie.
func LogoutHandler(sess *oidckit.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctx, ok := sessionContext(r); ok {
			if err := sess.Logout(ctx); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed_to_logout"})
				return
			}
			setSessionCookie(w, r, "", -1)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

// Mount registers the four handlers under /auth/ on mux.
func Mount(mux *http.ServeMux, sess *oidckit.Session, successURL, failureURL string) {
	mux.Handle("GET /auth/login", LoginHandler(sess))
	mux.Handle("GET /auth/callback", CallbackHandler(sess, successURL, failureURL))
	mux.Handle("GET /auth/state", StateHandler(sess))
	mux.Handle("POST /auth/logout", LogoutHandler(sess))
}

func classify(err error) (string, int) {
	var verr *oidckit.VerificationError
	var xerr *oidckit.ExchangeError
	switch {
	case errors.Is(err, oidckit.ErrUnknownState):
		return "unknown_state", http.StatusBadRequest
	case errors.Is(err, oidckit.ErrMissingCode):
		return "missing_code", http.StatusBadRequest
	case errors.Is(err, oidckit.ErrProviderError):
		return "provider_error", http.StatusBadRequest
	case errors.Is(err, oidckit.ErrSessionMismatch):
		return "session_mismatch", http.StatusBadRequest
	case errors.As(err, &verr):
		return "id_token_rejected", http.StatusUnauthorized
	case errors.As(err, &xerr):
		return "token_exchange_failed", http.StatusBadGateway
	default:
		return "login_failed", http.StatusInternalServerError
	}
}

func sessionContext(r *http.Request) (context.Context, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}
	return oidckit.WithSessionID(r.Context(), c.Value), true
}

// Lax so the cookie survives the provider's top-level redirect back.
func setSessionCookie(w http.ResponseWriter, r *http.Request, sid string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
