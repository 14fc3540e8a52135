package oidckit

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	jwtkit "github.com/PaulFidika/ocidkit/jwt"
)

var (
	// ErrUnknownState reports a callback whose state was never issued or has expired.
	ErrUnknownState = errors.New("oidc: unknown or expired login state")
	// ErrProviderError reports an error returned by the provider on the callback.
	ErrProviderError = errors.New("oidc: provider returned an error")
	// ErrMissingCode reports a callback without an authorization code.
	ErrMissingCode = errors.New("oidc: callback has no authorization code")
	// ErrSessionMismatch reports a callback arriving in a different browser
	// session than the one that started the login.
	ErrSessionMismatch = errors.New("oidc: login state belongs to another session")
)

// Session drives the PKCE login round-trip and accepts tokens only after the
// ID token verifies.
type Session struct {
	rp        *RelyingParty
	verifier  *Verifier
	exchanger Exchanger
	states    StateCache
	tokens    *TokenStorage

	keyless KeylessPolicy
	leeway  time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	onLogin []func(context.Context, *AuthState)
}

// SessionOpt configures a Session.
type SessionOpt func(*Session)

// WithKeylessPolicy sets how kid-less ID tokens are handled.
func WithKeylessPolicy(p KeylessPolicy) SessionOpt {
	return func(s *Session) { s.keyless = p }
}

// WithLeeway tolerates clock skew during ID token validation.
func WithLeeway(d time.Duration) SessionOpt {
	return func(s *Session) { s.leeway = d }
}

// WithSessionClock replaces time.Now.
func WithSessionClock(now func() time.Time) SessionOpt {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l logrus.FieldLogger) SessionOpt {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLoginHook registers fn to run after every successful login.
func WithLoginHook(fn func(context.Context, *AuthState)) SessionOpt {
	return func(s *Session) {
		if fn != nil {
			s.onLogin = append(s.onLogin, fn)
		}
	}
}

// NewSession wires the login collaborators together.
func NewSession(rp *RelyingParty, verifier *Verifier, exchanger Exchanger, states StateCache, tokens *TokenStorage, opts ...SessionOpt) (*Session, error) {
	switch {
	case rp == nil:
		return nil, errors.New("oidc: missing relying party")
	case verifier == nil:
		return nil, errors.New("oidc: missing verifier")
	case exchanger == nil:
		return nil, errors.New("oidc: missing exchanger")
	case states == nil:
		return nil, errors.New("oidc: missing state cache")
	case tokens == nil:
		return nil, errors.New("oidc: missing token storage")
	}
	s := &Session{
		rp:        rp,
		verifier:  verifier,
		exchanger: exchanger,
		states:    states,
		tokens:    tokens,
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RelyingParty returns the session's OAuth2 client configuration.
func (s *Session) RelyingParty() *RelyingParty { return s.rp }

// LoginOptions customizes one login attempt.
type LoginOptions struct {
	// State is generated when empty.
	State     string
	OriginURL string
}

// BeginLogin records a pending login and returns the provider URL to open.
func (s *Session) BeginLogin(ctx context.Context, opts LoginOptions) (string, error) {
	state := opts.State
	if state == "" {
		state = uuid.NewString()
	}
	verifier := oauth2.GenerateVerifier()
	data := StateData{
		SessionID:   SessionIDFrom(ctx),
		Verifier:    verifier,
		RedirectURI: s.rp.RedirectURI(),
		OriginURL:   opts.OriginURL,
		CreatedAt:   s.now(),
	}
	if err := s.states.Put(ctx, state, data); err != nil {
		return "", fmt.Errorf("oidc: store login state: %w", err)
	}
	var extra []AuthURLOpt
	if opts.OriginURL != "" {
		extra = append(extra, WithOriginURL(opts.OriginURL))
	}
	return AuthURL(state, verifier, s.rp, extra...), nil
}

// CompleteLogin handles the provider's redirect: it exchanges the code,
// verifies the ID token and persists the tokens only if verification passes.
func (s *Session) CompleteLogin(ctx context.Context, callbackURL string) (*AuthState, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("oidc: parse callback url: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return nil, fmt.Errorf("%w: %s %s", ErrProviderError, e, q.Get("error_description"))
	}
	code := q.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}
	state := q.Get("state")
	if state == "" {
		return nil, ErrUnknownState
	}

	data, ok, err := s.states.Take(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("oidc: load login state: %w", err)
	}
	if !ok {
		return nil, ErrUnknownState
	}
	if subtle.ConstantTimeCompare([]byte(data.SessionID), []byte(SessionIDFrom(ctx))) != 1 {
		s.log.Warn("login state presented by another session")
		return nil, ErrSessionMismatch
	}

	tok, err := s.exchanger.Exchange(ctx, code, data.Verifier)
	if err != nil {
		return nil, err
	}
	rawIDToken, ok := IDTokenFrom(tok)
	if !ok {
		return nil, errors.New("oidc: no id_token in response")
	}

	ep := s.rp.Endpoints()
	out := s.verifier.Verify(ctx, rawIDToken, ep.KeySetURL, VerifyOptions{
		ExpectedIssuer:   ep.Issuer,
		ExpectedAudience: ep.Audience,
		Keyless:          s.keyless,
		Leeway:           s.leeway,
	})
	if !out.Valid {
		s.log.WithFields(logrus.Fields{"stage": out.Stage.String(), "reason": out.Reason}).Warn("login rejected")
		return nil, &VerificationError{Outcome: out}
	}

	exp, _ := out.Payload.NumericDate("exp")
	ts := TokenSet{
		AccessToken: tok.AccessToken,
		IDToken:     rawIDToken,
		Expired:     exp.Unix(),
		State:       state,
	}
	if err := s.tokens.Save(ctx, ts); err != nil {
		return nil, fmt.Errorf("oidc: persist tokens: %w", err)
	}

	auth := &AuthState{
		Authenticated: true,
		AccessToken:   ts.AccessToken,
		IDToken:       ts.IDToken,
		Claims:        out.Payload,
		ExpiresAt:     exp,
	}
	s.log.WithFields(logrus.Fields{"sub": auth.Subject(), "ocid": auth.OCID()}).Info("login completed")
	for _, fn := range s.onLogin {
		fn(ctx, auth)
	}
	return auth, nil
}

// State returns the persisted login state. Expired or unreadable tokens are
// cleared and reported as logged out.
func (s *Session) State(ctx context.Context) (*AuthState, error) {
	ts, ok, err := s.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &AuthState{}, nil
	}
	if ts.Expired < s.now().Unix() {
		return &AuthState{}, s.tokens.Clear(ctx)
	}
	// The ID token was verified before it was stored.
	decoded, err := jwtkit.Decode(ts.IDToken)
	if err != nil {
		s.log.WithError(err).Warn("stored id_token unreadable, clearing")
		return &AuthState{}, s.tokens.Clear(ctx)
	}
	return &AuthState{
		Authenticated: true,
		AccessToken:   ts.AccessToken,
		IDToken:       ts.IDToken,
		Claims:        decoded.Payload,
		ExpiresAt:     time.Unix(ts.Expired, 0),
	}, nil
}

// Logout forgets the stored tokens.
func (s *Session) Logout(ctx context.Context) error {
	return s.tokens.Clear(ctx)
}
