package oidckit_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtkit "github.com/PaulFidika/ocidkit/jwt"
	oidckit "github.com/PaulFidika/ocidkit/oidc"
	memorystore "github.com/PaulFidika/ocidkit/storage/memory"
	ocidtest "github.com/PaulFidika/ocidkit/testing"
)

const redirectURI = "https://app.example/callback"

type sessionFixture struct {
	issuer *ocidtest.TestIssuer
	states *memorystore.StateCache
	kv     *memorystore.KV
	clock  *clock
	sess   *oidckit.Session
	logins []*oidckit.AuthState
}

func newSessionFixture(t *testing.T, opts ...oidckit.SessionOpt) *sessionFixture {
	t.Helper()
	ti := ocidtest.NewTestIssuer()
	t.Cleanup(ti.Close)

	rp, err := oidckit.NewRelyingParty(oidckit.Endpoints{
		LoginURL:  ti.LoginURL(),
		TokenURL:  ti.TokenURL(),
		KeySetURL: ti.KeySetURL(),
		Issuer:    ti.Issuer(),
		Audience:  ti.Audience(),
	}, "client-1", redirectURI, nil)
	require.NoError(t, err)

	f := &sessionFixture{
		issuer: ti,
		states: memorystore.NewStateCache(time.Minute),
		kv:     memorystore.NewKV(),
		clock:  newClock(),
	}
	t.Cleanup(func() { _ = f.states.Close() })

	all := append([]oidckit.SessionOpt{
		oidckit.WithSessionClock(f.clock.Now),
		oidckit.WithLoginHook(func(_ context.Context, s *oidckit.AuthState) { f.logins = append(f.logins, s) }),
	}, opts...)
	f.sess, err = oidckit.NewSession(
		rp,
		oidckit.NewVerifier(jwtkit.NewKeySetCache()),
		&oidckit.TokenEndpointExchanger{URL: ti.TokenURL()},
		f.states,
		oidckit.NewTokenStorage(f.kv, ""),
		all...,
	)
	require.NoError(t, err)
	return f
}

func (f *sessionFixture) login(t *testing.T) (*oidckit.AuthState, error) {
	t.Helper()
	ctx := context.Background()
	authURL, err := f.sess.BeginLogin(ctx, oidckit.LoginOptions{})
	require.NoError(t, err)
	cb, err := f.issuer.Authorize(authURL)
	require.NoError(t, err)
	return f.sess.CompleteLogin(ctx, cb)
}

func TestSession_BeginLoginURL(t *testing.T) {
	f := newSessionFixture(t)
	authURL, err := f.sess.BeginLogin(context.Background(), oidckit.LoginOptions{State: "s-1", OriginURL: "https://app.example/page"})
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, f.issuer.LoginURL(), u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "s-1", q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, redirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid", q.Get("scope"))
	assert.Equal(t, "https://app.example/page", q.Get("origin_url"))

	data, ok, err := f.states.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, data.Verifier)
	assert.Equal(t, redirectURI, data.RedirectURI)
	assert.Equal(t, "https://app.example/page", data.OriginURL)
}

func TestSession_FullLogin(t *testing.T) {
	f := newSessionFixture(t)
	auth, err := f.login(t)
	require.NoError(t, err)

	assert.True(t, auth.Authenticated)
	assert.Equal(t, "user-123", auth.Subject())
	assert.Equal(t, "user-123.edu", auth.OCID())
	assert.NotEmpty(t, auth.EthAddress())
	assert.NotEmpty(t, auth.AccessToken)
	assert.NotEmpty(t, auth.IDToken)
	assert.Len(t, f.logins, 1)

	state, err := f.sess.State(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
	assert.Equal(t, auth.IDToken, state.IDToken)
	assert.Equal(t, "user-123.edu", state.OCID())
	assert.Equal(t, auth.ExpiresAt.Unix(), state.ExpiresAt.Unix())

	ts, ok, err := oidckit.NewTokenStorage(f.kv, oidckit.DefaultStorageKey).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, auth.IDToken, ts.IDToken)
	assert.Equal(t, auth.ExpiresAt.Unix(), ts.Expired)
	assert.NotEmpty(t, ts.State)
}

func TestSession_StateIsSingleUse(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	authURL, err := f.sess.BeginLogin(ctx, oidckit.LoginOptions{})
	require.NoError(t, err)
	cb, err := f.issuer.Authorize(authURL)
	require.NoError(t, err)

	_, err = f.sess.CompleteLogin(ctx, cb)
	require.NoError(t, err)
	_, err = f.sess.CompleteLogin(ctx, cb)
	assert.ErrorIs(t, err, oidckit.ErrUnknownState)
}

func TestSession_CallbackFromAnotherSession(t *testing.T) {
	f := newSessionFixture(t)
	alice := oidckit.WithSessionID(context.Background(), "alice")
	bob := oidckit.WithSessionID(context.Background(), "bob")

	authURL, err := f.sess.BeginLogin(alice, oidckit.LoginOptions{})
	require.NoError(t, err)
	cb, err := f.issuer.Authorize(authURL)
	require.NoError(t, err)

	_, err = f.sess.CompleteLogin(bob, cb)
	assert.ErrorIs(t, err, oidckit.ErrSessionMismatch)
	_, err = f.sess.CompleteLogin(context.Background(), cb)
	assert.ErrorIs(t, err, oidckit.ErrUnknownState, "a refused callback still consumes the state")
	assert.Empty(t, f.logins)

	state, err := f.sess.State(bob)
	require.NoError(t, err)
	assert.False(t, state.Authenticated)
}

func TestSession_TokensArePerSession(t *testing.T) {
	f := newSessionFixture(t)
	alice := oidckit.WithSessionID(context.Background(), "alice")
	bob := oidckit.WithSessionID(context.Background(), "bob")

	authURL, err := f.sess.BeginLogin(alice, oidckit.LoginOptions{})
	require.NoError(t, err)
	cb, err := f.issuer.Authorize(authURL)
	require.NoError(t, err)
	_, err = f.sess.CompleteLogin(alice, cb)
	require.NoError(t, err)

	_, ok, err := f.kv.GetItem(context.Background(), oidckit.DefaultStorageKey+":alice")
	require.NoError(t, err)
	assert.True(t, ok)

	for name, ctx := range map[string]context.Context{"other session": bob, "no session": context.Background()} {
		state, err := f.sess.State(ctx)
		require.NoError(t, err)
		assert.False(t, state.Authenticated, name)
	}

	require.NoError(t, f.sess.Logout(bob))
	state, err := f.sess.State(alice)
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
	assert.Equal(t, "user-123", state.Subject())

	require.NoError(t, f.sess.Logout(alice))
	state, err = f.sess.State(alice)
	require.NoError(t, err)
	assert.False(t, state.Authenticated)
}

func TestSession_CallbackErrors(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	cases := map[string]struct {
		url string
		err error
	}{
		"unknown state":  {redirectURI + "?code=c&state=never-issued", oidckit.ErrUnknownState},
		"missing state":  {redirectURI + "?code=c", oidckit.ErrUnknownState},
		"missing code":   {redirectURI + "?state=s", oidckit.ErrMissingCode},
		"provider error": {redirectURI + "?error=access_denied&error_description=nope&state=s", oidckit.ErrProviderError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.sess.CompleteLogin(ctx, tc.url)
			assert.ErrorIs(t, err, tc.err)
		})
	}
	assertLoggedOut(t, f)
}

func TestSession_RejectedTokenIsNotStored(t *testing.T) {
	f := newSessionFixture(t)
	f.issuer.SetTokenClaims(map[string]any{"aud": "other"})

	_, err := f.login(t)
	var verr *oidckit.VerificationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Outcome.Reason, "audience")
	assert.Empty(t, f.logins)
	assertLoggedOut(t, f)
}

func TestSession_ExchangeFailure(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	authURL, err := f.sess.BeginLogin(ctx, oidckit.LoginOptions{State: "s-2"})
	require.NoError(t, err)
	cb, err := f.issuer.Authorize(authURL)
	require.NoError(t, err)

	// Swap the stored verifier so the provider's PKCE check fails.
	require.NoError(t, f.states.Put(ctx, "s-2", oidckit.StateData{Verifier: "not-the-verifier", RedirectURI: redirectURI}))

	_, err = f.sess.CompleteLogin(ctx, cb)
	var xerr *oidckit.ExchangeError
	require.True(t, errors.As(err, &xerr), "got %v", err)
	assert.Equal(t, "invalid_grant", xerr.Code)
	assertLoggedOut(t, f)
}

func TestSession_ExpiredStateLogsOut(t *testing.T) {
	f := newSessionFixture(t)
	auth, err := f.login(t)
	require.NoError(t, err)

	f.clock.Set(auth.ExpiresAt)
	state, err := f.sess.State(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Authenticated, "exp equal to now is still valid")

	f.clock.Set(auth.ExpiresAt.Add(time.Second))
	assertLoggedOut(t, f)
	_, ok, err := f.kv.GetItem(context.Background(), oidckit.DefaultStorageKey)
	require.NoError(t, err)
	assert.False(t, ok, "expired tokens are cleared")
}

func TestSession_Logout(t *testing.T) {
	f := newSessionFixture(t)
	_, err := f.login(t)
	require.NoError(t, err)

	require.NoError(t, f.sess.Logout(context.Background()))
	assertLoggedOut(t, f)
	require.NoError(t, f.sess.Logout(context.Background()))
}

func TestSession_KeylessPolicyApplies(t *testing.T) {
	f := newSessionFixture(t, oidckit.WithKeylessPolicy(oidckit.KeylessSingleKey), oidckit.WithLeeway(time.Minute))
	_, err := f.login(t)
	require.NoError(t, err)
}

func TestNewSession_RequiresCollaborators(t *testing.T) {
	_, err := oidckit.NewSession(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func assertLoggedOut(t *testing.T, f *sessionFixture) {
	t.Helper()
	state, err := f.sess.State(context.Background())
	require.NoError(t, err)
	assert.False(t, state.Authenticated)
	assert.Empty(t, state.IDToken)
}
