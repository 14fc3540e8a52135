package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/ocidkit/core"
	oidckit "github.com/PaulFidika/ocidkit/oidc"
	ocidtest "github.com/PaulFidika/ocidkit/testing"
)

func issuerConfig(ti *ocidtest.TestIssuer) core.Config {
	return core.Config{
		ClientID:    "client-1",
		RedirectURI: "https://app.example/callback",
		Endpoints: oidckit.Endpoints{
			LoginURL:  ti.LoginURL(),
			TokenURL:  ti.TokenURL(),
			KeySetURL: ti.KeySetURL(),
		},
	}
}

type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAudit) LogLogin(_ context.Context, subject, ocid, issuer, method, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, subject+"|"+ocid+"|"+issuer+"|"+method)
	return errors.New("sink offline")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, core.Config{}.Validate())
	assert.Error(t, core.Config{Environment: "staging"}.Validate())
	assert.Error(t, core.Config{KeySetTTL: -time.Second}.Validate())
	assert.Error(t, core.Config{Leeway: -time.Second}.Validate())
	assert.Error(t, core.Config{Keyless: oidckit.KeylessPolicy(9)}.Validate())

	ep, err := core.Config{Environment: oidckit.EnvLive, Endpoints: oidckit.Endpoints{Audience: "my-app"}}.Resolved()
	require.NoError(t, err)
	assert.Equal(t, "https://static.opencampus.xyz/jwks/jwks-live.json", ep.KeySetURL)
	assert.Equal(t, "OpenCampus", ep.Issuer)
	assert.Equal(t, "my-app", ep.Audience)
}

func TestClient_VerifyOnly(t *testing.T) {
	ti := ocidtest.NewTestIssuer()
	defer ti.Close()
	cfg := issuerConfig(ti)
	cfg.RedirectURI = ""

	c, err := core.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Session()
	assert.ErrorIs(t, err, core.ErrLoginDisabled)

	ctx := context.Background()
	assert.True(t, c.VerifyToken(ctx, ti.CreateToken("user-1")))
	assert.False(t, c.VerifyToken(ctx, ti.CreateExpiredToken("user-1")))
	assert.Equal(t, 1, ti.KeySetFetches())
}

func TestClient_AudienceFollowsEnvironment(t *testing.T) {
	ti := ocidtest.NewTestIssuer()
	defer ti.Close()
	cfg := issuerConfig(ti)
	cfg.Environment = oidckit.EnvLive

	c, err := core.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	out := c.Verify(context.Background(), ti.CreateToken("user-1"))
	assert.False(t, out.Valid)
	assert.Contains(t, out.Reason, "audience")
}

func TestClient_Login(t *testing.T) {
	ti := ocidtest.NewTestIssuer()
	defer ti.Close()
	audit := &recordingAudit{}

	c, err := core.New(issuerConfig(ti), core.WithAuditLogger(audit))
	require.NoError(t, err)
	defer c.Close()

	sess, err := c.Session()
	require.NoError(t, err)
	ctx := context.Background()
	authURL, err := sess.BeginLogin(ctx, oidckit.LoginOptions{})
	require.NoError(t, err)
	cb, err := ti.Authorize(authURL)
	require.NoError(t, err)

	auth, err := sess.CompleteLogin(ctx, cb)
	require.NoError(t, err, "audit failures do not fail the login")
	assert.Equal(t, "user-123.edu", auth.OCID())
	assert.Equal(t, []string{"user-123|user-123.edu|OpenCampus|" + core.LoginMethodPKCE}, audit.events)

	state, err := sess.State(ctx)
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
}

func TestClient_Warmer(t *testing.T) {
	ti := ocidtest.NewTestIssuer()
	defer ti.Close()
	cfg := issuerConfig(ti)
	cfg.WarmSchedule = "@every 1h"

	c, err := core.New(cfg)
	require.NoError(t, err)
	c.Start(context.Background())
	defer c.Close()

	assert.Equal(t, 1, ti.KeySetFetches())
	assert.True(t, c.VerifyToken(context.Background(), ti.CreateToken("user-1")))
	assert.Equal(t, 1, ti.KeySetFetches())
}

func TestNew_InvalidSchedule(t *testing.T) {
	ti := ocidtest.NewTestIssuer()
	defer ti.Close()
	cfg := issuerConfig(ti)
	cfg.WarmSchedule = "whenever"
	_, err := core.New(cfg)
	assert.Error(t, err)
}

func TestLogrusAuditLogger(t *testing.T) {
	assert.NoError(t, core.LogrusAuditLogger{}.LogLogin(context.Background(), "s", "o", "i", "m", ""))
}
