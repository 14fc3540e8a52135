package testing_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	jwtkit "github.com/PaulFidika/ocidkit/jwt"
	ocidtest "github.com/PaulFidika/ocidkit/testing"
)

func TestTestIssuer_KeySet(t *testing.T) {
	ti := ocidtest.NewTestIssuer()
	defer ti.Close()

	resp, err := http.Get(ti.KeySetURL())
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)

	keys, err := jwtkit.ParseJWKS(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, ocidtest.DefaultKID, keys[0].Kid)
	pub, err := keys[0].ECDSAPublicKey()
	require.NoError(t, err)
	assert.True(t, pub.Equal(ti.Signer().PublicKey()))
	assert.Equal(t, 1, ti.KeySetFetches())
}

func TestTestIssuer_TokenClaims(t *testing.T) {
	ti := ocidtest.NewTestIssuer()
	defer ti.Close()

	d, err := jwtkit.Decode(ti.CreateTokenWithClaims("u", map[string]any{"iat": nil, "custom": "x"}))
	require.NoError(t, err)
	assert.Equal(t, "ES256", d.Header.Alg)
	assert.Equal(t, "OpenCampus", d.Payload.String("iss"))
	assert.Equal(t, "x", d.Payload.String("custom"))
	_, hasIat := d.Payload["iat"]
	assert.False(t, hasIat)
}

func TestTestIssuer_TokenEndpointChecksPKCE(t *testing.T) {
	ti := ocidtest.NewTestIssuer()
	defer ti.Close()

	verifier := oauth2.GenerateVerifier()
	q := url.Values{}
	q.Set("redirect_uri", "https://app/cb")
	q.Set("state", "st")
	q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	q.Set("code_challenge_method", "S256")
	cb, err := ti.Authorize(ti.LoginURL() + "?" + q.Encode())
	require.NoError(t, err)
	u, _ := url.Parse(cb)
	code := u.Query().Get("code")
	assert.Equal(t, "st", u.Query().Get("state"))

	exchange := func(v string) (int, map[string]any) {
		body, _ := json.Marshal(map[string]string{"accessCode": code, "codeVerifier": v})
		resp, err := http.Post(ti.TokenURL(), "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	status, out := exchange(verifier)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, out["id_token"])

	status, out = exchange(verifier)
	assert.Equal(t, http.StatusBadRequest, status, "codes are single use")
	assert.Equal(t, "invalid_grant", out["error"])
}

func TestTestIssuer_AuthorizeRequiresChallenge(t *testing.T) {
	ti := ocidtest.NewTestIssuer()
	defer ti.Close()
	_, err := ti.Authorize(ti.LoginURL() + "?redirect_uri=https://app/cb")
	assert.Error(t, err)
}
