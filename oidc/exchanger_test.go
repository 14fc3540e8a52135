package oidckit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

func tokenServer(t *testing.T, status int, resp any) (*httptest.Server, *map[string]string) {
	t.Helper()
	got := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestTokenEndpointExchanger_Success(t *testing.T) {
	srv, got := tokenServer(t, http.StatusOK, map[string]any{
		"access_token": "at",
		"id_token":     "a.b.c",
		"token_type":   "Bearer",
		"expires_in":   60,
	})
	x := &oidckit.TokenEndpointExchanger{URL: srv.URL}

	tok, err := x.Exchange(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, int64(60), tok.ExpiresIn)
	assert.False(t, tok.Expiry.IsZero())
	id, ok := oidckit.IDTokenFrom(tok)
	assert.True(t, ok)
	assert.Equal(t, "a.b.c", id)
	assert.Equal(t, map[string]string{"accessCode": "code-1", "codeVerifier": "verifier-1"}, *got)
}

func TestTokenEndpointExchanger_ProviderError(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusBadRequest, map[string]string{
		"error":             "invalid_grant",
		"error_description": "code expired",
	})
	x := &oidckit.TokenEndpointExchanger{URL: srv.URL}

	_, err := x.Exchange(context.Background(), "code-1", "verifier-1")
	var xerr *oidckit.ExchangeError
	require.True(t, errors.As(err, &xerr), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, xerr.Status)
	assert.Equal(t, "invalid_grant", xerr.Code)
	assert.Equal(t, "code expired", xerr.Message)
}

func TestTokenEndpointExchanger_ServerErrorWithoutJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := (&oidckit.TokenEndpointExchanger{URL: srv.URL}).Exchange(context.Background(), "c", "v")
	var xerr *oidckit.ExchangeError
	require.True(t, errors.As(err, &xerr), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, xerr.Status)
}

func TestTokenEndpointExchanger_MissingIDToken(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusOK, map[string]any{"access_token": "at"})
	_, err := (&oidckit.TokenEndpointExchanger{URL: srv.URL}).Exchange(context.Background(), "c", "v")
	assert.ErrorContains(t, err, "id_token")
}

func TestTokenEndpointExchanger_Validation(t *testing.T) {
	_, err := (&oidckit.TokenEndpointExchanger{}).Exchange(context.Background(), "c", "v")
	assert.Error(t, err)
	_, err = (&oidckit.TokenEndpointExchanger{URL: "http://127.0.0.1:1"}).Exchange(context.Background(), "", "v")
	assert.Error(t, err)
}

type countingTransport struct {
	n    int
	next http.RoundTripper
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.n++
	return c.next.RoundTrip(r)
}

func TestTokenEndpointExchanger_ClientFromContext(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusOK, map[string]any{"access_token": "at", "id_token": "a.b.c"})
	rt := &countingTransport{next: http.DefaultTransport}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: rt})

	_, err := (&oidckit.TokenEndpointExchanger{URL: srv.URL}).Exchange(ctx, "c", "v")
	require.NoError(t, err)
	assert.Equal(t, 1, rt.n)
}

func TestIDTokenFrom(t *testing.T) {
	_, ok := oidckit.IDTokenFrom(nil)
	assert.False(t, ok)
	_, ok = oidckit.IDTokenFrom(&oauth2.Token{AccessToken: "x"})
	assert.False(t, ok)
}
