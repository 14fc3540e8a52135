// Package testing provides utilities for testing applications that use ocidkit.
// It provides a mock provider that serves a key set, plays the login page and
// token endpoint, and signs ES256 ID tokens, enabling integration tests without
// a real identity provider.
//
// Example usage:
//
//	issuer := testing.NewTestIssuer()
//	defer issuer.Close()
//
//	cfg.LoginURL = issuer.LoginURL()
//	cfg.TokenURL = issuer.TokenURL()
//	cfg.KeySetURL = issuer.KeySetURL()
//
//	token := issuer.CreateToken("user-123")
package testing

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/oauth2"

	jwtkit "github.com/PaulFidika/ocidkit/jwt"
)

const (
	DefaultIssuer   = "OpenCampus"
	DefaultAudience = "sandbox"
	DefaultKID      = "test-key-1"
)

// TestIssuer is an httptest server acting as the identity provider:
//
//	GET  /jwks.json   key set
//	GET  /login       login page; redirects to redirect_uri with code and state
//	POST /auth/token  {accessCode, codeVerifier} -> {access_token, id_token}
type TestIssuer struct {
	server   *httptest.Server
	signer   *jwtkit.ECSigner
	issuer   string
	audience string

	mu          sync.Mutex
	published   []*jwtkit.ECSigner
	codes       map[string]pendingCode
	extraClaims map[string]any
	jwksStatus  int

	jwksHits atomic.Int64
}

type pendingCode struct {
	challenge string
	issuedAt  time.Time
}

// NewTestIssuer creates a provider with issuer "OpenCampus" and audience "sandbox".
func NewTestIssuer() *TestIssuer {
	return NewTestIssuerWithAudience(DefaultAudience)
}

// NewTestIssuerWithAudience creates a provider that mints tokens for audience.
func NewTestIssuerWithAudience(audience string) *TestIssuer {
	signer, err := jwtkit.NewECSigner(DefaultKID)
	if err != nil {
		panic("failed to create EC signer: " + err.Error())
	}

	ti := &TestIssuer{
		signer:    signer,
		issuer:    DefaultIssuer,
		audience:  audience,
		published: []*jwtkit.ECSigner{signer},
		codes:     make(map[string]pendingCode),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /jwks.json", ti.handleJWKS)
	mux.HandleFunc("GET /login", ti.handleLogin)
	mux.HandleFunc("POST /auth/token", ti.handleToken)

	ti.server = httptest.NewServer(mux)
	return ti
}

// URL returns the base URL of the test server.
func (ti *TestIssuer) URL() string { return ti.server.URL }

func (ti *TestIssuer) KeySetURL() string { return ti.server.URL + "/jwks.json" }
func (ti *TestIssuer) LoginURL() string  { return ti.server.URL + "/login" }
func (ti *TestIssuer) TokenURL() string  { return ti.server.URL + "/auth/token" }
func (ti *TestIssuer) Issuer() string    { return ti.issuer }
func (ti *TestIssuer) Audience() string  { return ti.audience }

// Signer returns the signer whose key is published as DefaultKID.
func (ti *TestIssuer) Signer() *jwtkit.ECSigner { return ti.signer }

// Close shuts down the test server.
func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

// KeySetFetches returns how many times the key set was served.
func (ti *TestIssuer) KeySetFetches() int { return int(ti.jwksHits.Load()) }

// PublishKey adds another signer's public key to the key set.
func (ti *TestIssuer) PublishKey(s *jwtkit.ECSigner) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.published = append(ti.published, s)
}

// FailKeySet makes the key-set endpoint answer with status; zero restores it.
func (ti *TestIssuer) FailKeySet(status int) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.jwksStatus = status
}

// SetTokenClaims merges claims into every ID token the token endpoint issues.
func (ti *TestIssuer) SetTokenClaims(claims map[string]any) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.extraClaims = claims
}

// handleJWKS serves the key set, built with jwx so the SDK is exercised
// against an independent JWK encoder.
func (ti *TestIssuer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	ti.jwksHits.Add(1)
	ti.mu.Lock()
	status := ti.jwksStatus
	signers := append([]*jwtkit.ECSigner(nil), ti.published...)
	ti.mu.Unlock()
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	set := jwk.NewSet()
	for _, s := range signers {
		key, err := jwk.FromRaw(s.PublicKey())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = key.Set(jwk.KeyIDKey, s.KID())
		_ = key.Set(jwk.AlgorithmKey, jwa.ES256)
		_ = key.Set(jwk.KeyUsageKey, "sig")
		if err := set.AddKey(key); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	jwtkit.ServeJWKS(w, r, set)
}

// Authorize plays the login page for authURL and returns the callback URL the
// provider would redirect to.
func (ti *TestIssuer) Authorize(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	return ti.authorize(u.Query())
}

func (ti *TestIssuer) authorize(q url.Values) (string, error) {
	redirect := q.Get("redirect_uri")
	if redirect == "" {
		return "", errors.New("missing redirect_uri")
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		return "", errors.New("missing S256 code challenge")
	}
	code, err := randomString()
	if err != nil {
		return "", err
	}
	ti.mu.Lock()
	ti.codes[code] = pendingCode{challenge: q.Get("code_challenge"), issuedAt: time.Now()}
	ti.mu.Unlock()

	cb, err := url.Parse(redirect)
	if err != nil {
		return "", err
	}
	cq := cb.Query()
	cq.Set("code", code)
	cq.Set("state", q.Get("state"))
	cb.RawQuery = cq.Encode()
	return cb.String(), nil
}

func (ti *TestIssuer) handleLogin(w http.ResponseWriter, r *http.Request) {
	cb, err := ti.authorize(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, cb, http.StatusFound)
}

func (ti *TestIssuer) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessCode   string `json:"accessCode"`
		CodeVerifier string `json:"codeVerifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTokenError(w, "invalid_request", "body is not JSON")
		return
	}
	ti.mu.Lock()
	pc, ok := ti.codes[req.AccessCode]
	delete(ti.codes, req.AccessCode)
	extra := ti.extraClaims
	ti.mu.Unlock()
	if !ok {
		writeTokenError(w, "invalid_grant", "unknown code")
		return
	}
	if oauth2.S256ChallengeFromVerifier(req.CodeVerifier) != pc.challenge {
		writeTokenError(w, "invalid_grant", "code verifier mismatch")
		return
	}

	idToken := ti.CreateTokenWithClaims("user-123", extra)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "access-" + req.AccessCode,
		"id_token":     idToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func writeTokenError(w http.ResponseWriter, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": desc})
}

// DefaultClaims returns the claims CreateToken uses for subject.
func (ti *TestIssuer) DefaultClaims(subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":          subject,
		"user_id":      subject,
		"edu_username": subject + ".edu",
		"eth_address":  "0x0000000000000000000000000000000000000001",
		"iss":          ti.issuer,
		"aud":          ti.audience,
		"exp":          now.Add(time.Hour).Unix(),
		"iat":          now.Unix(),
	}
}

// CreateToken creates a signed ID token for subject that validates against
// the served key set.
func (ti *TestIssuer) CreateToken(subject string) string {
	return ti.CreateTokenWithClaims(subject, nil)
}

// CreateTokenWithClaims merges extra over the default claims; a nil value
// removes the claim.
func (ti *TestIssuer) CreateTokenWithClaims(subject string, extra map[string]any) string {
	return ti.SignWith(ti.signer, ti.mergeClaims(subject, extra))
}

// CreateTokenWithExpiry creates a token expiring at expiry.
func (ti *TestIssuer) CreateTokenWithExpiry(subject string, expiry time.Time) string {
	return ti.CreateTokenWithClaims(subject, map[string]any{"exp": expiry.Unix()})
}

// CreateExpiredToken creates a token that expired an hour ago.
func (ti *TestIssuer) CreateExpiredToken(subject string) string {
	return ti.CreateTokenWithExpiry(subject, time.Now().Add(-time.Hour))
}

// SignWith signs claims with any signer, published or not.
func (ti *TestIssuer) SignWith(s *jwtkit.ECSigner, claims jwt.MapClaims) string {
	token, err := s.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

func (ti *TestIssuer) mergeClaims(subject string, extra map[string]any) jwt.MapClaims {
	claims := ti.DefaultClaims(subject)
	for k, v := range extra {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}

func randomString() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
