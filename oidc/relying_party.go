package oidckit

import (
	"errors"
	"slices"
	"strings"

	"golang.org/x/oauth2"
)

// RelyingParty holds the OAuth2 client configuration for the provider.
type RelyingParty struct {
	endpoints   Endpoints
	oauthConfig *oauth2.Config
}

// NewRelyingParty builds a relying party from resolved endpoints. The
// provider authenticates public clients by PKCE alone, so no secret is held.
func NewRelyingParty(endpoints Endpoints, clientID, redirectURI string, scopes []string) (*RelyingParty, error) {
	if err := endpoints.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(redirectURI) == "" {
		return nil, errors.New("oidc: redirect uri is empty")
	}
	return &RelyingParty{
		endpoints: endpoints,
		oauthConfig: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Scopes:      ensureOpenID(scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:  endpoints.LoginURL,
				TokenURL: endpoints.TokenURL,
			},
		},
	}, nil
}

// OAuthConfig returns the underlying OAuth2 configuration.
func (rp *RelyingParty) OAuthConfig() *oauth2.Config { return rp.oauthConfig }

// Endpoints returns the provider endpoints.
func (rp *RelyingParty) Endpoints() Endpoints { return rp.endpoints }

// RedirectURI returns the callback location registered with the provider.
func (rp *RelyingParty) RedirectURI() string { return rp.oauthConfig.RedirectURL }

// AuthURLOpt configures authorization URL parameters.
type AuthURLOpt = oauth2.AuthCodeOption

// WithURLParam adds an arbitrary URL parameter to the auth request.
func WithURLParam(key, value string) AuthURLOpt {
	return oauth2.SetAuthURLParam(key, value)
}

// WithOriginURL tells the provider where the login started.
func WithOriginURL(origin string) AuthURLOpt {
	return oauth2.SetAuthURLParam("origin_url", origin)
}

// AuthURL builds the authorization URL carrying the S256 challenge for verifier.
func AuthURL(state, verifier string, rp *RelyingParty, opts ...AuthURLOpt) string {
	all := append([]AuthURLOpt{oauth2.S256ChallengeOption(verifier)}, opts...)
	return rp.oauthConfig.AuthCodeURL(state, all...)
}

func ensureOpenID(scopes []string) []string {
	for _, s := range scopes {
		if s == "openid" {
			return scopes
		}
	}
	return append(slices.Clone(scopes), "openid")
}
