package oidckit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const maxTokenResponseBytes = 1 << 20

// Exchanger trades an authorization code and PKCE verifier for tokens. The
// returned token carries the raw ID token in Extra("id_token").
type Exchanger interface {
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
}

// ExchangeError reports a token endpoint failure.
type ExchangeError struct {
	Status  int
	Code    string
	Message string
}

func (e *ExchangeError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("oidc: token exchange failed (%d): %s", e.Status, msg)
}

// TokenEndpointExchanger POSTs {accessCode, codeVerifier} as JSON to the
// provider's token endpoint. The HTTP client comes from Client, then from
// ctx under oauth2.HTTPClient, then http.DefaultClient.
type TokenEndpointExchanger struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

type exchangeRequest struct {
	AccessCode   string `json:"accessCode"`
	CodeVerifier string `json:"codeVerifier"`
}

type exchangeResponse struct {
	AccessToken      string `json:"access_token"`
	IDToken          string `json:"id_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	Message          string `json:"message,omitempty"`
}

// Exchange implements Exchanger.
func (x *TokenEndpointExchanger) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	if x == nil || x.URL == "" {
		return nil, errors.New("oidc: token endpoint not configured")
	}
	if code == "" || verifier == "" {
		return nil, errors.New("oidc: code and verifier are required")
	}
	if x.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(exchangeRequest{AccessCode: code, CodeVerifier: verifier})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := x.client(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc: token exchange request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("oidc: read token response: %w", err)
	}
	var tr exchangeResponse
	decodeErr := json.Unmarshal(raw, &tr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || tr.Error != "" {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = tr.Message
		}
		return nil, &ExchangeError{Status: resp.StatusCode, Code: tr.Error, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("oidc: decode token response: %w", decodeErr)
	}
	if tr.IDToken == "" {
		return nil, errors.New("oidc: no id_token in response")
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
	}
	if tr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok.WithExtra(map[string]any{"id_token": tr.IDToken}), nil
}

func (x *TokenEndpointExchanger) client(ctx context.Context) *http.Client {
	if x.Client != nil {
		return x.Client
	}
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && c != nil {
		return c
	}
	return http.DefaultClient
}

// IDTokenFrom extracts the raw ID token from an exchanged token.
func IDTokenFrom(tok *oauth2.Token) (string, bool) {
	if tok == nil {
		return "", false
	}
	raw, ok := tok.Extra("id_token").(string)
	return raw, ok && raw != ""
}
