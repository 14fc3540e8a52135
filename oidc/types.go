package oidckit

import (
	"errors"
	"fmt"
	"time"

	jwtkit "github.com/PaulFidika/ocidkit/jwt"
)

// Stage names the last verification gate a token passed.
type Stage int

const (
	StageStart Stage = iota
	StageDecoded
	StageAlgorithmChecked
	StageKeySetResolved
	StageKeyResolved
	StageSignatureVerified
	StageClaimsValidated
	StageValid
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageDecoded:
		return "decoded"
	case StageAlgorithmChecked:
		return "algorithm_checked"
	case StageKeySetResolved:
		return "key_set_resolved"
	case StageKeyResolved:
		return "key_resolved"
	case StageSignatureVerified:
		return "signature_verified"
	case StageClaimsValidated:
		return "claims_validated"
	case StageValid:
		return "valid"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// KeylessPolicy decides how a token without a kid header selects its key.
type KeylessPolicy int

const (
	// KeylessReject refuses tokens that carry no kid.
	KeylessReject KeylessPolicy = iota
	// KeylessSingleKey uses the only key when the set holds exactly one.
	KeylessSingleKey
)

// VerifyOptions carries the caller's expectations for one verification.
type VerifyOptions struct {
	// ExpectedIssuer must equal the iss claim when set.
	ExpectedIssuer string
	// ExpectedAudience must appear in the aud claim when set.
	ExpectedAudience string
	Keyless          KeylessPolicy
	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration
}

func (o VerifyOptions) validate() error {
	switch o.Keyless {
	case KeylessReject, KeylessSingleKey:
	default:
		return fmt.Errorf("unknown keyless policy %d", int(o.Keyless))
	}
	if o.Leeway < 0 {
		return errors.New("negative leeway")
	}
	return nil
}

// Outcome is the all-or-nothing result of a verification. Header and Payload
// are set only when Valid is true; Reason only when it is false.
type Outcome struct {
	Valid   bool          `json:"valid"`
	Stage   Stage         `json:"-"`
	Header  jwtkit.Header `json:"header,omitzero"`
	Payload jwtkit.Claims `json:"payload,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// VerificationError is returned by the session when an ID token fails verification.
type VerificationError struct {
	Outcome Outcome
}

func (e *VerificationError) Error() string {
	return "oidc: id_token rejected: " + e.Outcome.Reason
}

// AuthState is the verified login state handed to presentation code.
type AuthState struct {
	Authenticated bool          `json:"authenticated"`
	AccessToken   string        `json:"access_token,omitempty"`
	IDToken       string        `json:"id_token,omitempty"`
	Claims        jwtkit.Claims `json:"claims,omitempty"`
	ExpiresAt     time.Time     `json:"expires_at,omitzero"`
}

// OCID returns the edu_username claim.
func (s *AuthState) OCID() string { return s.Claims.String("edu_username") }

// EthAddress returns the eth_address claim.
func (s *AuthState) EthAddress() string { return s.Claims.String("eth_address") }

// Subject returns the sub claim.
func (s *AuthState) Subject() string { return s.Claims.String("sub") }

// AuthView is the token-free part of an AuthState, safe to send to a browser.
type AuthView struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"sub,omitempty"`
	OCID          string `json:"ocid,omitempty"`
	EthAddress    string `json:"eth_address,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
}

// View drops the raw tokens and claims.
func (s *AuthState) View() AuthView {
	if s == nil || !s.Authenticated {
		return AuthView{}
	}
	return AuthView{
		Authenticated: true,
		Subject:       s.Subject(),
		OCID:          s.OCID(),
		EthAddress:    s.EthAddress(),
		ExpiresAt:     s.ExpiresAt.Unix(),
	}
}
