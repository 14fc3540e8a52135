package oidckit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	jwtkit "github.com/PaulFidika/ocidkit/jwt"
)

// KeySetSource supplies the key set published at a URL.
type KeySetSource interface {
	Fetch(ctx context.Context, url string) ([]jwtkit.JWK, error)
}

// Verifier validates ID tokens: decode, algorithm gate, key resolution,
// ES256 signature and claims, in that order. It keeps no state of its own.
type Verifier struct {
	keys KeySetSource
	now  func() time.Time
	log  logrus.FieldLogger
}

// VerifierOpt configures a Verifier.
type VerifierOpt func(*Verifier)

// WithClock replaces time.Now for claim validation.
func WithClock(now func() time.Time) VerifierOpt {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(l logrus.FieldLogger) VerifierOpt {
	return func(v *Verifier) {
		if l != nil {
			v.log = l
		}
	}
}

// NewVerifier builds a verifier backed by the given key-set source, usually a
// *jwtkit.KeySetCache.
func NewVerifier(keys KeySetSource, opts ...VerifierOpt) *Verifier {
	v := &Verifier{
		keys: keys,
		now:  time.Now,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyToken reports whether the token passes every gate.
func (v *Verifier) VerifyToken(ctx context.Context, token, keySetURL string, opts VerifyOptions) bool {
	return v.Verify(ctx, token, keySetURL, opts).Valid
}

// Verify runs the full verification protocol. It never panics and never
// returns a partially valid outcome; callers wanting a retry call it again.
func (v *Verifier) Verify(ctx context.Context, token, keySetURL string, opts VerifyOptions) (out Outcome) {
	stage := StageStart
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Stage: stage, Reason: fmt.Sprintf("internal error: %v", r)}
		}
		if !out.Valid && v != nil && v.log != nil {
			v.log.WithFields(logrus.Fields{
				"stage":  out.Stage.String(),
				"reason": out.Reason,
			}).Debug("id_token rejected")
		}
	}()

	reject := func(format string, args ...any) Outcome {
		return Outcome{Stage: stage, Reason: fmt.Sprintf(format, args...)}
	}

	if v == nil || v.keys == nil {
		return reject("verifier has no key-set source")
	}
	if err := opts.validate(); err != nil {
		return reject("invalid options: %v", err)
	}

	decoded, err := jwtkit.Decode(token)
	if err != nil {
		return reject("%v", err)
	}
	stage = StageDecoded

	if decoded.Header.Alg != jwtkit.AlgES256 {
		return reject("unsupported algorithm %q", decoded.Header.Alg)
	}
	stage = StageAlgorithmChecked

	keys, err := v.keys.Fetch(ctx, keySetURL)
	if err != nil {
		return reject("key set unavailable: %v", err)
	}
	stage = StageKeySetResolved

	jwk, err := resolveKey(keys, decoded.Header.Kid, opts.Keyless)
	if err != nil {
		return reject("%v", err)
	}
	pub, err := jwk.ECDSAPublicKey()
	if err != nil {
		return reject("%v", err)
	}
	stage = StageKeyResolved

	if !jwtkit.VerifyES256(decoded.SigningInput, decoded.Signature, pub) {
		return reject("signature invalid")
	}
	stage = StageSignatureVerified

	res := jwtkit.ValidateClaims(decoded.Payload, jwtkit.ClaimsOptions{
		ExpectedIssuer:   opts.ExpectedIssuer,
		ExpectedAudience: opts.ExpectedAudience,
		Now:              v.now(),
		Leeway:           opts.Leeway,
	})
	if !res.Valid {
		return reject("claims invalid: %s", strings.Join(res.Errors, "; "))
	}
	return Outcome{
		Valid:   true,
		Stage:   StageValid,
		Header:  decoded.Header,
		Payload: decoded.Payload,
	}
}

// VerifyIDToken is the function form of Verifier.Verify, returning an error for
// rejected tokens.
func VerifyIDToken(ctx context.Context, rawToken, keySetURL string, v *Verifier, opts VerifyOptions) (jwtkit.Claims, error) {
	if v == nil {
		return nil, errors.New("oidc: missing verifier")
	}
	out := v.Verify(ctx, rawToken, keySetURL, opts)
	if !out.Valid {
		return nil, &VerificationError{Outcome: out}
	}
	return out.Payload, nil
}

func resolveKey(keys []jwtkit.JWK, kid string, policy KeylessPolicy) (jwtkit.JWK, error) {
	if kid != "" {
		k, ok := jwtkit.LookupKey(keys, kid)
		if !ok {
			return jwtkit.JWK{}, fmt.Errorf("%w: no key with kid %q", jwtkit.ErrKeyNotFound, kid)
		}
		return k, nil
	}
	if policy == KeylessSingleKey && len(keys) == 1 {
		return keys[0], nil
	}
	return jwtkit.JWK{}, fmt.Errorf("%w: token has no kid and key set holds %d keys", jwtkit.ErrKeyNotFound, len(keys))
}
