package jwtkit

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	KeyTypeEC = "EC"
	CurveP256 = "P-256"

	coordinateSize = 32
)

// JWK holds the fields of an elliptic-curve public key in coordinate form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"` // base64url
	Y   string `json:"y,omitempty"` // base64url
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// ECDSAPublicKey converts the JWK into a P-256 public key. Only kty "EC" with
// crv "P-256" is accepted and the point must lie on the curve.
func (k JWK) ECDSAPublicKey() (*ecdsa.PublicKey, error) {
	src := "jwk " + k.Kid
	if k.Kty != KeyTypeEC {
		return nil, &FormatError{Source: src, Err: fmt.Errorf("unsupported key type %q", k.Kty)}
	}
	if k.Crv != CurveP256 {
		return nil, &FormatError{Source: src, Err: fmt.Errorf("unsupported curve %q", k.Crv)}
	}
	if k.X == "" || k.Y == "" {
		return nil, &FormatError{Source: src, Err: errors.New("missing coordinate")}
	}
	b, err := json.Marshal(k)
	if err != nil {
		return nil, &FormatError{Source: src, Err: err}
	}
	key, err := jwk.ParseKey(b)
	if err != nil {
		return nil, &FormatError{Source: src, Err: err}
	}
	ek, ok := key.(jwk.ECDSAPublicKey)
	if !ok {
		return nil, &FormatError{Source: src, Err: errors.New("not an EC public key")}
	}
	if len(ek.X()) > coordinateSize || len(ek.Y()) > coordinateSize {
		return nil, &FormatError{Source: src, Err: errors.New("coordinate longer than 32 bytes")}
	}
	var pub ecdsa.PublicKey
	if err := ek.Raw(&pub); err != nil {
		return nil, &FormatError{Source: src, Err: err}
	}
	if pub.Curve != elliptic.P256() {
		return nil, &FormatError{Source: src, Err: errors.New("key is not on P-256")}
	}
	if _, err := pub.ECDH(); err != nil {
		return nil, &FormatError{Source: src, Err: fmt.Errorf("invalid point: %w", err)}
	}
	return &pub, nil
}

// ECPublicToJWK converts a P-256 public key to a JWK.
func ECPublicToJWK(pub *ecdsa.PublicKey, kid string) (JWK, error) {
	if pub == nil || pub.Curve != elliptic.P256() {
		return JWK{}, errors.New("jwt: public key is not P-256")
	}
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return JWK{}, err
	}
	if kid != "" {
		if err := key.Set(jwk.KeyIDKey, kid); err != nil {
			return JWK{}, err
		}
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return JWK{}, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return JWK{}, err
	}
	b, err := json.Marshal(key)
	if err != nil {
		return JWK{}, err
	}
	var out JWK
	if err := json.Unmarshal(b, &out); err != nil {
		return JWK{}, err
	}
	return out, nil
}

// ParseJWKS parses a key-set document. The body must be a JSON object holding
// an array named "keys"; individual entries are validated when used.
func ParseJWKS(body []byte) ([]JWK, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &FormatError{Source: "key set", Err: fmt.Errorf("not a JSON object: %w", err)}
	}
	raw, ok := doc["keys"]
	if !ok {
		return nil, &FormatError{Source: "key set", Err: errors.New(`missing "keys"`)}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &FormatError{Source: "key set", Err: errors.New(`"keys" is not an array`)}
	}
	var keys []JWK
	if err := json.Unmarshal(trimmed, &keys); err != nil {
		return nil, &FormatError{Source: "key set", Err: err}
	}
	return keys, nil
}

// LookupKey returns the first key whose kid matches. Key sets are small.
func LookupKey(keys []JWK, kid string) (JWK, bool) {
	for _, k := range keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}

// ServeJWKS writes a key-set document to the ResponseWriter.
func ServeJWKS(w http.ResponseWriter, r *http.Request, ks any) {
	// Marshal first to compute a stable ETag and set cache headers
	b, err := json.Marshal(ks)
	if err != nil {
		http.Error(w, "jwks unavailable", http.StatusInternalServerError)
		return
	}
	sum := sha256.Sum256(b)
	etag := "\"" + hex.EncodeToString(sum[:]) + "\""

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	w.Header().Set("ETag", etag)
	_, _ = w.Write(b)
}
