package jwtkit

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Signer produces signed compact tokens. The SDK only verifies tokens; signers
// back test fixtures and local tooling.
type Signer interface {
	// Algorithm returns the JWS algorithm.
	Algorithm() string
	// KID returns current key id.
	KID() string
	// Sign creates a signed JWT with provided claims.
	Sign(ctx context.Context, claims jwt.MapClaims) (token string, err error)
}

// ECSigner signs ES256 tokens with an in-memory P-256 key.
type ECSigner struct {
	key *ecdsa.PrivateKey
	kid string
}

func NewECSigner(kid string) (*ECSigner, error) {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &ECSigner{key: k, kid: kid}, nil
}

func (s *ECSigner) Algorithm() string             { return jwt.SigningMethodES256.Alg() }
func (s *ECSigner) KID() string                   { return s.kid }
func (s *ECSigner) PublicKey() *ecdsa.PublicKey   { return &s.key.PublicKey }
func (s *ECSigner) PrivateKey() *ecdsa.PrivateKey { return s.key }

// Sign sets the kid header unless the signer has none.
func (s *ECSigner) Sign(_ context.Context, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	if s.kid != "" {
		token.Header["kid"] = s.kid
	}
	return token.SignedString(s.key)
}

// JWK returns the public half as a key-set entry.
func (s *ECSigner) JWK() (JWK, error) {
	return ECPublicToJWK(&s.key.PublicKey, s.kid)
}

// NewECSignerFromPEM constructs an ECSigner from a PKCS#8 or SEC 1 PEM key.
func NewECSignerFromPEM(kid string, pemBytes []byte) (*ECSigner, error) {
	if len(pemBytes) == 0 {
		return nil, errors.New("empty EC private key pem")
	}
	blk, _ := pem.Decode(pemBytes)
	if blk == nil {
		return nil, errors.New("failed to decode EC private key pem")
	}
	var parsed *ecdsa.PrivateKey
	var err error
	switch blk.Type {
	case "EC PRIVATE KEY":
		parsed, err = x509.ParseECPrivateKey(blk.Bytes)
	default:
		var key any
		key, err = x509.ParsePKCS8PrivateKey(blk.Bytes)
		if err == nil {
			var ok bool
			if parsed, ok = key.(*ecdsa.PrivateKey); !ok {
				err = errors.New("pkcs8 key is not ECDSA private key")
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if parsed.Curve != elliptic.P256() {
		return nil, errors.New("EC private key is not P-256")
	}
	return &ECSigner{key: parsed, kid: kid}, nil
}
