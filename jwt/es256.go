package jwtkit

import (
	"crypto/ecdsa"
	"crypto/elliptic"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AlgES256 is the only signature algorithm accepted.
const AlgES256 = "ES256"

// SignatureSize is the length of a raw ES256 signature (r || s).
const SignatureSize = 2 * coordinateSize

// VerifyES256 checks a raw r||s signature over signingInput with a P-256 key.
// It fails closed: any malformed input or internal fault reports false.
func VerifyES256(signingInput string, sig []byte, pub *ecdsa.PublicKey) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	// golang-jwt accepts any curve for ES256; pin P-256 here.
	if pub == nil || pub.Curve != elliptic.P256() || pub.X == nil || pub.Y == nil {
		return false
	}
	if len(sig) != SignatureSize {
		return false
	}
	return jwt.SigningMethodES256.Verify(signingInput, sig, pub) == nil
}
