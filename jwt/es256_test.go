package jwtkit

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, s *ECSigner) *DecodedToken {
	t.Helper()
	tok, err := s.Sign(context.Background(), jwt.MapClaims{"sub": "u1"})
	if err != nil {
		t.Fatal(err)
	}
	d, err := Decode(tok)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestVerifyES256(t *testing.T) {
	s, _ := NewECSigner("k")
	d := signedToken(t, s)
	if !VerifyES256(d.SigningInput, d.Signature, s.PublicKey()) {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifyES256_AnyBitFlipFails(t *testing.T) {
	s, _ := NewECSigner("k")
	d := signedToken(t, s)
	for i := range d.Signature {
		for _, bit := range []byte{0x01, 0x80} {
			sig := append([]byte(nil), d.Signature...)
			sig[i] ^= bit
			if VerifyES256(d.SigningInput, sig, s.PublicKey()) {
				t.Fatalf("flipped byte %d bit %#x accepted", i, bit)
			}
		}
	}
	if VerifyES256(d.SigningInput+"x", d.Signature, s.PublicKey()) {
		t.Fatal("modified signing input accepted")
	}
}

func TestVerifyES256_WrongKey(t *testing.T) {
	s1, _ := NewECSigner("k1")
	s2, _ := NewECSigner("k2")
	d := signedToken(t, s1)
	if VerifyES256(d.SigningInput, d.Signature, s2.PublicKey()) {
		t.Fatal("signature accepted with a different key")
	}
}

func TestVerifyES256_FailsClosed(t *testing.T) {
	s, _ := NewECSigner("k")
	d := signedToken(t, s)
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		sig  []byte
		pub  *ecdsa.PublicKey
	}{
		{"nil key", d.Signature, nil},
		{"wrong curve", d.Signature, &p384.PublicKey},
		{"empty key", d.Signature, &ecdsa.PublicKey{Curve: elliptic.P256()}},
		{"short signature", d.Signature[:63], s.PublicKey()},
		{"long signature", append(append([]byte(nil), d.Signature...), 0), s.PublicKey()},
		{"der signature", make([]byte, 72), s.PublicKey()},
		{"zero signature", make([]byte, 64), s.PublicKey()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifyES256(d.SigningInput, tc.sig, tc.pub) {
				t.Fatal("accepted")
			}
		})
	}
}
