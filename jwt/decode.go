package jwtkit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// Header is the protected header of a compact token.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// Claims is the decoded token payload. Numbers are kept as json.Number.
type Claims map[string]any

// DecodedToken is an untrusted view of a compact token.
type DecodedToken struct {
	Header    Header
	Payload   Claims
	Signature []byte
	// SigningInput is the first two encoded segments joined by ".", exactly as
	// they appeared in the token.
	SigningInput string
}

var segments = jwt.NewParser()

// Decode splits a compact token and decodes its parts without verifying it.
func Decode(token string) (*DecodedToken, error) {
	if n := strings.Count(token, "."); n != 2 {
		return nil, &MalformedTokenError{Reason: fmt.Sprintf("expected 3 segments, found %d", n+1)}
	}
	hdr, body, sigSeg, err := jws.SplitCompactString(token)
	if err != nil {
		return nil, &MalformedTokenError{Reason: "split", Err: err}
	}
	for i, p := range [][]byte{hdr, body, sigSeg} {
		if len(p) == 0 {
			return nil, &MalformedTokenError{Reason: fmt.Sprintf("segment %d is empty", i)}
		}
	}

	var header Header
	if err := decodeSegment(hdr, &header); err != nil {
		return nil, &MalformedTokenError{Reason: "header", Err: err}
	}
	var payload Claims
	if err := decodeSegment(body, &payload); err != nil {
		return nil, &MalformedTokenError{Reason: "payload", Err: err}
	}
	if payload == nil {
		return nil, &MalformedTokenError{Reason: "payload is not a JSON object"}
	}
	sig, err := segments.DecodeSegment(string(sigSeg))
	if err != nil {
		return nil, &MalformedTokenError{Reason: "signature", Err: err}
	}

	return &DecodedToken{
		Header:       header,
		Payload:      payload,
		Signature:    sig,
		SigningInput: string(hdr) + "." + string(body),
	}, nil
}

// decodeSegment requires exactly one JSON object per segment.
func decodeSegment(seg []byte, v any) error {
	b, err := segments.DecodeSegment(string(seg))
	if err != nil {
		return fmt.Errorf("invalid base64url: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return errors.New("not a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON object")
	}
	return nil
}
