package jwtkit

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound reports that no key in the set matched the token.
var ErrKeyNotFound = errors.New("jwt: key not found")

// FetchError reports that a key set could not be retrieved: transport
// failure, timeout, or a non-2xx status.
type FetchError struct {
	URL    string
	Status int // zero when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("jwt: fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("jwt: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FormatError reports a structurally invalid key set or key.
type FormatError struct {
	Source string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("jwt: invalid %s: %v", e.Source, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// MalformedTokenError reports a token that does not decode as a compact JWS.
type MalformedTokenError struct {
	Reason string
	Err    error
}

func (e *MalformedTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jwt: malformed token: %s: %v", e.Reason, e.Err)
	}
	return "jwt: malformed token: " + e.Reason
}

func (e *MalformedTokenError) Unwrap() error { return e.Err }
