package jwtkit

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"
)

// ClaimsOptions configures claim validation. Empty expectations are not checked.
type ClaimsOptions struct {
	ExpectedIssuer   string
	ExpectedAudience string
	// Now defaults to time.Now().
	Now time.Time
	// Leeway tolerates clock skew on exp, nbf and iat. Zero by default.
	Leeway time.Duration
}

// ClaimsResult lists every violated rule. Valid is true only when Errors is empty.
type ClaimsResult struct {
	Valid  bool
	Errors []string
}

// ValidateClaims checks temporal and identity claims. Rules are evaluated
// independently so the result carries every violation.
func ValidateClaims(payload Claims, opts ClaimsOptions) ClaimsResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	nowSec := now.Unix()
	leeway := int64(opts.Leeway / time.Second)

	var errs []string

	if raw, ok := payload["exp"]; !ok {
		errs = append(errs, "exp claim missing")
	} else if exp, ok := numericDate(raw); !ok {
		errs = append(errs, "exp claim is not a number")
	} else if exp+float64(leeway) < float64(nowSec) {
		errs = append(errs, fmt.Sprintf("token expired at %s", formatUnix(exp)))
	}

	if raw, ok := payload["nbf"]; ok {
		if nbf, ok := numericDate(raw); !ok {
			errs = append(errs, "nbf claim is not a number")
		} else if nbf-float64(leeway) > float64(nowSec) {
			errs = append(errs, fmt.Sprintf("token not valid before %s", formatUnix(nbf)))
		}
	}

	if raw, ok := payload["iat"]; ok {
		if iat, ok := numericDate(raw); !ok {
			errs = append(errs, "iat claim is not a number")
		} else if iat-float64(leeway) > float64(nowSec) {
			errs = append(errs, fmt.Sprintf("token issued in the future at %s", formatUnix(iat)))
		}
	}

	if opts.ExpectedIssuer != "" {
		iss, _ := payload["iss"].(string)
		if iss != opts.ExpectedIssuer {
			errs = append(errs, fmt.Sprintf("issuer mismatch: expected %q, got %q", opts.ExpectedIssuer, iss))
		}
	}

	if opts.ExpectedAudience != "" {
		auds, ok := Audiences(payload)
		switch {
		case !ok:
			errs = append(errs, "audience claim missing or malformed")
		case !slices.Contains(auds, opts.ExpectedAudience):
			errs = append(errs, fmt.Sprintf("audience mismatch: expected %q, got %q", opts.ExpectedAudience, auds))
		}
	}

	return ClaimsResult{Valid: len(errs) == 0, Errors: errs}
}

// Audiences returns the aud claim as a list; a scalar is a one-element list.
func Audiences(payload Claims) ([]string, bool) {
	switch v := payload["aud"].(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, a := range v {
			s, ok := a.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// NumericDate reads a Unix-seconds claim.
func (c Claims) NumericDate(name string) (time.Time, bool) {
	f, ok := numericDate(c[name])
	if !ok {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// String reads a string claim.
func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}

func numericDate(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case int64:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func formatUnix(f float64) string {
	return time.Unix(int64(f), 0).UTC().Format(time.RFC3339)
}
