package core

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	jwtkit "github.com/PaulFidika/ocidkit/jwt"
	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// Config describes one OCID client. Zero values take the environment's
// published defaults.
type Config struct {
	Environment oidckit.Environment
	ClientID    string
	// RedirectURI is required for interactive logins. Without it the client
	// only verifies tokens.
	RedirectURI string
	Scopes      []string

	// Endpoints overrides individual provider locations and expected claims.
	Endpoints oidckit.Endpoints

	KeySetTTL    time.Duration
	FetchTimeout time.Duration
	Keyless      oidckit.KeylessPolicy
	Leeway       time.Duration

	StorageKey string
	// WarmSchedule is a cron spec for background key-set refreshes. Empty
	// disables the warmer.
	WarmSchedule string

	HTTPClient *http.Client
}

// Resolved returns the endpoints after applying environment defaults.
func (c Config) Resolved() (oidckit.Endpoints, error) {
	env := c.Environment
	if env == "" {
		env = oidckit.EnvSandbox
	}
	base, ok := oidckit.DefaultsFor(env)
	if !ok {
		return oidckit.Endpoints{}, fmt.Errorf("core: unknown environment %q", env)
	}
	ep := c.Endpoints.Merge(base)
	if err := ep.Validate(); err != nil {
		return oidckit.Endpoints{}, err
	}
	return ep, nil
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if _, err := c.Resolved(); err != nil {
		return err
	}
	var errs []error
	if c.KeySetTTL < 0 {
		errs = append(errs, errors.New("core: negative key set ttl"))
	}
	if c.FetchTimeout < 0 {
		errs = append(errs, errors.New("core: negative fetch timeout"))
	}
	if c.Leeway < 0 {
		errs = append(errs, errors.New("core: negative leeway"))
	}
	switch c.Keyless {
	case oidckit.KeylessReject, oidckit.KeylessSingleKey:
	default:
		errs = append(errs, fmt.Errorf("core: unknown keyless policy %d", int(c.Keyless)))
	}
	return errors.Join(errs...)
}

func (c Config) keySetTTL() time.Duration {
	if c.KeySetTTL == 0 {
		return jwtkit.DefaultKeySetTTL
	}
	return c.KeySetTTL
}

func (c Config) fetchTimeout() time.Duration {
	if c.FetchTimeout == 0 {
		return jwtkit.DefaultFetchTimeout
	}
	return c.FetchTimeout
}
