package core

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	jwtkit "github.com/PaulFidika/ocidkit/jwt"
	oidckit "github.com/PaulFidika/ocidkit/oidc"
	memorystore "github.com/PaulFidika/ocidkit/storage/memory"
)

// ErrLoginDisabled is returned by Session when the client has no redirect URI.
var ErrLoginDisabled = errors.New("core: login requires a redirect uri")

// Client bundles the key-set cache, verifier, login session and warmer for
// one provider environment.
type Client struct {
	cfg       Config
	endpoints oidckit.Endpoints
	keys      *jwtkit.KeySetCache
	verifier  *oidckit.Verifier
	session   *oidckit.Session
	warmer    *oidckit.KeySetWarmer
	log       logrus.FieldLogger

	ownedStates *memorystore.StateCache
}

type options struct {
	states    oidckit.StateCache
	kv        oidckit.KeyValueStore
	exchanger oidckit.Exchanger
	audit     AuthEventLogger
	now       func() time.Time
	log       logrus.FieldLogger
}

// Option configures New.
type Option func(*options)

// WithStateCache stores pending logins in c instead of memory.
func WithStateCache(c oidckit.StateCache) Option { return func(o *options) { o.states = c } }

// WithKeyValueStore persists tokens in kv instead of memory.
func WithKeyValueStore(kv oidckit.KeyValueStore) Option { return func(o *options) { o.kv = kv } }

// WithExchanger replaces the token-endpoint exchanger.
func WithExchanger(x oidckit.Exchanger) Option { return func(o *options) { o.exchanger = x } }

// WithAuditLogger reports every completed login to a.
func WithAuditLogger(a AuthEventLogger) Option { return func(o *options) { o.audit = a } }

// WithClock replaces time.Now everywhere, for tests.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLogger sets the logger shared by all components.
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

// New validates cfg and wires the client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ep, _ := cfg.Resolved()

	o := options{now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	log := o.log.WithField("env", string(envOrDefault(cfg.Environment)))

	cacheOpts := []jwtkit.CacheOpt{
		jwtkit.WithTTL(cfg.keySetTTL()),
		jwtkit.WithFetchTimeout(cfg.fetchTimeout()),
		jwtkit.WithClock(o.now),
		jwtkit.WithCacheLogger(log),
	}
	if cfg.HTTPClient != nil {
		cacheOpts = append(cacheOpts, jwtkit.WithHTTPClient(cfg.HTTPClient))
	}
	keys := jwtkit.NewKeySetCache(cacheOpts...)
	verifier := oidckit.NewVerifier(keys, oidckit.WithClock(o.now), oidckit.WithVerifierLogger(log))

	c := &Client{
		cfg:       cfg,
		endpoints: ep,
		keys:      keys,
		verifier:  verifier,
		log:       log,
	}

	if cfg.RedirectURI != "" {
		if err := c.initSession(o); err != nil {
			return nil, err
		}
	}

	if cfg.WarmSchedule != "" {
		w, err := oidckit.NewKeySetWarmer(keys, cfg.WarmSchedule, []string{ep.KeySetURL}, log)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.warmer = w
	}
	return c, nil
}

func (c *Client) initSession(o options) error {
	rp, err := oidckit.NewRelyingParty(c.endpoints, c.cfg.ClientID, c.cfg.RedirectURI, c.cfg.Scopes)
	if err != nil {
		return err
	}
	states := o.states
	if states == nil {
		c.ownedStates = memorystore.NewStateCache(0).WithClock(o.now)
		states = c.ownedStates
	}
	kv := o.kv
	if kv == nil {
		kv = memorystore.NewKV()
	}
	exchanger := o.exchanger
	if exchanger == nil {
		exchanger = &oidckit.TokenEndpointExchanger{
			URL:     c.endpoints.TokenURL,
			Client:  c.cfg.HTTPClient,
			Timeout: c.cfg.fetchTimeout(),
		}
	}
	sessOpts := []oidckit.SessionOpt{
		oidckit.WithKeylessPolicy(c.cfg.Keyless),
		oidckit.WithLeeway(c.cfg.Leeway),
		oidckit.WithSessionClock(o.now),
		oidckit.WithSessionLogger(c.log),
	}
	if o.audit != nil {
		sessOpts = append(sessOpts, oidckit.WithLoginHook(auditHook(o.audit, c.log)))
	}
	sess, err := oidckit.NewSession(rp, c.verifier, exchanger, states, oidckit.NewTokenStorage(kv, c.cfg.StorageKey), sessOpts...)
	if err != nil {
		c.Close()
		return err
	}
	c.session = sess
	return nil
}

// Endpoints returns the resolved provider endpoints.
func (c *Client) Endpoints() oidckit.Endpoints { return c.endpoints }

// Keys returns the key-set cache.
func (c *Client) Keys() *jwtkit.KeySetCache { return c.keys }

// Verifier returns the token verifier.
func (c *Client) Verifier() *oidckit.Verifier { return c.verifier }

// Session returns the login session, or ErrLoginDisabled when no redirect URI
// was configured.
func (c *Client) Session() (*oidckit.Session, error) {
	if c.session == nil {
		return nil, ErrLoginDisabled
	}
	return c.session, nil
}

// VerifyOptions returns the verification expectations derived from the config.
func (c *Client) VerifyOptions() oidckit.VerifyOptions {
	return oidckit.VerifyOptions{
		ExpectedIssuer:   c.endpoints.Issuer,
		ExpectedAudience: c.endpoints.Audience,
		Keyless:          c.cfg.Keyless,
		Leeway:           c.cfg.Leeway,
	}
}

// Verify checks token against the environment's key set and expected claims.
func (c *Client) Verify(ctx context.Context, token string) oidckit.Outcome {
	return c.verifier.Verify(ctx, token, c.endpoints.KeySetURL, c.VerifyOptions())
}

// VerifyToken reports whether token is a valid ID token for this client.
func (c *Client) VerifyToken(ctx context.Context, token string) bool {
	return c.Verify(ctx, token).Valid
}

// Start warms the key set and begins scheduled refreshes when configured.
func (c *Client) Start(ctx context.Context) {
	if c.warmer != nil {
		c.warmer.Start(ctx)
	}
}

// Close stops background work.
func (c *Client) Close() {
	if c.warmer != nil {
		c.warmer.Stop()
	}
	if c.ownedStates != nil {
		_ = c.ownedStates.Close()
	}
}

func envOrDefault(env oidckit.Environment) oidckit.Environment {
	if env == "" {
		return oidckit.EnvSandbox
	}
	return env
}
