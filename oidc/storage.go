package oidckit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultStorageKey is the key the token set is persisted under.
const DefaultStorageKey = "ocid-auth"

// KeyValueStore is the narrow persistence contract the SDK depends on.
type KeyValueStore interface {
	GetItem(ctx context.Context, key string) ([]byte, bool, error)
	SetItem(ctx context.Context, key string, value []byte) error
	RemoveItem(ctx context.Context, key string) error
}

// TokenSet is the persisted login result.
type TokenSet struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	// Expired is the ID token's exp in Unix seconds.
	Expired int64  `json:"expired"`
	State   string `json:"state,omitempty"`
}

type sessionIDKey struct{}

// WithSessionID scopes login state and token storage to one browser session.
// Without it the session acts for a single local user.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFrom returns the id set by WithSessionID, or "".
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// TokenStorage keeps a TokenSet as one JSON object under a single key, or
// under key + ":" + session id when the context carries one.
type TokenStorage struct {
	kv  KeyValueStore
	key string
}

// NewTokenStorage wraps kv. An empty key means DefaultStorageKey.
func NewTokenStorage(kv KeyValueStore, key string) *TokenStorage {
	if key == "" {
		key = DefaultStorageKey
	}
	return &TokenStorage{kv: kv, key: key}
}

// Load returns the stored set, or false when nothing is stored.
func (s *TokenStorage) Load(ctx context.Context) (TokenSet, bool, error) {
	if s == nil || s.kv == nil {
		return TokenSet{}, false, errors.New("oidc: token storage not configured")
	}
	b, ok, err := s.kv.GetItem(ctx, s.keyFor(ctx))
	if err != nil || !ok {
		return TokenSet{}, false, err
	}
	var ts TokenSet
	if err := json.Unmarshal(b, &ts); err != nil {
		return TokenSet{}, false, fmt.Errorf("oidc: stored token set is corrupt: %w", err)
	}
	return ts, true, nil
}

// Save replaces the stored set.
func (s *TokenStorage) Save(ctx context.Context, ts TokenSet) error {
	if s == nil || s.kv == nil {
		return errors.New("oidc: token storage not configured")
	}
	b, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return s.kv.SetItem(ctx, s.keyFor(ctx), b)
}

// Clear removes the stored set.
func (s *TokenStorage) Clear(ctx context.Context) error {
	if s == nil || s.kv == nil {
		return errors.New("oidc: token storage not configured")
	}
	return s.kv.RemoveItem(ctx, s.keyFor(ctx))
}

func (s *TokenStorage) keyFor(ctx context.Context) string {
	if id := SessionIDFrom(ctx); id != "" {
		return s.key + ":" + id
	}
	return s.key
}
