package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// StateCache keeps pending logins in Redis with a key TTL.
type StateCache struct {
	rdb   redis.UniversalClient
	keyNS string
	ttl   time.Duration
}

func NewStateCache(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration) *StateCache {
	if keyPrefix == "" {
		keyPrefix = "ocid:login:state:"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StateCache{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (s *StateCache) key(state string) string { return s.keyNS + state }

func (s *StateCache) Put(ctx context.Context, state string, data oidckit.StateData) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(state), b, s.ttl).Err()
}

func (s *StateCache) Get(ctx context.Context, state string) (oidckit.StateData, bool, error) {
	return s.decode(s.rdb.Get(ctx, s.key(state)))
}

// Take uses GETDEL so only one caller ever sees the entry.
func (s *StateCache) Take(ctx context.Context, state string) (oidckit.StateData, bool, error) {
	return s.decode(s.rdb.GetDel(ctx, s.key(state)))
}

func (s *StateCache) decode(cmd *redis.StringCmd) (oidckit.StateData, bool, error) {
	val, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return oidckit.StateData{}, false, nil
	}
	if err != nil {
		return oidckit.StateData{}, false, err
	}
	var d oidckit.StateData
	if err := json.Unmarshal(val, &d); err != nil {
		return oidckit.StateData{}, false, err
	}
	return d, true, nil
}

func (s *StateCache) Del(ctx context.Context, state string) error {
	return s.rdb.Del(ctx, s.key(state)).Err()
}

var _ oidckit.StateCache = (*StateCache)(nil)
