package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// KV is an oidckit.KeyValueStore backed by Redis strings.
type KV struct {
	rdb   redis.UniversalClient
	keyNS string
	ttl   time.Duration
}

// NewKV stores items under keyPrefix. A zero ttl keeps items until removed.
func NewKV(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration) *KV {
	if keyPrefix == "" {
		keyPrefix = "ocid:kv:"
	}
	return &KV{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (k *KV) key(key string) string { return k.keyNS + key }

func (k *KV) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := k.rdb.Get(ctx, k.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (k *KV) SetItem(ctx context.Context, key string, value []byte) error {
	return k.rdb.Set(ctx, k.key(key), value, k.ttl).Err()
}

func (k *KV) RemoveItem(ctx context.Context, key string) error {
	return k.rdb.Del(ctx, k.key(key)).Err()
}

var _ oidckit.KeyValueStore = (*KV)(nil)
