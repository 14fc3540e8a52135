package memorystore

import (
	"bytes"
	"context"
	"sync"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// KV is a process-local oidckit.KeyValueStore. Values are copied in and out.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewKV() *KV {
	return &KV{data: make(map[string][]byte)}
}

func (k *KV) GetItem(_ context.Context, key string) ([]byte, bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (k *KV) SetItem(_ context.Context, key string, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = bytes.Clone(value)
	return nil
}

func (k *KV) RemoveItem(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.data, key)
	return nil
}

var _ oidckit.KeyValueStore = (*KV)(nil)
