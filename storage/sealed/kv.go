// Package sealed encrypts values at rest before handing them to another
// oidckit.KeyValueStore.
package sealed

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrSealBroken reports a value that failed authentication on open.
var ErrSealBroken = errors.New("sealed: value failed authentication")

// KV wraps another store with XChaCha20-Poly1305. The storage key is bound
// as associated data so values cannot be swapped between keys.
type KV struct {
	inner oidckit.KeyValueStore
	aead  cipher.AEAD
}

// NewKV returns a sealing wrapper around inner using a 32-byte key.
func NewKV(inner oidckit.KeyValueStore, key []byte) (*KV, error) {
	if inner == nil {
		return nil, errors.New("sealed: inner store is nil")
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealed: key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &KV{inner: inner, aead: aead}, nil
}

func (k *KV) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok, err := k.inner.GetItem(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	ns := k.aead.NonceSize()
	if len(b) < ns+k.aead.Overhead() {
		return nil, false, ErrSealBroken
	}
	plain, err := k.aead.Open(nil, b[:ns], b[ns:], []byte(key))
	if err != nil {
		return nil, false, ErrSealBroken
	}
	return plain, true, nil
}

func (k *KV) SetItem(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, k.aead.NonceSize(), k.aead.NonceSize()+len(value)+k.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	return k.inner.SetItem(ctx, key, k.aead.Seal(nonce, nonce, value, []byte(key)))
}

func (k *KV) RemoveItem(ctx context.Context, key string) error {
	return k.inner.RemoveItem(ctx, key)
}

var _ oidckit.KeyValueStore = (*KV)(nil)
