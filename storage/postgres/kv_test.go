package postgresstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// Set OCID_TEST_DATABASE_URL to run these against a scratch database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("OCID_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("OCID_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations are re-runnable")
	return pool
}

func TestKV(t *testing.T) {
	pool := testPool(t)
	kv := NewKV(pool)
	ctx := context.Background()
	key := "test-" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { _ = kv.RemoveItem(ctx, key) })

	_, ok, err := kv.GetItem(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.SetItem(ctx, key, []byte("one")))
	require.NoError(t, kv.SetItem(ctx, key, []byte("two")))
	v, ok, err := kv.GetItem(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("two"), v)

	require.NoError(t, kv.RemoveItem(ctx, key))
	_, ok, err = kv.GetItem(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateCache(t *testing.T) {
	pool := testPool(t)
	c := NewStateCache(pool, time.Minute)
	ctx := context.Background()
	state := "state-" + time.Now().Format(time.RFC3339Nano)

	in := oidckit.StateData{Verifier: "v", RedirectURI: "https://app/cb", OriginURL: "https://app/x"}
	require.NoError(t, c.Put(ctx, state, in))
	out, ok, err := c.Get(ctx, state)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.Verifier, out.Verifier)
	assert.Equal(t, in.OriginURL, out.OriginURL)

	require.NoError(t, c.Del(ctx, state))
	_, ok, err = c.Get(ctx, state)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateCache_Take(t *testing.T) {
	pool := testPool(t)
	c := NewStateCache(pool, time.Minute)
	ctx := context.Background()
	state := "take-" + time.Now().Format(time.RFC3339Nano)

	require.NoError(t, c.Put(ctx, state, oidckit.StateData{Verifier: "v", SessionID: "sid"}))
	out, ok, err := c.Take(ctx, state)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sid", out.SessionID)

	_, ok, err = c.Take(ctx, state)
	require.NoError(t, err)
	assert.False(t, ok)
}
