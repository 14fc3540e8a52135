package postgresstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	migrations "github.com/PaulFidika/ocidkit/migrations/postgres"
	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// Migrate applies the embedded schema. Every script is idempotent.
func Migrate(ctx context.Context, pg *pgxpool.Pool) error {
	scripts, err := migrations.UpScripts()
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if _, err := pg.Exec(ctx, s.SQL); err != nil {
			return fmt.Errorf("migration %s: %w", s.Name, err)
		}
	}
	return nil
}

// KV stores items in ocid.kv_items.
type KV struct {
	pg *pgxpool.Pool
}

func NewKV(pg *pgxpool.Pool) *KV {
	return &KV{pg: pg}
}

func (k *KV) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := k.pg.QueryRow(ctx, `SELECT value FROM ocid.kv_items WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (k *KV) SetItem(ctx context.Context, key string, value []byte) error {
	_, err := k.pg.Exec(ctx, `
		INSERT INTO ocid.kv_items (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	return err
}

func (k *KV) RemoveItem(ctx context.Context, key string) error {
	_, err := k.pg.Exec(ctx, `DELETE FROM ocid.kv_items WHERE key=$1`, key)
	return err
}

// StateCache keeps pending logins in ocid.login_states.
type StateCache struct {
	pg  *pgxpool.Pool
	ttl time.Duration
}

func NewStateCache(pg *pgxpool.Pool, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StateCache{pg: pg, ttl: ttl}
}

func (s *StateCache) Put(ctx context.Context, state string, v oidckit.StateData) error {
	_, err := s.pg.Exec(ctx, `
		INSERT INTO ocid.login_states (state, data, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (state) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
		state, v, time.Now().Add(s.ttl))
	return err
}

func (s *StateCache) Get(ctx context.Context, state string) (oidckit.StateData, bool, error) {
	var d oidckit.StateData
	err := s.pg.QueryRow(ctx,
		`SELECT data FROM ocid.login_states WHERE state=$1 AND expires_at > NOW()`, state).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return oidckit.StateData{}, false, nil
	}
	if err != nil {
		return oidckit.StateData{}, false, err
	}
	return d, true, nil
}

func (s *StateCache) Take(ctx context.Context, state string) (oidckit.StateData, bool, error) {
	var (
		d    oidckit.StateData
		live bool
	)
	err := s.pg.QueryRow(ctx,
		`DELETE FROM ocid.login_states WHERE state=$1 RETURNING data, expires_at > NOW()`, state).Scan(&d, &live)
	if errors.Is(err, pgx.ErrNoRows) {
		return oidckit.StateData{}, false, nil
	}
	if err != nil {
		return oidckit.StateData{}, false, err
	}
	if !live {
		return oidckit.StateData{}, false, nil
	}
	return d, true, nil
}

func (s *StateCache) Del(ctx context.Context, state string) error {
	_, err := s.pg.Exec(ctx, `DELETE FROM ocid.login_states WHERE state=$1 OR expires_at <= NOW()`, state)
	return err
}

var (
	_ oidckit.KeyValueStore = (*KV)(nil)
	_ oidckit.StateCache    = (*StateCache)(nil)
)
