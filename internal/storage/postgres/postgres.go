// Package postgres stores storefront state in a single key-value table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/pkg/database"
)

const (
	getItemSQL    = `SELECT value FROM storefront_kv WHERE key = $1`
	setItemSQL    = `INSERT INTO storefront_kv (key, value, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	removeItemSQL = `DELETE FROM storefront_kv WHERE key = $1`
	purgeStaleSQL = `DELETE FROM storefront_kv WHERE updated_at < $1`
)

// Store implements storage.KV on PostgreSQL.
type Store struct {
	db database.DBTX
}

// New creates a postgres-backed store.
func New(db database.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) GetItem(ctx context.Context, key string) (value string, ok bool, err error) {
	ctx, end := database.TraceQuery(ctx, "GetItem", getItemSQL)
	defer func() { end(err) }()

	err = s.db.QueryRow(ctx, getItemSQL, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get item %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetItem(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceQuery(ctx, "SetItem", setItemSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, setItemSQL, key, value); err != nil {
		return fmt.Errorf("set item %s: %w", key, err)
	}
	return nil
}

func (s *Store) RemoveItem(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, "RemoveItem", removeItemSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, removeItemSQL, key); err != nil {
		return fmt.Errorf("remove item %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// PurgeStale deletes rows not written since before cutoff and returns how
// many were removed. Redis expires keys on its own; postgres needs this sweep.
func (s *Store) PurgeStale(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, end := database.TraceQuery(ctx, "PurgeStale", purgeStaleSQL)
	defer func() { end(err) }()

	tag, err := s.db.Exec(ctx, purgeStaleSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge stale items: %w", err)
	}
	return tag.RowsAffected(), nil
}
