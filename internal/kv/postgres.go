package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxConn is the subset of *pgxpool.Pool used by PostgresStore.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS kv_entries (
	namespace  TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`

const getSQL = `SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2`

const upsertSQL = `
INSERT INTO kv_entries (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// PostgresStore keeps every key as a row of kv_entries, scoped by namespace.
type PostgresStore struct {
	db        PgxConn
	namespace string
}

// NewPostgresStore creates a store on an existing pool. Call Migrate once
// before first use.
func NewPostgresStore(db PgxConn, namespace string) *PostgresStore {
	if namespace == "" {
		namespace = "kilamate"
	}
	return &PostgresStore{db: db, namespace: namespace}
}

// Migrate creates the kv_entries table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("creating kv_entries: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, getSQL, s.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from Postgres: %w", key, err)
	}
	return value, nil
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.Exec(ctx, upsertSQL, s.namespace, key, value); err != nil {
		return fmt.Errorf("failed to set %s in Postgres: %w", key, err)
	}
	return nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
