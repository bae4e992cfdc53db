package results

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"contentjobs/internal/apperrors"
)

// createResultsTable is applied at startup so a fresh database works without
// a separate migration step.
const createResultsTable = `
CREATE TABLE IF NOT EXISTS generation_results (
	session_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertResult = `
INSERT INTO generation_results (session_id, user_id, result)
VALUES ($1, $2, $3)
ON CONFLICT (session_id) DO NOTHING`

// PostgresStore persists final results to Postgres for multi-instance
// deployments and crash recovery.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at connString and ensures the
// results table exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if _, err := pool.Exec(ctx, createResultsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure results table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Persist writes the final result row. The ON CONFLICT clause makes a
// duplicate write (e.g. after a retried shutdown) harmless.
func (p *PostgresStore) Persist(ctx context.Context, sessionID, userID string, result json.RawMessage) error {
	if _, err := p.pool.Exec(ctx, insertResult, sessionID, userID, []byte(result)); err != nil {
		return apperrors.Internal("postgres.persist", err)
	}
	return nil
}

// Ready reports whether the database is reachable.
func (p *PostgresStore) Ready(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// Verify PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)
