package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// NewPostgresBackend keeps records in a "records" table of a PostgreSQL database
func NewPostgresBackend(ctx context.Context, dsn string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return newSQLBackend(ctx, db, sqlQueries{
		schema: `
CREATE TABLE IF NOT EXISTS records (
	key VARCHAR(255) PRIMARY KEY,
	value BYTEA NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`,
		read: `SELECT value FROM records WHERE key = $1`,
		upsert: `INSERT INTO records (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		delete: `DELETE FROM records WHERE key = $1`,
		keys:   `SELECT key FROM records ORDER BY key`,
		clear:  `DELETE FROM records`,
	})
}
