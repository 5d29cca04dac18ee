package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var _ Backend = (*SQLBackend)(nil)

// SQLBackend keeps records in a single key/value table of a database/sql database
type SQLBackend struct {
	db      *sql.DB
	queries sqlQueries
}

type sqlQueries struct {
	schema string
	read   string
	upsert string
	delete string
	keys   string
	clear  string
}

func newSQLBackend(ctx context.Context, db *sql.DB, q sqlQueries) (*SQLBackend, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, q.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return &SQLBackend{db: db, queries: q}, nil
}

// Read returns the value stored for key
func (b *SQLBackend) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, b.queries.read, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read record %s: %w", key, err)
	}
	return data, true, nil
}

// Write upserts the value for key
func (b *SQLBackend) Write(ctx context.Context, key string, data []byte) error {
	if _, err := b.db.ExecContext(ctx, b.queries.upsert, key, data); err != nil {
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, b.queries.delete, key); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key
func (b *SQLBackend) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, b.queries.keys)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan record key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Clear deletes all rows
func (b *SQLBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, b.queries.clear); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database handle
func (b *SQLBackend) Close() error {
	return b.db.Close()
}
