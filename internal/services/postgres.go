package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresChecker checks the remote persistence pool and reports its stats
type PostgresChecker struct {
	BaseChecker
	pool *pgxpool.Pool
}

// NewPostgresChecker creates a checker for a pgx pool
func NewPostgresChecker(pool *pgxpool.Pool) *PostgresChecker {
	return &PostgresChecker{
		BaseChecker: BaseChecker{checkType: "postgres"},
		pool:        pool,
	}
}

// HealthCheck verifies PostgreSQL connectivity with a trivial query
func (c *PostgresChecker) HealthCheck(ctx context.Context) error {
	var one int
	if err := c.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to query postgres: %w", err)
	}
	return nil
}

// Details returns connection pool statistics
func (c *PostgresChecker) Details() map[string]any {
	stat := c.pool.Stat()
	return map[string]any{
		"total_conns":    stat.TotalConns(),
		"idle_conns":     stat.IdleConns(),
		"acquired_conns": stat.AcquiredConns(),
		"max_conns":      stat.MaxConns(),
	}
}
