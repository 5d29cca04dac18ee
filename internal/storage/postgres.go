package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 10
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 1
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Projects ---

// UpsertProject inserts or updates a project row by id
func (r *PostgresRepository) UpsertProject(ctx context.Context, p *models.RemoteProject) error {
	query := `
		INSERT INTO projects (id, user_id, name, template_id, overall_score, overall_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			template_id = EXCLUDED.template_id,
			overall_score = EXCLUDED.overall_score,
			overall_tier = EXCLUDED.overall_tier,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.Name,
		nullString(p.TemplateID),
		nullFloat(p.OverallScore),
		nullString(string(p.OverallTier)),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	return nil
}

// DeleteProject removes a project; its evaluations and metric rows cascade
func (r *PostgresRepository) DeleteProject(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

// ListProjects returns a user's projects, most recently updated first
func (r *PostgresRepository) ListProjects(ctx context.Context, userID string) ([]*models.RemoteProject, error) {
	query := `
		SELECT id, user_id, name, template_id, overall_score, overall_tier, created_at, updated_at
		FROM projects
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.RemoteProject

	for rows.Next() {
		var p models.RemoteProject
		var templateID, tier sql.NullString
		var score sql.NullFloat64

		err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.Name,
			&templateID,
			&score,
			&tier,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}

		p.TemplateID = templateID.String
		p.OverallTier = models.Tier(tier.String)
		if score.Valid {
			p.OverallScore = &score.Float64
		}

		projects = append(projects, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// --- Evaluations ---

// UpsertEvaluation inserts or updates an evaluation row by id
func (r *PostgresRepository) UpsertEvaluation(ctx context.Context, e *models.RemoteEvaluation) error {
	query := `
		INSERT INTO evaluations (id, project_id, user_id, template_id, evaluated_at, overall_score, overall_tier, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			template_id = EXCLUDED.template_id,
			evaluated_at = EXCLUDED.evaluated_at,
			overall_score = EXCLUDED.overall_score,
			overall_tier = EXCLUDED.overall_tier,
			notes = EXCLUDED.notes
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.ProjectID,
		e.UserID,
		nullString(e.TemplateID),
		e.Date,
		nullFloat(e.OverallScore),
		nullString(string(e.OverallTier)),
		nullString(e.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert evaluation: %w", err)
	}

	return nil
}

// GetEvaluation retrieves an evaluation by ID. Returns nil, nil when not found.
func (r *PostgresRepository) GetEvaluation(ctx context.Context, id string) (*models.RemoteEvaluation, error) {
	query := `
		SELECT e.id, e.project_id, p.name, e.user_id, e.template_id, e.evaluated_at, e.overall_score, e.overall_tier, e.notes
		FROM evaluations e
		JOIN projects p ON p.id = e.project_id
		WHERE e.id = $1
	`

	var e models.RemoteEvaluation
	var templateID, tier, notes sql.NullString
	var score sql.NullFloat64

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.ProjectID,
		&e.ProjectName,
		&e.UserID,
		&templateID,
		&e.Date,
		&score,
		&tier,
		&notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	e.TemplateID = templateID.String
	e.OverallTier = models.Tier(tier.String)
	e.Notes = notes.String
	if score.Valid {
		e.OverallScore = &score.Float64
	}

	return &e, nil
}

// DeleteEvaluation removes an evaluation; its metric rows cascade
func (r *PostgresRepository) DeleteEvaluation(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM evaluations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete evaluation: %w", err)
	}
	return nil
}

// --- Metric rows ---

// ReplaceMetricRows deletes every row of the evaluation and inserts the given
// set. A failure after the delete leaves the evaluation with no rows.
func (r *PostgresRepository) ReplaceMetricRows(ctx context.Context, evaluationID string, rows []models.MetricRow) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM evaluation_metrics WHERE evaluation_id = $1`, evaluationID); err != nil {
		return fmt.Errorf("failed to clear metric rows: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO evaluation_metrics (evaluation_id, metric_key, category_id, metric_id, value, tier, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query,
			evaluationID,
			row.MetricKey,
			row.CategoryID,
			row.MetricID,
			[]byte(row.Value),
			nullString(string(row.Tier)),
			nullString(row.Notes),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert metric row: %w", err)
		}
	}

	return nil
}

// GetMetricRows returns every metric row of an evaluation ordered by key
func (r *PostgresRepository) GetMetricRows(ctx context.Context, evaluationID string) ([]models.MetricRow, error) {
	query := `
		SELECT evaluation_id, metric_key, category_id, metric_id, value, tier, notes
		FROM evaluation_metrics
		WHERE evaluation_id = $1
		ORDER BY metric_key
	`

	rows, err := r.pool.Query(ctx, query, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get metric rows: %w", err)
	}
	defer rows.Close()

	var result []models.MetricRow

	for rows.Next() {
		var row models.MetricRow
		var tier, notes sql.NullString
		var value []byte

		if err := rows.Scan(
			&row.EvaluationID,
			&row.MetricKey,
			&row.CategoryID,
			&row.MetricID,
			&value,
			&tier,
			&notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}

		row.Value = value
		row.Tier = models.Tier(tier.String)
		row.Notes = notes.String
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metric rows: %w", err)
	}

	return result, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
