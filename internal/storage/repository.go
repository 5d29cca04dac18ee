package storage

import (
	"context"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

// Repository defines the remote persistence boundary for evaluations
type Repository interface {
	// Projects
	UpsertProject(ctx context.Context, p *models.RemoteProject) error
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, userID string) ([]*models.RemoteProject, error)

	// Evaluations
	UpsertEvaluation(ctx context.Context, e *models.RemoteEvaluation) error
	GetEvaluation(ctx context.Context, id string) (*models.RemoteEvaluation, error)
	DeleteEvaluation(ctx context.Context, id string) error

	// Metric rows. ReplaceMetricRows deletes then inserts and is not atomic
	// across the two steps.
	ReplaceMetricRows(ctx context.Context, evaluationID string, rows []models.MetricRow) error
	GetMetricRows(ctx context.Context, evaluationID string) ([]models.MetricRow, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
