package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_more.sql": {Data: []byte("SELECT 2;")},
		"001_init.sql": {Data: []byte("SELECT 1;")},
		"README.md":    {Data: []byte("docs")},
		"nested/x.sql": {Data: []byte("SELECT 3;")},
	}

	got, err := listMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_more.sql"}, got)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{"projects", "evaluations", "evaluation_metrics"} {
		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres integration test")
	}

	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, PostgresConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, RunMigrations(ctx, repo.Pool()))
	return repo
}

func TestPostgresRepository_Roundtrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	userID := "user-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	score := 75.0

	p := &models.ProjectEvaluation{
		ID:           uuid.NewString(),
		Name:         "Acme",
		Date:         now,
		TemplateID:   "default-web3-framework",
		OverallScore: &score,
		OverallTier:  models.TierT0,
		Metrics: map[string]models.MetricEvaluation{
			"foundational_team-quality": {Value: "strong", Tier: models.TierT0},
			"foundational_tokenomics":   {Value: 3.5, Tier: models.TierT1, Notes: "vesting unclear"},
		},
	}
	project, eval, rows, err := models.RemoteRecords(p, userID, now)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertProject(ctx, project))
	require.NoError(t, repo.UpsertEvaluation(ctx, eval))
	require.NoError(t, repo.ReplaceMetricRows(ctx, eval.ID, rows))

	projects, err := repo.ListProjects(ctx, userID)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Acme", projects[0].Name)
	require.NotNil(t, projects[0].OverallScore)
	assert.InDelta(t, 75, *projects[0].OverallScore, 1e-9)
	assert.Equal(t, models.TierT0, projects[0].OverallTier)

	got, err := repo.GetMetricRows(ctx, eval.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "foundational_team-quality", got[0].MetricKey)
	var value string
	require.NoError(t, json.Unmarshal(got[0].Value, &value))
	assert.Equal(t, "strong", value)
	assert.Equal(t, "vesting unclear", got[1].Notes)

	// Replace-all drops rows missing from the new set.
	require.NoError(t, repo.ReplaceMetricRows(ctx, eval.ID, rows[:1]))
	got, err = repo.GetMetricRows(ctx, eval.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, repo.DeleteEvaluation(ctx, eval.ID))
	missing, err := repo.GetEvaluation(ctx, eval.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
	got, err = repo.GetMetricRows(ctx, eval.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.DeleteProject(ctx, project.ID))
	projects, err = repo.ListProjects(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, projects)
}
