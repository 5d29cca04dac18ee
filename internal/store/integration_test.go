package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseBackend runs the contract every backend must satisfy. The store is
// namespaced per run so shared servers are left as they were.
func exerciseBackend(t *testing.T, backend Backend) {
	t.Helper()
	ctx := context.Background()
	ns := "test_" + uuid.NewString()[:8] + "_"
	s := New(backend, WithNamespace(ns))
	t.Cleanup(func() { s.Clear(ctx) })

	require.True(t, s.Save(ctx, KeyEvaluations, []sample{{Name: "acme", Count: 1}}))
	require.True(t, s.Save(ctx, KeyThresholds, sample{Name: "t"}))

	got := Get(ctx, s, KeyEvaluations, []sample(nil))
	require.Len(t, got, 1)
	assert.Equal(t, "acme", got[0].Name)
	assert.True(t, s.Has(ctx, KeyThresholds))

	usage, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.Len(t, usage.Records, 2)

	require.True(t, s.Remove(ctx, KeyThresholds))
	assert.False(t, s.Has(ctx, KeyThresholds))

	require.True(t, s.Clear(ctx))
	assert.False(t, s.Has(ctx, KeyEvaluations))
	assert.NoError(t, s.Ping(ctx))
}

func TestPostgresBackend_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres record store test")
	}

	backend, err := NewPostgresBackend(context.Background(), dsn)
	require.NoError(t, err)
	defer backend.Close()

	exerciseBackend(t, backend)
}

func TestRedisBackend_Integration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping redis record store test")
	}

	backend, err := NewRedisBackend(context.Background(), RedisOptions{Address: addr, Prefix: "bdguide-test:"})
	require.NoError(t, err)
	defer backend.Close()

	exerciseBackend(t, backend)
}
