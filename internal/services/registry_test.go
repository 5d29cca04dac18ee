package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type detailed struct {
	*PingChecker
}

func (detailed) Details() map[string]any {
	return map[string]any{"records": 4}
}

func TestRegistry_Check(t *testing.T) {
	r := NewRegistry()
	r.Register("store", detailed{NewPingChecker("record-store", pingFunc(func(context.Context) error { return nil }))})
	r.Register("remote", NewPingChecker("postgres", pingFunc(func(context.Context) error { return errors.New("connection refused") })))

	assert.Equal(t, []string{"remote", "store"}, r.List())

	statuses := r.Check(context.Background())
	require.Len(t, statuses, 2)

	assert.Equal(t, "remote", statuses[0].Name)
	assert.False(t, statuses[0].Healthy)
	assert.Equal(t, "connection refused", statuses[0].Error)
	assert.Equal(t, "postgres", statuses[0].Type)

	assert.True(t, statuses[1].Healthy)
	assert.Equal(t, 4, statuses[1].Details["records"])
	assert.False(t, Healthy(statuses))

	results := r.HealthCheckAll(context.Background())
	assert.NoError(t, results["store"])
	assert.EqualError(t, results["remote"], "remote: connection refused")

	r.Unregister("remote")
	assert.Nil(t, r.Get("remote"))
	assert.True(t, Healthy(r.Check(context.Background())))
}

func TestRegistry_Timeout(t *testing.T) {
	r := NewRegistry()
	r.SetTimeout(20 * time.Millisecond)
	r.Register("slow", NewPingChecker("redis", pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	statuses := r.Check(context.Background())
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Healthy)
	assert.Contains(t, statuses[0].Error, "deadline exceeded")
}

func TestRegistry_Empty(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Check(context.Background()))
	assert.True(t, Healthy(nil))
}
