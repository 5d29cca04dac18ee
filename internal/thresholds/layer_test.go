package thresholds

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/catalog"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/templates"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type flakyBackend struct {
	*store.MemoryBackend
	failing atomic.Bool
}

func (b *flakyBackend) Write(ctx context.Context, key string, data []byte) error {
	if b.failing.Load() {
		return errors.New("quota exceeded")
	}
	return b.MemoryBackend.Write(ctx, key, data)
}

type fixture struct {
	layer   *Layer
	repo    *templates.Repository
	backend *flakyBackend
	store   *store.RecordStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	loader, err := catalog.NewLoader()
	require.NoError(t, err)

	backend := &flakyBackend{MemoryBackend: store.NewMemoryBackend()}
	st := store.New(backend)
	clock := func() time.Time { return fixedNow }

	repo := templates.NewRepository(st, loader, templates.WithClock(clock))
	require.NoError(t, repo.Initialize(ctx))

	layer := New(st, loader, WithTemplateSource(repo), WithClock(clock))
	require.NoError(t, layer.Load(ctx))

	return &fixture{layer: layer, repo: repo, backend: backend, store: st}
}

func TestLoad_SynthesizesFromActiveTemplate(t *testing.T) {
	f := newFixture(t)

	list := f.layer.List()
	assert.Len(t, list, f.repo.Active().MetricCount())
	assert.False(t, f.layer.HasUnsavedChanges())

	first := list[0]
	assert.Equal(t, "foundational-team-quality", first.ID)
	assert.Equal(t, "team-quality", first.MetricID)
	assert.Equal(t, "foundational", first.CategoryID)
	assert.Equal(t, fixedNow, first.UpdatedAt)

	stored := store.Get[[]models.ThresholdConfig](context.Background(), f.store, store.KeyThresholds, nil)
	assert.Equal(t, list, stored)
}

func TestLoad_FollowsActiveTemplate(t *testing.T) {
	ctx := context.Background()
	loader, err := catalog.NewLoader()
	require.NoError(t, err)

	st := store.New(store.NewMemoryBackend())
	repo := templates.NewRepository(st, loader)
	require.NoError(t, repo.Initialize(ctx))
	require.NoError(t, repo.SetActive(ctx, "preloaded-defi-protocol"))

	layer := New(st, loader, WithTemplateSource(repo))
	require.NoError(t, layer.Load(ctx))

	list := layer.List()
	assert.Len(t, list, repo.Active().MetricCount())
	assert.Equal(t, "risk", list[0].CategoryID)
}

func TestLoad_WithoutTemplateSourceUsesCatalogDefault(t *testing.T) {
	loader, err := catalog.NewLoader()
	require.NoError(t, err)

	layer := New(store.New(store.NewMemoryBackend()), loader)
	require.NoError(t, layer.Load(context.Background()))
	assert.Len(t, layer.List(), loader.Default().MetricCount())
}

func TestLoad_KeepsStoredThresholds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.True(t, f.layer.Update("tvl", "financial", map[string]string{"T0": "Over $1B"}))
	require.NoError(t, f.layer.Save(ctx))

	again := New(f.store, nil, WithTemplateSource(f.repo))
	require.NoError(t, again.Load(ctx))
	assert.Equal(t, "Over $1B", again.Threshold("tvl", "financial", "T0"))
}

func TestUpdate_UnknownPairIsNoop(t *testing.T) {
	f := newFixture(t)
	before := f.layer.List()

	ok := f.layer.Update("ghost", "foundational", map[string]string{"T0": "x"})
	assert.False(t, ok)
	assert.False(t, f.layer.HasUnsavedChanges())
	assert.Equal(t, before, f.layer.List())
}

func TestUpdateThenReset(t *testing.T) {
	f := newFixture(t)
	snapshot := f.layer.List()

	require.True(t, f.layer.Update("team-quality", "foundational", map[string]string{"T0": "changed", "T1": "changed"}))
	assert.True(t, f.layer.HasUnsavedChanges())
	assert.NotEqual(t, snapshot, f.layer.List())

	f.layer.Reset()
	assert.Equal(t, snapshot, f.layer.List())
	assert.False(t, f.layer.HasUnsavedChanges())
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.True(t, f.layer.Update("team-quality", "foundational", map[string]string{"T0": "saved"}))
	require.NoError(t, f.layer.Save(ctx))
	assert.False(t, f.layer.HasUnsavedChanges())

	// Reset after save returns to the saved state, not the original baseline.
	require.True(t, f.layer.Update("team-quality", "foundational", map[string]string{"T0": "unsaved"}))
	f.layer.Reset()
	assert.Equal(t, "saved", f.layer.Threshold("team-quality", "foundational", "T0"))
}

func TestSave_FailureStaysDirty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.True(t, f.layer.Update("team-quality", "foundational", map[string]string{"T0": "pending"}))
	f.backend.failing.Store(true)

	assert.ErrorIs(t, f.layer.Save(ctx), ErrPersist)
	assert.True(t, f.layer.HasUnsavedChanges())
	assert.Equal(t, "pending", f.layer.Threshold("team-quality", "foundational", "T0"))
}

func TestApplyTemplateThresholds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.True(t, f.layer.Update("team-quality", "foundational", map[string]string{"T0": "custom"}))

	require.NoError(t, f.layer.ApplyTemplateThresholds(ctx, "preloaded-infrastructure"))
	assert.False(t, f.layer.HasUnsavedChanges())

	infra := f.repo.Get("preloaded-infrastructure")
	list := f.layer.List()
	assert.Len(t, list, infra.MetricCount())
	for _, c := range list {
		m := infra.Metric(c.CategoryID, c.MetricID)
		require.NotNil(t, m, c.ID)
		assert.Equal(t, m.Thresholds, c.Thresholds)
	}

	stored := store.Get[[]models.ThresholdConfig](ctx, f.store, store.KeyThresholds, nil)
	assert.Equal(t, list, stored)

	// Empty id applies the active template and drops customizations.
	require.NoError(t, f.layer.ApplyTemplateThresholds(ctx, ""))
	def := f.repo.Active().Metric("foundational", "team-quality")
	assert.Equal(t, def.Thresholds["T0"], f.layer.Threshold("team-quality", "foundational", "T0"))
}

func TestApplyTemplateThresholds_UnknownTemplate(t *testing.T) {
	f := newFixture(t)
	before := f.layer.List()

	err := f.layer.ApplyTemplateThresholds(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Equal(t, before, f.layer.List())
}

func TestThreshold_Fallbacks(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.layer.Update("tokenomics", "foundational", map[string]string{"T0": "", "T1": "override"}))
	assert.Equal(t, "override", f.layer.Threshold("tokenomics", "foundational", "T1"))

	active := f.repo.Active().Metric("foundational", "tokenomics")
	assert.Equal(t, active.Thresholds["T0"], f.layer.Threshold("tokenomics", "foundational", "T0"))

	assert.Equal(t, "", f.layer.Threshold("ghost", "foundational", "T0"))
	assert.Equal(t, "", f.layer.Threshold("tokenomics", "foundational", "T9"))
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	configs := []models.ThresholdConfig{{
		ID:         "x-y",
		MetricID:   "y",
		CategoryID: "x",
		Thresholds: map[string]string{"T0": "restored"},
		UpdatedAt:  fixedNow,
	}}
	require.NoError(t, f.layer.Replace(ctx, configs))
	assert.Equal(t, configs, f.layer.List())
	assert.Equal(t, "restored", f.layer.Threshold("y", "x", "T0"))
	assert.False(t, f.layer.HasUnsavedChanges())
}
