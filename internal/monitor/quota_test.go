package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
)

type staticUsage struct {
	usage *store.Usage
	err   error
}

func (s *staticUsage) Usage(context.Context) (*store.Usage, error) {
	return s.usage, s.err
}

func TestQuotaMonitor_WarnsOnCrossing(t *testing.T) {
	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()

	src := &staticUsage{usage: &store.Usage{TotalBytes: 50, QuotaBytes: 100}}
	m := NewQuotaMonitor(src, bus, time.Minute, 0.8)

	m.Check(context.Background())
	assert.Empty(t, ch)

	src.usage = &store.Usage{TotalBytes: 85, QuotaBytes: 100}
	m.Check(context.Background())
	m.Check(context.Background())
	require.Len(t, ch, 1, "warn once while above the ratio")
	ev := <-ch
	assert.Equal(t, events.StoreQuotaWarning, ev.Type)

	src.usage = &store.Usage{TotalBytes: 10, QuotaBytes: 100}
	m.Check(context.Background())
	src.usage = &store.Usage{TotalBytes: 90, QuotaBytes: 100}
	m.Check(context.Background())
	assert.Len(t, ch, 1, "warns again after dropping below")
	assert.Equal(t, int64(90), m.Last().TotalBytes)
}

func TestQuotaMonitor_NoQuota(t *testing.T) {
	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	defer unsubscribe()

	m := NewQuotaMonitor(&staticUsage{usage: &store.Usage{TotalBytes: 1 << 30}}, bus, 0, 0)
	m.Check(context.Background())
	assert.Empty(t, ch)
}

func TestQuotaMonitor_SourceError(t *testing.T) {
	m := NewQuotaMonitor(&staticUsage{err: errors.New("backend down")}, nil, time.Minute, 0.8)
	assert.Nil(t, m.Check(context.Background()))
	assert.Nil(t, m.Last())
}

func TestQuotaMonitor_StartStops(t *testing.T) {
	src := &staticUsage{usage: &store.Usage{TotalBytes: 1, QuotaBytes: 100}}
	m := NewQuotaMonitor(src, nil, 10*time.Millisecond, 0.8)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	assert.Eventually(t, func() bool { return m.Last() != nil }, time.Second, 5*time.Millisecond)
	cancel()
}
