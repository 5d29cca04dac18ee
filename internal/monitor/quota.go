package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
)

// UsageSource reports record store usage; *store.RecordStore satisfies it
type UsageSource interface {
	Usage(ctx context.Context) (*store.Usage, error)
}

// QuotaMonitor periodically logs record store usage and warns when it nears the quota
type QuotaMonitor struct {
	source    UsageSource
	notifier  events.Notifier
	interval  time.Duration
	warnRatio float64
	now       func() time.Time

	mu     sync.Mutex
	warned bool
	last   *store.Usage
}

// NewQuotaMonitor creates a new quota monitor
func NewQuotaMonitor(source UsageSource, notifier events.Notifier, interval time.Duration, warnRatio float64) *QuotaMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if warnRatio <= 0 || warnRatio > 1 {
		warnRatio = 0.8
	}
	if notifier == nil {
		notifier = events.Nop{}
	}

	return &QuotaMonitor{
		source:    source,
		notifier:  notifier,
		interval:  interval,
		warnRatio: warnRatio,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the monitor in a goroutine
func (m *QuotaMonitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// run is the main loop for the monitor
func (m *QuotaMonitor) run(ctx context.Context) {
	slog.Info("quota monitor started", "interval", m.interval, "warn_ratio", m.warnRatio)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Run immediately on start
	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("quota monitor stopped")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check samples usage once. A warning event is emitted when usage crosses the
// warn ratio and again only after it has dropped back below.
func (m *QuotaMonitor) Check(ctx context.Context) *store.Usage {
	usage, err := m.source.Usage(ctx)
	if err != nil {
		slog.Error("failed to read store usage", "error", err)
		return nil
	}

	m.mu.Lock()
	m.last = usage
	over := usage.QuotaBytes > 0 && float64(usage.TotalBytes) >= float64(usage.QuotaBytes)*m.warnRatio
	crossed := over && !m.warned
	m.warned = over
	m.mu.Unlock()

	slog.Debug("store usage",
		"records", len(usage.Records),
		"total", usage.Total,
		"quota_bytes", usage.QuotaBytes,
		"percent", usage.Percent,
	)

	if crossed {
		slog.Warn("record store nearing quota",
			"total", usage.Total,
			"quota_bytes", usage.QuotaBytes,
			"percent", usage.Percent,
		)
		m.notifier.Notify(events.Event{Type: events.StoreQuotaWarning, Data: usage, Time: m.now()})
	}

	return usage
}

// Last returns the most recent sample, or nil before the first check
func (m *QuotaMonitor) Last() *store.Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
