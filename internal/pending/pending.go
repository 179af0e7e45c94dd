// Package pending reports how many entries each tenant still has waiting
// for replay.
package pending

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"offsync/internal/logging"
	"offsync/internal/queue"
)

// Counter is the read the monitor needs from the store.
type Counter interface {
	CountByStatus(ctx context.Context, tenantID string, status queue.Status) (int, error)
}

// Count returns the tenant's pending entries. It is safe to call during a
// sync pass; entries being replayed are not counted.
func Count(ctx context.Context, store Counter, tenantID string) (int, error) {
	return store.CountByStatus(ctx, strings.TrimSpace(tenantID), queue.StatusPending)
}

// Reporter receives a tenant's pending count whenever it changes.
type Reporter func(tenantID string, count int)

// Monitor polls pending counts for a fixed set of tenants.
type Monitor struct {
	store    Counter
	tenants  []string
	interval time.Duration
	report   Reporter
	logger   *slog.Logger

	mu   sync.RWMutex
	last map[string]int
}

// NewMonitor constructs a Monitor. report may be nil when callers only read Last.
func NewMonitor(store Counter, tenants []string, interval time.Duration, report Reporter, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		store:    store,
		tenants:  append([]string(nil), tenants...),
		interval: interval,
		report:   report,
		logger:   logging.NewComponentLogger(logger, "pending"),
		last:     make(map[string]int),
	}
}

// Last returns the most recent count observed for tenantID.
func (m *Monitor) Last(tenantID string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count, ok := m.last[tenantID]
	return count, ok
}

// Snapshot copies every observed count.
func (m *Monitor) Snapshot() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.last))
	for tenant, count := range m.last {
		out[tenant] = count
	}
	return out
}

// Poll refreshes every tenant once and reports counts that changed. The first
// observation of a tenant is always reported.
func (m *Monitor) Poll(ctx context.Context) error {
	for _, tenant := range m.tenants {
		count, err := Count(ctx, m.store, tenant)
		if err != nil {
			return err
		}
		m.mu.Lock()
		previous, seen := m.last[tenant]
		m.last[tenant] = count
		m.mu.Unlock()
		if seen && previous == count {
			continue
		}
		m.logger.Debug("pending count changed",
			logging.Tenant(tenant),
			logging.Int("pending", count),
		)
		if m.report != nil {
			m.report(tenant, count)
		}
	}
	return nil
}

// Run polls until ctx is cancelled. Poll failures are logged and retried on
// the next tick.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "pending count poll failed", "pending_poll_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "pending indicators may be stale"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
