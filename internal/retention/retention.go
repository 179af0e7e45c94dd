// Package retention deletes synced queue entries. Pending, syncing and
// failed entries are never removed.
package retention

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"offsync/internal/clock"
	"offsync/internal/config"
	"offsync/internal/logging"
	"offsync/internal/queue"
	"offsync/internal/syncengine"
)

// Purger removes synced entries while holding the tenant guard shared with
// sync passes.
type Purger struct {
	store    *queue.Store
	locks    *syncengine.TenantLocks
	tenants  []string
	keep     time.Duration
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// Options configures a Purger.
type Options struct {
	// Tenants are purged by Run and PurgeAll.
	Tenants []string
	// Keep is how long a synced entry is retained before Run removes it.
	Keep     time.Duration
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// OptionsFromConfig maps the [retention] section onto Options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Tenants:  cfg.Tenants.Active,
		Keep:     cfg.KeepSynced(),
		Interval: cfg.RetentionInterval(),
		Logger:   logger,
	}
}

// New constructs a Purger. locks should be the engine's so purges and
// passes for one tenant never overlap.
func New(store *queue.Store, locks *syncengine.TenantLocks, opts Options) *Purger {
	if locks == nil {
		locks = syncengine.NewTenantLocks()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Purger{
		store:    store,
		locks:    locks,
		tenants:  append([]string(nil), opts.Tenants...),
		keep:     opts.Keep,
		interval: interval,
		clock:    clock.OrReal(opts.Clock),
		logger:   logging.NewComponentLogger(opts.Logger, "retention"),
	}
}

// PurgeSynced deletes every synced entry of the tenant and returns how many
// were removed.
func (p *Purger) PurgeSynced(ctx context.Context, tenantID string) (int64, error) {
	return p.purge(ctx, tenantID, time.Time{})
}

// PurgeSyncedBefore deletes the tenant's entries synced before cutoff.
func (p *Purger) PurgeSyncedBefore(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	return p.purge(ctx, tenantID, cutoff)
}

func (p *Purger) purge(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return 0, syncengine.ErrInvalidTenant
	}
	unlock, err := p.locks.Lock(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var removed int64
	if cutoff.IsZero() {
		removed, err = p.store.PurgeSynced(ctx, tenantID)
	} else {
		removed, err = p.store.PurgeSyncedBefore(ctx, tenantID, cutoff)
	}
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		p.logger.Info("synced entries purged",
			logging.Tenant(tenantID),
			logging.Int64("removed", removed),
			logging.EventType("entries_purged"),
		)
	}
	return removed, nil
}

// PurgeAll applies the keep window to every configured tenant.
func (p *Purger) PurgeAll(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().Add(-p.keep)
	var total int64
	for _, tenant := range p.tenants {
		var (
			n   int64
			err error
		)
		if p.keep <= 0 {
			n, err = p.PurgeSynced(ctx, tenant)
		} else {
			n, err = p.PurgeSyncedBefore(ctx, tenant, cutoff)
		}
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Run purges on every interval until ctx is cancelled.
func (p *Purger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PurgeAll(ctx); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(p.logger, "retention purge failed", "retention_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "synced entries kept until the next run"),
				)
			}
		}
	}
}
