package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"offsync/internal/appliers"
	"offsync/internal/clock"
	"offsync/internal/config"
	"offsync/internal/logging"
	"offsync/internal/queue"
)

// ErrInvalidTenant reports an empty tenant identifier.
var ErrInvalidTenant = errors.New("invalid tenant id")

// Connectivity reports whether the remote store is reachable.
type Connectivity interface {
	Connected() bool
}

// PassResult summarizes one sync pass.
type PassResult struct {
	PassID   string `json:"pass_id"`
	TenantID string `json:"tenant_id"`
	Synced   int    `json:"synced"`
	Failed   int    `json:"failed"`
	// Deferred counts entries left pending behind a failed entry for the
	// same record.
	Deferred int `json:"deferred"`
	// Unhandled counts entries left pending because no applier is registered.
	Unhandled int           `json:"unhandled"`
	Skipped   bool          `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Options tunes an Engine.
type Options struct {
	// DeferDependents leaves later entries for a record pending once an
	// earlier entry for it has failed.
	DeferDependents    bool
	MaxParallelTenants int
	Locks              *TenantLocks
	Clock              clock.Clock
	Logger             *slog.Logger
}

// OptionsFromConfig maps the [sync] section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{DeferDependents: true}
	}
	return Options{
		DeferDependents:    cfg.Sync.DeferDependents,
		MaxParallelTenants: cfg.Sync.MaxParallelTenants,
	}
}

// Engine runs sync passes.
type Engine struct {
	store        *queue.Store
	registry     *appliers.Registry
	connectivity Connectivity
	locks        *TenantLocks
	clock        clock.Clock
	logger       *slog.Logger

	deferDependents bool
	maxParallel     int
}

// New constructs an Engine.
func New(store *queue.Store, registry *appliers.Registry, conn Connectivity, opts Options) *Engine {
	locks := opts.Locks
	if locks == nil {
		locks = NewTenantLocks()
	}
	if registry == nil {
		registry = appliers.NewRegistry()
	}
	return &Engine{
		store:           store,
		registry:        registry,
		connectivity:    conn,
		locks:           locks,
		clock:           clock.OrReal(opts.Clock),
		logger:          logging.NewComponentLogger(opts.Logger, "syncengine"),
		deferDependents: opts.DeferDependents,
		maxParallel:     opts.MaxParallelTenants,
	}
}

// Locks exposes the tenant guards so other writers can serialize with passes.
func (e *Engine) Locks() *TenantLocks {
	return e.locks
}

func (e *Engine) connected() bool {
	return e.connectivity != nil && e.connectivity.Connected()
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeFailed
	outcomeUnhandled
	outcomeSkipped
)

// RunPass replays the tenant's pending snapshot. While disconnected it is a
// no-op that reports Skipped. Per-entry failures are recorded on the entry;
// only storage failures and invalid input are returned.
func (e *Engine) RunPass(ctx context.Context, tenantID string) (PassResult, error) {
	result := PassResult{PassID: uuid.NewString(), TenantID: strings.TrimSpace(tenantID)}
	if !e.connected() {
		result.Skipped = true
		e.logger.Debug("sync pass skipped while disconnected",
			logging.Tenant(result.TenantID),
		)
		return result, nil
	}
	if result.TenantID == "" {
		return result, ErrInvalidTenant
	}
	tenantID = result.TenantID

	unlock, err := e.locks.Lock(ctx, tenantID)
	if err != nil {
		return result, err
	}
	defer unlock()

	started := time.Now()
	ctx = logging.WithPassID(logging.WithTenant(ctx, tenantID), result.PassID)
	logger := logging.WithContext(ctx, e.logger)

	entries, err := e.store.PendingForTenant(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("load pending snapshot: %w", err)
	}
	blocked := make(map[string]struct{})
	if e.deferDependents {
		blocked, err = e.store.FailedDependencyKeys(ctx, tenantID)
		if err != nil {
			return result, fmt.Errorf("load failed dependencies: %w", err)
		}
	}
	logger.Debug("sync pass started", logging.Int("pending", len(entries)))

	// Entries run to completion once started; cancellation is only honoured
	// between entries.
	replayCtx := context.WithoutCancel(ctx)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(started)
			return result, err
		}
		key := entry.DependencyKey()
		if e.deferDependents && key != "" {
			if _, ok := blocked[key]; ok {
				result.Deferred++
				logger.Info("entry deferred behind failed entry for the same record",
					logging.EntryID(entry.ID),
					logging.EntityType(entry.EntityType),
					logging.Operation(string(entry.Operation)),
					logging.EventType("entry_deferred"),
				)
				continue
			}
		}

		out, err := e.replay(replayCtx, logger, entry)
		if err != nil {
			result.Duration = time.Since(started)
			return result, err
		}
		switch out {
		case outcomeSynced:
			result.Synced++
		case outcomeFailed:
			result.Failed++
			if key != "" {
				blocked[key] = struct{}{}
			}
		case outcomeUnhandled:
			result.Unhandled++
		}
	}

	result.Duration = time.Since(started)
	logger.Info("sync pass completed",
		logging.Int("synced", result.Synced),
		logging.Int("failed", result.Failed),
		logging.Int("deferred", result.Deferred),
		logging.Int("unhandled", result.Unhandled),
		logging.Duration("duration", result.Duration),
		logging.EventType("sync_pass_completed"),
	)
	return result, nil
}

func (e *Engine) replay(ctx context.Context, logger *slog.Logger, entry *queue.Entry) (outcome, error) {
	logger = logger.With(
		logging.EntryID(entry.ID),
		logging.EntityType(entry.EntityType),
		logging.Operation(string(entry.Operation)),
	)

	if err := e.store.MarkSyncing(ctx, entry.ID, e.clock.Now()); err != nil {
		if errors.Is(err, queue.ErrInvalidTransition) {
			logger.Debug("entry left pending before replay; skipping", logging.Error(err))
			return outcomeSkipped, nil
		}
		return outcomeSkipped, err
	}

	applier, ok := e.registry.Lookup(entry.EntityType)
	if !ok {
		return e.unhandled(ctx, logger, entry)
	}

	op, err := e.operation(ctx, entry)
	if err != nil {
		if revertErr := e.store.RevertToPending(ctx, entry.ID, e.clock.Now()); revertErr != nil {
			err = errors.Join(err, revertErr)
		}
		return outcomeSkipped, err
	}

	res, applyErr := safeApply(ctx, applier, op)
	if errors.Is(applyErr, appliers.ErrNoApplier) {
		return e.unhandled(ctx, logger, entry)
	}
	if applyErr != nil {
		if err := e.store.MarkFailed(ctx, entry.ID, applyErr.Error(), e.clock.Now()); err != nil {
			return outcomeSkipped, err
		}
		hint := "fix the payload or remote record, then requeue the entry"
		if appliers.IsTransient(applyErr) {
			hint = "remote failure looks temporary; requeue the entry"
		}
		logging.WarnWithContext(logger, "entry replay failed", "entry_failed",
			logging.Error(applyErr),
			logging.Int("retry_count", entry.RetryCount+1),
			logging.Bool("transient", appliers.IsTransient(applyErr)),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, "entry will not be retried automatically"),
		)
		return outcomeFailed, nil
	}

	if err := e.store.MarkSynced(ctx, entry.ID, e.clock.Now()); err != nil {
		return outcomeSkipped, err
	}
	if entry.Operation == queue.OpCreate && entry.RecordKey != "" && res.RemoteID != "" {
		if err := e.store.PutRemoteID(ctx, queue.RemoteID{
			TenantID:   entry.TenantID,
			EntityType: entry.EntityType,
			RecordKey:  entry.RecordKey,
			RemoteID:   res.RemoteID,
			UpdatedAt:  e.clock.Now(),
		}); err != nil {
			return outcomeSynced, fmt.Errorf("record remote id: %w", err)
		}
	}
	logger.Debug("entry synced", logging.String("remote_id", res.RemoteID))
	return outcomeSynced, nil
}

func (e *Engine) unhandled(ctx context.Context, logger *slog.Logger, entry *queue.Entry) (outcome, error) {
	if err := e.store.RevertToPending(ctx, entry.ID, e.clock.Now()); err != nil {
		return outcomeSkipped, err
	}
	logging.WarnWithContext(logger, "no applier registered for entity type", "applier_missing",
		logging.String(logging.FieldErrorHint, "register an applier for "+entry.EntityType),
		logging.String(logging.FieldImpact, "entry stays pending until an applier is registered"),
	)
	return outcomeUnhandled, nil
}

// operation builds the applier input, resolving the remote id of a record
// created offline when the entry only carries its local key.
func (e *Engine) operation(ctx context.Context, entry *queue.Entry) (appliers.Operation, error) {
	op := appliers.Operation{
		EntryID:    entry.ID,
		TenantID:   entry.TenantID,
		Kind:       string(entry.Operation),
		EntityType: entry.EntityType,
		RecordID:   entry.RecordID,
		RecordKey:  entry.RecordKey,
		Payload:    entry.Payload,
	}
	if op.RecordID == "" && op.RecordKey != "" && entry.Operation != queue.OpCreate {
		remoteID, ok, err := e.store.LookupRemoteID(ctx, entry.TenantID, entry.EntityType, entry.RecordKey)
		if err != nil {
			return op, fmt.Errorf("resolve remote id: %w", err)
		}
		if ok {
			op.RecordID = remoteID
		}
	}
	return op, nil
}

func safeApply(ctx context.Context, applier appliers.Applier, op appliers.Operation) (res appliers.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("applier panic: %v", r)
		}
	}()
	return applier.Apply(ctx, op)
}

// RunPasses runs one pass per tenant, in parallel across tenants. Every
// tenant is attempted; the first error is returned alongside all results.
func (e *Engine) RunPasses(ctx context.Context, tenants []string) (map[string]PassResult, error) {
	results := make(map[string]PassResult, len(tenants))
	var mu sync.Mutex

	var g errgroup.Group
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}
	seen := make(map[string]struct{}, len(tenants))
	for _, tenant := range tenants {
		tenant = strings.TrimSpace(tenant)
		if _, dup := seen[tenant]; dup {
			continue
		}
		seen[tenant] = struct{}{}
		g.Go(func() error {
			res, err := e.RunPass(ctx, tenant)
			mu.Lock()
			results[tenant] = res
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("tenant %q: %w", tenant, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// Requeue moves a tenant's failed entries back to pending. With no ids every
// failed entry of the tenant is requeued. Retry counts are kept.
func (e *Engine) Requeue(ctx context.Context, tenantID string, ids ...string) (int64, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return 0, ErrInvalidTenant
	}
	unlock, err := e.locks.Lock(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n, err := e.store.RequeueFailed(ctx, tenantID, e.clock.Now(), ids...)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("failed entries requeued",
			logging.Tenant(tenantID),
			logging.Int64("count", n),
			logging.EventType("entries_requeued"),
		)
	}
	return n, nil
}

// RequeueBelow requeues failed entries whose retry count is below maxRetries.
func (e *Engine) RequeueBelow(ctx context.Context, tenantID string, maxRetries int) (int64, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return 0, ErrInvalidTenant
	}
	if maxRetries <= 0 {
		return 0, nil
	}
	unlock, err := e.locks.Lock(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return e.store.RequeueFailedBelow(ctx, tenantID, maxRetries, e.clock.Now())
}
