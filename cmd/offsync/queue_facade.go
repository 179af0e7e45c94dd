package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"offsync/internal/api"
	"offsync/internal/appliers"
	"offsync/internal/config"
	"offsync/internal/connectivity"
	"offsync/internal/logging"
	"offsync/internal/pending"
	"offsync/internal/queue"
	"offsync/internal/remote"
	"offsync/internal/retention"
	"offsync/internal/syncengine"
)

type queueAPI interface {
	Mode() string
	Enqueue(ctx context.Context, tenantID string, req api.EnqueueRequest) (api.QueueEntry, error)
	List(ctx context.Context, tenantID string, statuses []string) ([]api.QueueEntry, error)
	Pending(ctx context.Context, tenantID string) (int, error)
	Sync(ctx context.Context, tenantID string) (api.PassResult, error)
	Requeue(ctx context.Context, tenantID string, ids []string) (int64, error)
	Purge(ctx context.Context, tenantID string) (int64, error)
	Stats(ctx context.Context, tenantID string) (map[string]int, error)
}

// --- API adapter ---

type queueAPIAdapter struct {
	client *api.Client
}

func (a *queueAPIAdapter) Mode() string { return "daemon" }

func (a *queueAPIAdapter) Enqueue(ctx context.Context, tenantID string, req api.EnqueueRequest) (api.QueueEntry, error) {
	return a.client.Enqueue(ctx, tenantID, req)
}

func (a *queueAPIAdapter) List(ctx context.Context, tenantID string, statuses []string) ([]api.QueueEntry, error) {
	return a.client.List(ctx, tenantID, statuses)
}

func (a *queueAPIAdapter) Pending(ctx context.Context, tenantID string) (int, error) {
	return a.client.Pending(ctx, tenantID)
}

func (a *queueAPIAdapter) Sync(ctx context.Context, tenantID string) (api.PassResult, error) {
	return a.client.Sync(ctx, tenantID)
}

func (a *queueAPIAdapter) Requeue(ctx context.Context, tenantID string, ids []string) (int64, error) {
	return a.client.Requeue(ctx, tenantID, ids)
}

func (a *queueAPIAdapter) Purge(ctx context.Context, tenantID string) (int64, error) {
	return a.client.Purge(ctx, tenantID)
}

func (a *queueAPIAdapter) Stats(ctx context.Context, tenantID string) (map[string]int, error) {
	entries, err := a.client.List(ctx, tenantID, nil)
	if err != nil {
		return nil, err
	}
	counts := api.StatusCounts(nil)
	for _, entry := range entries {
		counts[entry.Status]++
	}
	return counts, nil
}

// --- Store adapter ---

type queueStoreAdapter struct {
	store  *queue.Store
	writer *queue.Writer
	engine *syncengine.Engine
	purger *retention.Purger
	err    error
}

func newQueueStoreAdapter(cfg *config.Config, store *queue.Store) *queueStoreAdapter {
	logger := logging.NewNop()
	registry := appliers.NewRegistry()
	var regErr error
	if client := remote.NewFromConfig(cfg, logger); client != nil {
		regErr = remote.Register(registry, client, cfg.Remote.Entities, store)
	}
	timeout := cfg.ProbeTimeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn := &probeOnce{prober: connectivity.ProberFromConfig(cfg), timeout: timeout}
	engine := syncengine.New(store, registry, conn, syncengine.OptionsFromConfig(cfg))
	return &queueStoreAdapter{
		store:  store,
		writer: queue.NewWriter(store),
		engine: engine,
		purger: retention.New(store, engine.Locks(), retention.OptionsFromConfig(cfg, logger)),
		err:    regErr,
	}
}

func (a *queueStoreAdapter) Mode() string { return "local" }

func (a *queueStoreAdapter) Enqueue(ctx context.Context, tenantID string, req api.EnqueueRequest) (api.QueueEntry, error) {
	op, ok := queue.ParseOperation(req.Operation)
	if !ok {
		return api.QueueEntry{}, fmt.Errorf("%w: unknown operation %q", queue.ErrInvalidEntry, req.Operation)
	}
	entry, err := a.writer.Enqueue(ctx, queue.EnqueueRequest{
		TenantID:   tenantID,
		UserID:     req.UserID,
		Operation:  op,
		EntityType: req.EntityType,
		RecordID:   req.RecordID,
		RecordKey:  req.RecordKey,
		Payload:    req.Payload,
	})
	if err != nil {
		return api.QueueEntry{}, err
	}
	return api.FromEntry(entry), nil
}

func (a *queueStoreAdapter) List(ctx context.Context, tenantID string, statuses []string) ([]api.QueueEntry, error) {
	var filters []queue.Status
	for _, s := range statuses {
		parsed, ok := queue.ParseStatus(s)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		filters = append(filters, parsed)
	}
	entries, err := a.store.ListByTenant(ctx, tenantID, filters...)
	if err != nil {
		return nil, err
	}
	return api.FromEntries(entries), nil
}

func (a *queueStoreAdapter) Pending(ctx context.Context, tenantID string) (int, error) {
	return pending.Count(ctx, a.store, tenantID)
}

func (a *queueStoreAdapter) Sync(ctx context.Context, tenantID string) (api.PassResult, error) {
	if a.err != nil {
		return api.PassResult{}, a.err
	}
	result, err := a.engine.RunPass(ctx, tenantID)
	if err != nil {
		return api.PassResult{}, err
	}
	return api.FromPassResult(result), nil
}

func (a *queueStoreAdapter) Requeue(ctx context.Context, tenantID string, ids []string) (int64, error) {
	return a.engine.Requeue(ctx, tenantID, ids...)
}

func (a *queueStoreAdapter) Purge(ctx context.Context, tenantID string) (int64, error) {
	return a.purger.PurgeSynced(ctx, tenantID)
}

func (a *queueStoreAdapter) Stats(ctx context.Context, tenantID string) (map[string]int, error) {
	stats, err := a.store.Stats(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return api.StatusCounts(stats), nil
}

// probeOnce answers Connected with a single probe. Without a configured
// probe the caller is trusted to be online.
type probeOnce struct {
	prober  connectivity.Prober
	timeout time.Duration

	once      sync.Once
	connected bool
}

func (p *probeOnce) Connected() bool {
	p.once.Do(func() {
		if p.prober == nil {
			p.connected = true
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.connected = p.prober.Probe(ctx) == nil
	})
	return p.connected
}
