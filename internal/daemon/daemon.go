package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"offsync/internal/appliers"
	"offsync/internal/clock"
	"offsync/internal/config"
	"offsync/internal/connectivity"
	"offsync/internal/logging"
	"offsync/internal/notifications"
	"offsync/internal/pending"
	"offsync/internal/preflight"
	"offsync/internal/queue"
	"offsync/internal/remote"
	"offsync/internal/retention"
	"offsync/internal/syncengine"
)

// Daemon owns the queue store, replays tenants when connectivity returns and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	writer   *queue.Writer
	registry *appliers.Registry
	conn     *connectivity.Monitor
	engine   *syncengine.Engine
	pending  *pending.Monitor
	purger   *retention.Purger
	remote   *remote.Client
	hub      *logging.StreamHub
	clock    clock.Clock
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	kick    chan string

	passMu   sync.RWMutex
	lastPass map[string]syncengine.PassResult

	notifyWG sync.WaitGroup
	backlog  map[string]bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithRegistry replaces the appliers built from the [remote] section.
func WithRegistry(registry *appliers.Registry) Option {
	return func(d *Daemon) { d.registry = registry }
}

// WithConnectivity replaces the monitor built from the [connectivity] section.
func WithConnectivity(monitor *connectivity.Monitor) Option {
	return func(d *Daemon) { d.conn = monitor }
}

// WithLogHub exposes hub through the logs endpoint.
func WithLogHub(hub *logging.StreamHub) Option {
	return func(d *Daemon) { d.hub = hub }
}

// WithNotifier replaces the ntfy service built from the [notifications] section.
func WithNotifier(svc notifications.Service) Option {
	return func(d *Daemon) { d.notifier = svc }
}

// WithClock injects the time source used for queue timestamps.
func WithClock(c clock.Clock) Option {
	return func(d *Daemon) { d.clock = c }
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	QueueDBPath  string
	LockFilePath string
	Connectivity connectivity.Status
	Tenants      []TenantStatus
	Appliers     []string
}

// TenantStatus summarizes one tenant's queue.
type TenantStatus struct {
	TenantID string
	Counts   map[queue.Status]int
	LastPass *syncengine.PassResult
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		kick:     make(chan string, 16),
		lastPass: make(map[string]syncengine.PassResult),
		backlog:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.clock = clock.OrReal(d.clock)
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}

	d.remote = remote.NewFromConfig(cfg, logger)
	if d.registry == nil {
		d.registry = appliers.NewRegistry()
		if d.remote != nil {
			if err := remote.Register(d.registry, d.remote, cfg.Remote.Entities, store); err != nil {
				return nil, fmt.Errorf("register remote appliers: %w", err)
			}
		}
	}
	if d.conn == nil {
		d.conn = connectivity.NewFromConfig(cfg, logger)
	}
	d.conn.Subscribe(d.onRegained)

	engineOpts := syncengine.OptionsFromConfig(cfg)
	engineOpts.Clock = d.clock
	engineOpts.Logger = logger
	d.engine = syncengine.New(store, d.registry, d.conn, engineOpts)
	d.writer = queue.NewWriter(store, queue.WithClock(d.clock))
	d.pending = pending.NewMonitor(store, cfg.Tenants.Active, cfg.PendingPollInterval(), d.reportPending, logger)

	purgeOpts := retention.OptionsFromConfig(cfg, logger)
	purgeOpts.Clock = d.clock
	d.purger = retention.New(store, d.engine.Locks(), purgeOpts)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted entries and launches
// the background services.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another offsync daemon instance is already running")
	}

	reset, err := d.store.ResetSyncing(ctx, d.clock.Now())
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover syncing entries: %w", err)
	}
	if reset > 0 {
		d.logger.Info("recovered interrupted entries",
			logging.Int64("count", reset),
			logging.EventType("syncing_recovered"),
		)
	}

	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "replay may fail until resolved"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.conn.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start connectivity monitor: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.conn.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.pending.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.kickLoop(runCtx)
	}()
	if d.cfg.Retention.Enabled {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.purger.Run(runCtx)
		}()
	}

	d.logger.Info("offsync daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("tenants", len(d.cfg.Tenants.Active)),
		logging.Any("appliers", d.registry.EntityTypes()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.conn.Stop()
	d.wg.Wait()
	d.notifyWG.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("offsync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// onRegained replays every active tenant after connectivity returns.
func (d *Daemon) onRegained(ctx context.Context) {
	tenants, err := d.tenants(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "cannot list tenants for replay", "regained_replay_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "pending entries stay queued until the next reconnect or manual sync"),
		)
		return
	}
	d.logger.Info("connectivity regained; replaying tenants",
		logging.Int("tenants", len(tenants)),
		logging.EventType("regained_replay"),
	)

	if maxRetries := d.cfg.Sync.AutoRequeueMaxRetries; maxRetries > 0 {
		for _, tenant := range tenants {
			if _, err := d.engine.RequeueBelow(ctx, tenant, maxRetries); err != nil {
				logging.WarnWithContext(d.logger, "auto requeue failed", "auto_requeue_failed",
					logging.Tenant(tenant),
					logging.Error(err),
					logging.String(logging.FieldImpact, "failed entries stay failed"),
				)
			}
		}
	}

	results, err := d.engine.RunPasses(ctx, tenants)
	d.recordPasses(results)
	if err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "replay after reconnect failed", "regained_replay_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some tenants were not fully replayed"),
		)
	}
	d.refreshMirrors(ctx, tenants)
	if err := d.pending.Poll(ctx); err != nil && ctx.Err() == nil {
		d.logger.Debug("pending poll after replay failed", logging.Error(err))
	}
}

// kickLoop runs single-tenant passes requested while connected.
func (d *Daemon) kickLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tenant := <-d.kick:
			if !d.conn.Connected() {
				continue
			}
			if _, err := d.Sync(ctx, tenant); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(d.logger, "opportunistic sync failed", "opportunistic_sync_failed",
					logging.Tenant(tenant),
					logging.Error(err),
					logging.String(logging.FieldImpact, "entry replays on the next reconnect"),
				)
			}
		}
	}
}

func (d *Daemon) requestPass(tenantID string) {
	select {
	case d.kick <- tenantID:
	default:
	}
}

func (d *Daemon) refreshMirrors(ctx context.Context, tenants []string) {
	if d.remote == nil {
		return
	}
	for _, tenant := range tenants {
		for _, entity := range d.cfg.Remote.Entities {
			count, err := d.remote.RefreshMirror(ctx, d.store, tenant, entity)
			if err != nil {
				logging.WarnWithContext(d.logger, "mirror refresh failed", "mirror_refresh_failed",
					logging.Tenant(tenant),
					logging.EntityType(entity),
					logging.Error(err),
					logging.String(logging.FieldImpact, "offline reads may be stale"),
				)
				continue
			}
			d.logger.Debug("mirror refreshed",
				logging.Tenant(tenant),
				logging.EntityType(entity),
				logging.Int("records", count),
			)
		}
	}
}

func (d *Daemon) reportPending(tenantID string, count int) {
	d.logger.Info("pending count",
		logging.Tenant(tenantID),
		logging.Int("pending", count),
		logging.EventType("pending_changed"),
	)

	threshold := d.cfg.Notifications.BacklogThreshold
	if threshold <= 0 {
		return
	}
	d.passMu.Lock()
	alerted := d.backlog[tenantID]
	d.backlog[tenantID] = count >= threshold
	d.passMu.Unlock()
	// One alert per crossing; the flag clears once the backlog drains below the threshold.
	if count >= threshold && !alerted {
		d.notify(tenantID, func(ctx context.Context) error {
			return d.notifier.NotifyBacklog(ctx, tenantID, count)
		})
	}
}

func (d *Daemon) recordPasses(results map[string]syncengine.PassResult) {
	if len(results) == 0 {
		return
	}
	d.passMu.Lock()
	for tenant, result := range results {
		d.lastPass[tenant] = result
	}
	d.passMu.Unlock()

	for tenant, result := range results {
		if result.Failed == 0 {
			continue
		}
		d.notify(tenant, func(ctx context.Context) error {
			return d.notifier.NotifySyncFailed(ctx, tenant, result.Failed, result.Synced)
		})
	}
}

// notify delivers a notification off the caller's goroutine.
func (d *Daemon) notify(tenantID string, send func(context.Context) error) {
	d.notifyWG.Add(1)
	go func() {
		defer d.notifyWG.Done()
		if err := send(context.Background()); err != nil {
			logging.WarnWithContext(d.logger, "notification failed", "notification_failed",
				logging.Tenant(tenantID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "failures are still listed by `offsync list --status failed`"),
			)
		}
	}()
}

// tenants returns the configured tenants, or every tenant with entries when
// none are configured.
func (d *Daemon) tenants(ctx context.Context) ([]string, error) {
	if len(d.cfg.Tenants.Active) > 0 {
		return slices.Clone(d.cfg.Tenants.Active), nil
	}
	return d.store.Tenants(ctx)
}

// Enqueue records a mutation. While connected a pass for the tenant is
// scheduled right away.
func (d *Daemon) Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.Entry, error) {
	entry, err := d.writer.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	d.logger.Info("entry queued",
		logging.Tenant(entry.TenantID),
		logging.EntryID(entry.ID),
		logging.Operation(string(entry.Operation)),
		logging.EntityType(entry.EntityType),
	)
	if d.running.Load() && d.conn.Connected() {
		d.requestPass(entry.TenantID)
	}
	return entry, nil
}

// List returns the tenant's entries filtered by optional statuses.
func (d *Daemon) List(ctx context.Context, tenantID string, statuses []queue.Status) ([]*queue.Entry, error) {
	return d.store.ListByTenant(ctx, strings.TrimSpace(tenantID), statuses...)
}

// Pending returns the tenant's pending count.
func (d *Daemon) Pending(ctx context.Context, tenantID string) (int, error) {
	return pending.Count(ctx, d.store, tenantID)
}

// Sync runs one pass for the tenant now.
func (d *Daemon) Sync(ctx context.Context, tenantID string) (syncengine.PassResult, error) {
	result, err := d.engine.RunPass(ctx, strings.TrimSpace(tenantID))
	if err == nil {
		d.recordPasses(map[string]syncengine.PassResult{result.TenantID: result})
	}
	return result, err
}

// Requeue moves failed entries back to pending; no ids means all.
func (d *Daemon) Requeue(ctx context.Context, tenantID string, ids []string) (int64, error) {
	count, err := d.engine.Requeue(ctx, strings.TrimSpace(tenantID), ids...)
	if err == nil && count > 0 && d.running.Load() && d.conn.Connected() {
		d.requestPass(strings.TrimSpace(tenantID))
	}
	return count, err
}

// Purge removes the tenant's synced entries.
func (d *Daemon) Purge(ctx context.Context, tenantID string) (int64, error) {
	return d.purger.PurgeSynced(ctx, strings.TrimSpace(tenantID))
}

// ReportConnectivity feeds a manual observation to the monitor.
func (d *Daemon) ReportConnectivity(connected bool) connectivity.Status {
	d.conn.Report(connected)
	return d.conn.Status()
}

// LogStream exposes the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.hub
}

// APIAddress returns the address the HTTP API is listening on, or "" before Start.
func (d *Daemon) APIAddress() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Connectivity: d.conn.Status(),
		Appliers:     d.registry.EntityTypes(),
	}
	tenants, err := d.tenants(ctx)
	if err != nil {
		d.logger.Debug("status tenant listing failed", logging.Error(err))
		return status
	}
	d.passMu.RLock()
	defer d.passMu.RUnlock()
	for _, tenant := range tenants {
		ts := TenantStatus{TenantID: tenant}
		if counts, err := d.store.Stats(ctx, tenant); err == nil {
			ts.Counts = counts
		}
		if last, ok := d.lastPass[tenant]; ok {
			ts.LastPass = &last
		}
		status.Tenants = append(status.Tenants, ts)
	}
	return status
}
