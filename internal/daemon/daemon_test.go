package daemon_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offsync/internal/appliers"
	"offsync/internal/config"
	"offsync/internal/connectivity"
	"offsync/internal/daemon"
	"offsync/internal/logging"
	"offsync/internal/queue"
	"offsync/internal/testsupport"
)

type recordingApplier struct {
	mu      sync.Mutex
	applied []string
}

func (r *recordingApplier) Apply(_ context.Context, op appliers.Operation) (appliers.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, op.EntryID)
	return appliers.Result{}, nil
}

func (r *recordingApplier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied)
}

func newDaemon(t *testing.T, cfg *config.Config, opts ...daemon.Option) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenants("acme"))
	d, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if len(status.Tenants) != 1 || status.Tenants[0].TenantID != "acme" {
		t.Fatalf("unexpected tenants %+v", status.Tenants)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceRejectedByLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	first, store := newDaemon(t, cfg)
	second, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected lock contention error")
	}
}

func TestStartRecoversSyncingEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenants("acme"))
	cfg.API.Bind = ""
	d, store := newDaemon(t, cfg)

	ctx := context.Background()
	entry := testsupport.Enqueue(t, queue.NewWriter(store), "acme", queue.OpCreate, "partners", "", map[string]string{"name": "a"})
	if err := store.MarkSyncing(ctx, entry.ID, time.Now()); err != nil {
		t.Fatalf("MarkSyncing: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := testsupport.MustGet(t, store, entry.ID); got.Status != queue.StatusPending {
		t.Fatalf("expected pending after recovery, got %s", got.Status)
	}
}

func TestRegainedConnectivityReplaysTenants(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenants("acme", "globex"))
	cfg.API.Bind = ""

	applier := &recordingApplier{}
	registry := appliers.NewRegistry()
	registry.MustRegister("partners", applier)
	monitor := connectivity.New(connectivity.Options{Logger: logging.NewNop()})

	d, store := newDaemon(t, cfg, daemon.WithRegistry(registry), daemon.WithConnectivity(monitor))
	writer := queue.NewWriter(store)
	a := testsupport.Enqueue(t, writer, "acme", queue.OpCreate, "partners", "", map[string]string{"name": "a"})
	b := testsupport.Enqueue(t, writer, "globex", queue.OpCreate, "partners", "", map[string]string{"name": "b"})

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	d.ReportConnectivity(true)
	require.Eventually(t, func() bool {
		return testsupport.MustGet(t, store, a.ID).Status == queue.StatusSynced &&
			testsupport.MustGet(t, store, b.ID).Status == queue.StatusSynced
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 2, applier.count())

	require.Eventually(t, func() bool {
		for _, tenant := range d.Status(ctx).Tenants {
			if tenant.LastPass == nil || tenant.LastPass.Synced != 1 {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEnqueueWhileConnectedSchedulesPass(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenants("acme"))
	cfg.API.Bind = ""

	applier := &recordingApplier{}
	registry := appliers.NewRegistry()
	registry.MustRegister("partners", applier)
	monitor := connectivity.New(connectivity.Options{Logger: logging.NewNop()})

	d, store := newDaemon(t, cfg, daemon.WithRegistry(registry), daemon.WithConnectivity(monitor))
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	d.ReportConnectivity(true)

	entry, err := d.Enqueue(ctx, queue.EnqueueRequest{
		TenantID:   "acme",
		UserID:     "user-1",
		Operation:  queue.OpCreate,
		EntityType: "partners",
		Payload:    []byte(`{"name":"late"}`),
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return testsupport.MustGet(t, store, entry.ID).Status == queue.StatusSynced
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEnqueueWhileDisconnectedStaysPending(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenants("acme"))
	cfg.API.Bind = ""

	applier := &recordingApplier{}
	registry := appliers.NewRegistry()
	registry.MustRegister("partners", applier)
	d, _ := newDaemon(t, cfg, daemon.WithRegistry(registry))

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	d.ReportConnectivity(false)

	_, err := d.Enqueue(ctx, queue.EnqueueRequest{TenantID: "acme", Operation: queue.OpCreate, EntityType: "partners"})
	require.NoError(t, err)
	count, err := d.Pending(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	result, err := d.Sync(ctx, "acme")
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Zero(t, applier.count())
}

func TestDaemonOperationsValidateInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	d, _ := newDaemon(t, cfg)

	ctx := context.Background()
	_, err := d.Enqueue(ctx, queue.EnqueueRequest{Operation: queue.OpCreate, EntityType: "partners"})
	require.True(t, errors.Is(err, queue.ErrInvalidEntry), "got %v", err)
}

type failingApplier struct{}

func (failingApplier) Apply(context.Context, appliers.Operation) (appliers.Result, error) {
	return appliers.Result{}, errors.New("remote rejected entry")
}

type recordingNotifier struct {
	mu      sync.Mutex
	failed  []string
	backlog []int
}

func (n *recordingNotifier) NotifySyncFailed(_ context.Context, tenantID string, failed, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, tenantID)
	return nil
}

func (n *recordingNotifier) NotifyBacklog(_ context.Context, _ string, pending int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.backlog = append(n.backlog, pending)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) snapshot() ([]string, []int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.failed...), append([]int(nil), n.backlog...)
}

func TestFailedPassSendsNotification(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenants("acme"))
	cfg.API.Bind = ""

	registry := appliers.NewRegistry()
	registry.MustRegister("partners", failingApplier{})
	monitor := connectivity.New(connectivity.Options{Logger: logging.NewNop()})
	notifier := &recordingNotifier{}

	d, store := newDaemon(t, cfg,
		daemon.WithRegistry(registry),
		daemon.WithConnectivity(monitor),
		daemon.WithNotifier(notifier),
	)
	entry := testsupport.Enqueue(t, queue.NewWriter(store), "acme", queue.OpCreate, "partners", "", map[string]string{"name": "a"})
	require.NoError(t, d.Start(context.Background()))
	d.ReportConnectivity(true)

	require.Eventually(t, func() bool {
		failed, _ := notifier.snapshot()
		return len(failed) == 1 && failed[0] == "acme"
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, queue.StatusFailed, testsupport.MustGet(t, store, entry.ID).Status)
}

func TestBacklogNotificationOncePerCrossing(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTenants("acme"))
	cfg.API.Bind = ""
	cfg.Notifications.BacklogThreshold = 2
	cfg.Pending.PollInterval = 1

	notifier := &recordingNotifier{}
	d, store := newDaemon(t, cfg, daemon.WithNotifier(notifier))
	writer := queue.NewWriter(store)
	for range 3 {
		testsupport.Enqueue(t, writer, "acme", queue.OpCreate, "partners", "", map[string]string{"name": "x"})
	}

	require.NoError(t, d.Start(context.Background()))
	require.Eventually(t, func() bool {
		_, backlog := notifier.snapshot()
		return len(backlog) == 1 && backlog[0] == 3
	}, 5*time.Second, 10*time.Millisecond)

	testsupport.Enqueue(t, writer, "acme", queue.OpCreate, "partners", "", map[string]string{"name": "y"})
	time.Sleep(1500 * time.Millisecond)
	_, backlog := notifier.snapshot()
	require.Len(t, backlog, 1, "backlog alert must not repeat while the backlog persists")
}
