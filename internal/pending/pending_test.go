package pending_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offsync/internal/appliers"
	"offsync/internal/pending"
	"offsync/internal/queue"
	"offsync/internal/syncengine"
	"offsync/internal/testsupport"
)

type alwaysOnline struct{}

func (alwaysOnline) Connected() bool { return true }

func TestCountMatchesEnqueuedMinusSynced(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	writer := queue.NewWriter(store)
	ctx := context.Background()

	const n = 7
	for i := 0; i < n; i++ {
		entity := "invoices"
		if i%2 == 0 {
			entity = "payroll"
		}
		testsupport.Enqueue(t, writer, "acme", queue.OpCreate, entity, "", map[string]int{"i": i})
	}
	count, err := pending.Count(ctx, store, "acme")
	require.NoError(t, err)
	assert.Equal(t, n, count)

	registry := appliers.NewRegistry()
	registry.MustRegister("invoices", appliers.Func(func(context.Context, appliers.Operation) (appliers.Result, error) {
		return appliers.Result{}, nil
	}))
	res, err := syncengine.New(store, registry, alwaysOnline{}, syncengine.Options{}).RunPass(ctx, "acme")
	require.NoError(t, err)
	require.Zero(t, res.Failed)
	k := res.Synced
	require.Equal(t, 3, k)

	count, err = pending.Count(ctx, store, "acme")
	require.NoError(t, err)
	assert.Equal(t, n-k, count)

	other, err := pending.Count(ctx, store, "globex")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestMonitorReportsOnlyChanges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	writer := queue.NewWriter(store)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		reports []string
	)
	monitor := pending.NewMonitor(store, []string{"acme", "globex"}, time.Hour, func(tenant string, count int) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, tenant)
	}, nil)

	require.NoError(t, monitor.Poll(ctx))
	assert.Equal(t, []string{"acme", "globex"}, reports, "first observation is always reported")

	require.NoError(t, monitor.Poll(ctx))
	assert.Len(t, reports, 2)

	testsupport.Enqueue(t, writer, "globex", queue.OpCreate, "invoices", "", nil)
	require.NoError(t, monitor.Poll(ctx))
	assert.Equal(t, []string{"acme", "globex", "globex"}, reports)

	count, ok := monitor.Last("globex")
	assert.True(t, ok)
	assert.Equal(t, 1, count)
	_, ok = monitor.Last("initech")
	assert.False(t, ok)
	assert.Equal(t, map[string]int{"acme": 0, "globex": 1}, monitor.Snapshot())
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	polled := make(chan struct{}, 1)
	monitor := pending.NewMonitor(store, []string{"acme"}, 10*time.Millisecond, func(string, int) {
		select {
		case polled <- struct{}{}:
		default:
		}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()
	<-polled
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
