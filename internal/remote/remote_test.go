package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offsync/internal/appliers"
	"offsync/internal/queue"
	"offsync/internal/remote"
	"offsync/internal/syncengine"
	"offsync/internal/testsupport"
)

type request struct {
	Method         string
	Path           string
	Body           string
	Auth           string
	IdempotencyKey string
}

type fakeRemote struct {
	mu       sync.Mutex
	requests []request
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, request{
		Method:         r.Method,
		Path:           r.URL.Path,
		Body:           string(body),
		Auth:           r.Header.Get("Authorization"),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	f.mu.Unlock()
	f.handler(w, r)
}

func (f *fakeRemote) all() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request(nil), f.requests...)
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*fakeRemote, *remote.Client) {
	t.Helper()
	fake := &fakeRemote{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, remote.NewClient(srv.URL+"/", "secret", 5*time.Second, nil)
}

func TestApplierCreateUpdateDelete(t *testing.T) {
	fake, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 42, "name": "Acme"}`))
		case http.MethodPut:
			_, _ = w.Write([]byte(`{"id": "42", "name": "Acme Ltd"}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	applier := remote.NewApplier(client, "partners", nil)
	ctx := context.Background()

	res, err := applier.Apply(ctx, appliers.Operation{EntryID: "e1", TenantID: "acme", Kind: "create", Payload: json.RawMessage(`{"name":"Acme"}`)})
	require.NoError(t, err)
	assert.Equal(t, "42", res.RemoteID)

	_, err = applier.Apply(ctx, appliers.Operation{EntryID: "e2", TenantID: "acme", Kind: "update", RecordID: "42", Payload: json.RawMessage(`{"name":"Acme Ltd"}`)})
	require.NoError(t, err)

	_, err = applier.Apply(ctx, appliers.Operation{EntryID: "e3", TenantID: "acme", Kind: "delete", RecordID: "42"})
	require.NoError(t, err)

	reqs := fake.all()
	require.Len(t, reqs, 3)
	assert.Equal(t, request{Method: http.MethodPost, Path: "/tenants/acme/partners", Body: `{"name":"Acme"}`, Auth: "Bearer secret", IdempotencyKey: "e1"}, reqs[0])
	assert.Equal(t, "/tenants/acme/partners/42", reqs[1].Path)
	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Equal(t, http.MethodDelete, reqs[2].Method)
	assert.Empty(t, reqs[2].Body)
}

func TestApplierErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte("try later"))
	})
	applier := remote.NewApplier(client, "invoices", nil)
	ctx := context.Background()

	_, err := applier.Apply(ctx, appliers.Operation{TenantID: "acme", Kind: "create"})
	var remoteErr *remote.Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusServiceUnavailable, remoteErr.Status)
	assert.Equal(t, "try later", remoteErr.Body)
	assert.True(t, remote.IsRetryable(err))
	assert.True(t, appliers.IsTransient(err))

	status.Store(http.StatusUnprocessableEntity)
	_, err = applier.Apply(ctx, appliers.Operation{TenantID: "acme", Kind: "create"})
	require.Error(t, err)
	assert.False(t, remote.IsRetryable(err))
	assert.False(t, appliers.IsTransient(err))

	status.Store(http.StatusNotFound)
	_, err = applier.Apply(ctx, appliers.Operation{TenantID: "acme", Kind: "delete", RecordID: "7"})
	assert.NoError(t, err, "deleting a missing record succeeds")

	_, err = applier.Apply(ctx, appliers.Operation{TenantID: "acme", Kind: "update", RecordKey: "local-1"})
	assert.ErrorIs(t, err, remote.ErrMissingRemoteID)

	_, err = applier.Apply(ctx, appliers.Operation{TenantID: "acme", Kind: "merge"})
	assert.Error(t, err)
}

func TestTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := remote.NewClient(srv.URL, "", time.Second, nil)
	srv.Close()

	_, err := remote.NewApplier(client, "invoices", nil).Apply(context.Background(), appliers.Operation{TenantID: "acme", Kind: "create"})
	var remoteErr *remote.Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Zero(t, remoteErr.Status)
	assert.True(t, remoteErr.Retryable)
}

func TestEngineReplaysThroughRemoteAndMirrors(t *testing.T) {
	var nextID atomic.Int32
	fake, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			body, _ := json.Marshal(map[string]any{"id": nextID.Add(1), "name": "Acme"})
			_, _ = w.Write(body)
		case http.MethodPut:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	writer := queue.NewWriter(store)
	registry := appliers.NewRegistry()
	require.NoError(t, remote.Register(registry, client, []string{" partners ", " "}, store))
	assert.Equal(t, []string{"partners"}, registry.EntityTypes())

	testsupport.EnqueueKeyed(t, writer, "acme", queue.OpCreate, "partners", "local-1", map[string]string{"name": "Acme"})
	testsupport.EnqueueKeyed(t, writer, "acme", queue.OpUpdate, "partners", "local-1", map[string]string{"name": "Acme Ltd"})

	engine := syncengine.New(store, registry, online{}, syncengine.Options{DeferDependents: true})
	res, err := engine.RunPass(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)

	reqs := fake.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/tenants/acme/partners/1", reqs[1].Path)

	mirrored, err := store.GetMirror(context.Background(), "acme", "partners", "1")
	require.NoError(t, err)
	require.NotNil(t, mirrored)
	assert.JSONEq(t, `{"name":"Acme Ltd"}`, string(mirrored.Data))
}

func TestRefreshMirror(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenants/acme/employees", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"e1","name":"Ada"},{"id":2,"name":"Lin"},{"name":"no id"}]`))
	})
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	n, err := client.RefreshMirror(context.Background(), store, "acme", "employees")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := store.ListMirror(context.Background(), "acme", "employees")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRegisterRequiresClient(t *testing.T) {
	err := remote.Register(appliers.NewRegistry(), nil, []string{"partners"}, nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, appliers.ErrNoApplier))
}

type online struct{}

func (online) Connected() bool { return true }
