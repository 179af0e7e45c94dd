package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"offsync/internal/api"
)

func TestNewClientEmptyBind(t *testing.T) {
	client, err := api.NewClient("  ", "")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client for empty bind")
	}
	var nilClient *api.Client
	if _, err := nilClient.Status(context.Background()); !errors.Is(err, api.ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable from nil client, got %v", err)
	}
}

func TestClientSendsTokenAndDecodes(t *testing.T) {
	var (
		gotAuth   string
		gotPath   string
		gotMethod string
		gotBody   api.EnqueueRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.EscapedPath()
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.EntryResponse{Entry: api.QueueEntry{ID: "e1", TenantID: "acme", Status: "pending"}})
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	entry, err := client.Enqueue(context.Background(), "acme corp", api.EnqueueRequest{Operation: "create", EntityType: "partners"})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if entry.ID != "e1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/tenants/acme%20corp/entries" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotBody.EntityType != "partners" || gotBody.Operation != "create" {
		t.Fatalf("unexpected body %+v", gotBody)
	}
}

func TestClientListBuildsStatusQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(api.EntryListResponse{Entries: []api.QueueEntry{{ID: "a"}, {ID: "b"}}})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	entries, err := client.List(context.Background(), "acme", []string{"failed", " ", "pending"})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := gotQuery["status"]; len(got) != 2 || got[0] != "failed" || got[1] != "pending" {
		t.Fatalf("unexpected status query %v", got)
	}
}

func TestClientLogsQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(api.LogStreamResponse{Events: []api.LogEvent{{Sequence: 4, Message: "hi"}}, Next: 4})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	resp, err := client.Logs(context.Background(), api.LogQuery{Since: 3, Limit: 10, Follow: true, TenantID: "acme"})
	if err != nil {
		t.Fatalf("Logs error: %v", err)
	}
	if resp.Next != 4 || len(resp.Events) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	for key, want := range map[string]string{"since": "3", "limit": "10", "follow": "1", "tenant": "acme"} {
		if got := gotQuery.Get(key); got != want {
			t.Fatalf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestClientStatusErrorCarriesKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "disk full", Kind: "quota_exceeded"})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	_, err := client.Pending(context.Background(), "acme")
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusServiceUnavailable || statusErr.Kind != "quota_exceeded" {
		t.Fatalf("unexpected error %+v", statusErr)
	}
	if api.IsAPIUnavailable(err) {
		t.Fatal("status errors are not unavailability")
	}
}

func TestIsAPIUnavailableOnRefusedConnection(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	client, _ := api.NewClient(addr, "")
	_, err := client.Status(context.Background())
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if !api.IsAPIUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
