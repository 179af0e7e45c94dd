package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"offsync/internal/config"
	"offsync/internal/notifications"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), requests...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifySyncFailed(context.Background(), "acme", 2, 1); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("expected nil config to yield noop, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, requests := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifySyncFailed(ctx, "acme", 2, 3); err != nil {
		t.Fatalf("NotifySyncFailed: %v", err)
	}
	if err := svc.NotifyBacklog(ctx, "globex", 40); err != nil {
		t.Fatalf("NotifyBacklog: %v", err)
	}

	got := requests()
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	failed := got[0]
	if failed.title != "offsync - Sync Failed" || failed.priority != "high" || failed.tags != "offsync,sync,failed" {
		t.Fatalf("unexpected failure headers %+v", failed)
	}
	if !strings.Contains(failed.body, "2 entries failed to sync for acme (3 synced)") {
		t.Fatalf("unexpected failure body %q", failed.body)
	}
	backlog := got[1]
	if backlog.priority != "" || backlog.body != "40 entries waiting to sync for globex" {
		t.Fatalf("unexpected backlog request %+v", backlog)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
