package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"offsync/internal/config"
)

const userAgent = "offsync/0.1.0"

// Service defines the notification surface used by the daemon.
type Service interface {
	// NotifySyncFailed reports a pass that left entries failed.
	NotifySyncFailed(ctx context.Context, tenantID string, failed, synced int) error
	// NotifyBacklog reports a tenant whose pending count crossed the configured threshold.
	NotifyBacklog(ctx context.Context, tenantID string, pending int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifySyncFailed(ctx context.Context, tenantID string, failed, synced int) error {
	tenantID = strings.TrimSpace(tenantID)
	message := fmt.Sprintf("%d entries failed to sync for %s", failed, tenantID)
	if synced > 0 {
		message += fmt.Sprintf(" (%d synced)", synced)
	}
	message += "\nReview with `offsync list --status failed` and requeue once fixed"
	return n.send(ctx, payload{
		title:    "offsync - Sync Failed",
		message:  message,
		tags:     []string{"offsync", "sync", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyBacklog(ctx context.Context, tenantID string, pending int) error {
	return n.send(ctx, payload{
		title:   "offsync - Backlog",
		message: fmt.Sprintf("%d entries waiting to sync for %s", pending, strings.TrimSpace(tenantID)),
		tags:    []string{"offsync", "backlog"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "offsync - Test",
		message:  "Notification system test",
		tags:     []string{"offsync", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySyncFailed(context.Context, string, int, int) error { return nil }
func (noopService) NotifyBacklog(context.Context, string, int) error         { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
