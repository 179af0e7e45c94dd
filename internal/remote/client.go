package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"offsync/internal/config"
	"offsync/internal/logging"
)

const maxErrorBody = 512

// Client issues authenticated JSON requests to the remote store.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient constructs a Client. A zero timeout falls back to 30s.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "remote"),
	}
}

// NewFromConfig builds a Client from the [remote] section. It returns nil
// when no base URL is configured.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	if cfg == nil || strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return nil
	}
	return NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.RemoteTimeout(), logger)
}

func (c *Client) recordURL(tenantID, entityType string, id ...string) string {
	parts := []string{c.baseURL, "tenants", url.PathEscape(tenantID), url.PathEscape(entityType)}
	for _, part := range id {
		parts = append(parts, url.PathEscape(part))
	}
	return strings.Join(parts, "/")
}

// do sends body (nil for none) and returns the response body on 2xx.
func (c *Client) do(ctx context.Context, method, target, idempotencyKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &Error{Method: method, URL: target, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(payload))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return resp.StatusCode, nil, &Error{
			Method:    method,
			URL:       target,
			Status:    resp.StatusCode,
			Body:      snippet,
			Retryable: retryableStatus(resp.StatusCode),
		}
	}
	if readErr != nil {
		return resp.StatusCode, nil, &Error{Method: method, URL: target, Status: resp.StatusCode, Retryable: true, Err: readErr}
	}
	return resp.StatusCode, payload, nil
}

// decodeID extracts "id" from a JSON object, accepting strings and numbers.
func decodeID(body []byte) (string, error) {
	var doc struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	raw := bytes.TrimSpace(doc.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String(), nil
	}
	return "", fmt.Errorf("decode response: unsupported id %s", raw)
}
