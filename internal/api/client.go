package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrAPIUnavailable reports that no daemon API is configured or reachable.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// StatusError is a non-2xx reply from the daemon.
type StatusError struct {
	Status  int
	Message string
	Kind    string
}

func (e *StatusError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("daemon returned %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient returns a client for bind ("host:port" or a URL). It returns nil
// when bind is empty.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: follow mode blocks until events arrive or the caller cancels.
		http: &http.Client{},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Status: resp.StatusCode, Message: payload.Error, Kind: payload.Kind}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func tenantPath(tenantID, suffix string) string {
	return "/api/tenants/" + url.PathEscape(tenantID) + "/" + suffix
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Enqueue records a new entry for tenantID.
func (c *Client) Enqueue(ctx context.Context, tenantID string, req EnqueueRequest) (QueueEntry, error) {
	var out EntryResponse
	err := c.do(ctx, http.MethodPost, tenantPath(tenantID, "entries"), nil, req, &out)
	return out.Entry, err
}

// List returns the tenant's entries, optionally filtered by status.
func (c *Client) List(ctx context.Context, tenantID string, statuses []string) ([]QueueEntry, error) {
	query := url.Values{}
	for _, status := range statuses {
		if status = strings.TrimSpace(status); status != "" {
			query.Add("status", status)
		}
	}
	var out EntryListResponse
	err := c.do(ctx, http.MethodGet, tenantPath(tenantID, "entries"), query, nil, &out)
	return out.Entries, err
}

// Pending returns the tenant's pending count.
func (c *Client) Pending(ctx context.Context, tenantID string) (int, error) {
	var out PendingResponse
	err := c.do(ctx, http.MethodGet, tenantPath(tenantID, "pending"), nil, nil, &out)
	return out.Pending, err
}

// Sync runs one pass for the tenant.
func (c *Client) Sync(ctx context.Context, tenantID string) (PassResult, error) {
	var out PassResult
	err := c.do(ctx, http.MethodPost, tenantPath(tenantID, "sync"), nil, nil, &out)
	return out, err
}

// Requeue moves failed entries back to pending.
func (c *Client) Requeue(ctx context.Context, tenantID string, ids []string) (int64, error) {
	var out CountResponse
	err := c.do(ctx, http.MethodPost, tenantPath(tenantID, "requeue"), nil, RequeueRequest{IDs: ids}, &out)
	return out.Count, err
}

// Purge removes the tenant's synced entries.
func (c *Client) Purge(ctx context.Context, tenantID string) (int64, error) {
	var out CountResponse
	err := c.do(ctx, http.MethodPost, tenantPath(tenantID, "purge"), nil, nil, &out)
	return out.Count, err
}

// ReportConnectivity submits a manual connectivity observation.
func (c *Client) ReportConnectivity(ctx context.Context, connected bool) (ConnectivityStatus, error) {
	var out ConnectivityStatus
	err := c.do(ctx, http.MethodPost, "/api/connectivity", nil, ConnectivityRequest{Connected: connected}, &out)
	return out, err
}

// LogQuery filters Logs.
type LogQuery struct {
	Since    uint64
	Limit    int
	Follow   bool
	TenantID string
}

// Logs fetches buffered log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (LogStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if strings.TrimSpace(q.TenantID) != "" {
		values.Set("tenant", q.TenantID)
	}
	var out LogStreamResponse
	err := c.do(ctx, http.MethodGet, "/api/logs", values, nil, &out)
	return out, err
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
