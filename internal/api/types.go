package api

import (
	"encoding/json"
	"time"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueEntry describes a queue entry in a transport-friendly format.
type QueueEntry struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	UserID       string          `json:"userId,omitempty"`
	Operation    string          `json:"operation"`
	EntityType   string          `json:"entityType"`
	RecordID     string          `json:"recordId,omitempty"`
	RecordKey    string          `json:"recordKey,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	RetryCount   int             `json:"retryCount"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
	SyncedAt     string          `json:"syncedAt,omitempty"`
}

// EnqueueRequest is the body of POST /api/tenants/{tenant}/entries.
type EnqueueRequest struct {
	UserID     string          `json:"userId"`
	Operation  string          `json:"operation"`
	EntityType string          `json:"entityType"`
	RecordID   string          `json:"recordId,omitempty"`
	RecordKey  string          `json:"recordKey,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EntryResponse wraps a single queue entry.
type EntryResponse struct {
	Entry QueueEntry `json:"entry"`
}

// EntryListResponse wraps a collection of queue entries.
type EntryListResponse struct {
	Entries []QueueEntry `json:"entries"`
}

// PendingResponse reports a tenant's pending count.
type PendingResponse struct {
	TenantID string `json:"tenantId"`
	Pending  int    `json:"pending"`
}

// PassResult mirrors a sync pass summary.
type PassResult struct {
	PassID     string `json:"passId"`
	TenantID   string `json:"tenantId"`
	Synced     int    `json:"synced"`
	Failed     int    `json:"failed"`
	Deferred   int    `json:"deferred"`
	Unhandled  int    `json:"unhandled"`
	Skipped    bool   `json:"skipped"`
	DurationMS int64  `json:"durationMs"`
}

// RequeueRequest selects failed entries to requeue; empty means all.
type RequeueRequest struct {
	IDs []string `json:"ids,omitempty"`
}

// CountResponse reports how many entries an action touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// ConnectivityRequest is a manual connectivity report.
type ConnectivityRequest struct {
	Connected bool `json:"connected"`
}

// ConnectivityStatus describes the connectivity monitor.
type ConnectivityStatus struct {
	State        string `json:"state"`
	Observed     string `json:"observed"`
	Since        string `json:"since,omitempty"`
	LastProbeErr string `json:"lastProbeError,omitempty"`
	Regained     int    `json:"regained"`
}

// TenantStatus summarizes one tenant's queue.
type TenantStatus struct {
	TenantID string         `json:"tenantId"`
	Counts   map[string]int `json:"counts"`
	LastPass *PassResult    `json:"lastPass,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Connectivity ConnectivityStatus `json:"connectivity"`
	Tenants      []TenantStatus     `json:"tenants"`
	Appliers     []string           `json:"appliers"`
}

// LogEvent is one structured log line.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	TenantID  string            `json:"tenantId,omitempty"`
	EntryID   string            `json:"entryId,omitempty"`
	PassID    string            `json:"passId,omitempty"`
	EventType string            `json:"eventType,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is a page of log events and the cursor for the next page.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
