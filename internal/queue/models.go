package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a queue entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusSyncing,
	StatusSynced,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Operation is the kind of mutation an entry replays.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ParseOperation converts a string into a known Operation.
func ParseOperation(value string) (Operation, bool) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(value))); op {
	case OpCreate, OpUpdate, OpDelete:
		return op, true
	default:
		return "", false
	}
}

// Entry is one recorded mutation awaiting or past replay.
type Entry struct {
	Seq          int64           `json:"seq"`
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	UserID       string          `json:"user_id"`
	Operation    Operation       `json:"operation"`
	EntityType   string          `json:"entity_type"`
	Payload      json.RawMessage `json:"payload"`
	RecordID     string          `json:"record_id,omitempty"`
	RecordKey    string          `json:"record_key,omitempty"`
	Status       Status          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	SyncedAt     *time.Time      `json:"synced_at,omitempty"`
}

// DependencyKey identifies the logical record an entry mutates. Entries with
// an empty key are independent of every other entry.
func (e Entry) DependencyKey() string {
	switch {
	case e.RecordKey != "":
		return e.EntityType + "\x00key\x00" + e.RecordKey
	case e.RecordID != "":
		return e.EntityType + "\x00id\x00" + e.RecordID
	default:
		return ""
	}
}

// EnqueueRequest carries the caller-supplied fields of a new entry.
type EnqueueRequest struct {
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id"`
	Operation  Operation       `json:"operation"`
	EntityType string          `json:"entity_type"`
	RecordID   string          `json:"record_id,omitempty"`
	RecordKey  string          `json:"record_key,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// RemoteID maps a record created offline to the identifier the remote store assigned.
type RemoteID struct {
	TenantID   string
	EntityType string
	RecordKey  string
	RemoteID   string
	UpdatedAt  time.Time
}

// MirrorRecord is a local copy of a remote record kept for offline reads.
type MirrorRecord struct {
	TenantID   string          `json:"tenant_id"`
	EntityType string          `json:"entity_type"`
	RemoteID   string          `json:"remote_id"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// HealthSummary describes aggregated entry counts per status.
type HealthSummary struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present,omitempty"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalEntries     int      `json:"total_entries"`
	Error            string   `json:"error,omitempty"`
}
