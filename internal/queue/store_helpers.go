package queue

import (
	"database/sql"
	"errors"
	"time"
)

const entryColumns = "seq, id, tenant_id, user_id, operation, entity_type, payload, record_id, record_key, status, error_message, retry_count, created_at, updated_at, synced_at"

var expectedEntryColumns = []string{
	"seq",
	"id",
	"tenant_id",
	"user_id",
	"operation",
	"entity_type",
	"payload",
	"record_id",
	"record_key",
	"status",
	"error_message",
	"retry_count",
	"created_at",
	"updated_at",
	"synced_at",
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		seq          int64
		id           string
		tenantID     string
		userID       sql.NullString
		operation    string
		entityType   string
		payload      string
		recordID     sql.NullString
		recordKey    sql.NullString
		status       string
		errorMessage sql.NullString
		retryCount   int
		createdNanos int64
		updatedRaw   sql.NullString
		syncedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&seq,
		&id,
		&tenantID,
		&userID,
		&operation,
		&entityType,
		&payload,
		&recordID,
		&recordKey,
		&status,
		&errorMessage,
		&retryCount,
		&createdNanos,
		&updatedRaw,
		&syncedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		Seq:          seq,
		ID:           id,
		TenantID:     tenantID,
		UserID:       userID.String,
		Operation:    Operation(operation),
		EntityType:   entityType,
		Payload:      []byte(payload),
		RecordID:     recordID.String,
		RecordKey:    recordKey.String,
		Status:       Status(status),
		ErrorMessage: errorMessage.String,
		RetryCount:   retryCount,
		CreatedAt:    time.Unix(0, createdNanos).UTC(),
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	if syncedRaw.Valid {
		if synced, err := parseTimeString(syncedRaw.String); err == nil {
			entry.SyncedAt = &synced
		}
	}
	return entry, nil
}

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timestampLayout is fixed width so stored timestamps compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, value := range values {
		args = append(args, value)
	}
	return args
}
