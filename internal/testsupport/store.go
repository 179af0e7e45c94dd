package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"offsync/internal/config"
	"offsync/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue records an entry through writer and fails the test on error.
func Enqueue(t testing.TB, writer *queue.Writer, tenantID string, op queue.Operation, entityType, recordID string, payload any) *queue.Entry {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	entry, err := writer.Enqueue(context.Background(), queue.EnqueueRequest{
		TenantID:   tenantID,
		UserID:     "user-1",
		Operation:  op,
		EntityType: entityType,
		RecordID:   recordID,
		Payload:    raw,
	})
	if err != nil {
		t.Fatalf("writer.Enqueue: %v", err)
	}
	return entry
}

// MustGet fetches an entry that the test expects to exist.
func MustGet(t testing.TB, store *queue.Store, id string) *queue.Entry {
	t.Helper()

	entry, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetByID: %v", err)
	}
	if entry == nil {
		t.Fatalf("entry %s not found", id)
	}
	return entry
}

// EnqueueKeyed records an entry addressed by a local record key, as used for
// records created while offline.
func EnqueueKeyed(t testing.TB, writer *queue.Writer, tenantID string, op queue.Operation, entityType, recordKey string, payload any) *queue.Entry {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	entry, err := writer.Enqueue(context.Background(), queue.EnqueueRequest{
		TenantID:   tenantID,
		UserID:     "user-1",
		Operation:  op,
		EntityType: entityType,
		RecordKey:  recordKey,
		Payload:    raw,
	})
	if err != nil {
		t.Fatalf("writer.Enqueue: %v", err)
	}
	return entry
}
