package api

import (
	"testing"
	"time"

	"offsync/internal/connectivity"
	"offsync/internal/logging"
	"offsync/internal/queue"
	"offsync/internal/syncengine"
)

func TestFromEntryFormatsTimestamps(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	synced := created.Add(time.Minute)
	dto := FromEntry(&queue.Entry{
		ID:         "01",
		TenantID:   "acme",
		Operation:  queue.OpUpdate,
		EntityType: "partners",
		RecordID:   "42",
		Payload:    []byte(`{"name":"x"}`),
		Status:     queue.StatusSynced,
		RetryCount: 2,
		CreatedAt:  created,
		UpdatedAt:  synced,
		SyncedAt:   &synced,
	})
	if dto.CreatedAt != "2026-03-01T11:00:00.123Z" {
		t.Fatalf("unexpected createdAt %q", dto.CreatedAt)
	}
	if dto.SyncedAt != "2026-03-01T11:01:00.123Z" {
		t.Fatalf("unexpected syncedAt %q", dto.SyncedAt)
	}
	if dto.Operation != "update" || dto.Status != "synced" || dto.RetryCount != 2 {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if string(dto.Payload) != `{"name":"x"}` {
		t.Fatalf("payload not preserved: %s", dto.Payload)
	}
}

func TestFromEntryNil(t *testing.T) {
	if dto := FromEntry(nil); dto.ID != "" {
		t.Fatalf("expected zero dto, got %+v", dto)
	}
}

func TestFromPassResultUsesMilliseconds(t *testing.T) {
	dto := FromPassResult(syncengine.PassResult{PassID: "p", TenantID: "acme", Synced: 3, Deferred: 1, Duration: 1500 * time.Millisecond})
	if dto.DurationMS != 1500 || dto.Synced != 3 || dto.Deferred != 1 {
		t.Fatalf("unexpected dto %+v", dto)
	}
}

func TestStatusCountsIncludesEveryStatus(t *testing.T) {
	counts := StatusCounts(map[queue.Status]int{queue.StatusFailed: 2})
	for _, status := range queue.AllStatuses() {
		if _, ok := counts[string(status)]; !ok {
			t.Fatalf("missing status %s", status)
		}
	}
	if counts["failed"] != 2 || counts["pending"] != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestFromConnectivityOmitsZeroSince(t *testing.T) {
	dto := FromConnectivity(connectivity.Status{State: connectivity.StateUnknown, Observed: connectivity.StateUnknown})
	if dto.Since != "" || dto.State != "unknown" {
		t.Fatalf("unexpected dto %+v", dto)
	}
}

func TestFromLogEvents(t *testing.T) {
	if FromLogEvents(nil) != nil {
		t.Fatal("expected nil for no events")
	}
	out := FromLogEvents([]logging.LogEvent{{Sequence: 7, Message: "hi", TenantID: "acme", Fields: map[string]string{"k": "v"}}})
	if len(out) != 1 || out[0].Sequence != 7 || out[0].TenantID != "acme" || out[0].Fields["k"] != "v" {
		t.Fatalf("unexpected events %+v", out)
	}
}
