package api

import (
	"time"

	"offsync/internal/connectivity"
	"offsync/internal/logging"
	"offsync/internal/queue"
	"offsync/internal/syncengine"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromEntry converts a queue entry to its API representation.
func FromEntry(entry *queue.Entry) QueueEntry {
	if entry == nil {
		return QueueEntry{}
	}
	dto := QueueEntry{
		ID:           entry.ID,
		TenantID:     entry.TenantID,
		UserID:       entry.UserID,
		Operation:    string(entry.Operation),
		EntityType:   entry.EntityType,
		RecordID:     entry.RecordID,
		RecordKey:    entry.RecordKey,
		Payload:      entry.Payload,
		Status:       string(entry.Status),
		ErrorMessage: entry.ErrorMessage,
		RetryCount:   entry.RetryCount,
		CreatedAt:    formatTime(entry.CreatedAt),
		UpdatedAt:    formatTime(entry.UpdatedAt),
	}
	if entry.SyncedAt != nil {
		dto.SyncedAt = formatTime(*entry.SyncedAt)
	}
	return dto
}

// FromEntries converts a slice of entries, preserving order.
func FromEntries(entries []*queue.Entry) []QueueEntry {
	out := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromEntry(entry))
	}
	return out
}

// FromPassResult converts a sync pass summary.
func FromPassResult(res syncengine.PassResult) PassResult {
	return PassResult{
		PassID:     res.PassID,
		TenantID:   res.TenantID,
		Synced:     res.Synced,
		Failed:     res.Failed,
		Deferred:   res.Deferred,
		Unhandled:  res.Unhandled,
		Skipped:    res.Skipped,
		DurationMS: res.Duration.Milliseconds(),
	}
}

// FromConnectivity converts a connectivity snapshot.
func FromConnectivity(status connectivity.Status) ConnectivityStatus {
	return ConnectivityStatus{
		State:        string(status.State),
		Observed:     string(status.Observed),
		Since:        formatTime(status.Since),
		LastProbeErr: status.LastProbeErr,
		Regained:     status.Regained,
	}
}

// StatusCounts renders per-status counts with every status present.
func StatusCounts(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// FromLogEvents converts hub events to their API representation.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: evt.Timestamp,
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			TenantID:  evt.TenantID,
			EntryID:   evt.EntryID,
			PassID:    evt.PassID,
			EventType: evt.EventType,
			Fields:    evt.Fields,
		})
	}
	return out
}
