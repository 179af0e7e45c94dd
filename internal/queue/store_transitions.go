package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// transition moves one entry from -> to and fails with ErrInvalidTransition
// when the entry is missing or no longer in the from status.
func (s *Store) transition(ctx context.Context, op, id string, from Status, set string, args ...any) error {
	query := `UPDATE queue_entries SET ` + set + ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))
	n, err := s.execAffected(ctx, op, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s entry %s is not %s", ErrInvalidTransition, op, id, from)
	}
	return nil
}

// MarkSyncing claims a pending entry for replay.
func (s *Store) MarkSyncing(ctx context.Context, id string, now time.Time) error {
	return s.transition(ctx, "mark syncing", id, StatusPending,
		`status = ?, updated_at = ?`,
		string(StatusSyncing), formatTime(now),
	)
}

// MarkSynced records a successful replay.
func (s *Store) MarkSynced(ctx context.Context, id string, now time.Time) error {
	return s.transition(ctx, "mark synced", id, StatusSyncing,
		`status = ?, error_message = NULL, synced_at = ?, updated_at = ?`,
		string(StatusSynced), formatTime(now), formatTime(now),
	)
}

// MarkFailed records a failed replay and increments the retry count.
func (s *Store) MarkFailed(ctx context.Context, id, message string, now time.Time) error {
	if message == "" {
		message = "unknown error"
	}
	return s.transition(ctx, "mark failed", id, StatusSyncing,
		`status = ?, error_message = ?, retry_count = retry_count + 1, updated_at = ?`,
		string(StatusFailed), message, formatTime(now),
	)
}

// RevertToPending returns a syncing entry to pending without touching its
// retry count. Used when no applier can handle the entry.
func (s *Store) RevertToPending(ctx context.Context, id string, now time.Time) error {
	return s.transition(ctx, "revert to pending", id, StatusSyncing,
		`status = ?, updated_at = ?`,
		string(StatusPending), formatTime(now),
	)
}

// RequeueFailed moves a tenant's failed entries back to pending. With no ids
// every failed entry of the tenant is requeued. Retry counts are kept. An id
// that names no entry of the tenant fails the call with ErrNotFound before
// anything changes; listed entries that are not failed are left alone.
func (s *Store) RequeueFailed(ctx context.Context, tenantID string, now time.Time, ids ...string) (int64, error) {
	if len(ids) > 0 {
		if err := s.requireEntries(ctx, tenantID, ids); err != nil {
			return 0, err
		}
	}
	args := []any{string(StatusPending), formatTime(now), tenantID, string(StatusFailed)}
	query := `UPDATE queue_entries
        SET status = ?, error_message = NULL, updated_at = ?
        WHERE tenant_id = ? AND status = ?`
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		args = append(args, stringArgs(ids)...)
	}
	return s.execAffected(ctx, "requeue failed entries", query, args...)
}

func (s *Store) requireEntries(ctx context.Context, tenantID string, ids []string) error {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id FROM queue_entries WHERE tenant_id = ? AND id IN (`+makePlaceholders(len(ids))+`)`,
		append([]any{tenantID}, stringArgs(ids)...)...,
	)
	if err != nil {
		return storageError("look up queue entries", err)
	}
	defer rows.Close()
	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return storageError("scan queue entry id", err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return storageError("look up queue entries", err)
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: tenant %s has no entry %s", ErrNotFound, tenantID, strings.Join(missing, ", "))
	}
	return nil
}

// RequeueFailedBelow requeues a tenant's failed entries whose retry count is
// below maxRetries.
func (s *Store) RequeueFailedBelow(ctx context.Context, tenantID string, maxRetries int, now time.Time) (int64, error) {
	return s.execAffected(ctx, "requeue failed entries",
		`UPDATE queue_entries
        SET status = ?, error_message = NULL, updated_at = ?
        WHERE tenant_id = ? AND status = ? AND retry_count < ?`,
		string(StatusPending), formatTime(now), tenantID, string(StatusFailed), maxRetries,
	)
}

// ResetSyncing returns entries stranded in syncing by an interrupted pass to
// pending. Call it once at startup before any pass runs.
func (s *Store) ResetSyncing(ctx context.Context, now time.Time) (int64, error) {
	return s.execAffected(ctx, "reset syncing entries",
		`UPDATE queue_entries SET status = ?, updated_at = ? WHERE status = ?`,
		string(StatusPending), formatTime(now), string(StatusSyncing),
	)
}
