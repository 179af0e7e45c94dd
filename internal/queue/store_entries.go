package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Insert persists a new pending entry and assigns its insertion sequence.
// Only the Writer should call it.
func (s *Store) Insert(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	if entry.Status != StatusPending {
		return fmt.Errorf("%w: new entries must be pending, got %s", ErrInvalidEntry, entry.Status)
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	// created_at never moves backwards within a tenant, so replay order
	// stays insertion order when the wall clock steps back.
	ctx = ensureContext(ctx)
	var (
		seq          int64
		createdNanos int64
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(
			ctx,
			`INSERT INTO queue_entries (
            id, tenant_id, user_id, operation, entity_type, payload, record_id, record_key,
            status, retry_count, created_at, updated_at
        ) VALUES (
            ?, ?, ?, ?, ?, ?, ?, ?, ?, 0,
            MAX(?, COALESCE((SELECT MAX(created_at) FROM queue_entries WHERE tenant_id = ?), 0)),
            ?
        ) RETURNING seq, created_at`,
			entry.ID,
			entry.TenantID,
			entry.UserID,
			string(entry.Operation),
			entry.EntityType,
			string(entry.Payload),
			nullableString(entry.RecordID),
			nullableString(entry.RecordKey),
			string(entry.Status),
			entry.CreatedAt.UnixNano(),
			entry.TenantID,
			formatTime(entry.UpdatedAt),
		).Scan(&seq, &createdNanos)
	})
	if err != nil {
		return storageError("insert queue entry", err)
	}
	entry.Seq = seq
	entry.CreatedAt = time.Unix(0, createdNanos).UTC()
	entry.RetryCount = 0
	return nil
}

// GetByID fetches an entry by its identifier. It returns nil, nil when the
// entry does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get queue entry", err)
	}
	return entry, nil
}

// ListFilter narrows List results. Zero values mean "no restriction".
type ListFilter struct {
	TenantID string
	Statuses []Status
	Limit    int
}

// List returns entries in replay order.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	query := `SELECT ` + entryColumns + ` FROM queue_entries`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, seq"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, storageError("list queue entries", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, storageError("scan queue entries", err)
	}
	return entries, nil
}

// ListByTenant returns a tenant's entries, optionally restricted to statuses.
func (s *Store) ListByTenant(ctx context.Context, tenantID string, statuses ...Status) ([]*Entry, error) {
	return s.List(ctx, ListFilter{TenantID: tenantID, Statuses: statuses})
}

// PendingForTenant returns the tenant's pending entries ordered by
// (created_at, seq). The slice is a snapshot; entries enqueued afterwards are
// not included.
func (s *Store) PendingForTenant(ctx context.Context, tenantID string) ([]*Entry, error) {
	return s.List(ctx, ListFilter{TenantID: tenantID, Statuses: []Status{StatusPending}})
}

// CountByStatus returns how many of the tenant's entries have status.
func (s *Store) CountByStatus(ctx context.Context, tenantID string, status Status) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM queue_entries WHERE tenant_id = ? AND status = ?`,
		tenantID,
		string(status),
	).Scan(&count)
	if err != nil {
		return 0, storageError("count queue entries", err)
	}
	return count, nil
}

// Tenants returns the distinct tenants that have entries in the store.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT DISTINCT tenant_id FROM queue_entries ORDER BY tenant_id`)
	if err != nil {
		return nil, storageError("list tenants", err)
	}
	defer rows.Close()
	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, storageError("scan tenant", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate tenants", err)
	}
	return tenants, nil
}

// FailedDependencyKeys returns the dependency keys of the tenant's failed entries.
func (s *Store) FailedDependencyKeys(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	failed, err := s.ListByTenant(ctx, tenantID, StatusFailed)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(failed))
	for _, entry := range failed {
		if key := entry.DependencyKey(); key != "" {
			keys[key] = struct{}{}
		}
	}
	return keys, nil
}

// ListByStatus returns entries of every tenant with status.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Entry, error) {
	return s.List(ctx, ListFilter{Statuses: []Status{status}})
}
