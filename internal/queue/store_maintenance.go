package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Stats returns a count of entries grouped by status. An empty tenantID
// aggregates across tenants.
func (s *Store) Stats(ctx context.Context, tenantID string) (map[Status]int, error) {
	query := `SELECT status, COUNT(1) FROM queue_entries`
	var args []any
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` GROUP BY status`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, storageError("queue stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storageError("scan queue stats", err)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate queue stats", err)
	}
	return stats, nil
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context, tenantID string) (HealthSummary, error) {
	stats, err := s.Stats(ctx, tenantID)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusSyncing:
			health.Syncing += count
		case StatusSynced:
			health.Synced += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// PurgeSynced deletes the tenant's synced entries. Entries in any other status
// are never removed.
func (s *Store) PurgeSynced(ctx context.Context, tenantID string) (int64, error) {
	return s.execAffected(ctx, "purge synced entries",
		`DELETE FROM queue_entries WHERE tenant_id = ? AND status = ?`,
		tenantID, string(StatusSynced),
	)
}

// PurgeSyncedBefore deletes the tenant's entries that were synced before cutoff.
func (s *Store) PurgeSyncedBefore(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	return s.execAffected(ctx, "purge synced entries",
		`DELETE FROM queue_entries WHERE tenant_id = ? AND status = ? AND synced_at IS NOT NULL AND synced_at < ?`,
		tenantID, string(StatusSynced), formatTime(cutoff),
	)
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath: s.path,
	}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, storageError("ping queue database", err)
	}
	health.DatabaseReadable = true

	if version, err := s.SchemaVersion(connCtx); err == nil {
		health.SchemaVersion = version
	}

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'queue_entries'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		colsRows, err := s.db.QueryContext(connCtx, "PRAGMA table_info(queue_entries)")
		if err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("table info: %w", err)
		}
		var columns []string
		for colsRows.Next() {
			var (
				cid     int
				name    string
				typeStr string
				notNull int
				dflt    any
				pk      int
			)
			if err := colsRows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
				_ = colsRows.Close()
				health.Error = err.Error()
				return health, fmt.Errorf("scan table info: %w", err)
			}
			columns = append(columns, name)
		}
		if err := colsRows.Err(); err != nil {
			_ = colsRows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("iterate table info: %w", err)
		}
		// The pool holds a single connection; release it before the next query.
		_ = colsRows.Close()
		health.ColumnsPresent = append(health.ColumnsPresent, columns...)

		expected := expectedEntryColumns
		missingMap := make(map[string]struct{}, len(expected))
		for _, col := range expected {
			missingMap[col] = struct{}{}
		}
		for _, col := range columns {
			delete(missingMap, col)
		}
		for col := range missingMap {
			health.MissingColumns = append(health.MissingColumns, col)
		}
		sort.Strings(health.MissingColumns)

		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM queue_entries")
		if err := row.Scan(&health.TotalEntries); err != nil {
			health.Error = err.Error()
			return health, storageError("count queue entries", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, storageError("integrity check", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
