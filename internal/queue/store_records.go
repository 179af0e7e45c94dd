package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PutRemoteID records the remote identifier assigned to an offline-created record.
func (s *Store) PutRemoteID(ctx context.Context, mapping RemoteID) error {
	if mapping.TenantID == "" || mapping.EntityType == "" || mapping.RecordKey == "" || mapping.RemoteID == "" {
		return fmt.Errorf("%w: remote id mapping requires tenant, entity type, record key and remote id", ErrInvalidEntry)
	}
	if mapping.UpdatedAt.IsZero() {
		mapping.UpdatedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx, "put remote id",
		`INSERT INTO remote_ids (tenant_id, entity_type, record_key, remote_id, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (tenant_id, entity_type, record_key)
        DO UPDATE SET remote_id = excluded.remote_id, updated_at = excluded.updated_at`,
		mapping.TenantID, mapping.EntityType, mapping.RecordKey, mapping.RemoteID, formatTime(mapping.UpdatedAt),
	)
	return err
}

// LookupRemoteID resolves a record key to its remote identifier. The boolean
// is false when no mapping exists.
func (s *Store) LookupRemoteID(ctx context.Context, tenantID, entityType, recordKey string) (string, bool, error) {
	var remoteID string
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT remote_id FROM remote_ids WHERE tenant_id = ? AND entity_type = ? AND record_key = ?`,
		tenantID, entityType, recordKey,
	).Scan(&remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageError("lookup remote id", err)
	}
	return remoteID, true, nil
}

// PutMirror stores or replaces the local copy of a remote record.
func (s *Store) PutMirror(ctx context.Context, record MirrorRecord) error {
	if record.TenantID == "" || record.EntityType == "" || record.RemoteID == "" {
		return fmt.Errorf("%w: mirror record requires tenant, entity type and remote id", ErrInvalidEntry)
	}
	if len(record.Data) == 0 || !json.Valid(record.Data) {
		return fmt.Errorf("%w: mirror data must be valid JSON", ErrInvalidEntry)
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx, "put mirror record",
		`INSERT INTO mirror_records (tenant_id, entity_type, remote_id, data, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (tenant_id, entity_type, remote_id)
        DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		record.TenantID, record.EntityType, record.RemoteID, string(record.Data), formatTime(record.UpdatedAt),
	)
	return err
}

// GetMirror returns a mirrored record, or nil, nil when it is not mirrored.
func (s *Store) GetMirror(ctx context.Context, tenantID, entityType, remoteID string) (*MirrorRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT tenant_id, entity_type, remote_id, data, updated_at FROM mirror_records
        WHERE tenant_id = ? AND entity_type = ? AND remote_id = ?`,
		tenantID, entityType, remoteID,
	)
	record, err := scanMirror(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get mirror record", err)
	}
	return record, nil
}

// ListMirror returns a tenant's mirrored records of one entity type.
func (s *Store) ListMirror(ctx context.Context, tenantID, entityType string) ([]*MirrorRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT tenant_id, entity_type, remote_id, data, updated_at FROM mirror_records
        WHERE tenant_id = ? AND entity_type = ? ORDER BY remote_id`,
		tenantID, entityType,
	)
	if err != nil {
		return nil, storageError("list mirror records", err)
	}
	defer rows.Close()
	var records []*MirrorRecord
	for rows.Next() {
		record, err := scanMirror(rows)
		if err != nil {
			return nil, storageError("scan mirror record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate mirror records", err)
	}
	return records, nil
}

// DeleteMirror removes a mirrored record. It reports whether a row was removed.
func (s *Store) DeleteMirror(ctx context.Context, tenantID, entityType, remoteID string) (bool, error) {
	n, err := s.execAffected(ctx, "delete mirror record",
		`DELETE FROM mirror_records WHERE tenant_id = ? AND entity_type = ? AND remote_id = ?`,
		tenantID, entityType, remoteID,
	)
	return n > 0, err
}

func scanMirror(scanner interface{ Scan(dest ...any) error }) (*MirrorRecord, error) {
	var (
		record     MirrorRecord
		data       string
		updatedRaw string
	)
	if err := scanner.Scan(&record.TenantID, &record.EntityType, &record.RemoteID, &data, &updatedRaw); err != nil {
		return nil, err
	}
	record.Data = json.RawMessage(data)
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return &record, nil
}
