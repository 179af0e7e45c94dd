package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sqlite3 "modernc.org/sqlite"
)

var (
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("local storage failure")
	// ErrNotFound reports a missing entry.
	ErrNotFound = errors.New("queue entry not found")
	// ErrInvalidEntry reports an enqueue request that cannot be recorded.
	ErrInvalidEntry = errors.New("invalid queue entry")
	// ErrInvalidTransition reports a status change whose source status no longer holds.
	ErrInvalidTransition = errors.New("invalid queue status transition")
)

// StorageKind classifies a local storage failure.
type StorageKind string

const (
	StorageUnavailable   StorageKind = "unavailable"
	StorageQuotaExceeded StorageKind = "quota_exceeded"
	StorageCorrupt       StorageKind = "corrupt"
	StorageBusy          StorageKind = "busy"
	StorageReadOnly      StorageKind = "read_only"
	StorageConstraint    StorageKind = "constraint"
	StorageIO            StorageKind = "io"
)

// Primary SQLite result codes; extended codes keep these in the low byte.
const (
	sqliteBusyCode       = 5
	sqliteLockedCode     = 6
	sqliteReadOnlyCode   = 8
	sqliteIOErrCode      = 10
	sqliteCorruptCode    = 11
	sqliteFullCode       = 13
	sqliteCantOpenCode   = 14
	sqliteConstraintCode = 19
	sqliteNotADBCode     = 26
)

// StorageError wraps a failure of the local database.
type StorageError struct {
	Op   string
	Kind StorageKind
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s storage error: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage as a match so callers need not know the concrete type.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// ErrorKind implements the classification contract shared with other packages.
func (e *StorageError) ErrorKind() string { return string(e.Kind) }

// StorageKindOf returns the kind of a storage error, or "" if err is not one.
func StorageKindOf(err error) StorageKind {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Kind
	}
	return ""
}

// storageError wraps err as a *StorageError unless it is nil, already
// classified, or a context cancellation.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var existing *StorageError
	if errors.As(err, &existing) {
		return err
	}
	return &StorageError{Op: op, Kind: classifyStorage(err), Err: err}
}

func sqliteCode(err error) (int, bool) {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() & 0xff, true
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code() & 0xff, true
	}
	return 0, false
}

func classifyStorage(err error) StorageKind {
	if code, ok := sqliteCode(err); ok {
		switch code {
		case sqliteBusyCode, sqliteLockedCode:
			return StorageBusy
		case sqliteReadOnlyCode:
			return StorageReadOnly
		case sqliteCorruptCode, sqliteNotADBCode:
			return StorageCorrupt
		case sqliteFullCode:
			return StorageQuotaExceeded
		case sqliteCantOpenCode:
			return StorageUnavailable
		case sqliteConstraintCode:
			return StorageConstraint
		}
		return StorageIO
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "sqlite_busy"):
		return StorageBusy
	case strings.Contains(msg, "disk is full"), strings.Contains(msg, "no space left"), strings.Contains(msg, "quota"):
		return StorageQuotaExceeded
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "not a database"):
		return StorageCorrupt
	case strings.Contains(msg, "readonly"), strings.Contains(msg, "read-only"):
		return StorageReadOnly
	case strings.Contains(msg, "unable to open"), strings.Contains(msg, "database is closed"):
		return StorageUnavailable
	}
	return StorageIO
}
