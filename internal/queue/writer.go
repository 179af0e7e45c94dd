package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"offsync/internal/clock"
)

// Writer records mutations as pending entries. It never contacts the remote store.
type Writer struct {
	store *Store
	clock clock.Clock
	newID func() (string, error)
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithClock overrides the clock used for created_at.
func WithClock(c clock.Clock) WriterOption {
	return func(w *Writer) {
		w.clock = clock.OrReal(c)
	}
}

// NewWriter returns a Writer backed by store.
func NewWriter(store *Store, opts ...WriterOption) *Writer {
	w := &Writer{
		store: store,
		clock: clock.Real{},
		newID: newEntryID,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// newEntryID returns a UUIDv7: a millisecond timestamp prefix plus random
// bits, unique even when many entries share a clock tick.
func newEntryID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Enqueue validates req and persists it as exactly one pending entry.
func (w *Writer) Enqueue(ctx context.Context, req EnqueueRequest) (*Entry, error) {
	entry, err := w.build(req)
	if err != nil {
		return nil, err
	}
	if err := w.store.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (w *Writer) build(req EnqueueRequest) (*Entry, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidEntry)
	}
	entityType := strings.TrimSpace(req.EntityType)
	if entityType == "" {
		return nil, fmt.Errorf("%w: entity_type is required", ErrInvalidEntry)
	}
	op, ok := ParseOperation(string(req.Operation))
	if !ok {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidEntry, req.Operation)
	}
	recordID := strings.TrimSpace(req.RecordID)
	recordKey := strings.TrimSpace(req.RecordKey)
	if op != OpCreate && recordID == "" && recordKey == "" {
		return nil, fmt.Errorf("%w: %s requires record_id or record_key", ErrInvalidEntry, op)
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload must be valid JSON", ErrInvalidEntry)
	}

	id, err := w.newID()
	if err != nil {
		return nil, fmt.Errorf("generate entry id: %w", err)
	}
	now := w.clock.Now().UTC()
	return &Entry{
		ID:         id,
		TenantID:   tenantID,
		UserID:     strings.TrimSpace(req.UserID),
		Operation:  op,
		EntityType: entityType,
		Payload:    append(json.RawMessage(nil), payload...),
		RecordID:   recordID,
		RecordKey:  recordKey,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
