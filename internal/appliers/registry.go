// Package appliers maps entity types to the handlers that replay queued
// operations against the remote store.
package appliers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNoApplier reports that no handler is registered for an entity type.
// It signals a configuration problem, not a failed operation.
var ErrNoApplier = errors.New("no applier registered")

// IsTransient reports whether err declares itself temporary, for example a
// network failure or a 5xx response. Transient failures still mark the entry
// failed; the flag only tells an operator that a requeue is likely to succeed.
func IsTransient(err error) bool {
	var transient interface{ Transient() bool }
	return errors.As(err, &transient) && transient.Transient()
}

// Operation is what an applier receives for one queue entry.
type Operation struct {
	EntryID    string
	TenantID   string
	Kind       string
	EntityType string
	// RecordID is the entry's record id, or the remote id resolved from
	// RecordKey when the record was created offline.
	RecordID  string
	RecordKey string
	Payload   json.RawMessage
}

// Result carries what the remote store reported back.
type Result struct {
	// RemoteID is the identifier assigned by the remote store on create.
	RemoteID string
}

// Applier replays one operation. A non-nil error marks the entry failed.
type Applier interface {
	Apply(ctx context.Context, op Operation) (Result, error)
}

// Func adapts a function to the Applier interface.
type Func func(ctx context.Context, op Operation) (Result, error)

// Apply calls f.
func (f Func) Apply(ctx context.Context, op Operation) (Result, error) {
	return f(ctx, op)
}

// Registry is a concurrency-safe entity type -> Applier table.
type Registry struct {
	mu       sync.RWMutex
	appliers map[string]Applier
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{appliers: make(map[string]Applier)}
}

// Entity types are opaque and case-sensitive; only surrounding whitespace is dropped.
func normalizeEntityType(entityType string) string {
	return strings.TrimSpace(entityType)
}

// Register adds an applier for entityType. Registering the same type twice is an error.
func (r *Registry) Register(entityType string, applier Applier) error {
	key := normalizeEntityType(entityType)
	if key == "" {
		return errors.New("register applier: entity type is required")
	}
	if applier == nil {
		return fmt.Errorf("register applier %q: applier is nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.appliers[key]; exists {
		return fmt.Errorf("register applier %q: already registered", key)
	}
	r.appliers[key] = applier
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func (r *Registry) MustRegister(entityType string, applier Applier) {
	if err := r.Register(entityType, applier); err != nil {
		panic(err)
	}
}

// Lookup returns the applier for entityType.
func (r *Registry) Lookup(entityType string) (Applier, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	applier, ok := r.appliers[normalizeEntityType(entityType)]
	return applier, ok
}

// Resolve is Lookup returning ErrNoApplier when nothing is registered.
func (r *Registry) Resolve(entityType string) (Applier, error) {
	applier, ok := r.Lookup(entityType)
	if !ok {
		return nil, fmt.Errorf("%w for entity type %q", ErrNoApplier, entityType)
	}
	return applier, nil
}

// EntityTypes returns the registered entity types in sorted order.
func (r *Registry) EntityTypes() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.appliers))
	for key := range r.appliers {
		types = append(types, key)
	}
	sort.Strings(types)
	return types
}
