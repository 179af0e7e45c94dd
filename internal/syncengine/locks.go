package syncengine

import (
	"context"
	"sync"
)

// TenantLocks hands out one exclusive guard per tenant. Sync passes and
// purges for the same tenant take the same guard.
type TenantLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewTenantLocks returns an empty lock table.
func NewTenantLocks() *TenantLocks {
	return &TenantLocks{slots: make(map[string]chan struct{})}
}

func (l *TenantLocks) slot(tenantID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[tenantID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[tenantID] = slot
	}
	return slot
}

// Lock blocks until the tenant's guard is free or ctx is done.
func (l *TenantLocks) Lock(ctx context.Context, tenantID string) (func(), error) {
	slot := l.slot(tenantID)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock takes the guard only if it is free.
func (l *TenantLocks) TryLock(tenantID string) (func(), bool) {
	slot := l.slot(tenantID)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, true
	default:
		return nil, false
	}
}

// Busy reports whether the tenant's guard is held.
func (l *TenantLocks) Busy(tenantID string) bool {
	return len(l.slot(tenantID)) > 0
}
