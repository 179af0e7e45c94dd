package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTenantID is the standardized structured logging key for tenant identifiers.
	FieldTenantID = "tenant_id"
	// FieldEntryID is the standardized structured logging key for queue entry identifiers.
	FieldEntryID = "entry_id"
	// FieldPassID is the standardized structured logging key for sync pass identifiers.
	FieldPassID = "pass_id"
	// FieldEntityType is the standardized structured logging key for entity types.
	FieldEntityType = "entity_type"
	// FieldOperation is the standardized structured logging key for operation kinds.
	FieldOperation = "operation"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step when something went wrong.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

type contextKey string

const (
	tenantKey        contextKey = "tenant_id"
	passKey          contextKey = "pass_id"
	correlationIDKey contextKey = "correlation_id"
)

// WithTenant returns a context carrying the tenant identifier.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// WithPassID returns a context carrying the sync pass identifier.
func WithPassID(ctx context.Context, passID string) context.Context {
	return context.WithValue(ctx, passKey, passID)
}

// WithCorrelationID returns a context carrying an API request identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func stringFromContext(ctx context.Context, key contextKey) (string, bool) {
	value, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if tenant, ok := stringFromContext(ctx, tenantKey); ok {
		fields = append(fields, slog.String(FieldTenantID, tenant))
	}
	if pass, ok := stringFromContext(ctx, passKey); ok {
		fields = append(fields, slog.String(FieldPassID, pass))
	}
	if rid, ok := stringFromContext(ctx, correlationIDKey); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
