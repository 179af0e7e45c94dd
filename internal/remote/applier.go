package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"offsync/internal/appliers"
	"offsync/internal/logging"
	"offsync/internal/queue"
)

// MirrorWriter keeps the local mirror in step with applied changes.
type MirrorWriter interface {
	PutMirror(ctx context.Context, record queue.MirrorRecord) error
	DeleteMirror(ctx context.Context, tenantID, entityType, remoteID string) (bool, error)
}

// Applier replays one entity type over HTTP.
type Applier struct {
	client     *Client
	entityType string
	mirror     MirrorWriter
}

// NewApplier returns an applier for entityType. mirror may be nil.
func NewApplier(client *Client, entityType string, mirror MirrorWriter) *Applier {
	return &Applier{client: client, entityType: entityType, mirror: mirror}
}

// Apply implements appliers.Applier.
func (a *Applier) Apply(ctx context.Context, op appliers.Operation) (appliers.Result, error) {
	switch queue.Operation(op.Kind) {
	case queue.OpCreate:
		return a.create(ctx, op)
	case queue.OpUpdate:
		return a.update(ctx, op)
	case queue.OpDelete:
		return a.remove(ctx, op)
	default:
		return appliers.Result{}, fmt.Errorf("unsupported operation %q", op.Kind)
	}
}

func (a *Applier) create(ctx context.Context, op appliers.Operation) (appliers.Result, error) {
	target := a.client.recordURL(op.TenantID, a.entityType)
	_, body, err := a.client.do(ctx, http.MethodPost, target, op.EntryID, payloadOrEmpty(op.Payload))
	if err != nil {
		return appliers.Result{}, err
	}
	remoteID, err := decodeID(body)
	if err != nil {
		return appliers.Result{}, err
	}
	if remoteID == "" {
		remoteID = op.RecordID
	}
	a.mirrorPut(ctx, op, remoteID, body)
	return appliers.Result{RemoteID: remoteID}, nil
}

func (a *Applier) update(ctx context.Context, op appliers.Operation) (appliers.Result, error) {
	if strings.TrimSpace(op.RecordID) == "" {
		return appliers.Result{}, fmt.Errorf("update %s %q: %w", a.entityType, op.RecordKey, ErrMissingRemoteID)
	}
	target := a.client.recordURL(op.TenantID, a.entityType, op.RecordID)
	_, body, err := a.client.do(ctx, http.MethodPut, target, op.EntryID, payloadOrEmpty(op.Payload))
	if err != nil {
		return appliers.Result{}, err
	}
	a.mirrorPut(ctx, op, op.RecordID, body)
	return appliers.Result{RemoteID: op.RecordID}, nil
}

func (a *Applier) remove(ctx context.Context, op appliers.Operation) (appliers.Result, error) {
	if strings.TrimSpace(op.RecordID) == "" {
		return appliers.Result{}, fmt.Errorf("delete %s %q: %w", a.entityType, op.RecordKey, ErrMissingRemoteID)
	}
	target := a.client.recordURL(op.TenantID, a.entityType, op.RecordID)
	_, _, err := a.client.do(ctx, http.MethodDelete, target, op.EntryID, nil)
	var remoteErr *Error
	if errors.As(err, &remoteErr) && remoteErr.Status == http.StatusNotFound {
		// Already gone; a replayed delete is not a failure.
		err = nil
	}
	if err != nil {
		return appliers.Result{}, err
	}
	if a.mirror != nil {
		if _, mirrorErr := a.mirror.DeleteMirror(ctx, op.TenantID, a.entityType, op.RecordID); mirrorErr != nil {
			a.warnMirror(op, mirrorErr)
		}
	}
	return appliers.Result{RemoteID: op.RecordID}, nil
}

// mirrorPut stores the server's representation when it returned a JSON
// object, otherwise the payload that was sent.
func (a *Applier) mirrorPut(ctx context.Context, op appliers.Operation, remoteID string, body []byte) {
	if a.mirror == nil || remoteID == "" {
		return
	}
	data := json.RawMessage(body)
	if !isJSONObject(data) {
		data = payloadOrEmpty(op.Payload)
	}
	err := a.mirror.PutMirror(ctx, queue.MirrorRecord{
		TenantID:   op.TenantID,
		EntityType: a.entityType,
		RemoteID:   remoteID,
		Data:       data,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		a.warnMirror(op, err)
	}
}

func (a *Applier) warnMirror(op appliers.Operation, err error) {
	logging.WarnWithContext(a.client.logger, "mirror update failed", "mirror_update_failed",
		logging.Error(err),
		logging.Tenant(op.TenantID),
		logging.EntityType(a.entityType),
		logging.EntryID(op.EntryID),
		logging.String(logging.FieldImpact, "offline reads may be stale until the next mirror refresh"),
	)
}

func payloadOrEmpty(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("{}")
	}
	return payload
}

func isJSONObject(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{") && json.Valid(data)
}

// Register installs an HTTP applier for every entity type.
func Register(registry *appliers.Registry, client *Client, entities []string, mirror MirrorWriter) error {
	if client == nil {
		return errors.New("remote client is not configured")
	}
	for _, entity := range entities {
		entity = strings.TrimSpace(entity)
		if entity == "" {
			continue
		}
		if err := registry.Register(entity, NewApplier(client, entity, mirror)); err != nil {
			return err
		}
	}
	return nil
}
