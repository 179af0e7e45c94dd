package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"offsync/internal/queue"
)

// RefreshMirror downloads every record of entityType for the tenant and
// stores it in the local mirror. The endpoint must return a JSON array of
// objects carrying an "id".
func (c *Client) RefreshMirror(ctx context.Context, mirror MirrorWriter, tenantID, entityType string) (int, error) {
	target := c.recordURL(tenantID, entityType)
	_, body, err := c.do(ctx, http.MethodGet, target, "", nil)
	if err != nil {
		return 0, err
	}
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return 0, fmt.Errorf("decode %s list: %w", entityType, err)
	}
	now := time.Now().UTC()
	stored := 0
	for _, record := range records {
		id, err := decodeID(record)
		if err != nil {
			return stored, err
		}
		if id == "" {
			continue
		}
		if err := mirror.PutMirror(ctx, queue.MirrorRecord{
			TenantID:   tenantID,
			EntityType: entityType,
			RemoteID:   id,
			Data:       record,
			UpdatedAt:  now,
		}); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}
