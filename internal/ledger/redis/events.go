package redis

import (
	"context"
	"encoding/json"

	goredis "github.com/redis/go-redis/v9"

	"github.com/frostline/rehydrate/pkg/types"
)

func (l *RedisLedger) auditStreamKey(granuleID, fileKey string) string {
	return l.prefix + "audit:" + granuleID + ":" + fileKey
}

// AppendAuditEvent writes a transition event to the file's audit stream.
// Audit streams are not trimmed; the trail is retained indefinitely.
func (l *RedisLedger) AppendAuditEvent(ctx context.Context, ev types.AuditEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return l.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: l.auditStreamKey(ev.GranuleID, ev.FileKey),
		Values: map[string]interface{}{
			"kind": string(ev.Kind),
			"data": string(data),
		},
	}).Err()
}

// ListAuditEvents returns the newest audit events for a file in chronological
// order. A limit of zero keeps the newest 50.
func (l *RedisLedger) ListAuditEvents(ctx context.Context, granuleID, fileKey string, limit int) ([]types.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := l.client.XRevRangeN(ctx, l.auditStreamKey(granuleID, fileKey), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, err
	}

	events := make([]types.AuditEvent, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			l.logger.Warn("skipping audit entry with missing data field", "streamID", msgs[i].ID)
			continue
		}
		var ev types.AuditEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			l.logger.Warn("skipping corrupt audit data", "streamID", msgs[i].ID, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
