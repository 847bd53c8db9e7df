package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStream appends every event to a Redis stream, trimmed to roughly maxLen entries.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStream(client *redis.Client, stream string, maxLen int64) *RedisStream {
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

func (r *RedisStream) Publish(ctx context.Context, ev TelemetryEvent) error {
	payload, err := json.Marshal(ev.Points)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"tenant_id":  ev.TenantID,
			"channel_id": ev.ChannelID,
			"device_id":  ev.DeviceID,
			"timestamp":  ev.Timestamp.UnixMilli(),
			"data":       string(payload),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}
