package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// callLogTTL bounds how long a finalized Asset is retrievable through the
// operator API before it ages out, mirroring the Call-State Store's
// TTL-refreshed key pattern rather than keeping recording metadata forever.
const callLogTTL = 30 * 24 * time.Hour

func callLogKey(rootCallID string) string {
	return "call-log:" + rootCallID
}

// RedisCallLog is the concrete CallLogWriter: one JSON-encoded Asset per
// root call id, keyed the same way session.redisStore keys CallSessions.
type RedisCallLog struct {
	client *redis.Client
}

// NewRedisCallLog builds a RedisCallLog bound to client.
func NewRedisCallLog(client *redis.Client) *RedisCallLog {
	return &RedisCallLog{client: client}
}

// RecordRecording persists the finalized Asset for a completed call.
func (l *RedisCallLog) RecordRecording(ctx context.Context, rootCallID string, asset Asset) error {
	payload, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("recording: marshaling asset: %w", err)
	}
	if err := l.client.Set(ctx, callLogKey(rootCallID), payload, callLogTTL).Err(); err != nil {
		return fmt.Errorf("recording: writing call log: %w", err)
	}
	return nil
}

// AssetFor looks up a previously-recorded Asset, for the operator API's
// recording-status endpoint (§6a). The bool result is false when no asset
// has been recorded yet for rootCallID (either it hasn't finalized, or it
// has aged out past callLogTTL).
func (l *RedisCallLog) AssetFor(ctx context.Context, rootCallID string) (Asset, bool, error) {
	raw, err := l.client.Get(ctx, callLogKey(rootCallID)).Bytes()
	if err == redis.Nil {
		return Asset{}, false, nil
	}
	if err != nil {
		return Asset{}, false, fmt.Errorf("recording: reading call log: %w", err)
	}
	var asset Asset
	if err := json.Unmarshal(raw, &asset); err != nil {
		return Asset{}, false, fmt.Errorf("recording: decoding call log: %w", err)
	}
	return asset, true, nil
}
