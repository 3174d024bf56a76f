// Package eventstream implements the append-only per-provider Event Stream
// (§4.8): one Redis Stream per (provider, day), capped to a ~25h TTL,
// ordered by the stream's own monotonically increasing entry id rather
// than an application-assigned sequence number.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shiftline/shiftline/internal/clock"
)

// Kind enumerates the event types §4.8 names.
type Kind string

const (
	KindCallStarted         Kind = "call_started"
	KindCallAuthenticated    Kind = "call_authenticated"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindShiftOpened          Kind = "shift_opened"
	KindStaffNotified        Kind = "staff_notified"
	KindCallTransferred      Kind = "call_transferred"
	KindCallEnded            Kind = "call_ended"
	KindShiftAccepted        Kind = "shift_accepted"
	KindShiftUnfilled        Kind = "shift_unfilled"
)

// Event is one append-only Event Stream entry.
type Event struct {
	ID         string            `json:"id,omitempty"` // set on read, ignored on write
	Kind       Kind              `json:"kind"`
	ProviderID string            `json:"provider_id"`
	SessionID  string            `json:"session_id,omitempty"`
	ShiftID    string            `json:"shift_id,omitempty"`
	At         time.Time         `json:"at"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

const streamTTL = 25 * time.Hour

// Stream appends and reads per-provider Event Stream entries, grounded on
// the same go-redis/v9 client already wired for the Call-State Store and
// the Cascade Queue, generalized from a sorted set to a Redis Stream
// because §4.8 requires a stream-assigned monotonic id per entry rather
// than an application-computed score.
type Stream struct {
	client *redis.Client
	clock  clock.Clock
}

// New wraps an existing *redis.Client as an Event Stream.
func New(client *redis.Client, clk clock.Clock) *Stream {
	return &Stream{client: client, clock: clk}
}

func streamKey(providerID string, day time.Time) string {
	return fmt.Sprintf("call-events:%s:%s", providerID, day.Format("2006-01-02"))
}

// Append records one event, setting At to the current time if unset, and
// refreshes the stream's TTL so an idle day's stream still expires ~25h
// after its most recent entry.
func (s *Stream) Append(ctx context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = s.clock.Now()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("eventstream: marshaling event: %w", err)
	}
	key := streamKey(evt.ProviderID, evt.At)
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{"payload": payload},
	}).Err(); err != nil {
		return fmt.Errorf("eventstream: appending to %s: %w", key, err)
	}
	if err := s.client.Expire(ctx, key, streamTTL).Err(); err != nil {
		return fmt.Errorf("eventstream: refreshing ttl on %s: %w", key, err)
	}
	return nil
}

// Range returns every event recorded for a provider on the given day, in
// stream order (oldest first).
func (s *Stream) Range(ctx context.Context, providerID string, day time.Time) ([]Event, error) {
	key := streamKey(providerID, day)
	entries, err := s.client.XRange(ctx, key, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("eventstream: ranging %s: %w", key, err)
	}
	events := make([]Event, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values["payload"].(string)
		if !ok {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			return nil, fmt.Errorf("eventstream: decoding entry %s: %w", e.ID, err)
		}
		evt.ID = e.ID
		events = append(events, evt)
	}
	return events, nil
}

// Recent returns up to limit of the most recent events for a provider on
// the given day, newest first — the shape the operator API (§6a) needs.
func (s *Stream) Recent(ctx context.Context, providerID string, day time.Time, limit int64) ([]Event, error) {
	key := streamKey(providerID, day)
	entries, err := s.client.XRevRangeN(ctx, key, "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("eventstream: reverse-ranging %s: %w", key, err)
	}
	events := make([]Event, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values["payload"].(string)
		if !ok {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			return nil, fmt.Errorf("eventstream: decoding entry %s: %w", e.ID, err)
		}
		evt.ID = e.ID
		events = append(events, evt)
	}
	return events, nil
}

// Count reports the number of entries currently retained for a provider's
// stream on the given day.
func (s *Stream) Count(ctx context.Context, providerID string, day time.Time) (int64, error) {
	n, err := s.client.XLen(ctx, streamKey(providerID, day)).Result()
	if err != nil {
		return 0, fmt.Errorf("eventstream: counting %s: %w", streamKey(providerID, day), err)
	}
	return n, nil
}
