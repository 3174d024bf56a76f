package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a persistent, time-delayed, idempotently-deletable job handle
// store (§4.4 "Queue"). Implemented as one Redis sorted set per shift
// (§4.4a): member = JSON-encoded Job, score = due-time unix millis,
// drained by ZRANGEBYSCORE + ZREM. Construction follows the retrieved
// pack's redis.NewClient(&redis.Options{...}) idiom.
type Queue struct {
	client *redis.Client
}

// NewQueue wraps an existing *redis.Client as a cascade Queue.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func jobsKey(shiftID string) string {
	return "cascade:jobs:" + shiftID
}

// Enqueue schedules a job to become due at job.DueAt.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling cascade job %s: %w", job.HandleID, err)
	}
	score := float64(job.DueAt.UnixMilli())
	if err := q.client.ZAdd(ctx, jobsKey(job.ShiftID), redis.Z{Score: score, Member: string(payload)}).Err(); err != nil {
		return fmt.Errorf("enqueuing cascade job %s: %w", job.HandleID, err)
	}
	return nil
}

// DueJobs returns every job for shiftID whose DueAt has passed, removing
// them from the set atomically with the read (ZRANGEBYSCORE then ZREM per
// returned member, re-checked against contention from a concurrent
// poller).
func (q *Queue) DueJobs(ctx context.Context, shiftID string, now time.Time) ([]Job, error) {
	key := jobsKey(shiftID)
	members, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing due cascade jobs for %s: %w", shiftID, err)
	}

	var due []Job
	for _, raw := range members {
		removed, err := q.client.ZRem(ctx, key, raw).Result()
		if err != nil {
			return nil, fmt.Errorf("claiming cascade job for %s: %w", shiftID, err)
		}
		if removed == 0 {
			continue // another poller already claimed this member
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decoding cascade job for %s: %w", shiftID, err)
		}
		due = append(due, job)
	}
	return due, nil
}

// CancelAll deletes every pending handle for a shift's cascade (§4.4
// cancellation semantics: used on accept, so no superseded wave or round
// still fires).
func (q *Queue) CancelAll(ctx context.Context, shiftID string) error {
	if err := q.client.Del(ctx, jobsKey(shiftID)).Err(); err != nil {
		return fmt.Errorf("cancelling cascade jobs for %s: %w", shiftID, err)
	}
	return nil
}

func planKey(shiftID string) string {
	return "cascade:plan:" + shiftID
}

// activeShiftsKey is the set of shift ids with a live cascade, backing
// ActiveShiftIDs (the Coordinator's ShiftIDSource) so the poll loop never
// needs to SCAN the keyspace for cascade:jobs:* members.
const activeShiftsKey = "cascade:active-shifts"

// SavePlan persists a CascadePlan and registers its shift id as active.
func (q *Queue) SavePlan(ctx context.Context, plan Plan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshaling cascade plan %s: %w", plan.ShiftID, err)
	}
	if err := q.client.Set(ctx, planKey(plan.ShiftID), payload, 0).Err(); err != nil {
		return fmt.Errorf("saving cascade plan %s: %w", plan.ShiftID, err)
	}
	if err := q.client.SAdd(ctx, activeShiftsKey, plan.ShiftID).Err(); err != nil {
		return fmt.Errorf("registering active cascade for %s: %w", plan.ShiftID, err)
	}
	return nil
}

// ActiveShiftIDs implements the Coordinator's ShiftIDSource.
func (q *Queue) ActiveShiftIDs(ctx context.Context) ([]string, error) {
	ids, err := q.client.SMembers(ctx, activeShiftsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing active cascade shifts: %w", err)
	}
	return ids, nil
}

// LoadPlan loads a CascadePlan, or (Plan{}, false, nil) if none exists.
func (q *Queue) LoadPlan(ctx context.Context, shiftID string) (Plan, bool, error) {
	raw, err := q.client.Get(ctx, planKey(shiftID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Plan{}, false, nil
		}
		return Plan{}, false, fmt.Errorf("loading cascade plan %s: %w", shiftID, err)
	}
	var plan Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return Plan{}, false, fmt.Errorf("decoding cascade plan %s: %w", shiftID, err)
	}
	return plan, true, nil
}

// DeletePlan removes a terminated cascade's plan record and unregisters
// its shift id from the active set.
func (q *Queue) DeletePlan(ctx context.Context, shiftID string) error {
	if err := q.client.Del(ctx, planKey(shiftID)).Err(); err != nil {
		return fmt.Errorf("deleting cascade plan %s: %w", shiftID, err)
	}
	if err := q.client.SRem(ctx, activeShiftsKey, shiftID).Err(); err != nil {
		return fmt.Errorf("unregistering active cascade for %s: %w", shiftID, err)
	}
	return nil
}
