package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the Call-State Store contract (§4.2): durable per-session
// storage with a TTL refreshed on every write and a per-session critical
// section serializing concurrent Advance calls on the same session.
type Store interface {
	Save(ctx context.Context, s *CallSession) error
	Load(ctx context.Context, id string) (*CallSession, error)
	Delete(ctx context.Context, id string) error
	// WithLock holds the per-session critical section for the duration of
	// fn, the way §4.2/§5 require serializing Advance calls on one session.
	WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error
}

// ErrNotFound is returned by Load when no session exists for the given id.
var ErrNotFound = fmt.Errorf("session not found")

const defaultTTL = time.Hour

// casScript is the Lua compare-and-set guard backing Save's cross-process
// safety net: translated from the retrieved `Store.Claim` SQL pattern
// (`UPDATE ... WHERE status IN (...)` gated on RowsAffected) into a Redis
// EVAL that refuses to overwrite a value whose stored updatedAt is not
// older than the one being written.
//
// KEYS[1] = session key
// ARGV[1] = new JSON value
// ARGV[2] = new updatedAt (RFC3339Nano)
// ARGV[3] = ttl seconds
const casScript = `
local existing = redis.call("GET", KEYS[1])
if existing then
	local ok, decoded = pcall(cjson.decode, existing)
	if ok and decoded.updated_at and decoded.updated_at >= ARGV[2] then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[3])
return 1
`

// redisStore implements Store on top of go-redis, with an in-process
// per-session mutex map serializing same-process Advance calls (§5) and
// the Lua CAS script above as the cross-process backstop (§4.2).
type redisStore struct {
	client *redis.Client
	ttl    time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewRedisStore wraps an existing *redis.Client as a Call-State Store.
// ttl defaults to one hour (the idle-session timeout named in §5) when zero.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisStore{
		client: client,
		ttl:    ttl,
		locks:  make(map[string]*sync.Mutex),
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (r *redisStore) sessionLock(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	m, ok := r.locks[id]
	if !ok {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	return m
}

// WithLock serializes concurrent Advance calls for one session id within
// this process; the Lua CAS in Save guards the rarer cross-process race.
func (r *redisStore) WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	m := r.sessionLock(id)
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

func (r *redisStore) Save(ctx context.Context, s *CallSession) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session %s: %w", s.ID, err)
	}

	res, err := r.client.Eval(ctx, casScript, []string{sessionKey(s.ID)},
		string(payload), s.UpdatedAt.UTC().Format(time.RFC3339Nano), int(r.ttl.Seconds()),
	).Result()
	if err != nil {
		return fmt.Errorf("saving session %s: %w", s.ID, err)
	}
	if n, ok := res.(int64); ok && n == 0 {
		return fmt.Errorf("saving session %s: stale write rejected by compare-and-set", s.ID)
	}
	return nil
}

func (r *redisStore) Load(ctx context.Context, id string) (*CallSession, error) {
	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	var s CallSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &s, nil
}

func (r *redisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	r.locksMu.Lock()
	delete(r.locks, id)
	r.locksMu.Unlock()
	return nil
}
