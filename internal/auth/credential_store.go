package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/shiftline/shiftline/internal/apperrors"
)

// credentialsKey is the single Redis hash backing every WorkerCredential:
// field = workerId, value = argon2id-encoded pinHash.
const credentialsKey = "worker_credentials"

// RedisCredentialStore implements CredentialStore on a Redis hash, the
// same KV primitive the rest of the core's owned state (CallSession,
// CascadePlan) is built on rather than standing up a second storage
// engine for one small table (see DESIGN.md's dropped-SQL-deps entry).
type RedisCredentialStore struct {
	client *redis.Client
}

// NewRedisCredentialStore wraps an existing *redis.Client.
func NewRedisCredentialStore(client *redis.Client) *RedisCredentialStore {
	return &RedisCredentialStore{client: client}
}

// PINHash returns the stored Argon2id hash for a worker id.
func (s *RedisCredentialStore) PINHash(ctx context.Context, workerID string) (string, error) {
	hash, err := s.client.HGet(ctx, credentialsKey, workerID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", apperrors.NotFound(fmt.Sprintf("credential for worker %s", workerID))
		}
		return "", fmt.Errorf("loading pin hash for %s: %w", workerID, err)
	}
	return hash, nil
}

// SetPIN hashes and stores a worker's new PIN, replacing any existing one.
func (s *RedisCredentialStore) SetPIN(ctx context.Context, workerID, pin string) error {
	hash, err := HashPIN(pin)
	if err != nil {
		return fmt.Errorf("hashing pin for %s: %w", workerID, err)
	}
	if err := s.client.HSet(ctx, credentialsKey, workerID, hash).Err(); err != nil {
		return fmt.Errorf("storing pin hash for %s: %w", workerID, err)
	}
	return nil
}
