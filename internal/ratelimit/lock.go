package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes the mutex key only while the caller's token is
// still the stored value. An unconditional DEL could drop a claim the
// TTL already handed to a newer holder.
const releaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Mutex is a single-key Redis lock with TTL expiry as crash recovery.
// The scheduler holds it across a refresh run so replicas never drive
// the pipeline concurrently; a holder that dies releases implicitly
// when the TTL lapses.
type Mutex struct {
	client  *redis.Client
	release *redis.Script
}

func NewMutex(client *redis.Client) *Mutex {
	if client == nil {
		return nil
	}
	return &Mutex{
		client:  client,
		release: redis.NewScript(releaseIfOwner),
	}
}

// Acquire claims key for ttl and returns the ownership token Release
// expects. ok false means another holder currently has the claim.
func (m *Mutex) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if m == nil || m.client == nil {
		return "", false, errors.New("mutex client not configured")
	}
	if key == "" {
		return "", false, errors.New("mutex key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("mutex ttl must be positive")
	}

	token := uuid.NewString()
	claimed, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, claimed, nil
}

// Release drops the claim while token still owns key. Expired or
// foreign claims are left untouched.
func (m *Mutex) Release(ctx context.Context, key, token string) error {
	if m == nil || m.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return m.release.Run(ctx, m.client, []string{key}, token).Err()
}
