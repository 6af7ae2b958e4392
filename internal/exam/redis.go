package exam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps session objects in process and uses Redis for
// liveness: each session has a key with a TTL that is refreshed on access.
// Once the key expires the session is evicted on its next lookup or by
// Expire, whichever comes first.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
	local  *MemoryRepository
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{
		client: client,
		ttl:    ttl,
		local:  NewMemoryRepository(),
	}
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	if err := r.client.Set(ctx, r.key(s.ID()), string(s.State()), r.ttl).Err(); err != nil {
		return fmt.Errorf("mark session live: %w", err)
	}
	return r.local.Create(ctx, s)
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*Session, bool) {
	s, ok := r.local.Get(ctx, id)
	if !ok {
		return nil, false
	}
	alive, err := r.client.Expire(ctx, r.key(id), r.ttl).Result()
	if err != nil {
		// Keep serving the local session while Redis is unreachable.
		slog.Warn("refresh session liveness", "session_id", id, "error", err)
		return s, true
	}
	if !alive {
		slog.Info("session expired", "session_id", id)
		r.local.Delete(ctx, id)
		return nil, false
	}
	return s, true
}

func (r *RedisRepository) Delete(ctx context.Context, id string) {
	r.local.Delete(ctx, id)
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		slog.Warn("delete session key", "session_id", id, "error", err)
	}
}

func (r *RedisRepository) Expire(ctx context.Context, cutoff time.Time) int {
	ids := r.local.expire(cutoff)
	if len(ids) == 0 {
		return 0
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("delete expired session keys", "count", len(keys), "error", err)
	}
	return len(ids)
}

func (r *RedisRepository) key(id string) string {
	return "docexam:session:" + id
}

// Len returns the number of sessions held by this process.
func (r *RedisRepository) Len() int {
	return r.local.Len()
}
