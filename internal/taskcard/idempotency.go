package taskcard

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "taskcard:respond:idem:"

// IdempotencyStore резервирует клиентский ключ ответа. false означает, что
// ключ уже был использован и повтор применять нельзя. Release снимает
// резервацию, если ответ так и не был применён: повтор после сбоя
// обязан пройти.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisIdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl time.Duration) IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisIdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *redisIdempotencyStore) Reserve(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, idempotencyKeyPrefix+key, 1, s.ttl).Result()
}

func (s *redisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idempotencyKeyPrefix+key).Err()
}
