package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"roomsync/pkg/logger"
)

const IdempotencyKeyPrefix = "idem:"

// IdempotencyRepository - однократный захват ключа повторяемого запроса
type IdempotencyRepository interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release освобождает ключ неудавшегося запроса, чтобы повтор прошел
	Release(ctx context.Context, key string) error
}

type idempotencyRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewIdempotencyRepository(rdb *redis.Client, log logger.Logger) IdempotencyRepository {
	return &idempotencyRepository{rdb: rdb, log: log}
}

func (r *idempotencyRepository) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, IdempotencyKeyPrefix+key, "1", ttl).Result()
	if err != nil {
		r.log.Error("Failed to claim idempotency key", "error", err)
		return false, err
	}
	return ok, nil
}

func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, IdempotencyKeyPrefix+key).Err(); err != nil {
		r.log.Error("Failed to release idempotency key", "error", err)
		return err
	}
	return nil
}

type memoryIdempotencyRepository struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func NewMemoryIdempotencyRepository() IdempotencyRepository {
	return &memoryIdempotencyRepository{keys: make(map[string]time.Time)}
}

func (r *memoryIdempotencyRepository) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if exp, ok := r.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	r.keys[key] = now.Add(ttl)
	return true, nil
}

func (r *memoryIdempotencyRepository) Release(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.keys, key)
	r.mu.Unlock()
	return nil
}
