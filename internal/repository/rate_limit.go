package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"roomsync/pkg/logger"
)

const RateLimitKeyPrefix = "rl:"

type RateLimitRepository interface {
	// Increment увеличивает счетчик окна и возвращает его новое значение
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := RateLimitKeyPrefix + key

	count, err := r.redis.Incr(ctx, k).Result()
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err)
		return 0, err
	}

	// Первый запрос окна задает время его жизни
	if count == 1 {
		if err := r.redis.Expire(ctx, k, window).Err(); err != nil {
			r.log.Warn("Failed to set rate limit window", "error", err)
		}
	}

	return count, nil
}

type memoryRateLimitRepository struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	now     func() time.Time
}

type rateWindow struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryRateLimitRepository() RateLimitRepository {
	return &memoryRateLimitRepository{windows: make(map[string]rateWindow), now: time.Now}
}

func (r *memoryRateLimitRepository) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = rateWindow{expiresAt: now.Add(window)}
	}
	w.count++
	r.windows[key] = w
	return w.count, nil
}
