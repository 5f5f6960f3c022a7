package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"roomsync/internal/domain"
	"roomsync/pkg/logger"
)

const TypingKeyPrefix = "typing:room:%s"

// TypingRepository хранит отметки "печатает" как время последнего нажатия
type TypingRepository interface {
	Set(ctx context.Context, status *domain.TypingStatus) error
	Delete(ctx context.Context, room, username string) error
	List(ctx context.Context, room string) ([]*domain.TypingStatus, error)
}

type typingRepository struct {
	rdb *redis.Client
	ttl time.Duration
	log logger.Logger
}

func NewTypingRepository(rdb *redis.Client, ttl time.Duration, log logger.Logger) TypingRepository {
	return &typingRepository{rdb: rdb, ttl: ttl, log: log}
}

func (r *typingRepository) key(room string) string {
	return fmt.Sprintf(TypingKeyPrefix, room)
}

func (r *typingRepository) Set(ctx context.Context, status *domain.TypingStatus) error {
	key := r.key(status.Room)
	// Ключ живет ttl после последней записи: все поля в нем не новее этой записи
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, status.Username, status.Timestamp.UnixMilli())
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to set typing status", "error", err, "room", status.Room)
		return err
	}
	return nil
}

func (r *typingRepository) Delete(ctx context.Context, room, username string) error {
	if err := r.rdb.HDel(ctx, r.key(room), username).Err(); err != nil {
		r.log.Error("Failed to delete typing status", "error", err, "room", room)
		return err
	}
	return nil
}

func (r *typingRepository) List(ctx context.Context, room string) ([]*domain.TypingStatus, error) {
	values, err := r.rdb.HGetAll(ctx, r.key(room)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.log.Error("Failed to list typing statuses", "error", err, "room", room)
		return nil, err
	}

	out := make([]*domain.TypingStatus, 0, len(values))
	for username, raw := range values {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, &domain.TypingStatus{
			Username:  username,
			Room:      room,
			IsTyping:  true,
			Timestamp: time.UnixMilli(ms),
		})
	}
	return out, nil
}

type memoryTypingRepository struct {
	mu    sync.Mutex
	rooms map[string]map[string]time.Time
}

func NewMemoryTypingRepository() TypingRepository {
	return &memoryTypingRepository{rooms: make(map[string]map[string]time.Time)}
}

func (r *memoryTypingRepository) Set(_ context.Context, status *domain.TypingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.rooms[status.Room]
	if !ok {
		users = make(map[string]time.Time)
		r.rooms[status.Room] = users
	}
	users[status.Username] = status.Timestamp
	return nil
}

func (r *memoryTypingRepository) Delete(_ context.Context, room, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if users, ok := r.rooms[room]; ok {
		delete(users, username)
		if len(users) == 0 {
			delete(r.rooms, room)
		}
	}
	return nil
}

func (r *memoryTypingRepository) List(_ context.Context, room string) ([]*domain.TypingStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := r.rooms[room]
	out := make([]*domain.TypingStatus, 0, len(users))
	for username, ts := range users {
		out = append(out, &domain.TypingStatus{Username: username, Room: room, IsTyping: true, Timestamp: ts})
	}
	return out, nil
}
