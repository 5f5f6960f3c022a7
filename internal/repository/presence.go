package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

const (
	PresenceKeyPrefix = "presence:room:%s"
	PresenceRoomsKey  = "presence:rooms"

	maxWatchRetries = 16
)

// PresenceUpdateFunc получает текущую запись (nil, если ее нет) и возвращает новую.
// nil в ответе удаляет запись.
type PresenceUpdateFunc func(current *domain.User) (*domain.User, error)

// PresenceRepository хранит записи присутствия, ключ - имя пользователя
// без учета регистра в пределах комнаты
type PresenceRepository interface {
	Get(ctx context.Context, room, username string) (*domain.User, error)
	Delete(ctx context.Context, room, username string) (bool, error)
	// List возвращает все записи комнаты без фильтра по TTL
	List(ctx context.Context, room string) ([]*domain.User, error)
	// Update атомарно выполняет read-modify-write одной записи
	Update(ctx context.Context, room, username string, fn PresenceUpdateFunc) (*domain.User, error)
	Rooms(ctx context.Context) ([]string, error)
}

type presenceRepository struct {
	rdb    *redis.Client
	keyTTL time.Duration
	log    logger.Logger
}

// NewPresenceRepository - keyTTL страхует от вечных ключей брошенных комнат
func NewPresenceRepository(rdb *redis.Client, keyTTL time.Duration, log logger.Logger) PresenceRepository {
	return &presenceRepository{rdb: rdb, keyTTL: keyTTL, log: log}
}

func (r *presenceRepository) key(room string) string {
	return fmt.Sprintf(PresenceKeyPrefix, room)
}

func decodeUser(raw string) (*domain.User, error) {
	var u domain.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *presenceRepository) Get(ctx context.Context, room, username string) (*domain.User, error) {
	raw, err := r.rdb.HGet(ctx, r.key(room), domain.PresenceKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("presence %s in %s: %w", username, room, apperrors.ErrNotFound)
		}
		r.log.Error("Failed to get presence", "error", err, "room", room)
		return nil, err
	}
	return decodeUser(raw)
}

func (r *presenceRepository) Delete(ctx context.Context, room, username string) (bool, error) {
	n, err := r.rdb.HDel(ctx, r.key(room), domain.PresenceKey(username)).Result()
	if err != nil {
		r.log.Error("Failed to delete presence", "error", err, "room", room)
		return false, err
	}
	return n > 0, nil
}

func (r *presenceRepository) List(ctx context.Context, room string) ([]*domain.User, error) {
	values, err := r.rdb.HVals(ctx, r.key(room)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.log.Error("Failed to list presence", "error", err, "room", room)
		return nil, err
	}

	users := make([]*domain.User, 0, len(values))
	for _, raw := range values {
		u, err := decodeUser(raw)
		if err != nil {
			r.log.Warn("Failed to unmarshal presence", "error", err)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *presenceRepository) Update(ctx context.Context, room, username string, fn PresenceUpdateFunc) (*domain.User, error) {
	key := r.key(room)
	field := domain.PresenceKey(username)

	var result *domain.User
	txf := func(tx *redis.Tx) error {
		var current *domain.User
		raw, err := tx.HGet(ctx, key, field).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decodeUser(raw); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		var data []byte
		if next != nil {
			if data, err = json.Marshal(next); err != nil {
				return err
			}
		}

		// Если ключ изменился после WATCH, EXEC вернет redis.TxFailedErr
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.HDel(ctx, key, field)
				return nil
			}
			pipe.HSet(ctx, key, field, data)
			pipe.Expire(ctx, key, r.keyTTL)
			pipe.SAdd(ctx, PresenceRoomsKey, room)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	r.log.Warn("Presence update retries exhausted", "room", room, "username", username)
	return nil, fmt.Errorf("presence update for %s: %w", username, ErrVersionConflict)
}

func (r *presenceRepository) Rooms(ctx context.Context) ([]string, error) {
	rooms, err := r.rdb.SMembers(ctx, PresenceRoomsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.log.Error("Failed to list presence rooms", "error", err)
		return nil, err
	}
	return rooms, nil
}
