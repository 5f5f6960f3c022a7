package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
)

type memoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewMemoryRoomRepository() RoomRepository {
	return &memoryRoomRepository{rooms: make(map[string]*domain.Room)}
}

func (r *memoryRoomRepository) nameTaken(name string) bool {
	for _, room := range r.rooms {
		if !room.IsDM && room.Name == name {
			return true
		}
	}
	return false
}

func (r *memoryRoomRepository) Create(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; ok || (!room.IsDM && r.nameTaken(room.Name)) {
		return apperrors.New(apperrors.ErrConflict, "Room already exists")
	}
	room.Normalize()
	r.rooms[room.ID] = room.Clone()
	return nil
}

func (r *memoryRoomRepository) GetByID(_ context.Context, id string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, apperrors.ErrNotFound)
	}
	return room.Clone(), nil
}

func (r *memoryRoomRepository) Upsert(_ context.Context, room *domain.Room) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rooms[room.ID]; ok {
		if room.LastActivity.After(existing.LastActivity) {
			existing.LastActivity = room.LastActivity
		}
		return existing.Clone(), nil
	}
	room.Normalize()
	r.rooms[room.ID] = room.Clone()
	return room.Clone(), nil
}

func (r *memoryRoomRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[id]; ok && at.After(room.LastActivity) {
		room.LastActivity = at
	}
	return nil
}

func (r *memoryRoomRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[id]; ok {
		room.IsActive = active
	}
	return nil
}

func (r *memoryRoomRepository) Update(_ context.Context, room *domain.Room, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rooms[room.ID]
	if !ok {
		return fmt.Errorf("room %s: %w", room.ID, apperrors.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	room.Normalize()
	room.Version = expectedVersion + 1
	updated := current.Clone()
	updated.Description = room.Description
	updated.Owner = room.Owner
	updated.Moderators = room.Moderators
	updated.BannedUsers = room.BannedUsers
	updated.Version = room.Version
	r.rooms[room.ID] = updated.Clone()
	return nil
}

func (r *memoryRoomRepository) ListActive(_ context.Context) ([]*domain.Room, error) {
	return r.list(func(room *domain.Room) bool { return room.IsActive }, 0), nil
}

func (r *memoryRoomRepository) ListDMs(_ context.Context, username string, limit int) ([]*domain.Room, error) {
	return r.list(func(room *domain.Room) bool { return room.IsDM && room.HasParticipant(username) }, limit), nil
}

// list - выборка по предикату, от последней активности к более старой
func (r *memoryRoomRepository) list(keep func(*domain.Room) bool, limit int) []*domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Room, 0)
	for _, room := range r.rooms {
		if keep(room) {
			out = append(out, room.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
