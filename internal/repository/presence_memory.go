package repository

import (
	"context"
	"fmt"
	"sync"

	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
)

// roomPresence - партиция одной комнаты со своей блокировкой
type roomPresence struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

type memoryPresenceRepository struct {
	mu    sync.RWMutex
	rooms map[string]*roomPresence
}

func NewMemoryPresenceRepository() PresenceRepository {
	return &memoryPresenceRepository{rooms: make(map[string]*roomPresence)}
}

func (r *memoryPresenceRepository) partition(room string, create bool) *roomPresence {
	r.mu.RLock()
	p, ok := r.rooms[room]
	r.mu.RUnlock()
	if ok || !create {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok = r.rooms[room]; ok {
		return p
	}
	p = &roomPresence{users: make(map[string]*domain.User)}
	r.rooms[room] = p
	return p
}

func (r *memoryPresenceRepository) Get(_ context.Context, room, username string) (*domain.User, error) {
	p := r.partition(room, false)
	if p != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		if u, ok := p.users[domain.PresenceKey(username)]; ok {
			return u.Clone(), nil
		}
	}
	return nil, fmt.Errorf("presence %s in %s: %w", username, room, apperrors.ErrNotFound)
}

func (r *memoryPresenceRepository) Delete(_ context.Context, room, username string) (bool, error) {
	p := r.partition(room, false)
	if p == nil {
		return false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key := domain.PresenceKey(username)
	if _, ok := p.users[key]; !ok {
		return false, nil
	}
	delete(p.users, key)
	return true, nil
}

func (r *memoryPresenceRepository) List(_ context.Context, room string) ([]*domain.User, error) {
	p := r.partition(room, false)
	if p == nil {
		return []*domain.User{}, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	users := make([]*domain.User, 0, len(p.users))
	for _, u := range p.users {
		users = append(users, u.Clone())
	}
	return users, nil
}

func (r *memoryPresenceRepository) Update(_ context.Context, room, username string, fn PresenceUpdateFunc) (*domain.User, error) {
	p := r.partition(room, true)
	p.mu.Lock()
	defer p.mu.Unlock()

	key := domain.PresenceKey(username)
	var current *domain.User
	if u, ok := p.users[key]; ok {
		current = u.Clone()
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		delete(p.users, key)
		return nil, nil
	}
	p.users[key] = next.Clone()
	return next, nil
}

func (r *memoryPresenceRepository) Rooms(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms, nil
}
