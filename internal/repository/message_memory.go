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

// memoryMessageRepository хранит сообщения в памяти.
// Записи копируются на входе и выходе, наружу не утекают общие указатели.
type memoryMessageRepository struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Message
	byRoom map[string][]string
}

func NewMemoryMessageRepository() MessageRepository {
	return &memoryMessageRepository{
		byID:   make(map[string]*domain.Message),
		byRoom: make(map[string][]string),
	}
}

func (r *memoryMessageRepository) Create(_ context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[message.ID]; ok {
		return fmt.Errorf("message %s: %w", message.ID, apperrors.ErrConflict)
	}
	message.Normalize()
	r.byID[message.ID] = message.Clone()
	r.byRoom[message.Room] = append(r.byRoom[message.Room], message.ID)
	return nil
}

func (r *memoryMessageRepository) GetByID(_ context.Context, id string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
	}
	return m.Clone(), nil
}

// roomMessages возвращает сообщения комнаты, отсортированные по времени
func (r *memoryMessageRepository) roomMessages(room string, keep func(*domain.Message) bool) []*domain.Message {
	ids := r.byRoom[room]
	out := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		m, ok := r.byID[id]
		if !ok || !keep(m) {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (r *memoryMessageRepository) List(_ context.Context, room string, limit int, before *time.Time) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.roomMessages(room, func(m *domain.Message) bool {
		return before == nil || m.Timestamp.Before(*before)
	})
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *memoryMessageRepository) ListAfter(_ context.Context, room string, after time.Time, limit int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.roomMessages(room, func(m *domain.Message) bool {
		return m.Timestamp.After(after)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *memoryMessageRepository) Update(_ context.Context, message *domain.Message, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[message.ID]
	if !ok {
		return fmt.Errorf("message %s: %w", message.ID, apperrors.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	message.Normalize()
	message.Version = expectedVersion + 1
	r.byID[message.ID] = message.Clone()
	return nil
}

func (r *memoryMessageRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
	}
	delete(r.byID, id)

	ids := r.byRoom[m.Room]
	for i, v := range ids {
		if v == id {
			r.byRoom[m.Room] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}
