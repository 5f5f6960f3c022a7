package repository

import (
	"context"
	"fmt"
	"sync"

	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
)

type memoryCallRepository struct {
	mu    sync.RWMutex
	calls map[string]*domain.VideoCall
	// открытый звонок комнаты: roomID -> callID
	open map[string]string
}

func NewMemoryCallRepository() CallRepository {
	return &memoryCallRepository{
		calls: make(map[string]*domain.VideoCall),
		open:  make(map[string]string),
	}
}

func (r *memoryCallRepository) Create(_ context.Context, call *domain.VideoCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.open[call.RoomID]; ok && call.Open() {
		return fmt.Errorf("room %s: %w", call.RoomID, apperrors.ErrConflict)
	}
	if _, ok := r.calls[call.ID]; ok {
		return fmt.Errorf("call %s: %w", call.ID, apperrors.ErrConflict)
	}

	r.calls[call.ID] = call.Clone()
	if call.Open() {
		r.open[call.RoomID] = call.ID
	}
	return nil
}

func (r *memoryCallRepository) GetByID(_ context.Context, id string) (*domain.VideoCall, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	call, ok := r.calls[id]
	if !ok {
		return nil, fmt.Errorf("call %s: %w", id, apperrors.ErrNotFound)
	}
	return call.Clone(), nil
}

func (r *memoryCallRepository) GetOpenByRoom(_ context.Context, roomID string) (*domain.VideoCall, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.open[roomID]
	if !ok {
		return nil, fmt.Errorf("open call in room %s: %w", roomID, apperrors.ErrNotFound)
	}
	return r.calls[id].Clone(), nil
}

func (r *memoryCallRepository) Update(_ context.Context, call *domain.VideoCall, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.calls[call.ID]
	if !ok {
		return fmt.Errorf("call %s: %w", call.ID, apperrors.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	call.Version = expectedVersion + 1
	r.calls[call.ID] = call.Clone()
	if !call.Open() && r.open[call.RoomID] == call.ID {
		delete(r.open, call.RoomID)
	}
	return nil
}
