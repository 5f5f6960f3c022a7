package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

type CallRepository interface {
	// Create возвращает ErrConflict, если в комнате уже есть звонок waiting/active
	Create(ctx context.Context, call *domain.VideoCall) error
	GetByID(ctx context.Context, id string) (*domain.VideoCall, error)
	// GetOpenByRoom возвращает ErrNotFound, если незавершенного звонка нет
	GetOpenByRoom(ctx context.Context, roomID string) (*domain.VideoCall, error)
	Update(ctx context.Context, call *domain.VideoCall, expectedVersion int64) error
}

type callRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewCallRepository(db *pgxpool.Pool, log logger.Logger) CallRepository {
	return &callRepository{db: db, log: log}
}

const callColumns = `id, room_id, channel_name, started_by, participants, status,
	started_at, ended_at, duration_seconds, version`

func scanCall(row pgx.Row) (*domain.VideoCall, error) {
	call := &domain.VideoCall{}
	err := row.Scan(
		&call.ID, &call.RoomID, &call.ChannelName, &call.StartedBy, &call.Participants, &call.Status,
		&call.StartedAt, &call.EndedAt, &call.Duration, &call.Version,
	)
	if err != nil {
		return nil, err
	}
	if call.Participants == nil {
		call.Participants = []string{}
	}
	return call, nil
}

func (r *callRepository) Create(ctx context.Context, call *domain.VideoCall) error {
	if call.Participants == nil {
		call.Participants = []string{}
	}
	query := `
		INSERT INTO video_calls (` + callColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		call.ID, call.RoomID, call.ChannelName, call.StartedBy, call.Participants, call.Status,
		call.StartedAt, call.EndedAt, call.Duration, call.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("room %s: %w", call.RoomID, apperrors.ErrConflict)
		}
		r.log.Error("Failed to create video call", "error", err)
		return err
	}

	return nil
}

func (r *callRepository) GetByID(ctx context.Context, id string) (*domain.VideoCall, error) {
	query := `SELECT ` + callColumns + ` FROM video_calls WHERE id = $1`

	call, err := scanCall(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("call %s: %w", id, apperrors.ErrNotFound)
		}
		r.log.Error("Failed to get video call", "error", err)
		return nil, err
	}

	return call, nil
}

func (r *callRepository) GetOpenByRoom(ctx context.Context, roomID string) (*domain.VideoCall, error) {
	query := `
		SELECT ` + callColumns + `
		FROM video_calls
		WHERE room_id = $1 AND status IN ('waiting', 'active')
		LIMIT 1
	`

	call, err := scanCall(r.db.QueryRow(ctx, query, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("open call in room %s: %w", roomID, apperrors.ErrNotFound)
		}
		r.log.Error("Failed to get open video call", "error", err)
		return nil, err
	}

	return call, nil
}

func (r *callRepository) Update(ctx context.Context, call *domain.VideoCall, expectedVersion int64) error {
	if call.Participants == nil {
		call.Participants = []string{}
	}
	query := `
		UPDATE video_calls
		SET participants = $2, status = $3, ended_at = $4, duration_seconds = $5, version = version + 1
		WHERE id = $1 AND version = $6
		RETURNING version
	`

	err := r.db.QueryRow(ctx, query,
		call.ID, call.Participants, call.Status, call.EndedAt, call.Duration, expectedVersion,
	).Scan(&call.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.log.Error("Failed to update video call", "error", err)
		return err
	}

	if _, getErr := r.GetByID(ctx, call.ID); getErr != nil {
		return getErr
	}
	return ErrVersionConflict
}
