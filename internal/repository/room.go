package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

type RoomRepository interface {
	// Create возвращает ErrConflict, если комната с таким id или именем уже есть
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	// Upsert создает комнату или обновляет только lastActivity существующей
	Upsert(ctx context.Context, room *domain.Room) (*domain.Room, error)
	Touch(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	// Update сохраняет описание, владельца и списки модерации по версии
	Update(ctx context.Context, room *domain.Room, expectedVersion int64) error
	ListActive(ctx context.Context) ([]*domain.Room, error)
	ListDMs(ctx context.Context, username string, limit int) ([]*domain.Room, error)
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

const roomColumns = `id, name, description, is_active, created_at, last_activity, is_dm,
	participants, owner, moderators, banned_users, version`

func scanRoom(row pgx.Row) (*domain.Room, error) {
	room := &domain.Room{}
	err := row.Scan(
		&room.ID, &room.Name, &room.Description, &room.IsActive, &room.CreatedAt, &room.LastActivity, &room.IsDM,
		&room.Participants, &room.Owner, &room.Moderators, &room.BannedUsers, &room.Version,
	)
	if err != nil {
		return nil, err
	}
	room.Normalize()
	return room, nil
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	room.Normalize()
	query := `
		INSERT INTO rooms (` + roomColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		room.ID, room.Name, room.Description, room.IsActive, room.CreatedAt, room.LastActivity, room.IsDM,
		room.Participants, room.Owner, room.Moderators, room.BannedUsers, room.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrConflict, "Room already exists")
		}
		r.log.Error("Failed to create room", "error", err)
		return err
	}

	return nil
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	room, err := scanRoom(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", id, apperrors.ErrNotFound)
		}
		r.log.Error("Failed to get room by ID", "error", err)
		return nil, err
	}

	return room, nil
}

func (r *roomRepository) Upsert(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	room.Normalize()
	query := `
		INSERT INTO rooms (` + roomColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET last_activity = GREATEST(rooms.last_activity, EXCLUDED.last_activity)
		RETURNING ` + roomColumns

	stored, err := scanRoom(r.db.QueryRow(ctx, query,
		room.ID, room.Name, room.Description, room.IsActive, room.CreatedAt, room.LastActivity, room.IsDM,
		room.Participants, room.Owner, room.Moderators, room.BannedUsers, room.Version,
	))
	if err != nil {
		r.log.Error("Failed to upsert room", "error", err, "room", room.ID)
		return nil, err
	}

	return stored, nil
}

func (r *roomRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE rooms SET last_activity = GREATEST(last_activity, $2) WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		r.log.Error("Failed to touch room", "error", err, "room", id)
		return err
	}
	return nil
}

func (r *roomRepository) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := r.db.Exec(ctx, `UPDATE rooms SET is_active = $2 WHERE id = $1`, id, active); err != nil {
		r.log.Error("Failed to set room activity", "error", err, "room", id)
		return err
	}
	return nil
}

func (r *roomRepository) Update(ctx context.Context, room *domain.Room, expectedVersion int64) error {
	room.Normalize()
	query := `
		UPDATE rooms
		SET description = $2, owner = $3, moderators = $4, banned_users = $5, version = version + 1
		WHERE id = $1 AND version = $6
		RETURNING version
	`

	err := r.db.QueryRow(ctx, query,
		room.ID, room.Description, room.Owner, room.Moderators, room.BannedUsers, expectedVersion,
	).Scan(&room.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.log.Error("Failed to update room", "error", err)
		return err
	}

	if _, getErr := r.GetByID(ctx, room.ID); getErr != nil {
		return getErr
	}
	return ErrVersionConflict
}

func (r *roomRepository) ListActive(ctx context.Context) ([]*domain.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE is_active
		ORDER BY last_activity DESC
	`
	return r.list(ctx, query)
}

func (r *roomRepository) ListDMs(ctx context.Context, username string, limit int) ([]*domain.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE is_dm AND $1 = ANY(participants)
		ORDER BY last_activity DESC
		LIMIT $2
	`
	return r.list(ctx, query, username, limit)
}

func (r *roomRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Room, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list rooms", "error", err)
		return nil, err
	}
	defer rows.Close()

	rooms := make([]*domain.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			r.log.Error("Failed to scan room", "error", err)
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}
