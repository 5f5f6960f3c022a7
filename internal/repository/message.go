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

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// List возвращает до limit сообщений старше before, от старых к новым
	List(ctx context.Context, room string, limit int, before *time.Time) ([]*domain.Message, error)
	// ListAfter возвращает сообщения новее after, от старых к новым
	ListAfter(ctx context.Context, room string, after time.Time, limit int) ([]*domain.Message, error)
	// Update сохраняет сообщение, если его версия все еще expectedVersion
	Update(ctx context.Context, message *domain.Message, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageColumns = `id, room, username, text, type, reactions, edited, edited_at,
	edit_history, deleted, deleted_at, version, created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.ID, &m.Room, &m.Username, &m.Text, &m.Type, &m.Reactions, &m.Edited, &m.EditedAt,
		&m.EditHistory, &m.Deleted, &m.DeletedAt, &m.Version, &m.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	m.Normalize()
	return m, nil
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	message.Normalize()
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		message.ID, message.Room, message.Username, message.Text, message.Type, message.Reactions,
		message.Edited, message.EditedAt, message.EditHistory, message.Deleted, message.DeletedAt,
		message.Version, message.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("message %s: %w", message.ID, apperrors.ErrConflict)
		}
		r.log.Error("Failed to create message", "error", err)
		return err
	}

	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
		}
		r.log.Error("Failed to get message", "error", err)
		return nil, err
	}

	return m, nil
}

func (r *messageRepository) List(ctx context.Context, room string, limit int, before *time.Time) ([]*domain.Message, error) {
	// Берем самые новые, затем разворачиваем в хронологический порядок
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	messages, err := r.query(ctx, query, room, before, limit)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) ListAfter(ctx context.Context, room string, after time.Time, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room = $1 AND created_at > $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	return r.query(ctx, query, room, after, limit)
}

func (r *messageRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (r *messageRepository) Update(ctx context.Context, message *domain.Message, expectedVersion int64) error {
	message.Normalize()
	query := `
		UPDATE messages
		SET text = $2, reactions = $3, edited = $4, edited_at = $5,
		    edit_history = $6, deleted = $7, deleted_at = $8, version = version + 1
		WHERE id = $1 AND version = $9
		RETURNING version
	`

	err := r.db.QueryRow(ctx, query,
		message.ID, message.Text, message.Reactions, message.Edited, message.EditedAt,
		message.EditHistory, message.Deleted, message.DeletedAt, expectedVersion,
	).Scan(&message.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.log.Error("Failed to update message", "error", err)
		return err
	}

	// Ни одна строка не обновилась: либо сообщения нет, либо версия устарела
	if _, getErr := r.GetByID(ctx, message.ID); getErr != nil {
		return getErr
	}
	return ErrVersionConflict
}

func (r *messageRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to delete message", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
