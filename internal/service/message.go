package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"roomsync/internal/domain"
	"roomsync/internal/metrics"
	"roomsync/internal/repository"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

type MessageService interface {
	Append(ctx context.Context, room, username, text string) (*domain.Message, error)
	AppendSystem(ctx context.Context, room, text string) (*domain.Message, error)
	// List - страница сообщений с timestamp < before, от старых к новым
	List(ctx context.Context, room string, limit int, before *time.Time) ([]*domain.Message, error)
	ListSince(ctx context.Context, room string, after time.Time, limit int) ([]*domain.Message, error)
	Get(ctx context.Context, id string) (*domain.Message, error)
	Edit(ctx context.Context, id, username, text string) (*domain.Message, error)
	SoftDelete(ctx context.Context, id, username string) (*domain.Message, error)
	// ToggleReaction возвращает обновленное сообщение и true, если реакция добавлена
	ToggleReaction(ctx context.Context, id, room, emoji, username string) (*domain.Message, bool, error)
	Purge(ctx context.Context, id string) (*domain.Message, error)
}

type messageService struct {
	messageRepo  repository.MessageRepository
	roomRepo     repository.RoomRepository
	presenceRepo repository.PresenceRepository
	filter       TextFilter
	maxRunes     int
	log          logger.Logger
	now          func() time.Time
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	roomRepo repository.RoomRepository,
	presenceRepo repository.PresenceRepository,
	filter TextFilter,
	maxRunes int,
	log logger.Logger,
) MessageService {
	if maxRunes <= 0 {
		maxRunes = domain.DefaultMaxMessageRunes
	}
	if filter == nil {
		filter = NewNopFilter()
	}
	return &messageService{
		messageRepo:  messageRepo,
		roomRepo:     roomRepo,
		presenceRepo: presenceRepo,
		filter:       filter,
		maxRunes:     maxRunes,
		log:          log,
		now:          defaultClock,
	}
}

func (s *messageService) validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.New(apperrors.ErrInvalidInput, "Message cannot be empty")
	}
	if utf8.RuneCountInString(text) > s.maxRunes {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "Message too long (max %d characters)", s.maxRunes)
	}
	return text, nil
}

func (s *messageService) Append(ctx context.Context, room, username, text string) (*domain.Message, error) {
	if room == "" || username == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Username and room are required")
	}
	text, err := s.validateText(text)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user, err := s.presenceRepo.Get(ctx, room, username)
	switch {
	case err == nil:
		if user.MutedAt(now) {
			return nil, apperrors.New(apperrors.ErrForbidden, "You are muted")
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}

	message := &domain.Message{
		ID:        uuid.NewString(),
		Username:  username,
		Text:      s.filter.Filter(text),
		Room:      room,
		Timestamp: now,
		Type:      domain.MessageTypeUser,
	}
	return message, s.store(ctx, message)
}

func (s *messageService) AppendSystem(ctx context.Context, room, text string) (*domain.Message, error) {
	message := &domain.Message{
		ID:        uuid.NewString(),
		Username:  domain.SystemUsername,
		Text:      text,
		Room:      room,
		Timestamp: s.now(),
		Type:      domain.MessageTypeSystem,
	}
	return message, s.store(ctx, message)
}

func (s *messageService) store(ctx context.Context, message *domain.Message) error {
	message.Normalize()
	if err := s.messageRepo.Create(ctx, message); err != nil {
		s.log.Error("Failed to create message", "room", message.Room, "error", err)
		return err
	}
	metrics.MessagesCreated.WithLabelValues(message.Type).Inc()

	// комната создается при первом сообщении
	if _, err := s.roomRepo.Upsert(ctx, &domain.Room{
		ID:           message.Room,
		Name:         message.Room,
		CreatedAt:    message.Timestamp,
		LastActivity: message.Timestamp,
	}); err != nil {
		s.log.Warn("Failed to touch room activity", "room", message.Room, "error", err)
	}
	return nil
}

func (s *messageService) List(ctx context.Context, room string, limit int, before *time.Time) ([]*domain.Message, error) {
	if room == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Room is required")
	}
	return s.messageRepo.List(ctx, room, clampLimit(limit, DefaultMessageLimit, MaxMessageLimit), before)
}

func (s *messageService) ListSince(ctx context.Context, room string, after time.Time, limit int) ([]*domain.Message, error) {
	if room == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Room is required")
	}
	return s.messageRepo.ListAfter(ctx, room, after, clampLimit(limit, MaxMessageLimit, MaxMessageLimit))
}

func (s *messageService) Get(ctx context.Context, id string) (*domain.Message, error) {
	message, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Message not found")
	}
	return message, nil
}

func (s *messageService) Edit(ctx context.Context, id, username, text string) (*domain.Message, error) {
	var updated *domain.Message
	err := withVersionRetry(ctx, "message", func() error {
		message, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if message.Username != username {
			return apperrors.New(apperrors.ErrForbidden, "You can only edit your own messages")
		}
		if message.Deleted {
			return apperrors.New(apperrors.ErrInvalidState, "Cannot edit deleted message")
		}
		newText, err := s.validateText(text)
		if err != nil {
			return err
		}

		message.ApplyEdit(s.filter.Filter(newText), s.now())
		if err := s.messageRepo.Update(ctx, message, message.Version); err != nil {
			return err
		}
		updated = message
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *messageService) SoftDelete(ctx context.Context, id, username string) (*domain.Message, error) {
	var deleted *domain.Message
	err := withVersionRetry(ctx, "message", func() error {
		message, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if message.Username != username {
			return apperrors.New(apperrors.ErrForbidden, "You can only delete your own messages")
		}
		if message.Deleted {
			deleted = message
			return nil
		}

		message.SoftDelete(s.now())
		if err := s.messageRepo.Update(ctx, message, message.Version); err != nil {
			return err
		}
		deleted = message
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *messageService) ToggleReaction(ctx context.Context, id, room, emoji, username string) (*domain.Message, bool, error) {
	if id == "" || emoji == "" || username == "" {
		return nil, false, apperrors.New(apperrors.ErrInvalidInput, "MessageId, emoji, username, and room are required")
	}

	var (
		updated *domain.Message
		added   bool
	)
	err := withVersionRetry(ctx, "message", func() error {
		message, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if room != "" && message.Room != room {
			return apperrors.New(apperrors.ErrNotFound, "Message not found")
		}
		if message.Deleted {
			return apperrors.New(apperrors.ErrInvalidState, "Cannot react to deleted message")
		}

		added = message.ToggleReaction(emoji, username)
		if err := s.messageRepo.Update(ctx, message, message.Version); err != nil {
			return err
		}
		updated = message
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return updated, added, nil
}

func (s *messageService) Purge(ctx context.Context, id string) (*domain.Message, error) {
	message, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.messageRepo.Delete(ctx, id); err != nil {
		return nil, notFound(err, "Message not found")
	}
	return message, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// notFound заменяет ErrNotFound хранилища на ошибку с текстом для клиента
func notFound(err error, message string) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.New(apperrors.ErrNotFound, message)
	}
	return err
}
