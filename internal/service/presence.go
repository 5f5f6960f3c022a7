package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"roomsync/internal/domain"
	"roomsync/internal/metrics"
	"roomsync/internal/repository"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

type PresenceService interface {
	// Touch - вход в комнату или heartbeat. Новый вход возвращает событие UserJoined.
	Touch(ctx context.Context, room, username string) (*domain.User, []domain.SystemEvent, error)
	// List - пользователи онлайн, по времени входа
	List(ctx context.Context, room string) ([]*domain.User, error)
	Leave(ctx context.Context, room, username, reason string) ([]domain.SystemEvent, error)
	IsOnline(ctx context.Context, room, username string) (bool, error)
	// Sweep удаляет истекшие записи всех комнат
	Sweep(ctx context.Context) ([]domain.SystemEvent, error)
	// SetMute: until == nil снимает мьют
	SetMute(ctx context.Context, room, username string, until *time.Time) (*domain.User, error)
	SetRole(ctx context.Context, room, username, role string) (*domain.User, error)
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	roomRepo     repository.RoomRepository
	typingRepo   repository.TypingRepository
	ttl          time.Duration
	log          logger.Logger
	now          func() time.Time
}

func NewPresenceService(
	presenceRepo repository.PresenceRepository,
	roomRepo repository.RoomRepository,
	typingRepo repository.TypingRepository,
	ttl time.Duration,
	log logger.Logger,
) PresenceService {
	return &presenceService{
		presenceRepo: presenceRepo,
		roomRepo:     roomRepo,
		typingRepo:   typingRepo,
		ttl:          ttl,
		log:          log,
		now:          defaultClock,
	}
}

func (s *presenceService) Touch(ctx context.Context, room, username string) (*domain.User, []domain.SystemEvent, error) {
	if room == "" || username == "" {
		return nil, nil, apperrors.New(apperrors.ErrInvalidInput, "Username and room are required")
	}

	now := s.now()
	r, err := s.roomRepo.Upsert(ctx, &domain.Room{ID: room, Name: room, CreatedAt: now, LastActivity: now})
	if err != nil {
		s.log.Error("Failed to upsert room", "room", room, "error", err)
		return nil, nil, err
	}
	// бан проверяется до создания записи присутствия
	if r.IsBanned(username) {
		return nil, nil, apperrors.New(apperrors.ErrForbidden, "You are banned from this room")
	}

	joined := false
	user, err := s.presenceRepo.Update(ctx, room, username, func(current *domain.User) (*domain.User, error) {
		joined = false
		if current != nil && current.Online(now, s.ttl) {
			if current.Username != username {
				return nil, apperrors.New(apperrors.ErrConflict, "Username already taken in this room")
			}
			current.LastSeen = now
			return current, nil
		}

		joined = true
		next := &domain.User{
			ID:       domain.PresenceID(username, room),
			Username: username,
			Room:     room,
			JoinedAt: now,
			LastSeen: now,
			Role:     domain.RoleUser,
		}
		if r.CanModerate(username) {
			next.Role = domain.RoleModerator
		}
		// мьют переживает переподключение
		if current != nil && current.MutedAt(now) {
			next.IsMuted = true
			next.MutedUntil = current.MutedUntil
		}
		return next, nil
	})
	if err != nil {
		return nil, nil, s.casError(err)
	}

	if !joined {
		return user, nil, nil
	}
	// бан мог пройти между чтением комнаты и записью присутствия
	if fresh, err := s.roomRepo.GetByID(ctx, room); err == nil && fresh.IsBanned(username) {
		if _, err := s.presenceRepo.Delete(ctx, room, username); err != nil {
			s.log.Error("Failed to drop presence of banned user", "room", room, "username", username, "error", err)
			return nil, nil, err
		}
		return nil, nil, apperrors.New(apperrors.ErrForbidden, "You are banned from this room")
	}
	if !r.IsActive {
		if err := s.roomRepo.SetActive(ctx, room, true); err != nil {
			s.log.Warn("Failed to mark room active", "room", room, "error", err)
		}
	}
	return user, []domain.SystemEvent{{Kind: domain.SystemUserJoined, Room: room, Username: username}}, nil
}

func (s *presenceService) casError(err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		metrics.CASRetries.WithLabelValues("presence").Inc()
		return apperrors.New(apperrors.ErrConflict, "presence was modified concurrently, please retry")
	}
	return err
}

func (s *presenceService) List(ctx context.Context, room string) ([]*domain.User, error) {
	if room == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Room is required")
	}
	all, err := s.presenceRepo.List(ctx, room)
	if err != nil {
		return nil, err
	}

	now := s.now()
	online := make([]*domain.User, 0, len(all))
	for _, u := range all {
		if u.Online(now, s.ttl) {
			online = append(online, u)
		}
	}
	sort.SliceStable(online, func(i, j int) bool { return online[i].JoinedAt.Before(online[j].JoinedAt) })
	return online, nil
}

func (s *presenceService) Leave(ctx context.Context, room, username, reason string) ([]domain.SystemEvent, error) {
	if room == "" || username == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Username and room are required")
	}
	if reason == "" {
		reason = domain.LeaveReasonLeft
	}

	existed, err := s.presenceRepo.Delete(ctx, room, username)
	if err != nil {
		s.log.Error("Failed to delete presence", "room", room, "username", username, "error", err)
		return nil, err
	}
	if err := s.typingRepo.Delete(ctx, room, username); err != nil {
		s.log.Warn("Failed to clear typing state", "room", room, "username", username, "error", err)
	}
	if !existed {
		return nil, nil
	}

	s.refreshActive(ctx, room)
	return []domain.SystemEvent{{Kind: domain.SystemUserLeft, Room: room, Username: username, Reason: reason}}, nil
}

// refreshActive пересчитывает isActive комнаты по числу пользователей онлайн
func (s *presenceService) refreshActive(ctx context.Context, room string) {
	online, err := s.List(ctx, room)
	if err != nil {
		s.log.Warn("Failed to list presence", "room", room, "error", err)
		return
	}
	if err := s.roomRepo.SetActive(ctx, room, len(online) > 0); err != nil {
		s.log.Warn("Failed to update room activity flag", "room", room, "error", err)
	}
}

func (s *presenceService) IsOnline(ctx context.Context, room, username string) (bool, error) {
	u, err := s.presenceRepo.Get(ctx, room, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.Online(s.now(), s.ttl), nil
}

func (s *presenceService) Sweep(ctx context.Context) ([]domain.SystemEvent, error) {
	rooms, err := s.presenceRepo.Rooms(ctx)
	if err != nil {
		return nil, err
	}

	var events []domain.SystemEvent
	for _, room := range rooms {
		users, err := s.presenceRepo.List(ctx, room)
		if err != nil {
			s.log.Warn("Failed to list presence for sweep", "room", room, "error", err)
			continue
		}

		now := s.now()
		expired := 0
		for _, u := range users {
			if u.Online(now, s.ttl) {
				continue
			}
			removed := false
			_, err := s.presenceRepo.Update(ctx, room, u.Username, func(current *domain.User) (*domain.User, error) {
				removed = false
				// запись могли обновить после List
				if current != nil && current.Online(now, s.ttl) {
					return current, nil
				}
				removed = current != nil
				return nil, nil
			})
			if err != nil {
				s.log.Warn("Failed to expire presence", "room", room, "username", u.Username, "error", err)
				continue
			}
			if removed {
				expired++
				events = append(events, domain.SystemEvent{
					Kind:     domain.SystemUserLeft,
					Room:     room,
					Username: u.Username,
					Reason:   domain.LeaveReasonExpired,
				})
			}
		}

		if expired > 0 {
			metrics.PresenceExpired.Add(float64(expired))
			s.refreshActive(ctx, room)
		}
	}
	return events, nil
}

func (s *presenceService) SetMute(ctx context.Context, room, username string, until *time.Time) (*domain.User, error) {
	now := s.now()
	user, err := s.presenceRepo.Update(ctx, room, username, func(current *domain.User) (*domain.User, error) {
		if current == nil || !current.Online(now, s.ttl) {
			if until == nil {
				return current, nil
			}
			return nil, apperrors.New(apperrors.ErrNotFound, "User not found in room")
		}
		current.IsMuted = until != nil
		current.MutedUntil = until
		return current, nil
	})
	if err != nil {
		return nil, s.casError(err)
	}
	return user, nil
}

func (s *presenceService) SetRole(ctx context.Context, room, username, role string) (*domain.User, error) {
	user, err := s.presenceRepo.Update(ctx, room, username, func(current *domain.User) (*domain.User, error) {
		if current == nil {
			return nil, nil
		}
		current.Role = role
		return current, nil
	})
	if err != nil {
		return nil, s.casError(err)
	}
	return user, nil
}
