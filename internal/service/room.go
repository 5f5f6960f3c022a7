package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"roomsync/internal/domain"
	"roomsync/internal/repository"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

const (
	MaxRoomNameLength = 50
	DMListLimit       = 50
)

type RoomService interface {
	UpsertRoom(ctx context.Context, name string) (*domain.Room, error)
	Get(ctx context.Context, id string) (*domain.Room, error)
	// ListActive - активные комнаты с числом пользователей онлайн
	ListActive(ctx context.Context) ([]*domain.Room, error)
	CreateRoom(ctx context.Context, name string, description, owner *string) (*domain.Room, error)
	CreateOrGetDM(ctx context.Context, userA, userB string) (*domain.Room, error)
	ListDMs(ctx context.Context, username string) ([]*domain.Room, error)
}

type roomService struct {
	roomRepo     repository.RoomRepository
	presenceRepo repository.PresenceRepository
	audit        AuditService
	presenceTTL  time.Duration
	log          logger.Logger
	now          func() time.Time
}

func NewRoomService(
	roomRepo repository.RoomRepository,
	presenceRepo repository.PresenceRepository,
	audit AuditService,
	presenceTTL time.Duration,
	log logger.Logger,
) RoomService {
	return &roomService{
		roomRepo:     roomRepo,
		presenceRepo: presenceRepo,
		audit:        audit,
		presenceTTL:  presenceTTL,
		log:          log,
		now:          defaultClock,
	}
}

func (s *roomService) UpsertRoom(ctx context.Context, name string) (*domain.Room, error) {
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Room name is required")
	}
	now := s.now()
	return s.roomRepo.Upsert(ctx, &domain.Room{ID: name, Name: name, CreatedAt: now, LastActivity: now})
}

func (s *roomService) Get(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.roomRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Room not found")
	}
	return room, nil
}

func (s *roomService) ListActive(ctx context.Context) ([]*domain.Room, error) {
	rooms, err := s.roomRepo.ListActive(ctx)
	if err != nil {
		s.log.Error("Failed to list active rooms", "error", err)
		return nil, err
	}

	now := s.now()
	for _, room := range rooms {
		users, err := s.presenceRepo.List(ctx, room.ID)
		if err != nil {
			s.log.Warn("Failed to count room users", "room", room.ID, "error", err)
			continue
		}
		room.UserCount = 0
		for _, u := range users {
			if u.Online(now, s.presenceTTL) {
				room.UserCount++
			}
		}
	}
	return rooms, nil
}

func (s *roomService) CreateRoom(ctx context.Context, name string, description, owner *string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Room name is required")
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "Room name too long (max %d characters)", MaxRoomNameLength)
	}
	if strings.HasPrefix(name, domain.DMRoomPrefix) {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "Room names starting with %q are reserved", domain.DMRoomPrefix)
	}
	if owner != nil && strings.TrimSpace(*owner) == "" {
		owner = nil
	}

	now := s.now()
	room := &domain.Room{
		ID:           name,
		Name:         name,
		Description:  description,
		CreatedAt:    now,
		LastActivity: now,
		Owner:        owner,
	}
	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, err
	}

	if owner != nil {
		_ = s.audit.LogEvent(ctx, *owner, domain.ActorRoleOwner, room.ID, domain.AuditRoomCreated, "", map[string]any{"name": name})
	}
	return room, nil
}

func (s *roomService) CreateOrGetDM(ctx context.Context, userA, userB string) (*domain.Room, error) {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Both users are required")
	}
	if userA == userB {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Cannot create DM with yourself")
	}

	a, b := domain.DMPair(userA, userB)
	description := domain.DMDescription
	now := s.now()
	room, err := s.roomRepo.Upsert(ctx, &domain.Room{
		ID:           domain.DMRoomID(a, b),
		Name:         a + " & " + b,
		Description:  &description,
		CreatedAt:    now,
		LastActivity: now,
		IsDM:         true,
		Participants: []string{a, b},
	})
	if err != nil {
		return nil, err
	}
	// id мог занять обычный чат, например через joinRoom
	if !room.IsDM {
		return nil, apperrors.New(apperrors.ErrConflict, "Room id is already used by a public room")
	}
	return room, nil
}

func (s *roomService) ListDMs(ctx context.Context, username string) ([]*domain.Room, error) {
	if username == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Username is required")
	}
	return s.roomRepo.ListDMs(ctx, username, DMListLimit)
}
