package service

import (
	"context"
	"fmt"
	"time"

	"roomsync/internal/domain"
	"roomsync/internal/repository"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

const (
	ActionKick    = "kick"
	ActionBan     = "ban"
	ActionUnban   = "unban"
	ActionMute    = "mute"
	ActionUnmute  = "unmute"
	ActionPromote = "promote"
	ActionDemote  = "demote"

	DefaultMuteMinutes = 60
)

type ModerationRequest struct {
	Action    string
	Room      string
	Moderator string
	Target    string
	// Duration - длительность мьюта в минутах, 0 - по умолчанию
	Duration int
}

type ModerationResult struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Events  []domain.SystemEvent `json:"-"`
}

type ModerationService interface {
	Apply(ctx context.Context, req ModerationRequest) (*ModerationResult, error)
}

type moderationService struct {
	roomRepo repository.RoomRepository
	presence PresenceService
	audit    AuditService
	log      logger.Logger
	now      func() time.Time
}

func NewModerationService(roomRepo repository.RoomRepository, presence PresenceService, audit AuditService, log logger.Logger) ModerationService {
	return &moderationService{
		roomRepo: roomRepo,
		presence: presence,
		audit:    audit,
		log:      log,
		now:      defaultClock,
	}
}

var auditEvents = map[string]string{
	ActionKick:    domain.AuditUserKicked,
	ActionBan:     domain.AuditUserBanned,
	ActionUnban:   domain.AuditUserUnbanned,
	ActionMute:    domain.AuditUserMuted,
	ActionUnmute:  domain.AuditUserUnmuted,
	ActionPromote: domain.AuditUserPromoted,
	ActionDemote:  domain.AuditUserDemoted,
}

func (s *moderationService) Apply(ctx context.Context, req ModerationRequest) (*ModerationResult, error) {
	if req.Action == "" || req.Room == "" || req.Moderator == "" || req.Target == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Missing required fields")
	}
	auditEvent, ok := auditEvents[req.Action]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "Unknown moderation action %q", req.Action)
	}
	if req.Target == req.Moderator {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Cannot moderate yourself")
	}
	if req.Duration < 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Duration must be positive")
	}

	room, err := s.roomRepo.GetByID(ctx, req.Room)
	if err != nil {
		return nil, notFound(err, "Room not found")
	}
	if !room.CanModerate(req.Moderator) {
		return nil, apperrors.New(apperrors.ErrForbidden, "You do not have permission to moderate this room")
	}

	result := &ModerationResult{Success: true}
	payload := map[string]any{}

	switch req.Action {
	case ActionKick:
		if result.Events, err = s.presence.Leave(ctx, req.Room, req.Target, domain.LeaveReasonKicked); err != nil {
			return nil, err
		}
		result.Message = fmt.Sprintf("%s has been kicked from the room", req.Target)

	case ActionBan:
		if err := s.updateRoom(ctx, req.Room, func(r *domain.Room) { r.Ban(req.Target) }); err != nil {
			return nil, err
		}
		if result.Events, err = s.presence.Leave(ctx, req.Room, req.Target, domain.LeaveReasonBanned); err != nil {
			return nil, err
		}
		result.Message = fmt.Sprintf("%s has been banned from the room", req.Target)

	case ActionUnban:
		if err := s.updateRoom(ctx, req.Room, func(r *domain.Room) { r.Unban(req.Target) }); err != nil {
			return nil, err
		}
		result.Message = fmt.Sprintf("%s has been unbanned", req.Target)

	case ActionMute:
		minutes := req.Duration
		if minutes == 0 {
			minutes = DefaultMuteMinutes
		}
		until := s.now().Add(time.Duration(minutes) * time.Minute)
		if _, err := s.presence.SetMute(ctx, req.Room, req.Target, &until); err != nil {
			return nil, err
		}
		payload["minutes"] = minutes
		payload["mutedUntil"] = until
		result.Message = fmt.Sprintf("%s has been muted for %d minutes", req.Target, minutes)

	case ActionUnmute:
		if _, err := s.presence.SetMute(ctx, req.Room, req.Target, nil); err != nil {
			return nil, err
		}
		result.Message = fmt.Sprintf("%s has been unmuted", req.Target)

	case ActionPromote:
		if err := s.updateRoom(ctx, req.Room, func(r *domain.Room) { r.AddModerator(req.Target) }); err != nil {
			return nil, err
		}
		if _, err := s.presence.SetRole(ctx, req.Room, req.Target, domain.RoleModerator); err != nil {
			return nil, err
		}
		result.Message = fmt.Sprintf("%s has been promoted to moderator", req.Target)

	case ActionDemote:
		if err := s.updateRoom(ctx, req.Room, func(r *domain.Room) { r.RemoveModerator(req.Target) }); err != nil {
			return nil, err
		}
		if _, err := s.presence.SetRole(ctx, req.Room, req.Target, domain.RoleUser); err != nil {
			return nil, err
		}
		result.Message = fmt.Sprintf("%s has been demoted", req.Target)
	}

	actorRole := domain.ActorRoleModerator
	if room.Owner != nil && *room.Owner == req.Moderator {
		actorRole = domain.ActorRoleOwner
	}
	_ = s.audit.LogEvent(ctx, req.Moderator, actorRole, req.Room, auditEvent, req.Target, payload)

	s.log.Info("Moderation action applied", "action", req.Action, "room", req.Room, "moderator", req.Moderator, "target", req.Target)
	return result, nil
}

// updateRoom меняет списки модерации комнаты через CAS по версии
func (s *moderationService) updateRoom(ctx context.Context, id string, mutate func(*domain.Room)) error {
	return withVersionRetry(ctx, "room", func() error {
		room, err := s.roomRepo.GetByID(ctx, id)
		if err != nil {
			return notFound(err, "Room not found")
		}
		mutate(room)
		return s.roomRepo.Update(ctx, room, room.Version)
	})
}
