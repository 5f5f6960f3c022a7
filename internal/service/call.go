package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"roomsync/internal/domain"
	"roomsync/internal/repository"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

const (
	CallActionJoin  = "join"
	CallActionLeave = "leave"
	CallActionEnd   = "end"
)

// CallConflictError - в комнате уже идет звонок; Call отдается клиенту в теле 409
type CallConflictError struct {
	Call *domain.VideoCall
}

func (e *CallConflictError) Error() string {
	return "A video call is already active in this room"
}

func (e *CallConflictError) Unwrap() error {
	return apperrors.ErrConflict
}

type CallService interface {
	Start(ctx context.Context, roomID, username string) (*domain.VideoCall, []domain.SystemEvent, error)
	Join(ctx context.Context, callID, username string) (*domain.VideoCall, error)
	Leave(ctx context.Context, callID, username string) (*domain.VideoCall, error)
	// End идемпотентен: завершенный звонок возвращается без изменений
	End(ctx context.Context, callID, username string) (*domain.VideoCall, error)
	// Active возвращает nil, если в комнате нет незавершенного звонка
	Active(ctx context.Context, roomID string) (*domain.VideoCall, error)
	Get(ctx context.Context, callID string) (*domain.VideoCall, error)
}

type callService struct {
	callRepo repository.CallRepository
	audit    AuditService
	log      logger.Logger
	now      func() time.Time
}

func NewCallService(callRepo repository.CallRepository, audit AuditService, log logger.Logger) CallService {
	return &callService{
		callRepo: callRepo,
		audit:    audit,
		log:      log,
		now:      defaultClock,
	}
}

func (s *callService) Start(ctx context.Context, roomID, username string) (*domain.VideoCall, []domain.SystemEvent, error) {
	if roomID == "" || username == "" {
		return nil, nil, apperrors.New(apperrors.ErrInvalidInput, "Room ID and username are required")
	}

	existing, err := s.Active(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, &CallConflictError{Call: existing}
	}

	now := s.now()
	call := &domain.VideoCall{
		ID:           uuid.NewString(),
		RoomID:       roomID,
		ChannelName:  domain.CallChannelName(roomID, now),
		StartedBy:    username,
		Participants: []string{username},
		Status:       domain.CallStatusWaiting,
		StartedAt:    now,
	}
	if err := s.callRepo.Create(ctx, call); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// проиграли гонку за уникальный звонок комнаты
			if existing, _ := s.Active(ctx, roomID); existing != nil {
				return nil, nil, &CallConflictError{Call: existing}
			}
		}
		s.log.Error("Failed to create video call", "room", roomID, "error", err)
		return nil, nil, err
	}

	s.log.Info("Video call started", "room", roomID, "call", call.ID, "startedBy", username)
	return call, []domain.SystemEvent{{Kind: domain.SystemCallStarted, Room: roomID, Username: username, Call: call}}, nil
}

func (s *callService) Get(ctx context.Context, callID string) (*domain.VideoCall, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, notFound(err, "Call not found")
	}
	return call, nil
}

func (s *callService) Active(ctx context.Context, roomID string) (*domain.VideoCall, error) {
	if roomID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Room ID is required")
	}
	call, err := s.callRepo.GetOpenByRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return call, nil
}

// transition выполняет переход состояния под CAS по версии звонка.
// mutate возвращает false, если менять нечего.
func (s *callService) transition(ctx context.Context, callID string, mutate func(*domain.VideoCall) (bool, error)) (*domain.VideoCall, error) {
	var result *domain.VideoCall
	err := withVersionRetry(ctx, "call", func() error {
		call, err := s.Get(ctx, callID)
		if err != nil {
			return err
		}
		changed, err := mutate(call)
		if err != nil {
			return err
		}
		if changed {
			if err := s.callRepo.Update(ctx, call, call.Version); err != nil {
				return err
			}
		}
		result = call
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *callService) Join(ctx context.Context, callID, username string) (*domain.VideoCall, error) {
	if username == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Username required for join")
	}
	return s.transition(ctx, callID, func(call *domain.VideoCall) (bool, error) {
		if call.Ended() {
			return false, apperrors.New(apperrors.ErrInvalidState, "Call has already ended")
		}
		call.Join(username)
		return true, nil
	})
}

func (s *callService) Leave(ctx context.Context, callID, username string) (*domain.VideoCall, error) {
	if username == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Username required for leave")
	}
	return s.transition(ctx, callID, func(call *domain.VideoCall) (bool, error) {
		if call.Ended() {
			return false, nil
		}
		call.Leave(username)
		return true, nil
	})
}

func (s *callService) End(ctx context.Context, callID, username string) (*domain.VideoCall, error) {
	ended := false
	call, err := s.transition(ctx, callID, func(call *domain.VideoCall) (bool, error) {
		ended = !call.Ended()
		if !ended {
			return false, nil
		}
		call.End(s.now())
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if ended {
		actor, role := username, domain.ActorRoleParticipant
		if actor == "" {
			actor, role = domain.SystemUsername, domain.ActorRoleSystem
		}
		_ = s.audit.LogEvent(ctx, actor, role, call.RoomID, domain.AuditCallEnded, call.ID, map[string]any{"duration": *call.Duration})
		s.log.Info("Video call ended", "room", call.RoomID, "call", call.ID, "duration", *call.Duration)
	}
	return call, nil
}
