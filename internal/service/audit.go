package service

import (
	"context"
	"time"

	"roomsync/internal/domain"
	"roomsync/internal/repository"
	"roomsync/pkg/logger"
)

type AuditService interface {
	LogEvent(ctx context.Context, actor, actorRole, room, eventType, target string, payload map[string]any) error
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
	now       func() time.Time
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
		now:       defaultClock,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actor, actorRole, room, eventType, target string, payload map[string]any) error {
	if payload == nil {
		payload = make(map[string]any)
	}

	auditLog := &domain.AuditLog{
		EventTime: s.now(),
		Actor:     actor,
		ActorRole: actorRole,
		Room:      room,
		EventType: eventType,
		Target:    target,
		Payload:   payload,
	}

	if err := s.auditRepo.CreateLog(ctx, auditLog); err != nil {
		s.log.Error("Failed to write audit log", "event", eventType, "room", room, "error", err)
		return err
	}
	return nil
}
