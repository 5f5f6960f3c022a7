package service

import (
	"time"

	"roomsync/internal/config"
	"roomsync/internal/realtime"
	"roomsync/internal/repository"
	"roomsync/pkg/logger"
)

type Services struct {
	Message    MessageService
	Presence   PresenceService
	Typing     TypingService
	Room       RoomService
	Moderation ModerationService
	Call       CallService
	Media      MediaService
	RateLimit  RateLimitService
	Audit      AuditService
	Dispatcher *Dispatcher
}

// defaultClock - время сервера в UTC с точностью, которую сохраняет Postgres
func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func NewServices(repos *repository.Repositories, transport realtime.SyncTransport, filter TextFilter, cfg *config.Config, log logger.Logger) *Services {
	audit := NewAuditService(repos.Audit, log)
	presence := NewPresenceService(repos.Presence, repos.Room, repos.Typing, cfg.Chat.PresenceTTL, log)
	messages := NewMessageService(repos.Message, repos.Room, repos.Presence, filter, cfg.Chat.MaxMessageLength, log)
	typing := NewTypingService(repos.Typing, cfg.Chat.TypingTTL, log)
	rooms := NewRoomService(repos.Room, repos.Presence, audit, cfg.Chat.PresenceTTL, log)

	return &Services{
		Message:    messages,
		Presence:   presence,
		Typing:     typing,
		Room:       rooms,
		Moderation: NewModerationService(repos.Room, presence, audit, log),
		Call:       NewCallService(repos.Call, audit, log),
		Media:      NewMediaService(cfg.LiveKit, log),
		RateLimit:  NewRateLimitService(repos.RateLimit, log),
		Audit:      audit,
		Dispatcher: NewDispatcher(transport, messages, presence, rooms, typing, log),
	}
}
