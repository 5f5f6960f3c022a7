package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"roomsync/internal/config"
	"roomsync/internal/middleware"
	"roomsync/internal/realtime"
	"roomsync/internal/repository"
	"roomsync/internal/service"
	"roomsync/pkg/logger"
)

type Handlers struct {
	Health     *HealthHandler
	Message    *MessageHandler
	User       *UserHandler
	Typing     *TypingHandler
	Room       *RoomHandler
	DM         *DMHandler
	Moderation *ModerationHandler
	Call       *CallHandler
	Media      *MediaHandler
	Events     *EventsHandler
	WebSocket  *WebSocketHandler
}

func NewHandlers(
	services *service.Services,
	repos *repository.Repositories,
	hub *realtime.Hub,
	poll *realtime.PollTransport,
	cfg *config.Config,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(cfg.Mode(), hub),
		Message:    NewMessageHandler(services.Message, services.Dispatcher, services.Audit, repos.Idempotency, cfg.Chat.IdempotencyTTL, log),
		User:       NewUserHandler(services.Presence, services.Dispatcher, log),
		Typing:     NewTypingHandler(services.Typing, services.Dispatcher, log),
		Room:       NewRoomHandler(services.Room, log),
		DM:         NewDMHandler(services.Room, log),
		Moderation: NewModerationHandler(services.Moderation, services.Dispatcher, log),
		Call:       NewCallHandler(services.Call, services.Dispatcher, log),
		Media:      NewMediaHandler(services.Media, log),
		Events:     NewEventsHandler(poll, log),
		WebSocket:  NewWebSocketHandler(hub, services, cfg.Chat, log),
	}
}

// actor - имя из проверенного токена, иначе имя из запроса
func actor(c *gin.Context, claimed string) string {
	if name, ok := middleware.Username(c); ok {
		return name
	}
	return strings.TrimSpace(claimed)
}

// published логирует ошибку доставки события; изменение уже сохранено
func published(log logger.Logger, event string, err error) {
	if err != nil {
		log.Warn("Failed to publish event", "event", event, "error", err)
	}
}
