package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"roomsync/internal/config"
	"roomsync/pkg/logger"
)

type Repositories struct {
	Message     MessageRepository
	Room        RoomRepository
	Call        CallRepository
	Audit       AuditRepository
	Presence    PresenceRepository
	Typing      TypingRepository
	EventLog    EventLog
	RateLimit   RateLimitRepository
	Idempotency IdempotencyRepository
}

// NewRepositories собирает хранилища: nil db - долговременные данные в памяти,
// nil redis - мягкое состояние (presence, typing, журнал событий) в памяти
func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, log logger.Logger) *Repositories {
	repos := &Repositories{}

	if db != nil {
		repos.Message = NewMessageRepository(db, log)
		repos.Room = NewRoomRepository(db, log)
		repos.Call = NewCallRepository(db, log)
		repos.Audit = NewAuditRepository(db, log)
		log.Info("Postgres repositories initialized")
	} else {
		repos.Message = NewMemoryMessageRepository()
		repos.Room = NewMemoryRoomRepository()
		repos.Call = NewMemoryCallRepository()
		repos.Audit = NewMemoryAuditRepository()
		log.Warn("DATABASE_DSN is empty, messages and rooms are kept in memory")
	}

	if rdb != nil {
		repos.Presence = NewPresenceRepository(rdb, 2*cfg.Chat.PresenceTTL, log)
		repos.Typing = NewTypingRepository(rdb, cfg.Chat.TypingTTL, log)
		repos.EventLog = NewRedisEventLog(rdb, cfg.Chat.EventLogSize, log)
		repos.RateLimit = NewRateLimitRepository(rdb, log)
		repos.Idempotency = NewIdempotencyRepository(rdb, log)
		log.Info("Redis repositories initialized")
	} else {
		repos.Presence = NewMemoryPresenceRepository()
		repos.Typing = NewMemoryTypingRepository()
		repos.EventLog = NewMemoryEventLog(cfg.Chat.EventLogSize)
		repos.RateLimit = NewMemoryRateLimitRepository()
		repos.Idempotency = NewMemoryIdempotencyRepository()
		log.Warn("REDIS_ADDR is empty, presence and typing are kept in memory")
	}

	return repos
}

// NewMemoryRepositories - полностью in-memory набор (тесты, локальный запуск)
func NewMemoryRepositories(eventLogSize int) *Repositories {
	return &Repositories{
		Message:     NewMemoryMessageRepository(),
		Room:        NewMemoryRoomRepository(),
		Call:        NewMemoryCallRepository(),
		Audit:       NewMemoryAuditRepository(),
		Presence:    NewMemoryPresenceRepository(),
		Typing:      NewMemoryTypingRepository(),
		EventLog:    NewMemoryEventLog(eventLogSize),
		RateLimit:   NewMemoryRateLimitRepository(),
		Idempotency: NewMemoryIdempotencyRepository(),
	}
}
