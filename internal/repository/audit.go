package repository

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"roomsync/internal/domain"
	"roomsync/pkg/logger"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, log *domain.AuditLog) error
}

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

func (r *auditRepository) CreateLog(ctx context.Context, auditLog *domain.AuditLog) error {
	query := `
		INSERT INTO audit_log (event_time, actor, actor_role, room, event_type, target, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		auditLog.EventTime, auditLog.Actor, auditLog.ActorRole,
		auditLog.Room, auditLog.EventType, auditLog.Target, auditLog.Payload,
	).Scan(&auditLog.ID)

	if err != nil {
		r.log.Error("Failed to create audit log", "error", err)
		return err
	}

	return nil
}

// MemoryAuditRepository держит журнал в памяти; Logs нужен тестам
type MemoryAuditRepository struct {
	mu   sync.Mutex
	logs []domain.AuditLog
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) CreateLog(_ context.Context, auditLog *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auditLog.ID = int64(len(r.logs) + 1)
	r.logs = append(r.logs, *auditLog)
	return nil
}

func (r *MemoryAuditRepository) Logs() []domain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.AuditLog, len(r.logs))
	copy(out, r.logs)
	return out
}
