package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"roomsync/pkg/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		description   TEXT,
		is_active     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL,
		last_activity TIMESTAMPTZ NOT NULL,
		is_dm         BOOLEAN NOT NULL DEFAULT FALSE,
		participants  TEXT[] NOT NULL DEFAULT '{}',
		owner         TEXT,
		moderators    TEXT[] NOT NULL DEFAULT '{}',
		banned_users  TEXT[] NOT NULL DEFAULT '{}',
		version       BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS rooms_name_unique ON rooms (name) WHERE NOT is_dm`,
	`CREATE INDEX IF NOT EXISTS rooms_participants_idx ON rooms USING GIN (participants) WHERE is_dm`,
	`CREATE TABLE IF NOT EXISTS messages (
		id           TEXT PRIMARY KEY,
		room         TEXT NOT NULL,
		username     TEXT NOT NULL,
		text         TEXT NOT NULL,
		type         TEXT NOT NULL,
		reactions    JSONB NOT NULL DEFAULT '[]',
		edited       BOOLEAN NOT NULL DEFAULT FALSE,
		edited_at    TIMESTAMPTZ,
		edit_history JSONB NOT NULL DEFAULT '[]',
		deleted      BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at   TIMESTAMPTZ,
		version      BIGINT NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS video_calls (
		id               TEXT PRIMARY KEY,
		room_id          TEXT NOT NULL,
		channel_name     TEXT NOT NULL UNIQUE,
		started_by       TEXT NOT NULL,
		participants     TEXT[] NOT NULL DEFAULT '{}',
		status           TEXT NOT NULL,
		started_at       TIMESTAMPTZ NOT NULL,
		ended_at         TIMESTAMPTZ,
		duration_seconds BIGINT,
		version          BIGINT NOT NULL DEFAULT 0
	)`,
	// не больше одного незавершенного звонка на комнату
	`CREATE UNIQUE INDEX IF NOT EXISTS video_calls_one_open_per_room
		ON video_calls (room_id) WHERE status IN ('waiting', 'active')`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         BIGSERIAL PRIMARY KEY,
		event_time TIMESTAMPTZ NOT NULL,
		actor      TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		room       TEXT NOT NULL,
		event_type TEXT NOT NULL,
		target     TEXT,
		payload    JSONB NOT NULL DEFAULT '{}'
	)`,
}

// Migrate создает таблицы, если их еще нет
func Migrate(ctx context.Context, db *pgxpool.Pool, log logger.Logger) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			log.Error("Failed to apply schema statement", "index", i, "error", err)
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	log.Info("Database schema is up to date", "statements", len(schema))
	return nil
}
