package realtime

import (
	"context"

	"roomsync/internal/domain"
	"roomsync/internal/repository"
)

// PollTransport пишет события комнат в журнал, из которого читает /api/events.
// Глобальные события не журналируются: poll-клиенты получают список комнат снимком.
type PollTransport struct {
	log repository.EventLog
}

func NewPollTransport(log repository.EventLog) *PollTransport {
	return &PollTransport{log: log}
}

func (p *PollTransport) Publish(ctx context.Context, ev domain.Event) error {
	if ev.Room == "" {
		return nil
	}
	_, err := p.log.Append(ctx, ev)
	return err
}

func (p *PollTransport) Since(ctx context.Context, room, cursor string, limit int) (*repository.EventPage, error) {
	return p.log.Since(ctx, room, cursor, limit)
}
