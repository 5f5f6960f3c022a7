package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

const EventLogKeyPrefix = "events:room:%s"

// EventPage - порция событий для poll-клиента
type EventPage struct {
	Events []domain.Event `json:"events"`
	Cursor string         `json:"cursor"`
	// Truncated - часть событий после курсора уже вытеснена,
	// клиенту нужно перечитать снимки
	Truncated bool `json:"truncated"`
}

// EventLog - ограниченный журнал событий комнаты для poll-режима
type EventLog interface {
	Append(ctx context.Context, ev domain.Event) (string, error)
	// Since возвращает события после cursor; пустой cursor - последние limit событий
	Since(ctx context.Context, room, cursor string, limit int) (*EventPage, error)
}

type redisEventLog struct {
	rdb    *redis.Client
	maxLen int64
	log    logger.Logger
}

// NewRedisEventLog хранит журнал в Redis Streams, курсор - id записи стрима
func NewRedisEventLog(rdb *redis.Client, maxLen int, log logger.Logger) EventLog {
	return &redisEventLog{rdb: rdb, maxLen: int64(maxLen), log: log}
}

func (l *redisEventLog) key(room string) string {
	return fmt.Sprintf(EventLogKeyPrefix, room)
}

func (l *redisEventLog) Append(ctx context.Context, ev domain.Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: l.key(ev.Room),
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]interface{}{"event": data},
	}).Result()
	if err != nil {
		l.log.Error("Failed to append event", "error", err, "room", ev.Room)
		return "", err
	}
	return id, nil
}

func (l *redisEventLog) Since(ctx context.Context, room, cursor string, limit int) (*EventPage, error) {
	key := l.key(room)
	if cursor != "" {
		if _, err := parseStreamID(cursor); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "invalid cursor %q", cursor)
		}
	}

	var (
		entries []redis.XMessage
		err     error
	)
	if cursor == "" {
		entries, err = l.rdb.XRevRangeN(ctx, key, "+", "-", int64(limit)).Result()
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	} else {
		entries, err = l.rdb.XRangeN(ctx, key, "("+cursor, "+", int64(limit)).Result()
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		l.log.Error("Failed to read events", "error", err, "room", room)
		return nil, err
	}

	page := &EventPage{Events: make([]domain.Event, 0, len(entries)), Cursor: cursor}
	if cursor != "" {
		if page.Truncated, err = l.trimmedPast(ctx, key, cursor); err != nil {
			return nil, err
		}
	}
	for _, entry := range entries {
		raw, ok := entry.Values["event"].(string)
		if !ok {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			l.log.Warn("Failed to unmarshal event", "error", err)
			continue
		}
		ev.Cursor = entry.ID
		page.Events = append(page.Events, ev)
		page.Cursor = entry.ID
	}
	return page, nil
}

// trimmedPast сообщает, что MAXLEN уже вытеснил записи после cursor:
// стрим заполнен, а самая старая запись новее курсора
func (l *redisEventLog) trimmedPast(ctx context.Context, key, cursor string) (bool, error) {
	after, err := parseStreamID(cursor)
	if err != nil {
		return false, err
	}

	size, err := l.rdb.XLen(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.log.Error("Failed to read event log length", "error", err, "key", key)
		return false, err
	}
	if size < l.maxLen {
		return false, nil
	}

	first, err := l.rdb.XRangeN(ctx, key, "-", "+", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.log.Error("Failed to read event log head", "error", err, "key", key)
		return false, err
	}
	if len(first) == 0 {
		return false, nil
	}
	oldest, err := parseStreamID(first[0].ID)
	if err != nil {
		return false, err
	}
	return oldest.after(after), nil
}

type streamID struct {
	ms, seq uint64
}

func (a streamID) after(b streamID) bool {
	return a.ms > b.ms || (a.ms == b.ms && a.seq > b.seq)
}

// parseStreamID разбирает id вида "<ms>-<seq>"
func parseStreamID(id string) (streamID, error) {
	msPart, seqPart, ok := strings.Cut(id, "-")
	if !ok {
		seqPart = "0"
	}
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return streamID{}, err
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return streamID{}, err
	}
	return streamID{ms: ms, seq: seq}, nil
}

// memoryEventLog - кольцевой буфер на комнату, курсор - порядковый номер
type memoryEventLog struct {
	mu    sync.Mutex
	size  int
	rooms map[string]*eventRing
}

type eventRing struct {
	next   uint64
	events []domain.Event
}

func NewMemoryEventLog(size int) EventLog {
	if size <= 0 {
		size = 500
	}
	return &memoryEventLog{size: size, rooms: make(map[string]*eventRing)}
}

func (l *memoryEventLog) Append(_ context.Context, ev domain.Event) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ring, ok := l.rooms[ev.Room]
	if !ok {
		ring = &eventRing{}
		l.rooms[ev.Room] = ring
	}
	ring.next++
	ev.Cursor = strconv.FormatUint(ring.next, 10)
	ring.events = append(ring.events, ev)
	if len(ring.events) > l.size {
		ring.events = ring.events[len(ring.events)-l.size:]
	}
	return ev.Cursor, nil
}

func (l *memoryEventLog) Since(_ context.Context, room, cursor string, limit int) (*EventPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	page := &EventPage{Events: []domain.Event{}, Cursor: cursor}
	ring, ok := l.rooms[room]
	if !ok || len(ring.events) == 0 {
		return page, nil
	}

	var start int
	if cursor == "" {
		start = len(ring.events) - limit
		if start < 0 {
			start = 0
		}
	} else {
		after, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "invalid cursor %q", cursor)
		}
		oldest := ring.next - uint64(len(ring.events)) + 1
		if after+1 < oldest {
			page.Truncated = true
		}
		start = len(ring.events)
		for i, ev := range ring.events {
			seq, _ := strconv.ParseUint(ev.Cursor, 10, 64)
			if seq > after {
				start = i
				break
			}
		}
	}

	end := start + limit
	if end > len(ring.events) {
		end = len(ring.events)
	}
	page.Events = append(page.Events, ring.events[start:end]...)
	if len(page.Events) > 0 {
		page.Cursor = page.Events[len(page.Events)-1].Cursor
	}
	return page, nil
}
