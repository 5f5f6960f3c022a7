package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"roomsync/internal/domain"
	"roomsync/internal/metrics"
	"roomsync/pkg/logger"
)

// SyncTransport доставляет события подписчикам (push, poll, relay и т.д.)
type SyncTransport interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// namedTransport - транспорт с именем для метрик и логов
type namedTransport struct {
	name      string
	transport SyncTransport
}

type roomSequence struct {
	mu  sync.Mutex
	seq uint64
}

// Fanout раздает событие всем транспортам.
// Внутри одной комнаты события публикуются под локом комнаты с растущим seq,
// поэтому подписчики видят их в порядке изменений.
type Fanout struct {
	mu         sync.Mutex
	rooms      map[string]*roomSequence
	transports []namedTransport
	log        logger.Logger
	now        func() time.Time
}

func NewFanout(log logger.Logger) *Fanout {
	return &Fanout{
		rooms: make(map[string]*roomSequence),
		log:   log,
		now:   time.Now,
	}
}

// Register добавляет транспорт. Вызывается до начала публикаций.
func (f *Fanout) Register(name string, t SyncTransport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transports = append(f.transports, namedTransport{name: name, transport: t})
}

func (f *Fanout) sequence(room string) *roomSequence {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs, ok := f.rooms[room]
	if !ok {
		rs = &roomSequence{}
		f.rooms[room] = rs
	}
	return rs
}

func (f *Fanout) snapshot() []namedTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]namedTransport(nil), f.transports...)
}

func (f *Fanout) Publish(ctx context.Context, ev domain.Event) error {
	rs := f.sequence(ev.Room)
	transports := f.snapshot()

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.seq++
	ev.Seq = rs.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = f.now()
	}

	var errs []error
	for _, nt := range transports {
		if err := nt.transport.Publish(ctx, ev); err != nil {
			metrics.TransportErrors.WithLabelValues(nt.name).Inc()
			f.log.Error("Failed to publish event", "transport", nt.name, "type", ev.Type, "room", ev.Room, "error", err)
			errs = append(errs, err)
		}
	}
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()

	return errors.Join(errs...)
}

// TransportFunc - функция как SyncTransport
type TransportFunc func(ctx context.Context, ev domain.Event) error

func (fn TransportFunc) Publish(ctx context.Context, ev domain.Event) error {
	return fn(ctx, ev)
}
