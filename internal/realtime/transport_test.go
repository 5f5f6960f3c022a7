package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomsync/internal/domain"
	"roomsync/internal/repository"
	"roomsync/pkg/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) snapshot() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func TestFanoutAssignsPerRoomSequence(t *testing.T) {
	f := NewFanout(logger.Nop())
	rec := &recorder{}
	f.Register("recorder", rec)

	ctx := context.Background()
	for _, room := range []string{"general", "general", "random", "general"} {
		require.NoError(t, f.Publish(ctx, domain.Event{Type: domain.EventMessage, Room: room}))
	}

	evs := rec.snapshot()
	require.Len(t, evs, 4)
	assert.Equal(t, uint64(1), evs[0].Seq)
	assert.Equal(t, uint64(2), evs[1].Seq)
	assert.Equal(t, uint64(1), evs[2].Seq)
	assert.Equal(t, uint64(3), evs[3].Seq)
	assert.False(t, evs[0].Timestamp.IsZero())
}

func TestFanoutConcurrentPublishKeepsOrder(t *testing.T) {
	f := NewFanout(logger.Nop())
	rec := &recorder{}
	f.Register("recorder", rec)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.Publish(context.Background(), domain.Event{Type: domain.EventMessage, Room: "general"})
		}()
	}
	wg.Wait()

	evs := rec.snapshot()
	require.Len(t, evs, 50)
	for i, ev := range evs {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestFanoutJoinsTransportErrors(t *testing.T) {
	f := NewFanout(logger.Nop())
	failing := &recorder{err: errors.New("boom")}
	ok := &recorder{}
	f.Register("failing", failing)
	f.Register("ok", ok)

	err := f.Publish(context.Background(), domain.Event{Type: domain.EventMessage, Room: "general"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	// сбой одного транспорта не мешает остальным
	assert.Len(t, ok.snapshot(), 1)
}

func TestPollTransport(t *testing.T) {
	ctx := context.Background()
	p := NewPollTransport(repository.NewMemoryEventLog(10))

	require.NoError(t, p.Publish(ctx, domain.Event{Type: domain.EventRoomList}))
	require.NoError(t, p.Publish(ctx, domain.Event{Type: domain.EventMessage, Room: "general", Seq: 1}))
	require.NoError(t, p.Publish(ctx, domain.Event{Type: domain.EventUserTyping, Room: "general", Seq: 2}))

	page, err := p.Since(ctx, "general", "", 50)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)

	next, err := p.Since(ctx, "general", page.Events[0].Cursor, 50)
	require.NoError(t, err)
	require.Len(t, next.Events, 1)
	assert.Equal(t, domain.EventUserTyping, next.Events[0].Type)

	global, err := p.Since(ctx, "", "", 50)
	require.NoError(t, err)
	assert.Empty(t, global.Events)
}

type fakeKafkaWriter struct {
	msgs []kafka.Message
}

func (w *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeKafkaWriter) Close() error { return nil }

func TestKafkaNotifierForwardsUserMessages(t *testing.T) {
	ctx := context.Background()
	w := &fakeKafkaWriter{}
	k := NewKafkaNotifier(w, logger.Nop())

	userMsg, err := domain.NewEvent(domain.EventMessage, "general", &domain.Message{ID: "m1", Room: "general", Username: "alice", Text: "hi", Type: domain.MessageTypeUser})
	require.NoError(t, err)
	systemMsg, err := domain.NewEvent(domain.EventMessage, "general", &domain.Message{ID: "m2", Room: "general", Username: domain.SystemUsername, Text: "alice joined the room", Type: domain.MessageTypeSystem})
	require.NoError(t, err)
	typing, err := domain.NewEvent(domain.EventUserTyping, "general", domain.TypingPayload{Username: "alice", IsTyping: true})
	require.NoError(t, err)

	for _, ev := range []domain.Event{userMsg, systemMsg, typing} {
		require.NoError(t, k.Publish(ctx, ev))
	}

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "general", string(w.msgs[0].Key))
	var n NotificationMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &n))
	assert.Equal(t, "m1", n.MessageID)
	assert.Equal(t, "alice", n.Username)
}

func TestRedisRelaySkipsOwnEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	localA, localB := &recorder{}, &recorder{}
	relayA := NewRedisRelay(rdb, "roomsync:test", "a", localA, logger.Nop())
	relayB := NewRedisRelay(rdb, "roomsync:test", "b", localB, logger.Nop())

	readyA, readyB := make(chan struct{}), make(chan struct{})
	go func() { _ = relayA.Run(ctx, readyA) }()
	go func() { _ = relayB.Run(ctx, readyB) }()
	<-readyA
	<-readyB

	require.NoError(t, relayA.Publish(ctx, domain.Event{Type: domain.EventMessage, Room: "general", Seq: 7}))

	require.Eventually(t, func() bool { return len(localB.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(7), localB.snapshot()[0].Seq)
	assert.Empty(t, localA.snapshot())
}
