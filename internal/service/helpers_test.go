package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"roomsync/internal/config"
	"roomsync/internal/domain"
	"roomsync/internal/repository"
	"roomsync/pkg/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingTransport struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingTransport) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingTransport) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recordingTransport) last(t *testing.T, eventType string, v any) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			require.NoError(t, json.Unmarshal(r.events[i].Data, v))
			return
		}
	}
	t.Fatalf("no %s event published", eventType)
}

type testEnv struct {
	svc       *Services
	repos     *repository.Repositories
	audit     *repository.MemoryAuditRepository
	clock     *fakeClock
	transport *recordingTransport
}

func testConfig() *config.Config {
	return &config.Config{
		Chat: config.ChatConfig{
			PresenceTTL:      5 * time.Minute,
			TypingTTL:        5 * time.Second,
			MaxMessageLength: 500,
			HistoryLimit:     50,
			EventLogSize:     100,
		},
		LiveKit: config.LiveKitConfig{
			URL:       "ws://localhost:7880",
			APIKey:    "devkey",
			APISecret: "secret-secret-secret-secret-secret",
			TokenTTL:  24 * time.Hour,
			Timeout:   time.Second,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos := repository.NewMemoryRepositories(100)
	audit := repository.NewMemoryAuditRepository()
	repos.Audit = audit
	transport := &recordingTransport{}
	clock := newFakeClock()

	svc := NewServices(repos, transport, NewNopFilter(), testConfig(), logger.Nop())
	svc.Message.(*messageService).now = clock.Now
	svc.Presence.(*presenceService).now = clock.Now
	svc.Typing.(*typingService).now = clock.Now
	svc.Room.(*roomService).now = clock.Now
	svc.Moderation.(*moderationService).now = clock.Now
	svc.Call.(*callService).now = clock.Now
	svc.Media.(*mediaService).now = clock.Now
	svc.Audit.(*auditService).now = clock.Now

	return &testEnv{svc: svc, repos: repos, audit: audit, clock: clock, transport: transport}
}
