package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomsync/internal/domain"
	"roomsync/internal/repository"
	apperrors "roomsync/pkg/errors"
)

func TestTouchJoinAndHeartbeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, events, err := env.svc.Presence.Touch(ctx, "general", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
	require.Len(t, events, 1)
	assert.Equal(t, domain.SystemUserJoined, events[0].Kind)
	assert.Equal(t, "alice", events[0].Username)

	room, err := env.repos.Room.GetByID(ctx, "general")
	require.NoError(t, err)
	assert.True(t, room.IsActive)

	// heartbeat в пределах TTL не порождает событий
	env.clock.Advance(4 * time.Minute)
	user, events, err = env.svc.Presence.Touch(ctx, "general", "alice")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.True(t, user.LastSeen.Equal(env.clock.Now()))

	online, err := env.svc.Presence.IsOnline(ctx, "general", "alice")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestTouchAfterExpiryRejoins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.svc.Presence.Touch(ctx, "general", "alice")
	require.NoError(t, err)

	env.clock.Advance(301 * time.Second)
	online, err := env.svc.Presence.IsOnline(ctx, "general", "alice")
	require.NoError(t, err)
	assert.False(t, online)

	users, err := env.svc.Presence.List(ctx, "general")
	require.NoError(t, err)
	assert.Empty(t, users)

	_, events, err := env.svc.Presence.Touch(ctx, "general", "alice")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.SystemUserJoined, events[0].Kind)
}

func TestTouchUsernameConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.svc.Presence.Touch(ctx, "general", "Alice")
	require.NoError(t, err)

	_, _, err = env.svc.Presence.Touch(ctx, "general", "alice")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// в другой комнате имя свободно
	_, _, err = env.svc.Presence.Touch(ctx, "random", "alice")
	assert.NoError(t, err)

	_, _, err = env.svc.Presence.Touch(ctx, "", "alice")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestTouchBanned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.svc.Room.UpsertRoom(ctx, "general")
	require.NoError(t, err)
	room.Ban("mallory")
	require.NoError(t, env.repos.Room.Update(ctx, room, room.Version))

	_, _, err = env.svc.Presence.Touch(ctx, "general", "MALLORY")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Equal(t, "You are banned from this room", err.Error())

	users, err := env.svc.Presence.List(ctx, "general")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestListOrderedByJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, _, err := env.svc.Presence.Touch(ctx, "general", name)
		require.NoError(t, err)
		env.clock.Advance(time.Second)
	}

	users, err := env.svc.Presence.List(ctx, "general")
	require.NoError(t, err)
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"carol", "alice", "bob"}, names)
}

func TestLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.svc.Presence.Touch(ctx, "general", "alice")
	require.NoError(t, err)
	require.NoError(t, env.svc.Typing.SetTyping(ctx, "general", "alice", true))

	events, err := env.svc.Presence.Leave(ctx, "general", "alice", "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.SystemUserLeft, events[0].Kind)
	assert.Equal(t, domain.LeaveReasonLeft, events[0].Reason)

	typing, err := env.svc.Typing.ListTyping(ctx, "general", "")
	require.NoError(t, err)
	assert.Empty(t, typing)

	room, err := env.repos.Room.GetByID(ctx, "general")
	require.NoError(t, err)
	assert.False(t, room.IsActive)

	// повторный выход ничего не публикует
	events, err = env.svc.Presence.Leave(ctx, "general", "alice", "")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSweepExpiresStaleUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.svc.Presence.Touch(ctx, "general", "alice")
	require.NoError(t, err)
	env.clock.Advance(3 * time.Minute)
	_, _, err = env.svc.Presence.Touch(ctx, "general", "bob")
	require.NoError(t, err)
	env.clock.Advance(3 * time.Minute)

	events, err := env.svc.Presence.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].Username)
	assert.Equal(t, domain.LeaveReasonExpired, events[0].Reason)

	users, err := env.svc.Presence.List(ctx, "general")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)

	events, err = env.svc.Presence.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMuteSurvivesReconnect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.svc.Presence.Touch(ctx, "general", "bob")
	require.NoError(t, err)
	until := env.clock.Now().Add(30 * time.Minute)
	_, err = env.svc.Presence.SetMute(ctx, "general", "bob", &until)
	require.NoError(t, err)

	_, err = env.svc.Presence.Leave(ctx, "general", "bob", "")
	require.NoError(t, err)
	user, _, err := env.svc.Presence.Touch(ctx, "general", "bob")
	require.NoError(t, err)
	// запись удалена при выходе, мьют не переносится
	assert.False(t, user.IsMuted)

	_, err = env.svc.Presence.SetMute(ctx, "general", "bob", &until)
	require.NoError(t, err)
	env.clock.Advance(6 * time.Minute)
	user, _, err = env.svc.Presence.Touch(ctx, "general", "bob")
	require.NoError(t, err)
	assert.True(t, user.IsMuted)

	_, err = env.svc.Presence.SetMute(ctx, "general", "ghost", &until)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConcurrentTouchSingleJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const sessions = 10
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
	)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, events, err := env.svc.Presence.Touch(ctx, "general", "alice")
			assert.NoError(t, err)
			mu.Lock()
			joined += len(events)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, joined)
	users, err := env.svc.Presence.List(ctx, "general")
	require.NoError(t, err)
	require.Len(t, users, 1)

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := env.svc.Presence.Touch(ctx, "general", fmt.Sprintf("user%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	users, err = env.svc.Presence.List(ctx, "general")
	require.NoError(t, err)
	assert.Len(t, users, sessions+1)
}

// banningRooms банит пользователя сразу после того, как Touch прочитал комнату
type banningRooms struct {
	repository.RoomRepository
	target string
}

func (r *banningRooms) Upsert(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	snapshot, err := r.RoomRepository.Upsert(ctx, room)
	if err != nil {
		return nil, err
	}
	current, err := r.RoomRepository.GetByID(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	current.Ban(r.target)
	if err := r.RoomRepository.Update(ctx, current, current.Version); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func TestTouchBanDuringJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.svc.Presence.(*presenceService).roomRepo = &banningRooms{RoomRepository: env.repos.Room, target: "mallory"}

	_, events, err := env.svc.Presence.Touch(ctx, "general", "mallory")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Empty(t, events)

	online, err := env.svc.Presence.IsOnline(ctx, "general", "mallory")
	require.NoError(t, err)
	assert.False(t, online)
}
