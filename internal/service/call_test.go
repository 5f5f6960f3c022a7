package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
)

func TestCallLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call, events, err := env.svc.Call.Start(ctx, "general", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusWaiting, call.Status)
	assert.Equal(t, []string{"alice"}, call.Participants)
	assert.Equal(t, domain.CallChannelName("general", env.clock.Now()), call.ChannelName)
	require.Len(t, events, 1)
	assert.Equal(t, domain.SystemCallStarted, events[0].Kind)

	_, _, err = env.svc.Call.Start(ctx, "general", "bob")
	var conflict *CallConflictError
	require.True(t, errors.As(err, &conflict))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, call.ID, conflict.Call.ID)

	joined, err := env.svc.Call.Join(ctx, call.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusActive, joined.Status)
	assert.Equal(t, []string{"alice", "bob"}, joined.Participants)

	// повторный join не дублирует участника
	joined, err = env.svc.Call.Join(ctx, call.ID, "bob")
	require.NoError(t, err)
	assert.Len(t, joined.Participants, 2)

	left, err := env.svc.Call.Leave(ctx, call.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, left.Participants)
	assert.Equal(t, domain.CallStatusActive, left.Status)

	active, err := env.svc.Call.Active(ctx, "general")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, call.ID, active.ID)

	env.clock.Advance(90 * time.Second)
	ended, err := env.svc.Call.End(ctx, call.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, ended.Status)
	require.NotNil(t, ended.Duration)
	assert.Equal(t, int64(90), *ended.Duration)

	env.clock.Advance(time.Minute)
	again, err := env.svc.Call.End(ctx, call.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(90), *again.Duration)

	_, err = env.svc.Call.Join(ctx, call.ID, "carol")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Equal(t, "Call has already ended", err.Error())

	_, err = env.svc.Call.Leave(ctx, call.ID, "bob")
	assert.NoError(t, err)

	active, err = env.svc.Call.Active(ctx, "general")
	require.NoError(t, err)
	assert.Nil(t, active)

	logs := env.audit.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditCallEnded, logs[0].EventType)
	assert.Equal(t, domain.ActorRoleParticipant, logs[0].ActorRole)

	// после завершения можно начать новый звонок
	next, _, err := env.svc.Call.Start(ctx, "general", "carol")
	require.NoError(t, err)
	assert.NotEqual(t, call.ID, next.ID)
}

func TestCallErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.svc.Call.Start(ctx, "", "alice")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = env.svc.Call.Join(ctx, "missing", "alice")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, "Call not found", err.Error())

	_, err = env.svc.Call.Join(ctx, "missing", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = env.svc.Call.End(ctx, "missing", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSystemEndedCallAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call, _, err := env.svc.Call.Start(ctx, "general", "alice")
	require.NoError(t, err)
	_, err = env.svc.Call.End(ctx, call.ID, "")
	require.NoError(t, err)

	logs := env.audit.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.SystemUsername, logs[0].Actor)
	assert.Equal(t, domain.ActorRoleSystem, logs[0].ActorRole)
}

func TestConcurrentCallJoinLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call, _, err := env.svc.Call.Start(ctx, "general", "alice")
	require.NoError(t, err)

	const users = 12
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.Call.Join(ctx, call.ID, fmt.Sprintf("user%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := env.svc.Call.Get(ctx, call.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, users+1)
	assert.Equal(t, domain.CallStatusActive, got.Status)

	// половина выходит, половина заходит повторно
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user%d", i)
			var err error
			if i%2 == 0 {
				_, err = env.svc.Call.Leave(ctx, call.ID, name)
			} else {
				_, err = env.svc.Call.Join(ctx, call.ID, name)
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err = env.svc.Call.Get(ctx, call.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, users/2+1)
	assert.Contains(t, got.Participants, "alice")
	for i := 0; i < users; i += 2 {
		assert.NotContains(t, got.Participants, fmt.Sprintf("user%d", i))
	}
}
