package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "roomsync/pkg/errors"
)

func TestTypingWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Typing.SetTyping(ctx, "general", "alice", true))
	env.clock.Advance(2 * time.Second)
	require.NoError(t, env.svc.Typing.SetTyping(ctx, "general", "bob", true))

	users, err := env.svc.Typing.ListTyping(ctx, "general", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)

	users, err = env.svc.Typing.ListTyping(ctx, "general", "ALICE")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)

	// через 5 секунд статус alice истекает без явного сброса
	env.clock.Advance(3 * time.Second)
	users, err = env.svc.Typing.ListTyping(ctx, "general", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)

	require.NoError(t, env.svc.Typing.SetTyping(ctx, "general", "bob", false))
	users, err = env.svc.Typing.ListTyping(ctx, "general", "")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestTypingValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.Typing.SetTyping(ctx, "", "alice", true)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = env.svc.Typing.ListTyping(ctx, "", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
