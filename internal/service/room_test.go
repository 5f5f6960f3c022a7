package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestCreateRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.svc.Room.CreateRoom(ctx, "  gophers ", strPtr("Go talk"), strPtr("alice"))
	require.NoError(t, err)
	assert.Equal(t, "gophers", room.ID)
	assert.Equal(t, "alice", *room.Owner)

	_, err = env.svc.Room.CreateRoom(ctx, "gophers", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, "Room already exists", err.Error())

	_, err = env.svc.Room.CreateRoom(ctx, "   ", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = env.svc.Room.CreateRoom(ctx, strings.Repeat("x", 51), nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, "Room name too long (max 50 characters)", err.Error())

	logs := env.audit.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditRoomCreated, logs[0].EventType)
	assert.Equal(t, domain.ActorRoleOwner, logs[0].ActorRole)

	// владелец может модерировать созданную комнату
	stored, err := env.svc.Room.Get(ctx, "gophers")
	require.NoError(t, err)
	assert.True(t, stored.CanModerate("alice"))
}

func TestCreateOrGetDM(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Room.CreateOrGetDM(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "dm_alice_bob", first.ID)
	assert.True(t, first.IsDM)
	assert.Equal(t, []string{"alice", "bob"}, first.Participants)
	assert.Equal(t, domain.DMDescription, *first.Description)

	second, err := env.svc.Room.CreateOrGetDM(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	_, err = env.svc.Room.CreateOrGetDM(ctx, "alice", "alice")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, "Cannot create DM with yourself", err.Error())

	_, err = env.svc.Room.CreateOrGetDM(ctx, "alice", " ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = env.svc.Room.CreateOrGetDM(ctx, "carol", "alice")
	require.NoError(t, err)

	dms, err := env.svc.Room.ListDMs(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, dms, 2)

	dms, err = env.svc.Room.ListDMs(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, dms, 1)
	assert.Equal(t, "dm_alice_bob", dms[0].ID)
}

func TestDMRoomIDsReserved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Room.CreateRoom(ctx, "dm_alice_bob", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// обычный чат с таким id, созданный входом в комнату
	_, err = env.svc.Room.UpsertRoom(ctx, "dm_carol_dave")
	require.NoError(t, err)
	_, err = env.svc.Room.CreateOrGetDM(ctx, "dave", "carol")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	dms, err := env.svc.Room.ListDMs(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, dms)
}

func TestListActiveCountsOnlineUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		_, _, err := env.svc.Presence.Touch(ctx, "general", name)
		require.NoError(t, err)
	}
	_, err := env.svc.Room.UpsertRoom(ctx, "empty")
	require.NoError(t, err)

	rooms, err := env.svc.Room.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].ID)
	assert.Equal(t, 2, rooms[0].UserCount)

	_, err = env.svc.Room.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, "Room not found", err.Error())
}
