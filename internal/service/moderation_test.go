package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
)

func newModeratedRoom(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	_, err := env.svc.Room.CreateRoom(ctx, "general", nil, strPtr("alice"))
	require.NoError(t, err)
	for _, name := range []string{"alice", "bob", "carol"} {
		_, _, err := env.svc.Presence.Touch(ctx, "general", name)
		require.NoError(t, err)
	}
}

func TestModerationValidation(t *testing.T) {
	env := newTestEnv(t)
	newModeratedRoom(t, env)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ModerationRequest
		kind error
		msg  string
	}{
		{
			name: "missing target",
			req:  ModerationRequest{Action: ActionKick, Room: "general", Moderator: "alice"},
			kind: apperrors.ErrInvalidInput,
			msg:  "Missing required fields",
		},
		{
			name: "unknown action",
			req:  ModerationRequest{Action: "smite", Room: "general", Moderator: "alice", Target: "bob"},
			kind: apperrors.ErrInvalidInput,
		},
		{
			name: "self",
			req:  ModerationRequest{Action: ActionBan, Room: "general", Moderator: "alice", Target: "alice"},
			kind: apperrors.ErrInvalidInput,
			msg:  "Cannot moderate yourself",
		},
		{
			name: "no permission",
			req:  ModerationRequest{Action: ActionKick, Room: "general", Moderator: "bob", Target: "carol"},
			kind: apperrors.ErrForbidden,
			msg:  "You do not have permission to moderate this room",
		},
		{
			name: "missing room",
			req:  ModerationRequest{Action: ActionKick, Room: "nowhere", Moderator: "alice", Target: "bob"},
			kind: apperrors.ErrNotFound,
			msg:  "Room not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Moderation.Apply(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, err.Error())
			}
		})
	}
}

func TestModerationKickAndBan(t *testing.T) {
	env := newTestEnv(t)
	newModeratedRoom(t, env)
	ctx := context.Background()

	res, err := env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionKick, Room: "general", Moderator: "alice", Target: "bob"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "bob has been kicked from the room", res.Message)
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.LeaveReasonKicked, res.Events[0].Reason)

	// после кика можно вернуться
	_, _, err = env.svc.Presence.Touch(ctx, "general", "bob")
	require.NoError(t, err)

	res, err = env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionBan, Room: "general", Moderator: "alice", Target: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob has been banned from the room", res.Message)
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.LeaveReasonBanned, res.Events[0].Reason)

	_, _, err = env.svc.Presence.Touch(ctx, "general", "bob")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	res, err = env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionUnban, Room: "general", Moderator: "alice", Target: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob has been unbanned", res.Message)
	_, _, err = env.svc.Presence.Touch(ctx, "general", "bob")
	assert.NoError(t, err)

	logs := env.audit.Logs()
	var types []string
	for _, l := range logs {
		types = append(types, l.EventType)
	}
	assert.Equal(t, []string{
		domain.AuditRoomCreated,
		domain.AuditUserKicked,
		domain.AuditUserBanned,
		domain.AuditUserUnbanned,
	}, types)
	assert.Equal(t, domain.ActorRoleOwner, logs[1].ActorRole)
	assert.Equal(t, "bob", logs[1].Target)
}

func TestModerationMute(t *testing.T) {
	env := newTestEnv(t)
	newModeratedRoom(t, env)
	ctx := context.Background()

	res, err := env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionMute, Room: "general", Moderator: "alice", Target: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob has been muted for 60 minutes", res.Message)

	_, err = env.svc.Message.Append(ctx, "general", "bob", "hi")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionUnmute, Room: "general", Moderator: "alice", Target: "bob"})
	require.NoError(t, err)
	_, err = env.svc.Message.Append(ctx, "general", "bob", "hi")
	require.NoError(t, err)

	res, err = env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionMute, Room: "general", Moderator: "alice", Target: "carol", Duration: 5})
	require.NoError(t, err)
	assert.Equal(t, "carol has been muted for 5 minutes", res.Message)
	env.clock.Advance(4 * time.Minute)
	_, _, err = env.svc.Presence.Touch(ctx, "general", "carol")
	require.NoError(t, err)
	env.clock.Advance(2 * time.Minute)
	_, err = env.svc.Message.Append(ctx, "general", "carol", "back")
	assert.NoError(t, err)

	_, err = env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionMute, Room: "general", Moderator: "alice", Target: "ghost"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionMute, Room: "general", Moderator: "alice", Target: "bob", Duration: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestModerationPromoteDemote(t *testing.T) {
	env := newTestEnv(t)
	newModeratedRoom(t, env)
	ctx := context.Background()

	res, err := env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionPromote, Room: "general", Moderator: "alice", Target: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob has been promoted to moderator", res.Message)

	users, err := env.svc.Presence.List(ctx, "general")
	require.NoError(t, err)
	for _, u := range users {
		if u.Username == "bob" {
			assert.Equal(t, domain.RoleModerator, u.Role)
		}
	}

	// модератор тоже может кикать
	res, err = env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionKick, Room: "general", Moderator: "bob", Target: "carol"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	logs := env.audit.Logs()
	assert.Equal(t, domain.ActorRoleModerator, logs[len(logs)-1].ActorRole)

	res, err = env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionDemote, Room: "general", Moderator: "alice", Target: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob has been demoted", res.Message)

	_, err = env.svc.Moderation.Apply(ctx, ModerationRequest{Action: ActionKick, Room: "general", Moderator: "bob", Target: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
