package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomsync/internal/config"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.svc.Media.IssueToken(context.Background(), "general-1714564800000", "alice", "42")
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, "ws://localhost:7880", token.URL)
	assert.Equal(t, "general-1714564800000", token.ChannelName)
	assert.Equal(t, "42", token.UID)
	assert.True(t, token.ExpiresAt.Equal(env.clock.Now().Add(24*time.Hour)))

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token.Token, claims, func(*jwt.Token) (any, error) {
		return []byte("secret-secret-secret-secret-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "devkey", claims["iss"])
	assert.Equal(t, "42", claims["sub"])
	assert.Equal(t, "alice", claims["name"])

	video, ok := claims["video"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "general-1714564800000", video["room"])
	assert.Equal(t, true, video["roomJoin"])
}

func TestIssueTokenErrors(t *testing.T) {
	ctx := context.Background()

	svc := NewMediaService(config.LiveKitConfig{}, logger.Nop())
	_, err := svc.IssueToken(ctx, "general-1", "alice", "1")
	assert.ErrorIs(t, err, apperrors.ErrInternal)

	env := newTestEnv(t)
	_, err = env.svc.Media.IssueToken(ctx, "", "alice", "1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
