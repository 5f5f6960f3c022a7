package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomsync/internal/domain"
	apperrors "roomsync/pkg/errors"
)

func TestMemoryRoomCreateConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepository()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, &domain.Room{ID: "general", Name: "general", CreatedAt: now, LastActivity: now}))
	err := repo.Create(ctx, &domain.Room{ID: "general", Name: "general", CreatedAt: now, LastActivity: now})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// имя сравнивается с учетом регистра
	require.NoError(t, repo.Create(ctx, &domain.Room{ID: "General", Name: "General", CreatedAt: now, LastActivity: now}))
}

func TestMemoryRoomUpsertOnlyTouchesActivity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepository()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	owner := "alice"

	_, err := repo.Upsert(ctx, &domain.Room{ID: "r", Name: "r", Owner: &owner, CreatedAt: t0, LastActivity: t0})
	require.NoError(t, err)

	stored, err := repo.Upsert(ctx, &domain.Room{ID: "r", Name: "r", CreatedAt: t0.Add(time.Hour), LastActivity: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, stored.Owner)
	assert.Equal(t, "alice", *stored.Owner)
	assert.Equal(t, t0, stored.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), stored.LastActivity)
}

func TestMemoryRoomListings(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepository()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		_, err := repo.Upsert(ctx, &domain.Room{ID: id, Name: id, CreatedAt: t0, LastActivity: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	require.NoError(t, repo.SetActive(ctx, "a", true))
	require.NoError(t, repo.SetActive(ctx, "c", true))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "c", active[0].ID)

	_, err = repo.Upsert(ctx, &domain.Room{ID: "dm_alice_bob", Name: "alice & bob", IsDM: true, Participants: []string{"alice", "bob"}, CreatedAt: t0, LastActivity: t0})
	require.NoError(t, err)
	dms, err := repo.ListDMs(ctx, "bob", 50)
	require.NoError(t, err)
	require.Len(t, dms, 1)
	assert.Equal(t, "dm_alice_bob", dms[0].ID)
}
