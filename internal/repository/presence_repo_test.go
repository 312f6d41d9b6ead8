package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/spark-chat-api/internal/models"
)

func TestPresenceRepositoryUpsertOverwrites(t *testing.T) {
	db := setupTestDB(t, &models.PresenceRecord{})
	repo := NewPresenceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.PresenceRecord{UserID: "u1", Status: models.PresenceOnline, ChangedAt: 1000}))
	require.NoError(t, repo.Upsert(ctx, models.PresenceRecord{UserID: "u1", Status: models.PresenceOffline, LastSeen: 1234, ChangedAt: 1234}))

	record, err := repo.Find(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.PresenceOffline, record.Status)
	require.Equal(t, int64(1234), record.LastSeen)

	_, err = repo.Find(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestPresenceRepositoryUpsertIgnoresOlderTransition(t *testing.T) {
	db := setupTestDB(t, &models.PresenceRecord{})
	repo := NewPresenceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.PresenceRecord{UserID: "u1", Status: models.PresenceOffline, LastSeen: 2000, ChangedAt: 2000}))
	// An online write from before the disconnect commits late.
	require.NoError(t, repo.Upsert(ctx, models.PresenceRecord{UserID: "u1", Status: models.PresenceOnline, ChangedAt: 1500}))

	record, err := repo.Find(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.PresenceOffline, record.Status)
	require.Equal(t, int64(2000), record.LastSeen)
	require.Equal(t, int64(2000), record.ChangedAt)

	require.NoError(t, repo.Upsert(ctx, models.PresenceRecord{UserID: "u1", Status: models.PresenceOnline, ChangedAt: 2500}))
	record, err = repo.Find(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.PresenceOnline, record.Status)
}
