package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

func TestPresenceOnlineExpiresWithoutHeartbeat(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewPresenceStore(client, 30*time.Second, zerolog.Nop())
	ctx := context.Background()

	require.False(t, store.IsOnline(ctx, "alice"))
	require.Nil(t, store.LastSeen(ctx, "alice"))

	store.SetOnline(ctx, "alice")
	store.SetOnline(ctx, "alice")
	require.True(t, store.IsOnline(ctx, "alice"))

	mr.FastForward(20 * time.Second)
	store.SetOnline(ctx, "alice")
	mr.FastForward(20 * time.Second)
	require.True(t, store.IsOnline(ctx, "alice"))

	mr.FastForward(31 * time.Second)
	require.False(t, store.IsOnline(ctx, "alice"))
}

func TestPresenceOfflineRecordsLastSeen(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewPresenceStore(client, time.Minute, zerolog.Nop()).(*presenceStore)
	fixed := time.UnixMilli(1_700_000_000_000)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()

	store.SetOnline(ctx, "alice")
	lastSeen := store.SetOffline(ctx, "alice")
	require.Equal(t, fixed.UnixMilli(), lastSeen)
	require.False(t, store.IsOnline(ctx, "alice"))

	seen := store.LastSeen(ctx, "alice")
	require.NotNil(t, seen)
	require.Equal(t, lastSeen, *seen)
}

func TestPresenceRepeatedOfflineMovesLastSeen(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewPresenceStore(client, time.Minute, zerolog.Nop()).(*presenceStore)
	ctx := context.Background()

	first := time.UnixMilli(1_700_000_000_000)
	store.now = func() time.Time { return first }
	require.Equal(t, first.UnixMilli(), store.SetOffline(ctx, "alice"))

	second := first.Add(90 * time.Second)
	store.now = func() time.Time { return second }
	require.Equal(t, second.UnixMilli(), store.SetOffline(ctx, "alice"))

	require.False(t, store.IsOnline(ctx, "alice"))
	seen := store.LastSeen(ctx, "alice")
	require.NotNil(t, seen)
	require.Equal(t, second.UnixMilli(), *seen)
}

func TestPresenceSnapshotKeepsOrder(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewPresenceStore(client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	store.SetOnline(ctx, "bob")
	store.SetOnline(ctx, "carol")
	carolSeen := store.SetOffline(ctx, "carol")

	snapshot := store.Snapshot(ctx, []string{"bob", "carol", "dave"})
	require.Len(t, snapshot, 3)

	require.Equal(t, "bob", snapshot[0].UserID)
	require.True(t, snapshot[0].Online)
	require.Nil(t, snapshot[0].LastSeen)

	require.Equal(t, "carol", snapshot[1].UserID)
	require.False(t, snapshot[1].Online)
	require.NotNil(t, snapshot[1].LastSeen)
	require.Equal(t, carolSeen, *snapshot[1].LastSeen)

	require.Equal(t, "dave", snapshot[2].UserID)
	require.False(t, snapshot[2].Online)
	require.Nil(t, snapshot[2].LastSeen)

	online := store.BatchIsOnline(ctx, []string{"bob", "carol", "dave"})
	require.Equal(t, map[string]bool{"bob": true, "carol": false, "dave": false}, online)
	require.Empty(t, store.Snapshot(ctx, nil))
}

func TestPresenceMirrorWritesDurableRecord(t *testing.T) {
	_, client := newTestRedis(t)
	repo := repository.NewPresenceRepository(newTestDB(t))
	queue := NewWriteBehind(1, 8, zerolog.Nop())
	store := NewPresenceStore(client, time.Minute, zerolog.Nop(), WithPresenceMirror(repo, queue))
	ctx := context.Background()

	store.SetOnline(ctx, "alice")
	lastSeen := store.SetOffline(ctx, "alice")
	queue.Stop()

	record, err := repo.Find(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, models.PresenceOffline, record.Status)
	require.Equal(t, lastSeen, record.LastSeen)
}

func TestPresenceReadsDegradeWhenRedisUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewPresenceStore(client, time.Minute, zerolog.Nop())
	ctx := context.Background()
	mr.Close()

	store.SetOnline(ctx, "alice")
	require.False(t, store.IsOnline(ctx, "alice"))
	require.Nil(t, store.LastSeen(ctx, "alice"))

	snapshot := store.Snapshot(ctx, []string{"alice"})
	require.Len(t, snapshot, 1)
	require.False(t, snapshot[0].Online)
}
