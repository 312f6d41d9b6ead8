package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/spark-chat-api/internal/chatid"
	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

type friendFixture struct {
	mr       *miniredis.Miniredis
	service  FriendService
	users    repository.UserRepository
	cache    ProfileCache
	presence PresenceStore
	metadata ChatMetadataStore
}

func newFriendFixture(t *testing.T) *friendFixture {
	t.Helper()
	mr, client := newTestRedis(t)
	users := repository.NewUserRepository(newTestDB(t))
	seedUsers(t, users,
		models.User{ID: "alice", Name: "Alice", Matches: datatypes.JSONSlice[string]{"bob", "carol", "gone"}},
		models.User{ID: "bob", Name: "Bob", Matches: datatypes.JSONSlice[string]{"alice"}},
		models.User{ID: "carol", Name: "Carol", Matches: datatypes.JSONSlice[string]{"alice"}},
	)

	cache := NewProfileCache(users, client, prefixImages("img:"), testProfileCacheConfig(), zerolog.Nop())
	presence := NewPresenceStore(client, time.Minute, zerolog.Nop())
	metadata := NewChatMetadataStore(client, zerolog.Nop())

	return &friendFixture{
		mr:       mr,
		service:  NewFriendService(cache, presence, metadata, client, time.Minute, zerolog.Nop()),
		users:    users,
		cache:    cache,
		presence: presence,
		metadata: metadata,
	}
}

func TestListFriendsAttachesPresenceAndUnread(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()

	bobChat, err := chatid.Canonical("alice", "bob")
	require.NoError(t, err)
	f.metadata.RecordMessage(ctx, bobChat, "alice", "bob")
	f.presence.SetOnline(ctx, "bob")
	f.presence.SetOnline(ctx, "carol")
	carolSeen := f.presence.SetOffline(ctx, "carol")

	friends, err := f.service.ListFriends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, friends, 2)

	require.Equal(t, "bob", friends[0].ID)
	require.Equal(t, "Bob", friends[0].Name)
	require.Equal(t, "img:bob", friends[0].Image)
	require.Equal(t, bobChat, friends[0].ChatID)
	require.True(t, friends[0].Online)
	require.EqualValues(t, 1, friends[0].Unread)

	require.Equal(t, "carol", friends[1].ID)
	require.False(t, friends[1].Online)
	require.NotNil(t, friends[1].LastSeen)
	require.Equal(t, carolSeen, *friends[1].LastSeen)
	require.Zero(t, friends[1].Unread)

	require.True(t, f.mr.Exists(friendsKey("alice")))
}

func TestListFriendsReadsPresenceFreshFromCachedList(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()

	friends, err := f.service.ListFriends(ctx, "alice")
	require.NoError(t, err)
	require.False(t, friends[0].Online)

	f.presence.SetOnline(ctx, "bob")
	friends, err = f.service.ListFriends(ctx, "alice")
	require.NoError(t, err)
	require.True(t, friends[0].Online)

	cached, err := f.mr.Get(friendsKey("alice"))
	require.NoError(t, err)
	require.Contains(t, cached, `"online":false`)
}

func TestFriendIDsPrefersCacheThenMatches(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()

	require.Equal(t, []string{"bob", "carol", "gone"}, f.service.FriendIDs(ctx, "alice"))

	_, err := f.service.ListFriends(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "carol"}, f.service.FriendIDs(ctx, "alice"))

	require.Empty(t, f.service.FriendIDs(ctx, "ghost"))

	_, err = f.service.ListFriends(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}
