package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/spark-chat-api/internal/chatid"
	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

type historyFixture struct {
	mr       *miniredis.Miniredis
	service  ChatHistoryService
	streams  repository.StreamRepository
	messages repository.MessageRepository
	metadata ChatMetadataStore
	chatID   string
}

func newHistoryFixture(t *testing.T) *historyFixture {
	t.Helper()
	mr, client := newTestRedis(t)
	db := newTestDB(t)

	streams := repository.NewStreamRepository(client, 1000)
	messages := repository.NewMessageRepository(db)
	metadata := NewChatMetadataStore(client, zerolog.Nop())
	friends := stubFriendDirectory{"alice": {"bob"}, "bob": {"alice"}}

	service := NewChatHistoryService(streams, messages, metadata, friends, validator.New(), ChatHistoryConfig{
		PageDefault:       50,
		PageMax:           100,
		StreamReadTimeout: time.Second,
	}, zerolog.Nop())

	chatID, err := chatid.Canonical("alice", "bob")
	require.NoError(t, err)

	return &historyFixture{
		mr:       mr,
		service:  service,
		streams:  streams,
		messages: messages,
		metadata: metadata,
		chatID:   chatID,
	}
}

func messageIDs(page dto.ChatPage) []string {
	ids := make([]string, 0, len(page.Messages))
	for _, message := range page.Messages {
		ids = append(ids, message.ID)
	}
	return ids
}

func TestGetPageEmptyChat(t *testing.T) {
	f := newHistoryFixture(t)

	page, err := f.service.GetPage(context.Background(), dto.ChatPageQuery{ViewerID: "alice", OtherID: "bob"})
	require.NoError(t, err)
	require.Equal(t, f.chatID, page.ChatID)
	require.Empty(t, page.Messages)
	require.Nil(t, page.NextCursor)
	require.False(t, page.HasMore)
}

func TestGetPagePaginatesFastLog(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := f.streams.Append(ctx, f.chatID, repository.StreamEntry{
			SentBy:    "alice",
			Message:   "hello",
			Timestamp: int64(1000 + i),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	first, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "bob", OtherID: "alice", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, dto.SourceStream, first.Source)
	require.Equal(t, []string{ids[4], ids[3]}, messageIDs(first))
	require.True(t, first.HasMore)
	require.NotNil(t, first.NextCursor)
	require.Equal(t, ids[3], *first.NextCursor)

	second, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "bob", OtherID: "alice", Limit: 2, Cursor: *first.NextCursor})
	require.NoError(t, err)
	require.Equal(t, []string{ids[2], ids[1]}, messageIDs(second))
	require.True(t, second.HasMore)

	last, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "bob", OtherID: "alice", Limit: 2, Cursor: *second.NextCursor})
	require.NoError(t, err)
	require.Equal(t, []string{ids[0]}, messageIDs(last))
	require.False(t, last.HasMore)

	newer, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "bob", OtherID: "alice", Limit: 3, Direction: dto.DirectionNewer})
	require.NoError(t, err)
	require.Equal(t, []string{ids[0], ids[1], ids[2]}, messageIDs(newer))
	require.True(t, newer.HasMore)

	rest, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "bob", OtherID: "alice", Limit: 3, Direction: "NEWER", Cursor: ids[2]})
	require.NoError(t, err)
	require.Equal(t, []string{ids[3], ids[4]}, messageIDs(rest))
	require.False(t, rest.HasMore)
	require.Equal(t, int64(1000), newer.Messages[0].Timestamp)
	require.Equal(t, "alice", newer.Messages[0].SentBy)
}

func TestGetPageFallsBackToDurableLogAndWritesBack(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()

	for _, record := range []models.ChatMessage{
		{ID: "1000-0", ChatID: f.chatID, SentBy: "alice", Body: "one", SentAt: 1000},
		{ID: "1000-1", ChatID: f.chatID, SentBy: "bob", Body: "two", SentAt: 1000},
		{ID: "1001-0", ChatID: f.chatID, SentBy: "alice", Body: "three", SentAt: 1001},
	} {
		record := record
		require.NoError(t, f.messages.Save(ctx, &record))
	}

	page, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "alice", OtherID: "bob", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, dto.SourceDurable, page.Source)
	require.Equal(t, []string{"1001-0", "1000-1"}, messageIDs(page))
	require.True(t, page.HasMore)
	require.Equal(t, "three", page.Messages[0].Message)

	length, err := f.streams.Len(ctx, f.chatID)
	require.NoError(t, err)
	require.EqualValues(t, 2, length)

	tail, err := f.streams.LastID(ctx, f.chatID)
	require.NoError(t, err)
	require.Equal(t, "1001-0", tail)

	cached, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "alice", OtherID: "bob", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, dto.SourceStream, cached.Source)
	require.Equal(t, []string{"1001-0", "1000-1"}, messageIDs(cached))
	require.True(t, cached.HasMore)

	older, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "alice", OtherID: "bob", Limit: 2, Cursor: "1000-1"})
	require.NoError(t, err)
	require.Equal(t, dto.SourceDurable, older.Source)
	require.Equal(t, []string{"1000-0"}, messageIDs(older))
	require.False(t, older.HasMore)

	length, err = f.streams.Len(ctx, f.chatID)
	require.NoError(t, err)
	require.EqualValues(t, 2, length)
}

func TestGetPageReportsDurableHistoryBehindShortFastLog(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()

	for _, record := range []models.ChatMessage{
		{ID: "1000-0", ChatID: f.chatID, SentBy: "alice", Body: "one", SentAt: 1000},
		{ID: "1000-1", ChatID: f.chatID, SentBy: "bob", Body: "two", SentAt: 1000},
	} {
		record := record
		require.NoError(t, f.messages.Save(ctx, &record))
	}
	// The fast log was flushed and has seen one message since.
	latest, err := f.streams.Append(ctx, f.chatID, repository.StreamEntry{SentBy: "alice", Message: "back", Timestamp: 5000})
	require.NoError(t, err)

	page, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "alice", OtherID: "bob", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, dto.SourceStream, page.Source)
	require.Equal(t, []string{latest}, messageIDs(page))
	require.True(t, page.HasMore)

	older, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "alice", OtherID: "bob", Limit: 10, Cursor: *page.NextCursor})
	require.NoError(t, err)
	require.Equal(t, dto.SourceDurable, older.Source)
	require.Equal(t, []string{"1000-1", "1000-0"}, messageIDs(older))
	require.False(t, older.HasMore)
}

func TestGetPageUsesDurableLogWhenFastLogFails(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()

	record := models.ChatMessage{ID: "2000-0", ChatID: f.chatID, SentBy: "alice", Body: "hi", SentAt: 2000}
	require.NoError(t, f.messages.Save(ctx, &record))
	f.mr.Close()

	page, err := f.service.GetPage(ctx, dto.ChatPageQuery{ViewerID: "alice", OtherID: "bob"})
	require.NoError(t, err)
	require.Equal(t, dto.SourceDurable, page.Source)
	require.Equal(t, []string{"2000-0"}, messageIDs(page))
}

func TestGetPageRejectsInvalidInput(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()

	cases := []dto.ChatPageQuery{
		{ViewerID: "alice", OtherID: "alice"},
		{ViewerID: "alice", OtherID: ""},
		{ViewerID: "alice", OtherID: "bob", Cursor: "not-a-cursor"},
		{ViewerID: "alice", OtherID: "bob", Direction: "sideways"},
		{ViewerID: "alice", OtherID: "bob", Direction: dto.DirectionNewer, Cursor: dto.CursorEnd},
	}
	for _, query := range cases {
		_, err := f.service.GetPage(ctx, query)
		require.ErrorIs(t, err, ErrInvalidInput, "query %+v", query)
	}
}

func TestMarkReadResetsUnreadTotals(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()

	f.metadata.RecordMessage(ctx, f.chatID, "alice", "bob")
	f.metadata.RecordMessage(ctx, f.chatID, "alice", "bob")
	require.EqualValues(t, 2, f.service.TotalUnreadForUser(ctx, "alice"))
	require.EqualValues(t, 2, f.service.TotalUnread(ctx, "alice", []string{f.chatID}))
	require.Zero(t, f.service.TotalUnreadForUser(ctx, "bob"))

	require.NoError(t, f.service.MarkRead(ctx, "alice", "bob"))
	require.Zero(t, f.service.TotalUnreadForUser(ctx, "alice"))
	require.NoError(t, f.service.MarkRead(ctx, "alice", "bob"))
	require.Zero(t, f.service.TotalUnreadForUser(ctx, "alice"))
	require.Zero(t, f.metadata.Read(ctx, f.chatID, "alice").Unread)

	require.ErrorIs(t, f.service.MarkRead(ctx, "alice", "alice"), ErrInvalidInput)
}

func TestPersistIsIdempotent(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()

	message := dto.ChatMessage{ID: "3000-0", ChatRoomID: f.chatID, SentBy: "bob", Message: "hey", Timestamp: 3000}
	require.NoError(t, f.service.Persist(ctx, message))
	require.NoError(t, f.service.Persist(ctx, message))
	require.Error(t, f.service.Persist(ctx, dto.ChatMessage{ChatRoomID: f.chatID}))

	stored, err := f.messages.ListRecent(ctx, f.chatID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "hey", stored[0].Body)
}
