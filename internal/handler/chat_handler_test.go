package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/spark-chat-api/internal/chatid"
	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/handler"
	"github.com/noah-isme/spark-chat-api/internal/service"
)

type stubHistoryService struct {
	lastQuery  dto.ChatPageQuery
	page       dto.ChatPage
	err        error
	markedBy   string
	markedWith string
	unread     int64
}

func (s *stubHistoryService) GetPage(_ context.Context, query dto.ChatPageQuery) (dto.ChatPage, error) {
	s.lastQuery = query
	if s.err != nil {
		return dto.ChatPage{}, s.err
	}
	return s.page, nil
}

func (s *stubHistoryService) MarkRead(_ context.Context, viewerID, otherID string) error {
	s.markedBy = viewerID
	s.markedWith = otherID
	return nil
}

func (s *stubHistoryService) TotalUnread(context.Context, string, []string) int64 {
	return s.unread
}

func (s *stubHistoryService) TotalUnreadForUser(context.Context, string) int64 {
	return s.unread
}

func (s *stubHistoryService) Persist(context.Context, dto.ChatMessage) error {
	return nil
}

func newChatApp(svc service.ChatHistoryService) *fiber.App {
	app := fiber.New()
	handler.NewChatHandler(svc, zerolog.Nop()).Register(app.Group("/api/v1/chat", asUser("alice")))
	return app
}

func samplePage(t *testing.T) dto.ChatPage {
	t.Helper()
	chatID, err := chatid.Canonical("alice", "bob")
	require.NoError(t, err)

	messages := []dto.ChatMessage{
		{ID: "1700000000002-0", ChatRoomID: chatID, SentBy: "bob", Message: "hey", Timestamp: 1700000000002},
		{ID: "1700000000001-0", ChatRoomID: chatID, SentBy: "alice", Message: "hi", Seen: true, Timestamp: 1700000000001},
	}
	next := messages[len(messages)-1].ID
	return dto.ChatPage{ChatID: chatID, Messages: messages, NextCursor: &next, HasMore: true, Source: dto.SourceStream}
}

func TestChatHandler_PagePassesQuery(t *testing.T) {
	svc := &stubHistoryService{page: samplePage(t)}
	app := newChatApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/bob?limit=2&cursor=1700000000003-0&direction=older", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, dto.SourceStream, resp.Header.Get("X-History-Source"))

	var body struct {
		Success bool         `json:"success"`
		Data    dto.ChatPage `json:"data"`
	}
	decodeResponse(t, resp, &body)

	require.True(t, body.Success)
	require.Len(t, body.Data.Messages, 2)
	require.True(t, body.Data.HasMore)
	require.Equal(t, "alice", svc.lastQuery.ViewerID)
	require.Equal(t, "bob", svc.lastQuery.OtherID)
	require.Equal(t, 2, svc.lastQuery.Limit)
	require.Equal(t, "1700000000003-0", svc.lastQuery.Cursor)
	require.Equal(t, dto.DirectionOlder, svc.lastQuery.Direction)
}

func TestChatHandler_PageRejectsBadInput(t *testing.T) {
	app := newChatApp(&stubHistoryService{err: fmt.Errorf("%w: bad cursor", service.ErrInvalidInput)})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/chat/bob?limit=abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/chat/bob?cursor=nope", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	decodeResponse(t, resp, &body)
	require.False(t, body.Success)
	require.Equal(t, "invalid_input", body.Code)
}

func TestChatHandler_MarkReadAndUnreadCount(t *testing.T) {
	svc := &stubHistoryService{unread: 4}
	app := newChatApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/chat/bob/mark-read", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "alice", svc.markedBy)
	require.Equal(t, "bob", svc.markedWith)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/chat/unread-count", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.UnreadCountResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, int64(4), body.Data.TotalUnread)
}

func TestChatPageContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "..", "docs", "contracts", "chat_page.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	for _, page := range []dto.ChatPage{samplePage(t), {ChatID: samplePage(t).ChatID, Messages: []dto.ChatMessage{}, Source: dto.SourceDurable}} {
		app := newChatApp(&stubHistoryService{page: page})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/chat/bob", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		var payload interface{}
		require.NoError(t, json.Unmarshal(raw, &payload))
		require.NoError(t, schema.Validate(payload))
	}
}
