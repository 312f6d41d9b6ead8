package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/spark-chat-api/internal/chatid"
	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/observability"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

// ChatHistoryConfig bounds page sizes and fast log latency.
type ChatHistoryConfig struct {
	PageDefault       int
	PageMax           int
	StreamReadTimeout time.Duration
}

// ChatHistoryService serves paginated chat history from the fast log with a
// durable fallback, and manages read state.
type ChatHistoryService interface {
	GetPage(ctx context.Context, query dto.ChatPageQuery) (dto.ChatPage, error)
	MarkRead(ctx context.Context, viewerID, otherID string) error
	TotalUnread(ctx context.Context, viewerID string, chatIDs []string) int64
	TotalUnreadForUser(ctx context.Context, viewerID string) int64
	Persist(ctx context.Context, message dto.ChatMessage) error
}

type chatHistoryService struct {
	streams   repository.StreamRepository
	messages  repository.MessageRepository
	metadata  ChatMetadataStore
	friends   FriendDirectory
	validator *validator.Validate
	cfg       ChatHistoryConfig
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewChatHistoryService wires the history service.
func NewChatHistoryService(streams repository.StreamRepository, messages repository.MessageRepository, metadata ChatMetadataStore, friends FriendDirectory, validate *validator.Validate, cfg ChatHistoryConfig, logger zerolog.Logger) ChatHistoryService {
	if cfg.PageMax <= 0 {
		cfg.PageMax = 100
	}
	if cfg.PageDefault <= 0 || cfg.PageDefault > cfg.PageMax {
		cfg.PageDefault = min(50, cfg.PageMax)
	}
	if cfg.StreamReadTimeout <= 0 {
		cfg.StreamReadTimeout = 300 * time.Millisecond
	}

	return &chatHistoryService{
		streams:   streams,
		messages:  messages,
		metadata:  metadata,
		friends:   friends,
		validator: validate,
		cfg:       cfg,
		tracer:    otel.Tracer("github.com/noah-isme/spark-chat-api/internal/service/chat_history"),
		logger:    logger.With().Str("component", "chat_history_service").Logger(),
	}
}

// GetPage reads limit+1 entries to detect whether more exist. An empty or
// failing fast log falls back to the durable log; a fallback for the newest
// page is written back to the fast log with the original ids.
func (s *chatHistoryService) GetPage(ctx context.Context, query dto.ChatPageQuery) (dto.ChatPage, error) {
	query.ViewerID = strings.TrimSpace(query.ViewerID)
	query.OtherID = strings.TrimSpace(query.OtherID)
	query.Cursor = strings.TrimSpace(query.Cursor)
	query.Direction = strings.ToLower(strings.TrimSpace(query.Direction))
	if err := s.validator.Struct(query); err != nil {
		return dto.ChatPage{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	chatID, err := chatid.Canonical(query.ViewerID, query.OtherID)
	if err != nil {
		return dto.ChatPage{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	limit := s.clampLimit(query.Limit)
	direction := query.Direction
	if direction == "" {
		direction = dto.DirectionOlder
	}
	cursor, latest, err := normaliseCursor(direction, query.Cursor)
	if err != nil {
		return dto.ChatPage{}, err
	}

	ctx, span := s.tracer.Start(ctx, "chat.history", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("chat.direction", direction),
		attribute.Int("chat.limit", limit),
	))
	defer span.End()

	entries, streamErr := s.readStream(ctx, chatID, direction, cursor, limit)
	switch {
	case streamErr != nil:
		observability.FastLogFallbacks().WithLabelValues("error").Inc()
		s.logger.Warn().Err(streamErr).Str("chat_id", chatID).Msg("fast log read failed, using durable log")
	case len(entries) > 0:
		page := pageFromEntries(chatID, entries, limit)
		if !page.HasMore && direction == dto.DirectionOlder {
			// The fast log may hold only recent history after a flush or trim.
			page.HasMore = s.durableHasOlder(ctx, chatID, *page.NextCursor)
		}
		observability.HistoryPages().WithLabelValues(page.Source).Inc()
		return page, nil
	default:
		observability.FastLogFallbacks().WithLabelValues("empty").Inc()
	}

	records, err := s.readDurable(ctx, chatID, direction, cursor, limit)
	if err != nil {
		span.RecordError(err)
		return dto.ChatPage{}, fmt.Errorf("read durable history: %w", err)
	}

	page := pageFromRecords(chatID, records, limit)
	observability.HistoryPages().WithLabelValues(page.Source).Inc()

	if streamErr == nil && latest && direction == dto.DirectionOlder {
		s.writeBack(ctx, chatID, records[:len(page.Messages)])
	}

	return page, nil
}

func (s *chatHistoryService) durableHasOlder(ctx context.Context, chatID, cursor string) bool {
	older, err := s.messages.ListBefore(ctx, chatID, cursor, 1)
	if err != nil {
		s.logger.Debug().Err(err).Str("chat_id", chatID).Msg("durable lookahead failed")
		return false
	}
	return len(older) > 0
}

func (s *chatHistoryService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.PageDefault
	}
	return min(limit, s.cfg.PageMax)
}

// normaliseCursor maps an empty cursor to the direction's sentinel and rejects
// the sentinel that would make the page trivially empty.
func normaliseCursor(direction, cursor string) (string, bool, error) {
	switch direction {
	case dto.DirectionOlder:
		if cursor == "" || cursor == dto.CursorEnd {
			return dto.CursorEnd, true, nil
		}
	case dto.DirectionNewer:
		if cursor == "" || cursor == dto.CursorStart {
			return dto.CursorStart, false, nil
		}
	}
	if _, _, err := repository.ParseStreamID(cursor); err != nil {
		return "", false, fmt.Errorf("%w: cursor %q", ErrInvalidInput, cursor)
	}
	return cursor, false, nil
}

func (s *chatHistoryService) readStream(ctx context.Context, chatID, direction, cursor string, limit int) ([]repository.StreamEntry, error) {
	streamCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamReadTimeout)
	defer cancel()

	count := int64(limit + 1)
	if direction == dto.DirectionNewer {
		from := repository.CursorStart
		if cursor != dto.CursorStart {
			from = repository.After(cursor)
		}
		return s.streams.RangeForward(streamCtx, chatID, from, repository.CursorEnd, count)
	}

	from := repository.CursorEnd
	if cursor != dto.CursorEnd {
		from = repository.After(cursor)
	}
	return s.streams.RangeBackward(streamCtx, chatID, from, repository.CursorStart, count)
}

func (s *chatHistoryService) readDurable(ctx context.Context, chatID, direction, cursor string, limit int) ([]models.ChatMessage, error) {
	count := limit + 1
	if direction == dto.DirectionNewer {
		after := ""
		if cursor != dto.CursorStart {
			after = cursor
		}
		return s.messages.ListAfter(ctx, chatID, after, count)
	}
	if cursor == dto.CursorEnd {
		return s.messages.ListRecent(ctx, chatID, count)
	}
	return s.messages.ListBefore(ctx, chatID, cursor, count)
}

// writeBack replays durable records (newest first) into an empty fast log in
// chronological order. Ids at or below the current tail are skipped.
func (s *chatHistoryService) writeBack(ctx context.Context, chatID string, records []models.ChatMessage) {
	if len(records) == 0 {
		return
	}

	tail, err := s.streams.LastID(ctx, chatID)
	if err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("skipping fast log write-back")
		return
	}

	written := 0
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if tail != "" && repository.CompareStreamIDs(record.ID, tail) <= 0 {
			s.logger.Debug().Str("chat_id", chatID).Str("id", record.ID).Msg("fast log already holds id, skipping write-back")
			continue
		}
		err := s.streams.AppendWithID(ctx, chatID, record.ID, repository.StreamEntry{
			SentBy:    record.SentBy,
			Message:   record.Body,
			Seen:      record.Seen,
			Timestamp: record.SentAt,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("fast log write-back failed")
			return
		}
		tail = record.ID
		written++
	}
	s.logger.Debug().Str("chat_id", chatID).Int("written", written).Msg("fast log repopulated")
}

func pageFromEntries(chatID string, entries []repository.StreamEntry, limit int) dto.ChatPage {
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	messages := make([]dto.ChatMessage, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, dto.ChatMessage{
			ID:         entry.ID,
			ChatRoomID: chatID,
			SentBy:     entry.SentBy,
			Message:    entry.Message,
			Seen:       entry.Seen,
			Timestamp:  entry.Timestamp,
		})
	}
	return newPage(chatID, messages, hasMore, dto.SourceStream)
}

func pageFromRecords(chatID string, records []models.ChatMessage, limit int) dto.ChatPage {
	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}

	messages := make([]dto.ChatMessage, 0, len(records))
	for _, record := range records {
		messages = append(messages, dto.NewChatMessageFromModel(record))
	}
	return newPage(chatID, messages, hasMore, dto.SourceDurable)
}

func newPage(chatID string, messages []dto.ChatMessage, hasMore bool, source string) dto.ChatPage {
	page := dto.ChatPage{
		ChatID:   chatID,
		Messages: messages,
		HasMore:  hasMore,
		Source:   source,
	}
	if len(messages) > 0 {
		last := messages[len(messages)-1].ID
		page.NextCursor = &last
	}
	return page
}

func (s *chatHistoryService) MarkRead(ctx context.Context, viewerID, otherID string) error {
	chatID, err := chatid.Canonical(viewerID, otherID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	s.metadata.Reset(ctx, chatID, viewerID)
	return nil
}

func (s *chatHistoryService) TotalUnread(ctx context.Context, viewerID string, chatIDs []string) int64 {
	return s.metadata.TotalUnread(ctx, viewerID, chatIDs)
}

// TotalUnreadForUser totals unread counters over every chat with the viewer's matches.
func (s *chatHistoryService) TotalUnreadForUser(ctx context.Context, viewerID string) int64 {
	if s.friends == nil {
		return 0
	}
	partners := s.friends.FriendIDs(ctx, viewerID)
	return s.metadata.TotalUnread(ctx, viewerID, chatid.ForPartners(viewerID, partners))
}

// Persist writes a delivered message to the durable log. Replays are ignored.
func (s *chatHistoryService) Persist(ctx context.Context, message dto.ChatMessage) error {
	if message.ID == "" || message.ChatRoomID == "" {
		return errors.New("message id and chat id are required")
	}
	return s.messages.Save(ctx, &models.ChatMessage{
		ID:     message.ID,
		ChatID: message.ChatRoomID,
		SentBy: message.SentBy,
		Body:   message.Message,
		Seen:   message.Seen,
		SentAt: message.Timestamp,
	})
}
