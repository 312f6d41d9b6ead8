package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/dto"
)

const (
	chatMetaPrefix   = "chat:meta:"
	metaLastMessage  = "lastMessage"
	metaLastSender   = "lastSender"
	metaUnreadPrefix = "unread:"
)

// ChatMetadataStore keeps the per-chat summary: last activity, last sender and
// unread counters per participant. Every operation is best-effort.
type ChatMetadataStore interface {
	RecordMessage(ctx context.Context, chatID, recipientID, senderID string) int64
	Read(ctx context.Context, chatID, viewerID string) dto.ChatMetadata
	Reset(ctx context.Context, chatID, viewerID string)
	TotalUnread(ctx context.Context, viewerID string, chatIDs []string) int64
	UnreadCounts(ctx context.Context, viewerID string, chatIDs []string) []int64
}

type chatMetadataStore struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewChatMetadataStore builds the metadata store on top of Redis hashes.
func NewChatMetadataStore(redisClient *redis.Client, logger zerolog.Logger) ChatMetadataStore {
	return &chatMetadataStore{
		redis:  redisClient,
		logger: logger.With().Str("component", "chat_metadata").Logger(),
		now:    time.Now,
	}
}

func chatMetaKey(chatID string) string {
	return chatMetaPrefix + chatID
}

func unreadField(userID string) string {
	return metaUnreadPrefix + userID
}

// RecordMessage updates last activity and increments the recipient's unread
// counter atomically, returning the new counter or 0 when the store failed.
func (s *chatMetadataStore) RecordMessage(ctx context.Context, chatID, recipientID, senderID string) int64 {
	key := chatMetaKey(chatID)

	var unread *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, metaLastMessage, s.now().UnixMilli(), metaLastSender, senderID)
		unread = pipe.HIncrBy(ctx, key, unreadField(recipientID), 1)
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to record chat metadata")
		return 0
	}

	return unread.Val()
}

func (s *chatMetadataStore) Read(ctx context.Context, chatID, viewerID string) dto.ChatMetadata {
	values, err := s.redis.HMGet(ctx, chatMetaKey(chatID), metaLastMessage, metaLastSender, unreadField(viewerID)).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to read chat metadata")
		return dto.ChatMetadata{}
	}

	return dto.ChatMetadata{
		LastMessage: parseInt(values[0]),
		LastSender:  stringOrEmpty(values[1]),
		Unread:      parseInt(values[2]),
	}
}

func (s *chatMetadataStore) Reset(ctx context.Context, chatID, viewerID string) {
	if err := s.redis.HSet(ctx, chatMetaKey(chatID), unreadField(viewerID), 0).Err(); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Str("user_id", viewerID).Msg("failed to reset unread counter")
	}
}

// TotalUnread sums the viewer's unread counters over chatIDs in one round trip.
func (s *chatMetadataStore) TotalUnread(ctx context.Context, viewerID string, chatIDs []string) int64 {
	var total int64
	for _, count := range s.UnreadCounts(ctx, viewerID, chatIDs) {
		total += count
	}
	return total
}

// UnreadCounts returns the viewer's unread counter for each chat, in input order.
func (s *chatMetadataStore) UnreadCounts(ctx context.Context, viewerID string, chatIDs []string) []int64 {
	counts := make([]int64, len(chatIDs))
	if len(chatIDs) == 0 {
		return counts
	}

	field := unreadField(viewerID)
	cmds := make([]*redis.StringCmd, 0, len(chatIDs))
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, chatID := range chatIDs {
			cmds = append(cmds, pipe.HGet(ctx, chatMetaKey(chatID), field))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("user_id", viewerID).Msg("failed to read unread counters")
		return counts
	}

	for i, cmd := range cmds {
		value, err := cmd.Int64()
		if err != nil {
			continue
		}
		counts[i] = value
	}
	return counts
}

func parseInt(value interface{}) int64 {
	parsed, err := strconv.ParseInt(stringOrEmpty(value), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func stringOrEmpty(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
