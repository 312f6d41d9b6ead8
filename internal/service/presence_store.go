package service

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

const (
	presencePrefix         = "presence:"
	presenceLastSeenPrefix = "presence:lastSeen:"
)

// PresenceStore tracks online status and last-seen timestamps. Failures are
// logged and reads degrade to "offline, never seen".
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string)
	SetOffline(ctx context.Context, userID string) int64
	IsOnline(ctx context.Context, userID string) bool
	LastSeen(ctx context.Context, userID string) *int64
	BatchIsOnline(ctx context.Context, userIDs []string) map[string]bool
	Snapshot(ctx context.Context, userIDs []string) []dto.PresenceStatus
}

// PresenceOption customises the presence store.
type PresenceOption func(*presenceStore)

// WithPresenceMirror copies every transition into the durable store through the write-behind queue.
func WithPresenceMirror(repo repository.PresenceRepository, queue WriteBehind) PresenceOption {
	return func(s *presenceStore) {
		s.mirror = repo
		s.queue = queue
	}
}

type presenceStore struct {
	redis  *redis.Client
	ttl    time.Duration
	mirror repository.PresenceRepository
	queue  WriteBehind
	logger zerolog.Logger
	now    func() time.Time
}

// NewPresenceStore builds a Redis-backed presence store. Online markers expire
// after ttl unless refreshed by a heartbeat.
func NewPresenceStore(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger, opts ...PresenceOption) PresenceStore {
	store := &presenceStore{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.With().Str("component", "presence_store").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func presenceKey(userID string) string {
	return presencePrefix + userID
}

func lastSeenKey(userID string) string {
	return presenceLastSeenPrefix + userID
}

func (s *presenceStore) SetOnline(ctx context.Context, userID string) {
	if err := s.redis.Set(ctx, presenceKey(userID), models.PresenceOnline, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to mark user online")
		return
	}
	s.mirrorRecord(models.PresenceRecord{UserID: userID, Status: models.PresenceOnline, ChangedAt: s.now().UnixMilli()})
}

// SetOffline marks the user offline and records the current time as last seen.
func (s *presenceStore) SetOffline(ctx context.Context, userID string) int64 {
	lastSeen := s.now().UnixMilli()

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, presenceKey(userID), models.PresenceOffline, 0)
		pipe.Set(ctx, lastSeenKey(userID), lastSeen, 0)
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to mark user offline")
		return lastSeen
	}

	s.mirrorRecord(models.PresenceRecord{UserID: userID, Status: models.PresenceOffline, LastSeen: lastSeen, ChangedAt: lastSeen})
	return lastSeen
}

func (s *presenceStore) IsOnline(ctx context.Context, userID string) bool {
	status, err := s.redis.Get(ctx, presenceKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read presence")
		}
		return false
	}
	return status == models.PresenceOnline
}

func (s *presenceStore) LastSeen(ctx context.Context, userID string) *int64 {
	raw, err := s.redis.Get(ctx, lastSeenKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read last seen")
		}
		return nil
	}
	return parseOptionalInt(raw)
}

func (s *presenceStore) BatchIsOnline(ctx context.Context, userIDs []string) map[string]bool {
	result := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return result
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKey(id)
		result[id] = false
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn().Err(err).Int("users", len(userIDs)).Msg("failed to read batch presence")
		return result
	}
	for i, value := range values {
		result[userIDs[i]] = stringOrEmpty(value) == models.PresenceOnline
	}
	return result
}

// Snapshot returns status and last seen for each user, in input order.
func (s *presenceStore) Snapshot(ctx context.Context, userIDs []string) []dto.PresenceStatus {
	out := make([]dto.PresenceStatus, 0, len(userIDs))
	if len(userIDs) == 0 {
		return out
	}

	keys := make([]string, 0, len(userIDs)*2)
	for _, id := range userIDs {
		keys = append(keys, presenceKey(id), lastSeenKey(id))
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn().Err(err).Int("users", len(userIDs)).Msg("failed to read presence snapshot")
		values = make([]interface{}, len(keys))
	}

	for i, id := range userIDs {
		out = append(out, dto.PresenceStatus{
			UserID:   id,
			Online:   stringOrEmpty(values[i*2]) == models.PresenceOnline,
			LastSeen: parseOptionalInt(stringOrEmpty(values[i*2+1])),
		})
	}
	return out
}

func (s *presenceStore) mirrorRecord(record models.PresenceRecord) {
	if s.mirror == nil || s.queue == nil {
		return
	}
	s.queue.Enqueue(BackgroundTask{
		Name: "presence_mirror",
		Run: func(ctx context.Context) error {
			return s.mirror.Upsert(ctx, record)
		},
	})
}

func parseOptionalInt(raw string) *int64 {
	if raw == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}
