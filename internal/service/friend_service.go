package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/chatid"
	"github.com/noah-isme/spark-chat-api/internal/dto"
)

// FriendDirectory resolves the users a presence change or unread total concerns.
type FriendDirectory interface {
	FriendIDs(ctx context.Context, userID string) []string
}

// FriendService lists a user's mutual matches.
type FriendService interface {
	FriendDirectory
	ListFriends(ctx context.Context, userID string) ([]dto.FriendSummary, error)
}

type friendService struct {
	profiles ProfileCache
	presence PresenceStore
	metadata ChatMetadataStore
	redis    *redis.Client
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewFriendService builds the friend list service. Friend cards are cached for
// ttl; presence and unread counters are always read fresh.
func NewFriendService(profiles ProfileCache, presence PresenceStore, metadata ChatMetadataStore, redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) FriendService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &friendService{
		profiles: profiles,
		presence: presence,
		metadata: metadata,
		redis:    redisClient,
		ttl:      ttl,
		logger:   logger.With().Str("component", "friend_service").Logger(),
	}
}

func (s *friendService) ListFriends(ctx context.Context, userID string) ([]dto.FriendSummary, error) {
	friends, ok := s.cachedFriends(ctx, userID)
	if !ok {
		loaded, err := s.loadFriends(ctx, userID)
		if err != nil {
			return nil, err
		}
		friends = loaded
		s.storeFriends(ctx, userID, friends)
	}

	ids := make([]string, len(friends))
	chatIDs := make([]string, len(friends))
	for i, friend := range friends {
		ids[i] = friend.ID
		chatIDs[i] = friend.ChatID
	}

	presence := s.presence.Snapshot(ctx, ids)
	unread := s.metadata.UnreadCounts(ctx, userID, chatIDs)
	for i := range friends {
		friends[i].Online = presence[i].Online
		friends[i].LastSeen = presence[i].LastSeen
		friends[i].Unread = unread[i]
	}

	return friends, nil
}

// FriendIDs prefers the cached friend list and falls back to the user's
// matches. Lookup failures yield an empty list.
func (s *friendService) FriendIDs(ctx context.Context, userID string) []string {
	if friends, ok := s.cachedFriends(ctx, userID); ok {
		ids := make([]string, len(friends))
		for i, friend := range friends {
			ids[i] = friend.ID
		}
		return ids
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to resolve friend ids")
		return []string{}
	}
	return profile.Matches
}

func (s *friendService) loadFriends(ctx context.Context, userID string) ([]dto.FriendSummary, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	matches, err := s.profiles.GetProfiles(ctx, profile.Matches)
	if err != nil {
		return nil, err
	}

	friends := make([]dto.FriendSummary, 0, len(matches))
	for _, match := range matches {
		chatID, err := chatid.Canonical(userID, match.ID)
		if err != nil {
			continue
		}
		friends = append(friends, dto.FriendSummary{
			ID:     match.ID,
			Name:   match.Name,
			Image:  match.Image,
			ChatID: chatID,
		})
	}
	return friends, nil
}

func (s *friendService) cachedFriends(ctx context.Context, userID string) ([]dto.FriendSummary, bool) {
	raw, err := s.redis.Get(ctx, friendsKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read friend list cache")
		}
		recordCacheLookups("friends", 0, 1)
		return nil, false
	}

	var friends []dto.FriendSummary
	if err := json.Unmarshal([]byte(raw), &friends); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("discarding malformed friend list cache")
		recordCacheLookups("friends", 0, 1)
		return nil, false
	}
	recordCacheLookups("friends", 1, 0)
	return friends, true
}

func (s *friendService) storeFriends(ctx context.Context, userID string, friends []dto.FriendSummary) {
	payload, err := json.Marshal(friends)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, friendsKey(userID), payload, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to store friend list cache")
	}
}
