package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/observability"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

const (
	profileKeyPrefix   = "user:profile:"
	friendsKeyPrefix   = "user:friends:"
	swipeFeedKeyPrefix = "swipe:feed:"
)

// ImageResolver turns a stored picture reference into a public URL.
type ImageResolver interface {
	ProfileImageURL(userID, picture string) string
}

// ProfileCacheConfig tunes cache lifetimes and durable read sizes.
type ProfileCacheConfig struct {
	ProfileTTL      time.Duration
	FeedTTL         time.Duration
	BatchSize       int
	FetchMultiplier int
	FetchMin        int
}

// ProfileCache is the cache-aside layer over user documents and swipe feeds.
type ProfileCache interface {
	GetProfile(ctx context.Context, userID string) (dto.UserProfile, error)
	GetProfiles(ctx context.Context, userIDs []string) ([]dto.UserProfile, error)
	GetCandidateBatch(ctx context.Context, viewerID string, limit int) (dto.CandidateBatch, error)
	InvalidateProfile(ctx context.Context, userIDs ...string)
	InvalidateSwipeFeed(ctx context.Context, userIDs ...string)
	InvalidateFriends(ctx context.Context, userIDs ...string)
}

type profileCache struct {
	users  repository.UserRepository
	redis  *redis.Client
	images ImageResolver
	cfg    ProfileCacheConfig
	logger zerolog.Logger
}

// NewProfileCache wires the cache with its durable source.
func NewProfileCache(users repository.UserRepository, redisClient *redis.Client, images ImageResolver, cfg ProfileCacheConfig, logger zerolog.Logger) ProfileCache {
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = 10 * time.Minute
	}
	if cfg.FeedTTL <= 0 {
		cfg.FeedTTL = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.FetchMultiplier <= 0 {
		cfg.FetchMultiplier = 5
	}
	if cfg.FetchMin <= 0 {
		cfg.FetchMin = 50
	}

	return &profileCache{
		users:  users,
		redis:  redisClient,
		images: images,
		cfg:    cfg,
		logger: logger.With().Str("component", "profile_cache").Logger(),
	}
}

func profileKey(userID string) string {
	return profileKeyPrefix + userID
}

func friendsKey(userID string) string {
	return friendsKeyPrefix + userID
}

func swipeFeedKey(userID string) string {
	return swipeFeedKeyPrefix + userID
}

func (c *profileCache) GetProfile(ctx context.Context, userID string) (dto.UserProfile, error) {
	profiles, err := c.GetProfiles(ctx, []string{userID})
	if err != nil {
		return dto.UserProfile{}, err
	}
	if len(profiles) == 0 {
		return dto.UserProfile{}, ErrUserNotFound
	}
	return profiles[0], nil
}

// GetProfiles returns profiles in input order. Ids without a user document are
// dropped; misses are loaded from the durable store in parallel chunks.
func (c *profileCache) GetProfiles(ctx context.Context, userIDs []string) ([]dto.UserProfile, error) {
	if len(userIDs) == 0 {
		return []dto.UserProfile{}, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = profileKey(id)
	}

	values, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read profile cache")
		values = make([]interface{}, len(keys))
	}

	found := make(map[string]dto.UserProfile, len(userIDs))
	missing := make([]string, 0)
	queued := make(map[string]struct{})
	for i, id := range userIDs {
		if raw := stringOrEmpty(values[i]); raw != "" {
			var profile dto.UserProfile
			if err := json.Unmarshal([]byte(raw), &profile); err == nil {
				found[id] = profile
				continue
			}
		}
		if _, ok := queued[id]; ok {
			continue
		}
		queued[id] = struct{}{}
		missing = append(missing, id)
	}
	recordCacheLookups("profile", len(userIDs)-len(missing), len(missing))

	if len(missing) > 0 {
		loaded, err := c.loadProfiles(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, profile := range loaded {
			found[profile.ID] = profile
		}
		c.storeProfiles(ctx, loaded)
	}

	out := make([]dto.UserProfile, 0, len(userIDs))
	for _, id := range userIDs {
		if profile, ok := found[id]; ok {
			out = append(out, profile)
		}
	}
	return out, nil
}

func (c *profileCache) loadProfiles(ctx context.Context, ids []string) ([]dto.UserProfile, error) {
	var (
		mu  sync.Mutex
		out = make([]dto.UserProfile, 0, len(ids))
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(ids); start += c.cfg.BatchSize {
		chunk := ids[start:min(start+c.cfg.BatchSize, len(ids))]
		group.Go(func() error {
			users, err := c.users.FindByIDs(groupCtx, chunk)
			if err != nil {
				return fmt.Errorf("load profiles: %w", err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, user := range users {
				out = append(out, c.toProfile(user))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *profileCache) storeProfiles(ctx context.Context, profiles []dto.UserProfile) {
	if len(profiles) == 0 {
		return
	}
	_, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, profile := range profiles {
			payload, err := json.Marshal(profile)
			if err != nil {
				continue
			}
			pipe.Set(ctx, profileKey(profile.ID), payload, c.cfg.ProfileTTL)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("profiles", len(profiles)).Msg("failed to store profile cache")
	}
}

func (c *profileCache) toProfile(user models.User) dto.UserProfile {
	image := user.ProfilePicture
	if c.images != nil {
		image = c.images.ProfileImageURL(user.ID, user.ProfilePicture)
	}
	return dto.NewUserProfile(user, image)
}

// GetCandidateBatch pops up to limit cached candidates for the viewer. On a
// miss the feed is rebuilt from the durable store excluding self and every
// user the viewer already interacted with; the remainder is cached.
func (c *profileCache) GetCandidateBatch(ctx context.Context, viewerID string, limit int) (dto.CandidateBatch, error) {
	if limit <= 0 {
		limit = 10
	}
	key := swipeFeedKey(viewerID)

	var cached *redis.StringSliceCmd
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		cached = pipe.LRange(ctx, key, 0, int64(limit-1))
		pipe.LTrim(ctx, key, int64(limit), -1)
		pipe.Expire(ctx, key, c.cfg.FeedTTL)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", viewerID).Msg("failed to read swipe feed cache")
	} else if entries := cached.Val(); len(entries) > 0 {
		profiles := make([]dto.ProfileSummary, 0, len(entries))
		for _, entry := range entries {
			var summary dto.ProfileSummary
			if err := json.Unmarshal([]byte(entry), &summary); err == nil {
				profiles = append(profiles, summary)
			}
		}
		recordCacheLookups("swipe_feed", 1, 0)
		return dto.CandidateBatch{Profiles: profiles, CacheHit: true}, nil
	}
	recordCacheLookups("swipe_feed", 0, 1)

	viewer, err := c.users.FindByID(ctx, viewerID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return dto.CandidateBatch{}, ErrUserNotFound
	}
	if err != nil {
		return dto.CandidateBatch{}, fmt.Errorf("load viewer: %w", err)
	}

	fetch := max(limit*c.cfg.FetchMultiplier, c.cfg.FetchMin)
	users, err := c.users.ListCandidates(ctx, viewer.ExcludedFromFeed(), fetch)
	if err != nil {
		return dto.CandidateBatch{}, fmt.Errorf("list candidates: %w", err)
	}

	summaries := make([]dto.ProfileSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, c.toProfile(user).Summary())
	}

	batch := summaries[:min(limit, len(summaries))]
	c.storeFeed(ctx, key, summaries[len(batch):])

	return dto.CandidateBatch{Profiles: batch}, nil
}

func (c *profileCache) storeFeed(ctx context.Context, key string, rest []dto.ProfileSummary) {
	if len(rest) == 0 {
		return
	}

	values := make([]interface{}, 0, len(rest))
	for _, summary := range rest {
		payload, err := json.Marshal(summary)
		if err != nil {
			continue
		}
		values = append(values, payload)
	}

	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, c.cfg.FeedTTL)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to store swipe feed cache")
	}
}

func (c *profileCache) InvalidateProfile(ctx context.Context, userIDs ...string) {
	c.invalidate(ctx, profileKey, userIDs)
}

func (c *profileCache) InvalidateSwipeFeed(ctx context.Context, userIDs ...string) {
	c.invalidate(ctx, swipeFeedKey, userIDs)
}

func (c *profileCache) InvalidateFriends(ctx context.Context, userIDs ...string) {
	c.invalidate(ctx, friendsKey, userIDs)
}

func (c *profileCache) invalidate(ctx context.Context, keyFn func(string) string, userIDs []string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, keyFn(id))
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("failed to invalidate cache")
	}
}

func recordCacheLookups(cache string, hits, misses int) {
	if hits > 0 {
		observability.CacheLookups().WithLabelValues(cache, "hit").Add(float64(hits))
	}
	if misses > 0 {
		observability.CacheLookups().WithLabelValues(cache, "miss").Add(float64(misses))
	}
}
