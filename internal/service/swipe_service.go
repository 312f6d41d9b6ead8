package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/observability"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

// SwipeService records swipes, detects mutual matches and resets interaction lists.
type SwipeService interface {
	Candidates(ctx context.Context, viewerID string, query dto.CandidateQuery) (dto.CandidateBatch, error)
	RecordSwipe(ctx context.Context, viewerID string, req dto.SwipeRequest) (dto.SwipeResult, error)
	ResetInteractions(ctx context.Context, viewerID string, req dto.ResetSwipesRequest) error
}

type swipeService struct {
	users     repository.UserRepository
	cache     ProfileCache
	validator *validator.Validate
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewSwipeService constructs the swipe service.
func NewSwipeService(users repository.UserRepository, cache ProfileCache, validate *validator.Validate, logger zerolog.Logger) SwipeService {
	return &swipeService{
		users:     users,
		cache:     cache,
		validator: validate,
		tracer:    otel.Tracer("github.com/noah-isme/spark-chat-api/internal/service/swipe"),
		logger:    logger.With().Str("component", "swipe_service").Logger(),
	}
}

func (s *swipeService) Candidates(ctx context.Context, viewerID string, query dto.CandidateQuery) (dto.CandidateBatch, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.CandidateBatch{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	limit := query.Limit
	if limit == 0 {
		limit = 10
	}
	return s.cache.GetCandidateBatch(ctx, viewerID, limit)
}

// RecordSwipe applies the swipe atomically and then invalidates the caches of
// both participants. A match also invalidates both friend lists.
func (s *swipeService) RecordSwipe(ctx context.Context, viewerID string, req dto.SwipeRequest) (dto.SwipeResult, error) {
	req.TargetID = strings.TrimSpace(req.TargetID)
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	if err := s.validator.Struct(req); err != nil {
		return dto.SwipeResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.TargetID == viewerID {
		return dto.SwipeResult{}, fmt.Errorf("%w: cannot swipe on yourself", ErrInvalidInput)
	}

	ctx, span := s.tracer.Start(ctx, "swipe.record", trace.WithAttributes(
		attribute.String("swipe.viewer_id", viewerID),
		attribute.String("swipe.target_id", req.TargetID),
		attribute.String("swipe.action", req.Action),
	))
	defer span.End()

	outcome, err := s.users.ApplySwipe(ctx, viewerID, req.TargetID, req.Action)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrUserNotFound) {
			return dto.SwipeResult{}, ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("viewer_id", viewerID).Str("target_id", req.TargetID).Msg("swipe transaction failed")
		return dto.SwipeResult{}, fmt.Errorf("%w: %v", ErrSwipeConflict, err)
	}

	s.cache.InvalidateProfile(ctx, viewerID, req.TargetID)
	s.cache.InvalidateSwipeFeed(ctx, viewerID, req.TargetID)
	if outcome.Matched {
		s.cache.InvalidateFriends(ctx, viewerID, req.TargetID)
	}

	observability.Swipes().WithLabelValues(req.Action, strconv.FormatBool(outcome.Matched)).Inc()
	span.SetAttributes(attribute.Bool("swipe.match", outcome.Matched))

	result := dto.SwipeResult{IsMatch: outcome.Matched}
	if outcome.Matched {
		target, err := s.cache.GetProfile(ctx, req.TargetID)
		if err != nil {
			s.logger.Warn().Err(err).Str("target_id", req.TargetID).Msg("failed to load matched profile")
			summary := dto.ProfileSummary{ID: outcome.Target.ID, Name: outcome.Target.Name, Image: outcome.Target.ProfilePicture}
			result.MatchedUser = &summary
		} else {
			summary := target.Summary()
			result.MatchedUser = &dto.ProfileSummary{ID: summary.ID, Name: summary.Name, Image: summary.Image}
		}
		s.logger.Info().Str("viewer_id", viewerID).Str("target_id", req.TargetID).Msg("new match")
	}

	return result, nil
}

func (s *swipeService) ResetInteractions(ctx context.Context, viewerID string, req dto.ResetSwipesRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	cleared, err := s.users.ResetList(ctx, viewerID, req.Type)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.cache.InvalidateProfile(ctx, viewerID)
	s.cache.InvalidateSwipeFeed(ctx, viewerID)
	if req.Type == models.ListMatches {
		s.cache.InvalidateFriends(ctx, viewerID)
		if len(cleared) > 0 {
			s.cache.InvalidateFriends(ctx, cleared...)
			s.cache.InvalidateProfile(ctx, cleared...)
		}
	}

	s.logger.Info().Str("user_id", viewerID).Str("list", req.Type).Int("cleared", len(cleared)).Msg("interaction list reset")
	return nil
}
