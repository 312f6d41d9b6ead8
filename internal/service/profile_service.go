package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

// ProfileService reads and edits the caller's own profile.
type ProfileService interface {
	Me(ctx context.Context, userID string) (dto.UserProfile, error)
	Update(ctx context.Context, userID string, req dto.ProfileUpdateRequest) (dto.UserProfile, error)
}

type profileService struct {
	users     repository.UserRepository
	cache     ProfileCache
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewProfileService constructs the profile service.
func NewProfileService(users repository.UserRepository, cache ProfileCache, validate *validator.Validate, logger zerolog.Logger) ProfileService {
	return &profileService{
		users:     users,
		cache:     cache,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "profile_service").Logger(),
	}
}

func (s *profileService) Me(ctx context.Context, userID string) (dto.UserProfile, error) {
	return s.cache.GetProfile(ctx, userID)
}

// Update applies the non-nil fields and invalidates the caches that embed the profile.
func (s *profileService) Update(ctx context.Context, userID string, req dto.ProfileUpdateRequest) (dto.UserProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.UserProfile{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(s.sanitizer.Sanitize(*req.Name))
		if name == "" {
			return dto.UserProfile{}, fmt.Errorf("%w: name empty after sanitization", ErrInvalidInput)
		}
		updates["name"] = name
	}
	if req.Age != nil {
		updates["age"] = *req.Age
	}
	if req.Bio != nil {
		updates["bio"] = strings.TrimSpace(s.sanitizer.Sanitize(*req.Bio))
	}
	if req.ProfilePicture != nil {
		updates["profile_picture"] = strings.TrimSpace(*req.ProfilePicture)
	}
	if req.Tags != nil {
		tags := make(datatypes.JSONSlice[string], 0, len(req.Tags))
		for _, tag := range req.Tags {
			if clean := strings.TrimSpace(s.sanitizer.Sanitize(tag)); clean != "" {
				tags = append(tags, clean)
			}
		}
		updates["tags"] = tags
	}
	if len(updates) == 0 {
		return dto.UserProfile{}, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}

	user, err := s.users.UpdateProfile(ctx, userID, updates)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return dto.UserProfile{}, ErrUserNotFound
		}
		return dto.UserProfile{}, err
	}

	s.cache.InvalidateProfile(ctx, userID)
	if len(user.Matches) > 0 {
		s.cache.InvalidateFriends(ctx, user.Matches...)
	}

	s.logger.Info().Str("user_id", userID).Int("fields", len(updates)).Msg("profile updated")
	return s.cache.GetProfile(ctx, userID)
}
