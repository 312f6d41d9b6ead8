package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/service"
	"github.com/noah-isme/spark-chat-api/internal/utils"
)

// ProfileHandler serves the authenticated user's own profile.
type ProfileHandler struct {
	profiles service.ProfileService
	logger   zerolog.Logger
}

// NewProfileHandler creates a profile handler instance.
func NewProfileHandler(profiles service.ProfileService, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger.With().Str("component", "profile_handler").Logger(),
	}
}

// Register binds profile routes under the provided router group.
func (h *ProfileHandler) Register(router fiber.Router) {
	router.Get("/me", h.me)
	router.Patch("/", h.update)
}

func (h *ProfileHandler) me(c *fiber.Ctx) error {
	profile, err := h.profiles.Me(c.UserContext(), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load profile")
	}
	return utils.SendSuccess(c, "profile retrieved", profile)
}

func (h *ProfileHandler) update(c *fiber.Ctx) error {
	var req dto.ProfileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_input", "invalid payload")
	}

	profile, err := h.profiles.Update(c.UserContext(), userIDFromContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update profile")
	}
	return utils.SendSuccess(c, "profile updated", profile)
}
