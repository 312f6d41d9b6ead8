package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/middleware"
	"github.com/noah-isme/spark-chat-api/internal/service"
	"github.com/noah-isme/spark-chat-api/internal/utils"
)

// SwipeHandler exposes the swipe feed and swipe actions.
type SwipeHandler struct {
	swipes    service.SwipeService
	rateLimit int
	logger    zerolog.Logger
}

// NewSwipeHandler creates a swipe handler. rateLimit caps swipes per user per minute.
func NewSwipeHandler(swipes service.SwipeService, rateLimit int, logger zerolog.Logger) *SwipeHandler {
	return &SwipeHandler{
		swipes:    swipes,
		rateLimit: rateLimit,
		logger:    logger.With().Str("component", "swipe_handler").Logger(),
	}
}

// Register binds swipe routes under the provided router group.
func (h *SwipeHandler) Register(router fiber.Router) {
	router.Get("/candidates", h.candidates)
	router.Post("/", middleware.RateLimit("swipe", h.rateLimit, time.Minute), h.swipe)
	router.Post("/reset", h.reset)
}

func (h *SwipeHandler) candidates(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_input", "invalid limit")
	}

	batch, err := h.swipes.Candidates(c.UserContext(), userIDFromContext(c), dto.CandidateQuery{Limit: limit})
	if err != nil {
		return respondError(c, h.logger, err, "failed to load candidates")
	}

	c.Set("X-Cache-Hit", strconv.FormatBool(batch.CacheHit))
	return utils.SendSuccess(c, "candidates retrieved", batch)
}

func (h *SwipeHandler) swipe(c *fiber.Ctx) error {
	var req dto.SwipeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_input", "invalid payload")
	}

	result, err := h.swipes.RecordSwipe(c.UserContext(), userIDFromContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to record swipe")
	}

	return utils.SendSuccess(c, "swipe recorded", result)
}

func (h *SwipeHandler) reset(c *fiber.Ctx) error {
	var req dto.ResetSwipesRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_input", "invalid payload")
	}

	if err := h.swipes.ResetInteractions(c.UserContext(), userIDFromContext(c), req); err != nil {
		return respondError(c, h.logger, err, "failed to reset interactions")
	}

	return utils.SendSuccess(c, "interactions reset", fiber.Map{"type": req.Type})
}
