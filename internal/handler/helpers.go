package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/middleware"
	"github.com/noah-isme/spark-chat-api/internal/service"
	"github.com/noah-isme/spark-chat-api/internal/utils"
)

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func userIDFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(string); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// respondError maps service errors onto HTTP statuses. Unknown errors are
// logged and reported as 500 without leaking details.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput), isValidationError(err):
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrTokenRevoked):
		return utils.SendErrorCode(c, fiber.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		return utils.SendErrorCode(c, fiber.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, service.ErrSwipeConflict):
		return utils.SendErrorCode(c, fiber.StatusConflict, "swipe_conflict", err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Msg(fallback)
		return utils.SendErrorCode(c, fiber.StatusInternalServerError, "internal_error", fallback)
	}
}
