package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/service"
	"github.com/noah-isme/spark-chat-api/internal/utils"
)

// ChatHandler exposes chat history and read state.
type ChatHandler struct {
	history service.ChatHistoryService
	logger  zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(history service.ChatHistoryService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		history: history,
		logger:  logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Get("/unread-count", h.unreadCount)
	router.Get("/:friendId", h.page)
	router.Post("/:friendId/mark-read", h.markRead)
}

func (h *ChatHandler) page(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_input", "invalid limit")
	}

	query := dto.ChatPageQuery{
		ViewerID:  userIDFromContext(c),
		OtherID:   c.Params("friendId"),
		Limit:     limit,
		Cursor:    c.Query("cursor"),
		Direction: c.Query("direction"),
	}

	page, err := h.history.GetPage(c.UserContext(), query)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load chat history")
	}

	c.Set("X-History-Source", page.Source)
	return utils.SendSuccess(c, "chat history retrieved", page)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	if err := h.history.MarkRead(c.UserContext(), userIDFromContext(c), c.Params("friendId")); err != nil {
		return respondError(c, h.logger, err, "failed to mark chat as read")
	}
	return utils.SendSuccess(c, "chat marked as read", nil)
}

func (h *ChatHandler) unreadCount(c *fiber.Ctx) error {
	total := h.history.TotalUnreadForUser(c.UserContext(), userIDFromContext(c))
	return utils.SendSuccess(c, "unread count retrieved", dto.UnreadCountResponse{TotalUnread: total})
}
