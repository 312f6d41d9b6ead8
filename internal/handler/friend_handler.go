package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/service"
	"github.com/noah-isme/spark-chat-api/internal/utils"
)

const maxPresenceLookup = 100

// FriendHandler serves the friend list and presence lookups.
type FriendHandler struct {
	friends  service.FriendService
	presence service.PresenceStore
	logger   zerolog.Logger
}

// NewFriendHandler creates a friend handler instance.
func NewFriendHandler(friends service.FriendService, presence service.PresenceStore, logger zerolog.Logger) *FriendHandler {
	return &FriendHandler{
		friends:  friends,
		presence: presence,
		logger:   logger.With().Str("component", "friend_handler").Logger(),
	}
}

// RegisterFriends binds the friend list to the provided router group.
func (h *FriendHandler) RegisterFriends(router fiber.Router) {
	router.Get("/", h.list)
}

// RegisterPresence binds the presence lookup to the provided router group.
func (h *FriendHandler) RegisterPresence(router fiber.Router) {
	router.Get("/", h.presenceLookup)
}

func (h *FriendHandler) list(c *fiber.Ctx) error {
	friends, err := h.friends.ListFriends(c.UserContext(), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load friends")
	}
	return utils.SendSuccess(c, "friends retrieved", friends)
}

func (h *FriendHandler) presenceLookup(c *fiber.Ctx) error {
	ids := splitAndTrim(c.Query("ids"))
	if len(ids) == 0 {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_input", "ids required")
	}
	if len(ids) > maxPresenceLookup {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_input", "too many ids")
	}

	return utils.SendSuccess(c, "presence retrieved", h.presence.Snapshot(c.UserContext(), ids))
}
