package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/middleware"
	"github.com/noah-isme/spark-chat-api/internal/service"
)

// RealtimeHandler upgrades connections to the realtime gateway.
type RealtimeHandler struct {
	gateway    service.Gateway
	cookieName string
	logger     zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler. cookieName is the session cookie
// consulted when the handshake carries no Authorization header.
func NewRealtimeHandler(gateway service.Gateway, cookieName string, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		gateway:    gateway,
		cookieName: cookieName,
		logger:     logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket endpoint under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// A missing handshake token is fine; the client may send an authenticate frame.
		if token, err := middleware.TokenFromRequest(c, h.cookieName); err == nil {
			c.Locals("handshake_token", token)
		}
		ctx := c.UserContext()
		if ctx == nil {
			ctx = context.Background()
		}
		c.Locals("request_ctx", middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c)))
		return c.Next()
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	token, _ := conn.Locals("handshake_token").(string)
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	h.logger.Debug().Str("correlation_id", correlation).Msg("realtime websocket connected")
	h.gateway.ServeConnection(conn, service.SessionOptions{
		Token:         token,
		CorrelationID: correlation,
		Context:       baseCtx,
	})
	h.logger.Debug().Str("correlation_id", correlation).Msg("realtime websocket disconnected")
}
