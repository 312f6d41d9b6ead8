package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/spark-chat-api/internal/config"
	"github.com/noah-isme/spark-chat-api/internal/handler"
	"github.com/noah-isme/spark-chat-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler     *handler.ChatHandler
	SwipeHandler    *handler.SwipeHandler
	FriendHandler   *handler.FriendHandler
	ProfileHandler  *handler.ProfileHandler
	RealtimeHandler *handler.RealtimeHandler
	ActiveSessions  func() int
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.ActiveSessions))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// The websocket authenticates itself: handshake token or authenticate frame.
	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(api.Group("/realtime"))
	}

	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(api.Group("/chat", jwtMiddleware))
	}

	if deps.SwipeHandler != nil {
		deps.SwipeHandler.Register(api.Group("/swipe", jwtMiddleware))
	}

	if deps.FriendHandler != nil {
		deps.FriendHandler.RegisterFriends(api.Group("/friends", jwtMiddleware))
		deps.FriendHandler.RegisterPresence(api.Group("/presence", jwtMiddleware))
	}

	if deps.ProfileHandler != nil {
		deps.ProfileHandler.Register(api.Group("/profile", jwtMiddleware))
	}
}
