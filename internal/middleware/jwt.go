package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/utils"
)

// ErrTokenMissing is returned by TokenFromRequest when no credentials were sent.
var ErrTokenMissing = errors.New("token missing")

// TokenVerifier validates a session token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (dto.AuthClaims, error)
}

// JWTProtected returns a middleware that validates bearer or cookie tokens.
func JWTProtected(verifier TokenVerifier, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := TokenFromRequest(c, cookieName)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		claims, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("user_mobile", claims.Mobile)
		c.Locals("auth_token", token)

		return c.Next()
	}
}

// TokenFromRequest reads the bearer token, falling back to the session cookie.
func TokenFromRequest(c *fiber.Ctx, cookieName string) (string, error) {
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authorization != "" {
		const bearer = "bearer "
		if len(authorization) <= len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return "", errors.New("invalid authorization header")
		}
		token := strings.TrimSpace(authorization[len(bearer):])
		if token == "" {
			return "", errors.New("invalid token")
		}
		return token, nil
	}

	if cookieName != "" {
		if token := strings.TrimSpace(c.Cookies(cookieName)); token != "" {
			return token, nil
		}
	}

	return "", ErrTokenMissing
}
