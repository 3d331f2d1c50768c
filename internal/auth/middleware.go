package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"onboard-backend/internal/assign"
	"onboard-backend/internal/engine"
)

// Middleware returns a Fiber middleware that validates JWT tokens and sets
// the caller's identity on the request.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", &assign.Identity{
			ID:        claims.Subject,
			Email:     claims.Email,
			Staff:     claims.Staff,
			Superuser: claims.Superuser,
		})

		return c.Next()
	}
}

// RequireAdmin checks the authenticated user is a privileged administrator
// (staff and superuser).
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*assign.Identity)
		if !ok || user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.Privileged() {
			return engine.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// GetUser extracts the caller identity from a Fiber context.
func GetUser(c *fiber.Ctx) *assign.Identity {
	user, _ := c.Locals("user").(*assign.Identity)
	return user
}
