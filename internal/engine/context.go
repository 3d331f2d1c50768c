package engine

import (
	"github.com/gofiber/fiber/v2"

	"onboard-backend/internal/assign"
)

// getUser extracts the caller identity set by the auth middleware. Nil when
// the route is unauthenticated.
func getUser(c *fiber.Ctx) *assign.Identity {
	user, _ := c.Locals("user").(*assign.Identity)
	return user
}
