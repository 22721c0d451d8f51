package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"campus-backend/internal/engine"
)

// UserContext carries the authenticated user through the request.
type UserContext struct {
	ID   string
	Role string
}

// Middleware returns a Fiber middleware that validates JWT tokens and sets
// the UserContext on the request.
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

		c.Locals("user", &UserContext{ID: claims.Subject, Role: claims.Role})
		c.Locals("user_id", claims.Subject)

		return c.Next()
	}
}

// RequireRole checks the authenticated user's role against the role
// hierarchy. Reviewer routes accept admins, editor routes accept everyone.
func RequireRole(required string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !RoleAtLeast(user.Role, required) {
			return engine.ForbiddenError(required + " access required")
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *UserContext {
	user, _ := c.Locals("user").(*UserContext)
	return user
}
