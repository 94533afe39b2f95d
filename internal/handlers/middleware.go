package handlers

import (
	"talkasaurus/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// RequireAdmin returns a middleware that rejects requests without a valid
// admin bearer token.
func RequireAdmin(adminAuth *auth.AdminAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.ExtractToken(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or malformed authorization header",
			})
		}

		claims, err := adminAuth.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("admin_subject", claims.Subject)
		return c.Next()
	}
}
