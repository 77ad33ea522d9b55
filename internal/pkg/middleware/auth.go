package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/constants"
	icuser "github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
)

func loggedIn(c *fiber.Ctx) bool {
	b, ok := c.Locals(icuser.KeyFromProtected).(bool)
	return ok && b
}

// RequireAuth ensures a logged-in web session; redirects to /login if missing.
func RequireAuth(c *fiber.Ctx) error {
	if !loggedIn(c) {
		return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAPIAuth is RequireAuth for JSON routes: 401 instead of a redirect.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !loggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login or API key required",
		})
	}
	return c.Next()
}

// RequireAPIAdmin lets only marketplace staff through.
func RequireAPIAdmin(c *fiber.Ctx) error {
	if !loggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login or API key required",
		})
	}
	if isAdmin, ok := c.Locals(icuser.KeyIsAdmin).(bool); !ok || !isAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "staff only",
		})
	}
	return c.Next()
}
