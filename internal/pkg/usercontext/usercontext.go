package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
)

// UserContext represents the authenticated team member for a request
type UserContext struct {
	MemberID   uint   `json:"member_id"`
	CompanyID  uint   `json:"company_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
	ViaAPIKey  bool   `json:"via_api_key"`
	Token      string `json:"-"`
}

// Principal is what entitlement sources need to know about the caller.
func (u UserContext) Principal() entitlements.Principal {
	return entitlements.Principal{CompanyID: u.CompanyID, Token: u.Token}
}

// Set stores the context and the flags the auth middlewares check.
func Set(c *fiber.Ctx, u UserContext) {
	c.Locals(KeyUserContext, u)
	c.Locals(KeyFromProtected, u.IsLoggedIn)
	c.Locals(KeyIsAdmin, u.IsAdmin)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetCompanyID returns the current company, or 0 if not logged in
func GetCompanyID(c *fiber.Ctx) uint {
	return GetUserContext(c).CompanyID
}
