package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/ManuelReschke/DealerDesk/app/controllers"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/constants"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/env"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/middleware"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), constants.APIPrefix) || strings.HasPrefix(c.Path(), constants.WebhookPrefix)
		},
	}

	auth := controllers.NewAuthController(h.deps.Store, h.deps.Repos.TeamMember)
	plan := controllers.NewAccountPlanController(h.deps.Source, h.deps.Now)

	group := app.Group("", cors.New(), csrf.New(csrfConf))
	group.Get(constants.LoginRoute, auth.HandleLoginPage)
	group.Post(constants.LoginRoute, auth.HandleLogin)
	group.Post(constants.LogoutRoute, middleware.RequireAuth, auth.HandleLogout)
	group.Get(constants.PlanRoute, middleware.RequireAuth, plan.HandlePlanPage)
}
