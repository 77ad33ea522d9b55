package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/DealerDesk/app/controllers"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/constants"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Session first, then API keys for requests without a session.
	app.Use(middleware.UserContextMiddleware(h.deps.Store))
	app.Use(middleware.APIKeyAuthMiddleware(h.deps.Repos.TeamMember))

	h.registerPublicRoutes(app)
	h.registerCSRFProtectedRoutes(app)
}

func NewHttpRouter(d Deps) *HttpRouter {
	return &HttpRouter{deps: d}
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get(constants.HomeRoute, func(c *fiber.Ctx) error {
		return c.Redirect(constants.PlanRoute, fiber.StatusSeeOther)
	})

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	billing := controllers.NewBillingController(h.deps.Billing, h.deps.BillingSecret)
	app.Post(constants.WebhookRoute, billing.HandleWebhook)
}
