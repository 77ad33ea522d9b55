package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/DealerDesk/app/controllers"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/middleware"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		// Per company when authenticated, per address otherwise.
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := usercontext.GetCompanyID(c); id != 0 {
				return "company:" + strconv.FormatUint(uint64(id), 10)
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	plan := controllers.NewAccountPlanController(h.deps.Source, h.deps.Now)
	usage := controllers.NewUsageController(h.deps.Source, h.deps.Usage, h.deps.Now)
	admin := controllers.NewAdminEntitlementController(h.deps.Repos, h.deps.Flusher, h.deps.Now)
	billing := controllers.NewBillingController(h.deps.Billing, h.deps.BillingSecret)

	v1 := api.Group("/v1")
	account := v1.Group("/account", middleware.RequireAPIAuth)
	account.Get("/plan", plan.HandleAPIGetPlan)
	account.Post("/entitlements/:feature/usage", usage.HandleRecordUsage)

	staff := v1.Group("/admin", middleware.RequireAPIAdmin)
	staff.Put("/companies/:id/entitlements/:feature", admin.HandlePutEntitlement)
	staff.Post("/companies/:id/billing/reconcile", billing.HandleReconcile)
	staff.Post("/usage/flush", admin.HandleFlushUsage)
}

func NewApiRouter(d Deps) *ApiRouter {
	return &ApiRouter{deps: d}
}
