package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/DealerDesk/app/controllers"
	"github.com/ManuelReschke/DealerDesk/app/repository"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/session"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the collaborators the routes are built from.
type Deps struct {
	Store         *session.Store
	Repos         *repository.Repositories
	Source        entitlements.Source
	Usage         controllers.UsageRecorder
	Billing       controllers.BillingService
	BillingSecret string
	Flusher       controllers.UsageFlusher
	Now           controllers.Clock
}

func InstallRouter(app *fiber.App, d Deps) {
	// HttpRouter installs the UserContext middleware the API routes rely on,
	// so it goes first.
	setup(app, NewHttpRouter(d), NewApiRouter(d))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
