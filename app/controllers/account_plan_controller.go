package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/viewmodel"
)

// AccountPlanController serves the plan summary as JSON and as a page.
type AccountPlanController struct {
	Source entitlements.Source
	Now    Clock
}

func NewAccountPlanController(source entitlements.Source, now Clock) *AccountPlanController {
	if now == nil {
		now = time.Now
	}
	return &AccountPlanController{Source: source, Now: now}
}

func (ac *AccountPlanController) summary(c *fiber.Ctx) (entitlements.Summary, error) {
	now := ac.Now()
	snap, err := ac.Source.Load(c.UserContext(), usercontext.GetUserContext(c).Principal())
	if err != nil {
		return entitlements.Summary{}, err
	}
	return entitlements.BuildSummary(snap.Account, snap.SeatsUsed, snap.Records, now), nil
}

// HandleAPIGetPlan returns GET /api/v1/account/plan.
func (ac *AccountPlanController) HandleAPIGetPlan(c *fiber.Ctx) error {
	s, err := ac.summary(c)
	if err != nil {
		return sourceError(c, err)
	}
	return c.JSON(s)
}

// HandlePlanPage renders GET /account/plan. A failing source still renders
// the page, with an error notice instead of cards.
func (ac *AccountPlanController) HandlePlanPage(c *fiber.Ctx) error {
	layout := viewmodel.NewLayout(c, "Your plan")

	s, err := ac.summary(c)
	if err != nil {
		log.Warnf("[Plan] page for company %d failed to load: %v", usercontext.GetCompanyID(c), err)
		return c.Render("account/plan", viewmodel.FailedPlanPage(layout), "layouts/main")
	}
	return c.Render("account/plan", viewmodel.NewPlanPage(layout, s), "layouts/main")
}
