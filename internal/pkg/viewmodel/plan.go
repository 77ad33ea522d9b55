package viewmodel

import "github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"

// PlanPage backs account/plan.html. LoadFailed replaces the cards with a notice.
type PlanPage struct {
	Layout
	LoadFailed bool
	Summary    entitlements.Summary
	Cards      []entitlements.Card
}

// NewPlanPage fills the page from a summary; the cards keep the summary order.
func NewPlanPage(l Layout, s entitlements.Summary) PlanPage {
	return PlanPage{Layout: l, Summary: s, Cards: s.Entitlements}
}

// FailedPlanPage is the page shown when the plan source is unavailable.
func FailedPlanPage(l Layout) PlanPage {
	return PlanPage{Layout: l, LoadFailed: true}
}

// LoginPage backs login.html.
type LoginPage struct {
	Layout
}
