package billing

import (
	"strings"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
)

func normalizePlan(plan string) string {
	return string(entitlements.NormalizePlan(plan))
}

func planRank(plan string) int {
	return entitlements.PlanRank(entitlements.Plan(plan))
}

// lower trims provider-supplied identifiers and folds their case.
func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeInterval(interval string) string {
	i := lower(interval)
	switch i {
	case "month", "year":
		return i
	default:
		return "unknown"
	}
}

func isEntitlingStatus(status string) bool {
	switch lower(status) {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}

func isTrialStatus(status string) bool {
	return lower(status) == "trialing"
}
