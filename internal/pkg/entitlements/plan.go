package entitlements

import "strings"

type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// Feature keys known to the marketplace admin.
const (
	FeatureInventory       = "inventory"
	FeatureWhatsAppQueries = "whatsapp_queries"
	FeatureCRM             = "crm"
	FeatureInvoicing       = "invoicing"
)

// IncludedSeats returns how many team member seats a plan ships with.
func IncludedSeats(plan Plan) int {
	switch plan {
	case PlanBusiness:
		return 10
	case PlanPro:
		return 3
	default:
		return 1
	}
}

// DefaultFeatures returns the features granted when a company moves onto a plan.
func DefaultFeatures(plan Plan) []string {
	switch plan {
	case PlanBusiness:
		return []string{FeatureCRM, FeatureInventory, FeatureInvoicing, FeatureWhatsAppQueries}
	case PlanPro:
		return []string{FeatureCRM, FeatureInventory, FeatureWhatsAppQueries}
	default:
		return []string{FeatureInventory}
	}
}

// DefaultQuota is the per-window quota for a metered feature, 0 for unlimited.
func DefaultQuota(plan Plan, feature string) int64 {
	if feature != FeatureWhatsAppQueries {
		return 0
	}
	switch plan {
	case PlanBusiness:
		return 5000
	case PlanPro:
		return 500
	default:
		return 50
	}
}

// NormalizePlan maps free-form plan names onto a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPro):
		return PlanPro
	case string(PlanBusiness):
		return PlanBusiness
	default:
		return PlanFree
	}
}

func PlanRank(plan Plan) int {
	switch NormalizePlan(string(plan)) {
	case PlanBusiness:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// Seats describes purchased versus used team member slots.
type Seats struct {
	Included  int  `json:"included"`
	Extra     int  `json:"extra"`
	Purchased int  `json:"purchased"`
	Used      int  `json:"used"`
	Available int  `json:"available"`
	OverLimit bool `json:"over_limit"`
}

func SeatsFor(plan Plan, extra, used int) Seats {
	if extra < 0 {
		extra = 0
	}
	if used < 0 {
		used = 0
	}
	s := Seats{
		Included: IncludedSeats(plan),
		Extra:    extra,
		Used:     used,
	}
	s.Purchased = s.Included + s.Extra
	if s.Purchased > used {
		s.Available = s.Purchased - used
	}
	s.OverLimit = used > s.Purchased
	return s
}
