package planclient

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
)

var validate = validator.New()

// PlanResponse is the upstream GET /api/account/plan body.
type PlanResponse struct {
	Plan         string               `json:"plan" validate:"omitempty,max=50"`
	Seats        SeatsPayload         `json:"seats"`
	Entitlements []EntitlementPayload `json:"entitlements" validate:"dive"`
}

type SeatsPayload struct {
	Purchased int `json:"purchased" validate:"min=0"`
	Used      int `json:"used" validate:"min=0"`
}

type EntitlementPayload struct {
	Feature        string           `json:"feature" validate:"required,max=50"`
	Enabled        bool             `json:"enabled"`
	IsTrial        *bool            `json:"isTrial"`
	CreatedAt      Timestamp        `json:"createdAt"`
	PaidAt         Timestamp        `json:"paidAt"`
	EndsAt         Timestamp        `json:"endsAt"`
	UsedThisPeriod int64            `json:"usedThisPeriod" validate:"min=0"`
	Limits         map[string]int64 `json:"limits"`
}

func (p *PlanResponse) Validate() error {
	return validate.Struct(p)
}

// Record normalizes the payload: a missing createdAt becomes now, missing
// paidAt/endsAt stay nil and are resolved by the anchor rules.
func (e EntitlementPayload) Record(companyID uint, now time.Time) entitlements.Record {
	created := now
	if e.CreatedAt.Valid {
		created = e.CreatedAt.Time
	}
	limits := make(map[string]int64, len(e.Limits))
	for k, v := range e.Limits {
		limits[k] = v
	}
	return entitlements.Record{
		CompanyID:      companyID,
		Feature:        strings.ToLower(strings.TrimSpace(e.Feature)),
		Enabled:        e.Enabled,
		IsTrial:        e.IsTrial,
		CreatedAt:      created,
		PaidAt:         e.PaidAt.Ptr(),
		EndsAt:         e.EndsAt.Ptr(),
		UsedThisPeriod: e.UsedThisPeriod,
		Limits:         limits,
	}
}

// Snapshot converts the payload into the calculator's input. Purchased seats
// beyond the plan's included seats are reported as extra seats.
func (p *PlanResponse) Snapshot(companyID uint, now time.Time) *entitlements.Snapshot {
	plan := entitlements.NormalizePlan(p.Plan)
	extra := p.Seats.Purchased - entitlements.IncludedSeats(plan)
	if extra < 0 {
		extra = 0
	}
	snap := &entitlements.Snapshot{
		Account: entitlements.Account{
			CompanyID:  companyID,
			Plan:       plan,
			ExtraSeats: extra,
		},
		SeatsUsed: p.Seats.Used,
		Records:   make([]entitlements.Record, 0, len(p.Entitlements)),
	}
	for _, e := range p.Entitlements {
		snap.Records = append(snap.Records, e.Record(companyID, now))
	}
	return snap
}
