package entitlements

import (
	"sort"
	"time"
)

// Card is everything a dashboard needs to render one entitlement.
type Card struct {
	Feature     string           `json:"feature"`
	Enabled     bool             `json:"enabled"`
	InTrial     bool             `json:"in_trial"`
	Anchor      AnchorSource     `json:"anchor"`
	Start       time.Time        `json:"start"`
	End         time.Time        `json:"end"`
	TotalMs     int64            `json:"total_ms"`
	ElapsedMs   int64            `json:"elapsed_ms"`
	RemainingMs int64            `json:"remaining_ms"`
	Percent     int              `json:"percent"`
	DaysLeft    int              `json:"days_left"`
	Expired     bool             `json:"expired"`
	Tier        Tier             `json:"tier"`
	Status      string           `json:"status"`
	Usage       []Meter          `json:"usage"`
	Limits      map[string]int64 `json:"limits"`
}

func BuildCard(rec Record, now time.Time) Card {
	a := ResolveAnchor(rec, now)
	w := Compute(a.Start, a.End, now)

	c := Card{
		Feature:     rec.Feature,
		Enabled:     rec.Enabled,
		InTrial:     a.InTrial,
		Anchor:      a.Source,
		Start:       a.Start,
		End:         a.End,
		TotalMs:     w.TotalMs(),
		ElapsedMs:   w.ElapsedMs(),
		RemainingMs: w.RemainingMs(),
		Percent:     w.Percent,
		DaysLeft:    w.DaysLeft,
		Expired:     w.Expired,
		Tier:        TierFor(w),
		Status:      StatusLabel(w),
		Usage:       []Meter{},
		Limits:      map[string]int64{},
	}
	for k, v := range rec.Limits {
		c.Limits[k] = v
	}
	if _, ok := rec.Limits[QuotaKey]; ok || rec.UsedThisPeriod > 0 {
		c.Usage = append(c.Usage, MeterFor(QuotaKey, rec.UsedThisPeriod, rec.Quota()))
	}
	return c
}

// Active reports whether the feature may be used right now.
func (c Card) Active() bool {
	return c.Enabled && !c.Expired
}

// QuotaMeter returns the meter for the per-window quota, unlimited when absent.
func (c Card) QuotaMeter() Meter {
	for _, m := range c.Usage {
		if m.Key == QuotaKey {
			return m
		}
	}
	return MeterFor(QuotaKey, 0, 0)
}

// Account is the company-level context of a plan summary.
type Account struct {
	CompanyID  uint
	Name       string
	Plan       Plan
	ExtraSeats int
}

type Summary struct {
	CompanyID    uint      `json:"company_id"`
	Plan         Plan      `json:"plan"`
	Seats        Seats     `json:"seats"`
	Entitlements []Card    `json:"entitlements"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// BuildSummary evaluates every record at the same instant.
func BuildSummary(acct Account, seatsUsed int, records []Record, now time.Time) Summary {
	s := Summary{
		CompanyID:    acct.CompanyID,
		Plan:         NormalizePlan(string(acct.Plan)),
		Entitlements: make([]Card, 0, len(records)),
		GeneratedAt:  now,
	}
	s.Seats = SeatsFor(s.Plan, acct.ExtraSeats, seatsUsed)
	for _, rec := range records {
		s.Entitlements = append(s.Entitlements, BuildCard(rec, now))
	}
	sort.Slice(s.Entitlements, func(i, j int) bool {
		return s.Entitlements[i].Feature < s.Entitlements[j].Feature
	})
	return s
}

// Card looks up a feature in the summary.
func (s Summary) Card(feature string) (Card, bool) {
	for _, c := range s.Entitlements {
		if c.Feature == feature {
			return c, true
		}
	}
	return Card{}, false
}
