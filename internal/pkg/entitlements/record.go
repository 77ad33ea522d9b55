package entitlements

import (
	"errors"
	"time"
)

// QuotaKey is the limits entry measured against UsedThisPeriod.
const QuotaKey = "quota"

var ErrNotFound = errors.New("entitlement not found")

// Record is a normalized entitlement as delivered by a Source.
type Record struct {
	ID             uint
	CompanyID      uint
	Feature        string
	Enabled        bool
	IsTrial        *bool
	CreatedAt      time.Time
	PaidAt         *time.Time
	EndsAt         *time.Time
	UsedThisPeriod int64
	Limits         map[string]int64
}

// Quota returns the per-window limit, 0 meaning unlimited.
func (r Record) Quota() int64 {
	if r.Limits == nil {
		return 0
	}
	return r.Limits[QuotaKey]
}
