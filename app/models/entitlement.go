package models

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
)

// Entitlement is a company's grant for one feature. CreatedAt is the grant
// (trial) start and is set explicitly rather than by gorm.
type Entitlement struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CompanyID      uint       `gorm:"not null;index:ux_entitlements_company_feature,unique,priority:1" json:"company_id" validate:"required"`
	Feature        string     `gorm:"type:varchar(50);not null;index:ux_entitlements_company_feature,unique,priority:2" json:"feature" validate:"required,max=50"`
	Enabled        bool       `gorm:"not null;default:true" json:"enabled"`
	IsTrial        *bool      `gorm:"default:null" json:"is_trial"`
	CreatedAt      time.Time  `gorm:"type:timestamp;not null" json:"created_at"`
	PaidAt         *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	EndsAt         *time.Time `gorm:"type:timestamp;default:null;index" json:"ends_at,omitempty"`
	UsedThisPeriod int64      `gorm:"not null;default:0" json:"used_this_period" validate:"min=0"`
	LimitsJSON     string     `gorm:"type:text" json:"-"`
	NotifiedEndsAt *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *Entitlement) Validate() error {
	return validator.New().Struct(e)
}

// Limits decodes LimitsJSON; malformed JSON yields no limits.
func (e *Entitlement) Limits() map[string]int64 {
	limits := map[string]int64{}
	if e.LimitsJSON == "" {
		return limits
	}
	if err := json.Unmarshal([]byte(e.LimitsJSON), &limits); err != nil {
		return map[string]int64{}
	}
	return limits
}

func (e *Entitlement) SetLimits(limits map[string]int64) error {
	if len(limits) == 0 {
		e.LimitsJSON = ""
		return nil
	}
	b, err := json.Marshal(limits)
	if err != nil {
		return err
	}
	e.LimitsJSON = string(b)
	return nil
}

// NeedsExpiryNotice reports whether no notice went out for the current end yet.
func (e *Entitlement) NeedsExpiryNotice() bool {
	if e.EndsAt == nil {
		return false
	}
	return e.NotifiedEndsAt == nil || !e.NotifiedEndsAt.Equal(*e.EndsAt)
}

func (e *Entitlement) ToRecord() entitlements.Record {
	return entitlements.Record{
		ID:             e.ID,
		CompanyID:      e.CompanyID,
		Feature:        e.Feature,
		Enabled:        e.Enabled,
		IsTrial:        e.IsTrial,
		CreatedAt:      e.CreatedAt,
		PaidAt:         e.PaidAt,
		EndsAt:         e.EndsAt,
		UsedThisPeriod: e.UsedThisPeriod,
		Limits:         e.Limits(),
	}
}
