package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
)

// Company is a dealer account; plans and entitlements hang off it.
type Company struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Plan         string         `gorm:"type:varchar(50);not null;default:'free'" json:"plan" validate:"oneof=free pro business"`
	ExtraSeats   int            `gorm:"not null;default:0" json:"extra_seats" validate:"min=0,max=500"`
	BillingEmail string         `gorm:"type:varchar(200);default:''" json:"billing_email" validate:"omitempty,email,max=200"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Company) Validate() error {
	return validator.New().Struct(c)
}

// Account converts the company into the calculator's account view.
func (c *Company) Account() entitlements.Account {
	return entitlements.Account{
		CompanyID:  c.ID,
		Name:       c.Name,
		Plan:       entitlements.NormalizePlan(c.Plan),
		ExtraSeats: c.ExtraSeats,
	}
}
