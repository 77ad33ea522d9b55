package models

import "time"

const BillingProviderDefault = "stripe"

// BillingAccount links a provider customer to a company.
type BillingAccount struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CompanyID          uint      `gorm:"not null;index:ux_billing_accounts_company_provider,unique" json:"company_id"`
	Provider           string    `gorm:"type:varchar(20);not null;index:ux_billing_accounts_company_provider,unique;index:ux_billing_accounts_provider_customer,unique,priority:1" json:"provider"`
	ProviderCustomerID string    `gorm:"type:varchar(191);not null;index:ux_billing_accounts_provider_customer,unique,priority:2" json:"provider_customer_id"`
	Email              string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
