package billing

import "time"

// NormalizedSubscription is the provider-agnostic shape used by the billing
// service when syncing external subscription state into local tables.
// An empty Feature means a plan subscription; otherwise it is a feature add-on.
type NormalizedSubscription struct {
	CompanyID              uint
	Provider               string
	ProviderSubscriptionID string
	ProviderPlanRef        string
	Feature                string
	BillingInterval        string
	Status                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	RawPayloadJSON         string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	CompanyID       *uint
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// PlanResolution is the internal meaning of a provider price.
type PlanResolution struct {
	Plan       string
	ExtraSeats int
}
