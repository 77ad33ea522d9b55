package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/planclient"
)

var ErrUnknownCompany = errors.New("billing: webhook does not identify a company")

// WebhookSubscription is the subscription part of a billing webhook.
type WebhookSubscription struct {
	ID                 string               `json:"id" validate:"required"`
	PlanRef            string               `json:"plan_ref" validate:"required"`
	Interval           string               `json:"interval"`
	Status             string               `json:"status" validate:"required"`
	Feature            string               `json:"feature"`
	CurrentPeriodStart planclient.Timestamp `json:"current_period_start"`
	CurrentPeriodEnd   planclient.Timestamp `json:"current_period_end"`
	CancelAtPeriodEnd  bool                 `json:"cancel_at_period_end"`
}

// WebhookEvent is the body posted by the billing provider.
type WebhookEvent struct {
	ID           string               `json:"id"`
	Type         string               `json:"type" validate:"required"`
	Provider     string               `json:"provider"`
	CustomerID   string               `json:"customer_id"`
	CompanyID    uint                 `json:"company_id"`
	Email        string               `json:"email" validate:"omitempty,email"`
	Subscription *WebhookSubscription `json:"subscription"`
}

// ParseWebhookEvent decodes and validates a webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if err := validator.New().Struct(&ev); err != nil {
		return nil, fmt.Errorf("validate webhook: %w", err)
	}
	if ev.Provider == "" {
		ev.Provider = "stripe"
	}
	return &ev, nil
}

// HandleEvent applies a parsed webhook. Events without a subscription only
// link the customer to the company.
func (s *Service) HandleEvent(ctx context.Context, ev *WebhookEvent, rawPayload string) (uint, error) {
	companyID := ev.CompanyID
	if companyID == 0 && ev.CustomerID != "" {
		id, err := s.ResolveCompanyID(ctx, ev.Provider, ev.CustomerID)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnknownCompany, err)
		}
		companyID = id
	}
	if companyID == 0 {
		return 0, ErrUnknownCompany
	}

	if ev.CustomerID != "" {
		if _, err := s.UpsertBillingAccount(ctx, companyID, ev.Provider, ev.CustomerID, ev.Email); err != nil {
			return companyID, err
		}
	}

	if ev.Subscription == nil {
		return companyID, nil
	}
	sub := ev.Subscription
	_, plan, err := s.SyncSubscription(ctx, NormalizedSubscription{
		CompanyID:              companyID,
		Provider:               ev.Provider,
		ProviderSubscriptionID: sub.ID,
		ProviderPlanRef:        sub.PlanRef,
		Feature:                strings.TrimSpace(sub.Feature),
		BillingInterval:        sub.Interval,
		Status:                 sub.Status,
		CurrentPeriodStart:     sub.CurrentPeriodStart.Ptr(),
		CurrentPeriodEnd:       sub.CurrentPeriodEnd.Ptr(),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		RawPayloadJSON:         rawPayload,
	})
	if err != nil {
		return companyID, err
	}
	log.Infof("[Billing] %s applied for company %d (subscription %s, plan %s)", ev.Type, companyID, sub.ID, plan)
	return companyID, nil
}
