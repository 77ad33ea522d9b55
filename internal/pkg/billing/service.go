package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
)

// UsageBuffer holds metered usage not yet written to the entitlement row.
type UsageBuffer interface {
	Discard(ctx context.Context, entitlementID uint) (int64, error)
}

// Service provides provider-neutral billing synchronization and reconciliation.
type Service struct {
	repo  Repository
	usage UsageBuffer
	now   func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// WithUsageBuffer lets period resets also drop usage still buffered for
// the old period.
func (s *Service) WithUsageBuffer(u UsageBuffer) *Service {
	s.usage = u
	return s
}

// UpsertBillingAccount links a provider customer to a company.
func (s *Service) UpsertBillingAccount(ctx context.Context, companyID uint, provider, customerID, email string) (*models.BillingAccount, error) {
	_ = ctx
	p := lower(provider)
	cID := strings.TrimSpace(customerID)
	if companyID == 0 || p == "" || cID == "" {
		return nil, errors.New("company_id, provider and provider_customer_id are required")
	}

	account := &models.BillingAccount{
		CompanyID:          companyID,
		Provider:           p,
		ProviderCustomerID: cID,
		Email:              strings.TrimSpace(email),
	}
	if err := s.repo.UpsertBillingAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// ResolveCompanyID finds the company behind a provider customer.
func (s *Service) ResolveCompanyID(ctx context.Context, provider, customerID string) (uint, error) {
	_ = ctx
	p := lower(provider)
	cID := strings.TrimSpace(customerID)
	if p == "" || cID == "" {
		return 0, errors.New("provider and provider_customer_id are required")
	}
	account, err := s.repo.GetBillingAccountByCustomerID(p, cID)
	if err != nil {
		return 0, err
	}
	return account.CompanyID, nil
}

// ResolveMappedPlan resolves a provider price to an internal plan. Unmapped
// prices resolve to free together with gorm.ErrRecordNotFound.
func (s *Service) ResolveMappedPlan(ctx context.Context, provider, providerPlanRef, interval string) (PlanResolution, error) {
	_ = ctx
	free := PlanResolution{Plan: string(entitlements.PlanFree)}
	p := lower(provider)
	ref := strings.TrimSpace(providerPlanRef)
	i := normalizeInterval(interval)
	if p == "" || ref == "" {
		return free, errors.New("provider and provider plan ref are required")
	}

	// Exact interval first, then mappings that deliberately use "unknown".
	for _, candidate := range []string{i, "unknown"} {
		m, err := s.repo.FindActivePlanMapping(p, ref, candidate)
		if err == nil {
			return PlanResolution{Plan: normalizePlan(m.InternalPlan), ExtraSeats: m.ExtraSeats}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return PlanResolution{}, err
		}
	}
	return free, gorm.ErrRecordNotFound
}

// SyncSubscription upserts provider subscription data, reconciles the
// company plan and moves the paid windows of the covered features.
func (s *Service) SyncSubscription(ctx context.Context, in NormalizedSubscription) (*models.BillingSubscription, string, error) {
	provider := lower(in.Provider)
	if in.CompanyID == 0 || provider == "" || strings.TrimSpace(in.ProviderSubscriptionID) == "" {
		return nil, "", errors.New("company_id, provider and provider_subscription_id are required")
	}

	interval := normalizeInterval(in.BillingInterval)
	status := lower(in.Status)
	if status == "" {
		status = models.BillingStatusActive
	}

	res, err := s.ResolveMappedPlan(ctx, provider, in.ProviderPlanRef, interval)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}
	if res.Plan == "" {
		res.Plan = string(entitlements.PlanFree)
	}

	sub := &models.BillingSubscription{
		CompanyID:              in.CompanyID,
		Provider:               provider,
		ProviderSubscriptionID: strings.TrimSpace(in.ProviderSubscriptionID),
		ProviderPlanRef:        strings.TrimSpace(in.ProviderPlanRef),
		InternalPlan:           res.Plan,
		Feature:                lower(in.Feature),
		ExtraSeats:             res.ExtraSeats,
		BillingInterval:        interval,
		Status:                 status,
		CurrentPeriodStart:     in.CurrentPeriodStart,
		CurrentPeriodEnd:       in.CurrentPeriodEnd,
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
		RawPayloadJSON:         in.RawPayloadJSON,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, "", err
	}

	effectivePlan, err := s.ReconcileCompanyPlan(ctx, in.CompanyID)
	if err != nil {
		return sub, "", err
	}

	features := []string{sub.Feature}
	if sub.Feature == "" {
		features = entitlements.DefaultFeatures(entitlements.Plan(sub.InternalPlan))
	}
	for _, feature := range features {
		if err := s.ApplyPaidWindow(ctx, sub, feature); err != nil {
			return sub, effectivePlan, fmt.Errorf("apply window for %s: %w", feature, err)
		}
	}
	return sub, effectivePlan, nil
}

// ReconcileCompanyPlan writes the best plan and the summed seat add-ons of
// all entitling subscriptions onto the company.
func (s *Service) ReconcileCompanyPlan(ctx context.Context, companyID uint) (string, error) {
	_ = ctx
	if companyID == 0 {
		return "", errors.New("company_id is required")
	}

	subs, err := s.repo.ListSubscriptionsByCompany(companyID)
	if err != nil {
		return "", err
	}

	best := string(entitlements.PlanFree)
	extraSeats := 0
	for _, sub := range subs {
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		extraSeats += sub.ExtraSeats
		if sub.Feature != "" {
			continue
		}
		candidate := normalizePlan(sub.InternalPlan)
		if planRank(candidate) > planRank(best) {
			best = candidate
		}
	}

	company, err := s.repo.GetCompany(companyID)
	if err != nil {
		return "", err
	}
	if normalizePlan(company.Plan) == best && company.ExtraSeats == extraSeats {
		return best, nil
	}
	if err := s.repo.UpdateCompanyPlan(companyID, best, extraSeats); err != nil {
		return "", err
	}
	log.Infof("[Billing] company %d plan %s -> %s (extra seats %d)", companyID, company.Plan, best, extraSeats)
	return best, nil
}

// ApplyPaidWindow moves a feature's window to the subscription period.
// Trialing subscriptions extend the trial, paid ones anchor at the period
// start and reset usage when a new period begins. Non-entitling states
// leave the window alone so access runs out at its current end.
func (s *Service) ApplyPaidWindow(ctx context.Context, sub *models.BillingSubscription, feature string) error {
	if feature == "" || !isEntitlingStatus(sub.Status) || sub.CurrentPeriodEnd == nil {
		return nil
	}

	e, err := s.repo.GetEntitlement(sub.CompanyID, feature)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		created := s.now()
		if sub.CurrentPeriodStart != nil {
			created = *sub.CurrentPeriodStart
		}
		e = &models.Entitlement{CompanyID: sub.CompanyID, Feature: feature, CreatedAt: created}
	}

	end := *sub.CurrentPeriodEnd
	e.Enabled = true
	e.EndsAt = &end

	trial := isTrialStatus(sub.Status)
	e.IsTrial = &trial
	if !trial {
		start := s.now()
		if sub.CurrentPeriodStart != nil {
			start = *sub.CurrentPeriodStart
		}
		if e.PaidAt == nil || !e.PaidAt.Equal(start) {
			e.UsedThisPeriod = 0
			if err := s.discardBuffered(ctx, e); err != nil {
				return err
			}
		}
		e.PaidAt = &start
	}

	limits := e.Limits()
	if _, ok := limits[entitlements.QuotaKey]; !ok {
		company, err := s.repo.GetCompany(sub.CompanyID)
		if err != nil {
			return err
		}
		if q := entitlements.DefaultQuota(entitlements.NormalizePlan(company.Plan), feature); q > 0 {
			limits[entitlements.QuotaKey] = q
			if err := e.SetLimits(limits); err != nil {
				return err
			}
		}
	}
	return s.repo.SaveEntitlement(e)
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := lower(in.Provider)
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		CompanyID:       in.CompanyID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// discardBuffered drops old-period usage still waiting in the buffer so a
// later flush cannot add it to the new period.
func (s *Service) discardBuffered(ctx context.Context, e *models.Entitlement) error {
	if s.usage == nil || e.ID == 0 {
		return nil
	}
	n, err := s.usage.Discard(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("discard buffered usage: %w", err)
	}
	if n > 0 {
		log.Infof("[Billing] dropped %d buffered units of %s for company %d at period change", n, e.Feature, e.CompanyID)
	}
	return nil
}
