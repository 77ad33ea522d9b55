package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/billing"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/jobqueue"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }

// dealerSnapshot is a pro dealer with one live, one expired and one disabled feature.
func dealerSnapshot() *entitlements.Snapshot {
	return &entitlements.Snapshot{
		Account:   entitlements.Account{CompanyID: 3, Name: "Kronos Watches", Plan: entitlements.PlanPro, ExtraSeats: 1},
		SeatsUsed: 2,
		Records: []entitlements.Record{
			{
				ID:             7,
				CompanyID:      3,
				Feature:        "whatsapp_queries",
				Enabled:        true,
				IsTrial:        boolPtr(false),
				CreatedAt:      testNow.AddDate(0, 0, -60),
				PaidAt:         timePtr(testNow.AddDate(0, 0, -10)),
				EndsAt:         timePtr(testNow.AddDate(0, 0, 20)),
				UsedThisPeriod: 40,
				Limits:         map[string]int64{entitlements.QuotaKey: 50},
			},
			{
				ID:        8,
				CompanyID: 3,
				Feature:   "featured_listing",
				Enabled:   true,
				IsTrial:   boolPtr(false),
				CreatedAt: testNow.AddDate(0, 0, -60),
				PaidAt:    timePtr(testNow.AddDate(0, 0, -40)),
				EndsAt:    timePtr(testNow.AddDate(0, 0, -10)),
			},
			{
				ID:        9,
				CompanyID: 3,
				Feature:   "price_alerts",
				Enabled:   false,
				IsTrial:   boolPtr(false),
				CreatedAt: testNow.AddDate(0, 0, -1),
				PaidAt:    timePtr(testNow.AddDate(0, 0, -1)),
				EndsAt:    timePtr(testNow.AddDate(0, 0, 29)),
			},
		},
	}
}

type fakeSource struct {
	snap *entitlements.Snapshot
	err  error
	seen []entitlements.Principal
}

func (f *fakeSource) Load(_ context.Context, p entitlements.Principal) (*entitlements.Snapshot, error) {
	f.seen = append(f.seen, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type usageAdd struct {
	entitlementID uint
	amount        int64
}

type fakeUsage struct {
	adds []usageAdd
	err  error
}

func (f *fakeUsage) Add(_ context.Context, entitlementID uint, amount int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.adds = append(f.adds, usageAdd{entitlementID: entitlementID, amount: amount})
	return amount, nil
}

type fakeCompanies struct {
	byID map[uint]*models.Company
}

func (f *fakeCompanies) Create(*models.Company) error       { return nil }
func (f *fakeCompanies) Update(*models.Company) error       { return nil }
func (f *fakeCompanies) UpdatePlan(uint, string, int) error { return nil }
func (f *fakeCompanies) GetByID(id uint) (*models.Company, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeEntitlements struct {
	rows   map[string]*models.Entitlement
	nextID uint
	saved  []models.Entitlement
}

func newFakeEntitlements(rows ...*models.Entitlement) *fakeEntitlements {
	f := &fakeEntitlements{rows: map[string]*models.Entitlement{}, nextID: 100}
	for _, e := range rows {
		f.rows[entitlementKey(e.CompanyID, e.Feature)] = e
	}
	return f
}

func entitlementKey(companyID uint, feature string) string {
	return fmt.Sprintf("%d/%s", companyID, feature)
}

func (f *fakeEntitlements) GetByID(uint) (*models.Entitlement, error)                      { return nil, gorm.ErrRecordNotFound }
func (f *fakeEntitlements) ListByCompany(uint) ([]models.Entitlement, error)               { return nil, nil }
func (f *fakeEntitlements) ListEndingBetween(_, _ time.Time) ([]models.Entitlement, error) { return nil, nil }
func (f *fakeEntitlements) Upsert(e *models.Entitlement) error                             { return f.Save(e) }
func (f *fakeEntitlements) MarkNotified(uint, time.Time) error                             { return nil }

func (f *fakeEntitlements) GetByCompanyAndFeature(companyID uint, feature string) (*models.Entitlement, error) {
	if e, ok := f.rows[entitlementKey(companyID, feature)]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEntitlements) Save(e *models.Entitlement) error {
	if e.ID == 0 {
		f.nextID++
		e.ID = f.nextID
	}
	cp := *e
	f.rows[entitlementKey(e.CompanyID, e.Feature)] = &cp
	f.saved = append(f.saved, cp)
	return nil
}

type fakeFlusher struct {
	job *jobqueue.Job
	err error
}

func (f *fakeFlusher) EnqueueUsageFlush(context.Context) (*jobqueue.Job, error) {
	return f.job, f.err
}

type fakeBilling struct {
	created      bool
	stored       *models.BillingWebhookEvent
	recordErr    error
	handleErr    error
	reconcile    string
	reconcileErr error

	recorded  []billing.WebhookEventInput
	handled   []*billing.WebhookEvent
	processed []error
}

func (f *fakeBilling) RecordWebhookEvent(_ context.Context, in billing.WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	f.recorded = append(f.recorded, in)
	if f.recordErr != nil {
		return false, nil, f.recordErr
	}
	stored := f.stored
	if stored == nil {
		stored = &models.BillingWebhookEvent{ID: 1, Provider: in.Provider, ProviderEventID: in.ProviderEventID}
	}
	return f.created, stored, nil
}

func (f *fakeBilling) HandleEvent(_ context.Context, ev *billing.WebhookEvent, _ string) (uint, error) {
	f.handled = append(f.handled, ev)
	return ev.CompanyID, f.handleErr
}

func (f *fakeBilling) MarkWebhookProcessed(_ context.Context, _ uint, processingErr error) error {
	f.processed = append(f.processed, processingErr)
	return nil
}

func (f *fakeBilling) ReconcileCompanyPlan(context.Context, uint) (string, error) {
	return f.reconcile, f.reconcileErr
}

// asMember puts a logged-in dealer into the request context.
func asMember(u usercontext.UserContext) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u.IsLoggedIn = true
		usercontext.Set(c, u)
		return c.Next()
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
