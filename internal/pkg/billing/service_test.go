package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
)

type fakeRepo struct {
	mappings     map[string]models.BillingPlanMapping
	accounts     map[string]models.BillingAccount
	subs         map[string]models.BillingSubscription
	companies    map[uint]*models.Company
	entitlements map[string]*models.Entitlement
	events       map[string]*models.BillingWebhookEvent
	processed    map[uint]string
	nextID       uint
	planUpdates  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		mappings:     map[string]models.BillingPlanMapping{},
		accounts:     map[string]models.BillingAccount{},
		subs:         map[string]models.BillingSubscription{},
		companies:    map[uint]*models.Company{},
		entitlements: map[string]*models.Entitlement{},
		events:       map[string]*models.BillingWebhookEvent{},
		processed:    map[uint]string{},
	}
}

func (f *fakeRepo) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) FindActivePlanMapping(provider, ref, interval string) (*models.BillingPlanMapping, error) {
	m, ok := f.mappings[provider+"|"+ref+"|"+interval]
	if !ok || !m.IsActive {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func (f *fakeRepo) UpsertBillingAccount(a *models.BillingAccount) error {
	key := a.Provider + "|" + a.ProviderCustomerID
	if existing, ok := f.accounts[key]; ok {
		a.ID = existing.ID
	} else {
		a.ID = f.id()
	}
	f.accounts[key] = *a
	return nil
}

func (f *fakeRepo) GetBillingAccountByCustomerID(provider, customerID string) (*models.BillingAccount, error) {
	a, ok := f.accounts[provider+"|"+customerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (f *fakeRepo) UpsertSubscription(s *models.BillingSubscription) error {
	key := s.Provider + "|" + s.ProviderSubscriptionID
	if existing, ok := f.subs[key]; ok {
		s.ID = existing.ID
	} else {
		s.ID = f.id()
	}
	f.subs[key] = *s
	return nil
}

func (f *fakeRepo) ListSubscriptionsByCompany(companyID uint) ([]models.BillingSubscription, error) {
	var out []models.BillingSubscription
	for _, s := range f.subs {
		if s.CompanyID == companyID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetCompany(companyID uint) (*models.Company, error) {
	c, ok := f.companies[companyID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) UpdateCompanyPlan(companyID uint, plan string, extraSeats int) error {
	f.planUpdates++
	f.companies[companyID].Plan = plan
	f.companies[companyID].ExtraSeats = extraSeats
	return nil
}

func (f *fakeRepo) GetEntitlement(companyID uint, feature string) (*models.Entitlement, error) {
	for _, e := range f.entitlements {
		if e.CompanyID == companyID && e.Feature == feature {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) SaveEntitlement(e *models.Entitlement) error {
	if e.ID == 0 {
		e.ID = f.id()
	}
	cp := *e
	f.entitlements[e.Feature] = &cp
	return nil
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(ev *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := ev.Provider + "|" + ev.ProviderEventID
	if existing, ok := f.events[key]; ok {
		return false, existing, nil
	}
	ev.ID = f.id()
	f.events[key] = ev
	return true, ev, nil
}

func (f *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	f.processed[id] = processingError
	return nil
}

var (
	periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	repo.companies[7] = &models.Company{ID: 7, Name: "Uhrenhaus", Plan: "free"}
	repo.mappings["stripe|price_pro_m|month"] = models.BillingPlanMapping{
		Provider: "stripe", ProviderPlanRef: "price_pro_m", InternalPlan: "pro", BillingInterval: "month", IsActive: true,
	}
	repo.mappings["stripe|price_seats|unknown"] = models.BillingPlanMapping{
		Provider: "stripe", ProviderPlanRef: "price_seats", InternalPlan: "free", BillingInterval: "unknown", ExtraSeats: 2, IsActive: true,
	}
	svc := NewService(repo)
	svc.now = func() time.Time { return periodStart.Add(time.Hour) }
	return svc, repo
}

func proSubscription(status string) NormalizedSubscription {
	start, end := periodStart, periodEnd
	return NormalizedSubscription{
		CompanyID:              7,
		Provider:               "Stripe",
		ProviderSubscriptionID: "sub_1",
		ProviderPlanRef:        "price_pro_m",
		BillingInterval:        "month",
		Status:                 status,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
	}
}

func TestResolveMappedPlan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.ResolveMappedPlan(ctx, "stripe", "price_pro_m", "month")
	require.NoError(t, err)
	assert.Equal(t, "pro", res.Plan)

	res, err = svc.ResolveMappedPlan(ctx, "stripe", "price_seats", "year")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExtraSeats)

	res, err = svc.ResolveMappedPlan(ctx, "stripe", "price_missing", "month")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, "free", res.Plan)

	_, err = svc.ResolveMappedPlan(ctx, "", "price_pro_m", "month")
	assert.Error(t, err)
}

func TestSyncSubscriptionUpgradesPlanAndOpensPaidWindows(t *testing.T) {
	svc, repo := newTestService(t)

	sub, plan, err := svc.SyncSubscription(context.Background(), proSubscription("active"))
	require.NoError(t, err)
	assert.Equal(t, "stripe", sub.Provider)
	assert.Equal(t, "pro", sub.InternalPlan)
	assert.Equal(t, "pro", plan)
	assert.Equal(t, "pro", repo.companies[7].Plan)

	for _, feature := range entitlements.DefaultFeatures(entitlements.PlanPro) {
		e, ok := repo.entitlements[feature]
		require.True(t, ok, feature)
		assert.True(t, e.Enabled)
		require.NotNil(t, e.PaidAt)
		assert.True(t, e.PaidAt.Equal(periodStart))
		require.NotNil(t, e.EndsAt)
		assert.True(t, e.EndsAt.Equal(periodEnd))
		require.NotNil(t, e.IsTrial)
		assert.False(t, *e.IsTrial)
	}
	assert.Equal(t, int64(500), repo.entitlements[entitlements.FeatureWhatsAppQueries].Limits()[entitlements.QuotaKey])
}

func TestSyncSubscriptionResetsUsageOnNewPeriodOnly(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.SyncSubscription(ctx, proSubscription("active"))
	require.NoError(t, err)
	repo.entitlements[entitlements.FeatureWhatsAppQueries].UsedThisPeriod = 120

	// Same period redelivered.
	_, _, err = svc.SyncSubscription(ctx, proSubscription("active"))
	require.NoError(t, err)
	assert.Equal(t, int64(120), repo.entitlements[entitlements.FeatureWhatsAppQueries].UsedThisPeriod)

	next := proSubscription("active")
	nextStart, nextEnd := periodEnd, periodEnd.AddDate(0, 1, 0)
	next.CurrentPeriodStart, next.CurrentPeriodEnd = &nextStart, &nextEnd
	_, _, err = svc.SyncSubscription(ctx, next)
	require.NoError(t, err)
	e := repo.entitlements[entitlements.FeatureWhatsAppQueries]
	assert.Equal(t, int64(0), e.UsedThisPeriod)
	assert.True(t, e.PaidAt.Equal(nextStart))
}

type fakeBuffer struct {
	pending   map[uint]int64
	discarded []uint
}

func (f *fakeBuffer) Discard(ctx context.Context, id uint) (int64, error) {
	f.discarded = append(f.discarded, id)
	n := f.pending[id]
	delete(f.pending, id)
	return n, nil
}

func TestSyncSubscriptionDropsBufferedUsageOfOldPeriod(t *testing.T) {
	svc, repo := newTestService(t)
	buf := &fakeBuffer{pending: map[uint]int64{}}
	svc.WithUsageBuffer(buf)
	ctx := context.Background()

	// First sync creates the rows; nothing is buffered for them yet.
	_, _, err := svc.SyncSubscription(ctx, proSubscription("active"))
	require.NoError(t, err)
	assert.Empty(t, buf.discarded)

	queries := repo.entitlements[entitlements.FeatureWhatsAppQueries]
	buf.pending[queries.ID] = 30

	// Redelivery of the same period keeps buffered usage.
	_, _, err = svc.SyncSubscription(ctx, proSubscription("active"))
	require.NoError(t, err)
	assert.Empty(t, buf.discarded)
	assert.Equal(t, int64(30), buf.pending[queries.ID])

	next := proSubscription("active")
	nextStart, nextEnd := periodEnd, periodEnd.AddDate(0, 1, 0)
	next.CurrentPeriodStart, next.CurrentPeriodEnd = &nextStart, &nextEnd
	_, _, err = svc.SyncSubscription(ctx, next)
	require.NoError(t, err)

	assert.Contains(t, buf.discarded, queries.ID)
	assert.NotContains(t, buf.pending, queries.ID)
	assert.Equal(t, int64(0), repo.entitlements[entitlements.FeatureWhatsAppQueries].UsedThisPeriod)
}

func TestSyncSubscriptionTrialingKeepsTrialAnchor(t *testing.T) {
	svc, repo := newTestService(t)

	_, _, err := svc.SyncSubscription(context.Background(), proSubscription("trialing"))
	require.NoError(t, err)

	e := repo.entitlements[entitlements.FeatureCRM]
	require.NotNil(t, e.IsTrial)
	assert.True(t, *e.IsTrial)
	assert.Nil(t, e.PaidAt)
	assert.True(t, e.EndsAt.Equal(periodEnd))
	assert.True(t, e.CreatedAt.Equal(periodStart))
}

func TestSyncSubscriptionCanceledDowngradesWithoutTouchingWindows(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.SyncSubscription(ctx, proSubscription("active"))
	require.NoError(t, err)

	_, plan, err := svc.SyncSubscription(ctx, proSubscription("canceled"))
	require.NoError(t, err)
	assert.Equal(t, "free", plan)
	assert.Equal(t, "free", repo.companies[7].Plan)

	e := repo.entitlements[entitlements.FeatureCRM]
	assert.True(t, e.Enabled)
	assert.True(t, e.EndsAt.Equal(periodEnd))
}

func TestSyncSubscriptionFeatureAddOn(t *testing.T) {
	svc, repo := newTestService(t)
	in := proSubscription("active")
	in.ProviderSubscriptionID = "sub_addon"
	in.ProviderPlanRef = "price_seats"
	in.BillingInterval = ""
	in.Feature = "Invoicing"

	_, plan, err := svc.SyncSubscription(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "free", plan)
	assert.Equal(t, 2, repo.companies[7].ExtraSeats)

	require.Contains(t, repo.entitlements, entitlements.FeatureInvoicing)
	assert.NotContains(t, repo.entitlements, entitlements.FeatureCRM)
}

func TestSyncSubscriptionRequiresIdentifiers(t *testing.T) {
	svc, _ := newTestService(t)
	in := proSubscription("active")
	in.CompanyID = 0
	_, _, err := svc.SyncSubscription(context.Background(), in)
	assert.Error(t, err)
}

func TestReconcileCompanyPlanSkipsUnchanged(t *testing.T) {
	svc, repo := newTestService(t)

	plan, err := svc.ReconcileCompanyPlan(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "free", plan)
	assert.Equal(t, 0, repo.planUpdates)
}

func TestRecordWebhookEventIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	in := WebhookEventInput{Provider: "stripe", EventType: "subscription.updated", PayloadJSON: `{"a":1}`, SignatureValid: true}

	created, ev, err := svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, ev.ProviderEventID, "hash:")

	created, again, err := svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ev.ID, again.ID)

	require.NoError(t, svc.MarkWebhookProcessed(ctx, ev.ID, nil))
	assert.Equal(t, "", repo.processed[ev.ID])
	assert.Error(t, svc.MarkWebhookProcessed(ctx, 0, nil))
}

func TestHandleEventResolvesCompanyByCustomer(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertBillingAccount(ctx, 7, "stripe", "cus_1", "billing@uhrenhaus.example")
	require.NoError(t, err)

	ev, err := ParseWebhookEvent([]byte(`{
		"id": "evt_1",
		"type": "subscription.updated",
		"customer_id": "cus_1",
		"subscription": {
			"id": "sub_1",
			"plan_ref": "price_pro_m",
			"interval": "month",
			"status": "active",
			"current_period_start": "2026-03-01T00:00:00Z",
			"current_period_end": 1775001600
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "stripe", ev.Provider)

	companyID, err := svc.HandleEvent(ctx, ev, "{}")
	require.NoError(t, err)
	assert.Equal(t, uint(7), companyID)
	assert.Equal(t, "pro", repo.companies[7].Plan)
	assert.True(t, repo.entitlements[entitlements.FeatureInventory].EndsAt.Equal(periodEnd))
}

func TestHandleEventUnknownCompany(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.HandleEvent(context.Background(), &WebhookEvent{Type: "x", Provider: "stripe", CustomerID: "cus_404"}, "{}")
	assert.ErrorIs(t, err, ErrUnknownCompany)

	_, err = svc.HandleEvent(context.Background(), &WebhookEvent{Type: "x", Provider: "stripe"}, "{}")
	assert.ErrorIs(t, err, ErrUnknownCompany)
}

func TestParseWebhookEventRejectsInvalid(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseWebhookEvent([]byte(`{"type":"x","subscription":{"id":"s"}}`))
	assert.Error(t, err)
}
