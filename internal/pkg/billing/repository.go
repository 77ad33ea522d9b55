package billing

import (
	"time"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the storage the billing service needs. Rows coming from the
// provider are keyed by (provider, provider id) and always upserted.
type Repository interface {
	FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error)
	UpsertBillingAccount(account *models.BillingAccount) error
	GetBillingAccountByCustomerID(provider, customerID string) (*models.BillingAccount, error)
	UpsertSubscription(sub *models.BillingSubscription) error
	ListSubscriptionsByCompany(companyID uint) ([]models.BillingSubscription, error)
	GetCompany(companyID uint) (*models.Company, error)
	UpdateCompanyPlan(companyID uint, plan string, extraSeats int) error
	GetEntitlement(companyID uint, feature string) (*models.Entitlement, error)
	SaveEntitlement(e *models.Entitlement) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// first loads a single row matching query, or returns gorm.ErrRecordNotFound.
func first[T any](db *gorm.DB, query string, args ...interface{}) (*T, error) {
	var row T
	if err := db.Where(query, args...).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// upsertBy inserts row or, on a conflict over keys, overwrites the listed
// columns. The row is re-read afterwards because MySQL does not report the
// ID of an updated row.
func upsertBy(db *gorm.DB, row interface{}, keys []string, update []string, reload string, args ...interface{}) error {
	cols := make([]clause.Column, len(keys))
	for i, k := range keys {
		cols[i] = clause.Column{Name: k}
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(row).Error
	if err != nil {
		return err
	}
	return db.Where(reload, args...).First(row).Error
}

func (r *gormRepository) FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error) {
	return first[models.BillingPlanMapping](r.db,
		"provider = ? AND provider_plan_ref = ? AND billing_interval = ? AND is_active = ?",
		provider, providerPlanRef, interval, true)
}

func (r *gormRepository) UpsertBillingAccount(account *models.BillingAccount) error {
	return upsertBy(r.db, account,
		[]string{"provider", "provider_customer_id"},
		[]string{"company_id", "email", "updated_at"},
		"provider = ? AND provider_customer_id = ?", account.Provider, account.ProviderCustomerID)
}

func (r *gormRepository) GetBillingAccountByCustomerID(provider, customerID string) (*models.BillingAccount, error) {
	return first[models.BillingAccount](r.db, "provider = ? AND provider_customer_id = ?", provider, customerID)
}

var subscriptionColumns = []string{
	"company_id", "provider_plan_ref", "internal_plan", "feature", "extra_seats",
	"billing_interval", "status", "current_period_start", "current_period_end",
	"cancel_at_period_end", "raw_payload_json", "updated_at",
}

func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	return upsertBy(r.db, sub,
		[]string{"provider", "provider_subscription_id"},
		subscriptionColumns,
		"provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID)
}

func (r *gormRepository) ListSubscriptionsByCompany(companyID uint) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("company_id = ?", companyID).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) GetCompany(companyID uint) (*models.Company, error) {
	return first[models.Company](r.db, "id = ?", companyID)
}

func (r *gormRepository) UpdateCompanyPlan(companyID uint, plan string, extraSeats int) error {
	return r.db.Model(&models.Company{}).Where("id = ?", companyID).
		Updates(map[string]interface{}{"plan": plan, "extra_seats": extraSeats}).Error
}

func (r *gormRepository) GetEntitlement(companyID uint, feature string) (*models.Entitlement, error) {
	return first[models.Entitlement](r.db, "company_id = ? AND feature = ?", companyID, feature)
}

func (r *gormRepository) SaveEntitlement(e *models.Entitlement) error {
	return r.db.Save(e).Error
}

// CreateWebhookEventIfNotExists reports created=false when the provider
// already delivered this event; stored is the existing row in that case.
func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, nil, res.Error
	}
	stored, err := first[models.BillingWebhookEvent](r.db,
		"provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID)
	if err != nil {
		return false, nil, err
	}
	return res.RowsAffected > 0, stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     time.Now(),
			"processing_error": processingError,
		}).Error
}
