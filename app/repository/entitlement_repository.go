package repository

import (
	"time"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type entitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) EntitlementRepository {
	return &entitlementRepository{db: db}
}

func (r *entitlementRepository) GetByID(id uint) (*models.Entitlement, error) {
	var e models.Entitlement
	if err := r.db.First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *entitlementRepository) GetByCompanyAndFeature(companyID uint, feature string) (*models.Entitlement, error) {
	var e models.Entitlement
	err := r.db.Where("company_id = ? AND feature = ?", companyID, feature).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *entitlementRepository) ListByCompany(companyID uint) ([]models.Entitlement, error) {
	var list []models.Entitlement
	err := r.db.Where("company_id = ?", companyID).Order("feature ASC").Find(&list).Error
	return list, err
}

// ListEndingBetween returns enabled entitlements whose window ends in [from, to].
func (r *entitlementRepository) ListEndingBetween(from, to time.Time) ([]models.Entitlement, error) {
	var list []models.Entitlement
	err := r.db.Where("enabled = ? AND ends_at IS NOT NULL AND ends_at >= ? AND ends_at <= ?", true, from, to).
		Order("ends_at ASC").
		Find(&list).Error
	return list, err
}

// Upsert inserts or replaces the grant for (company_id, feature).
func (r *entitlementRepository) Upsert(e *models.Entitlement) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "company_id"},
			{Name: "feature"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled",
			"is_trial",
			"paid_at",
			"ends_at",
			"used_this_period",
			"limits_json",
			"updated_at",
		}),
	}).Create(e).Error; err != nil {
		return err
	}

	return r.db.Where("company_id = ? AND feature = ?", e.CompanyID, e.Feature).First(e).Error
}

func (r *entitlementRepository) Save(e *models.Entitlement) error {
	return r.db.Save(e).Error
}

func (r *entitlementRepository) MarkNotified(id uint, endsAt time.Time) error {
	return r.db.Model(&models.Entitlement{}).Where("id = ?", id).
		Update("notified_ends_at", endsAt).Error
}
