package repository

import (
	"github.com/ManuelReschke/DealerDesk/app/models"
	"gorm.io/gorm"
)

type companyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) Create(company *models.Company) error {
	return r.db.Create(company).Error
}

func (r *companyRepository) GetByID(id uint) (*models.Company, error) {
	var company models.Company
	if err := r.db.First(&company, id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepository) Update(company *models.Company) error {
	return r.db.Save(company).Error
}

// UpdatePlan writes plan and seat add-ons without touching other columns.
func (r *companyRepository) UpdatePlan(id uint, plan string, extraSeats int) error {
	return r.db.Model(&models.Company{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"plan": plan, "extra_seats": extraSeats}).Error
}
