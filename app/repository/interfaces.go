package repository

import (
	"time"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"gorm.io/gorm"
)

// CompanyRepository defines the interface for company-related database operations
type CompanyRepository interface {
	Create(company *models.Company) error
	GetByID(id uint) (*models.Company, error)
	Update(company *models.Company) error
	UpdatePlan(id uint, plan string, extraSeats int) error
}

// TeamMemberRepository defines the interface for seat holder operations
type TeamMemberRepository interface {
	Create(member *models.TeamMember) error
	GetByID(id uint) (*models.TeamMember, error)
	GetByEmail(email string) (*models.TeamMember, error)
	GetByAPIKeyHash(hash string) (*models.TeamMember, error)
	GetOwner(companyID uint) (*models.TeamMember, error)
	CountActiveByCompany(companyID uint) (int64, error)
	TouchLogin(id uint, at time.Time) error
	TouchAPIKey(id uint, at time.Time) error
}

// EntitlementRepository defines the interface for entitlement operations
type EntitlementRepository interface {
	GetByID(id uint) (*models.Entitlement, error)
	GetByCompanyAndFeature(companyID uint, feature string) (*models.Entitlement, error)
	ListByCompany(companyID uint) ([]models.Entitlement, error)
	ListEndingBetween(from, to time.Time) ([]models.Entitlement, error)
	Upsert(e *models.Entitlement) error
	Save(e *models.Entitlement) error
	MarkNotified(id uint, endsAt time.Time) error
}

// Repositories holds all repository instances
type Repositories struct {
	Company     CompanyRepository
	TeamMember  TeamMemberRepository
	Entitlement EntitlementRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Company:     NewCompanyRepository(db),
		TeamMember:  NewTeamMemberRepository(db),
		Entitlement: NewEntitlementRepository(db),
	}
}
