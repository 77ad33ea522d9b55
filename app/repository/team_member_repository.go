package repository

import (
	"strings"
	"time"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"gorm.io/gorm"
)

type teamMemberRepository struct {
	db *gorm.DB
}

func NewTeamMemberRepository(db *gorm.DB) TeamMemberRepository {
	return &teamMemberRepository{db: db}
}

func (r *teamMemberRepository) Create(member *models.TeamMember) error {
	return r.db.Create(member).Error
}

func (r *teamMemberRepository) GetByID(id uint) (*models.TeamMember, error) {
	var member models.TeamMember
	if err := r.db.First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *teamMemberRepository) GetByEmail(email string) (*models.TeamMember, error) {
	var member models.TeamMember
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetByAPIKeyHash resolves an active (not revoked) API key hash to its member.
func (r *teamMemberRepository) GetByAPIKeyHash(hash string) (*models.TeamMember, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var member models.TeamMember
	err := r.db.Where("api_key_hash = ? AND api_key_revoked_at IS NULL", trimmed).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *teamMemberRepository) GetOwner(companyID uint) (*models.TeamMember, error) {
	var member models.TeamMember
	err := r.db.Where("company_id = ? AND role = ?", companyID, models.ROLE_OWNER).
		Order("id ASC").
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// CountActiveByCompany counts occupied seats.
func (r *teamMemberRepository) CountActiveByCompany(companyID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.TeamMember{}).
		Where("company_id = ? AND status = ?", companyID, models.STATUS_ACTIVE).
		Count(&count).Error
	return count, err
}

func (r *teamMemberRepository) TouchLogin(id uint, at time.Time) error {
	return r.db.Model(&models.TeamMember{}).Where("id = ?", id).
		Update("last_login_at", at).Error
}

func (r *teamMemberRepository) TouchAPIKey(id uint, at time.Time) error {
	return r.db.Model(&models.TeamMember{}).Where("id = ?", id).
		Update("api_key_last_used_at", at).Error
}
