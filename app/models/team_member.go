package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_OWNER      = "owner"
	ROLE_ADMIN      = "admin"
	ROLE_MEMBER     = "member"
	ROLE_STAFF      = "staff" // marketplace operator, may edit any company's grants
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
)

// TeamMember occupies one seat of a company.
type TeamMember struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	CompanyID        uint           `gorm:"not null;index" json:"company_id" validate:"required"`
	Name             string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email            string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Password         string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role             string         `gorm:"type:varchar(20);default:'member'" json:"role" validate:"oneof=owner admin member staff"`
	Status           string         `gorm:"type:varchar(20);default:'active';index" json:"status" validate:"oneof=active inactive"`
	APIKeyHash       string         `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix     string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time     `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time     `json:"api_key_last_used_at"`
	APIKeyRevokedAt  *time.Time     `json:"api_key_revoked_at"`
	LastLoginAt      *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "ddk_"

func (m *TeamMember) Validate() error {
	return validator.New().Struct(m)
}

func NewTeamMember(companyID uint, name, email, password, role string) (*TeamMember, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	m := &TeamMember{
		CompanyID: companyID,
		Name:      name,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Password:  pw,
		Role:      role,
		Status:    STATUS_ACTIVE,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (m *TeamMember) CheckPassword(password string) bool {
	return CheckPasswordHash(password, m.Password)
}

func (m *TeamMember) IsActive() bool {
	return m.Status == STATUS_ACTIVE
}

// CanManageBilling is true for owners and admins.
func (m *TeamMember) CanManageBilling() bool {
	return m.Role == ROLE_OWNER || m.Role == ROLE_ADMIN
}

func (m *TeamMember) IsStaff() bool {
	return m.Role == ROLE_STAFF
}

func (m *TeamMember) HasActiveAPIKey() bool {
	return m != nil && m.APIKeyHash != "" && m.APIKeyRevokedAt == nil
}

// IssueAPIKey sets fresh key metadata on the struct and returns the raw secret.
// Callers must persist the member afterwards.
func (m *TeamMember) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	m.APIKeyHash = hash
	m.APIKeyPrefix = prefix
	m.APIKeyCreatedAt = &now
	m.APIKeyRevokedAt = nil
	m.APIKeyLastUsedAt = nil
	return rawKey, nil
}

func (m *TeamMember) RevokeAPIKey() {
	m.APIKeyHash = ""
	m.APIKeyPrefix = ""
	now := time.Now()
	m.APIKeyRevokedAt = &now
	m.APIKeyLastUsedAt = nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	rawKey := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	return rawKey, rawKey[:16], HashAPIKey(rawKey), nil
}
