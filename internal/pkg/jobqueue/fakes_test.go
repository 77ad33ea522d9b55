package jobqueue

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/models"
)

type fakeCompanies struct {
	byID map[uint]*models.Company
}

func (f *fakeCompanies) Create(c *models.Company) error                   { return nil }
func (f *fakeCompanies) Update(c *models.Company) error                   { return nil }
func (f *fakeCompanies) UpdatePlan(id uint, plan string, extra int) error { return nil }

func (f *fakeCompanies) GetByID(id uint) (*models.Company, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

type fakeMembers struct {
	owners map[uint]*models.TeamMember
}

func (f *fakeMembers) Create(m *models.TeamMember) error                       { return nil }
func (f *fakeMembers) GetByID(id uint) (*models.TeamMember, error)             { return nil, gorm.ErrRecordNotFound }
func (f *fakeMembers) GetByEmail(email string) (*models.TeamMember, error)     { return nil, gorm.ErrRecordNotFound }
func (f *fakeMembers) GetByAPIKeyHash(hash string) (*models.TeamMember, error) { return nil, gorm.ErrRecordNotFound }
func (f *fakeMembers) CountActiveByCompany(companyID uint) (int64, error)      { return 0, nil }
func (f *fakeMembers) TouchLogin(id uint, at time.Time) error                  { return nil }
func (f *fakeMembers) TouchAPIKey(id uint, at time.Time) error                 { return nil }

func (f *fakeMembers) GetOwner(companyID uint) (*models.TeamMember, error) {
	m, ok := f.owners[companyID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

type fakeEntitlements struct {
	byID     map[uint]*models.Entitlement
	notified map[uint]time.Time
}

func newFakeEntitlements(list ...models.Entitlement) *fakeEntitlements {
	f := &fakeEntitlements{byID: map[uint]*models.Entitlement{}, notified: map[uint]time.Time{}}
	for i := range list {
		e := list[i]
		f.byID[e.ID] = &e
	}
	return f
}

func (f *fakeEntitlements) GetByCompanyAndFeature(companyID uint, feature string) (*models.Entitlement, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEntitlements) ListByCompany(companyID uint) ([]models.Entitlement, error) { return nil, nil }
func (f *fakeEntitlements) Upsert(e *models.Entitlement) error                         { return nil }
func (f *fakeEntitlements) Save(e *models.Entitlement) error                           { return nil }

func (f *fakeEntitlements) GetByID(id uint) (*models.Entitlement, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEntitlements) ListEndingBetween(from, to time.Time) ([]models.Entitlement, error) {
	var out []models.Entitlement
	for _, e := range f.byID {
		if e.EndsAt != nil && !e.EndsAt.Before(from) && !e.EndsAt.After(to) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEntitlements) MarkNotified(id uint, endsAt time.Time) error {
	f.notified[id] = endsAt
	if e, ok := f.byID[id]; ok {
		e.NotifiedEndsAt = &endsAt
	}
	return nil
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}
