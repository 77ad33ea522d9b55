package plansource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/repository"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/env"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/planclient"
)

const (
	KindDB       = "db"
	KindUpstream = "upstream"
)

// DBSource reads entitlements from the local database.
type DBSource struct {
	companies    repository.CompanyRepository
	members      repository.TeamMemberRepository
	entitlements repository.EntitlementRepository
}

func NewDBSource(repos *repository.Repositories) *DBSource {
	return &DBSource{
		companies:    repos.Company,
		members:      repos.TeamMember,
		entitlements: repos.Entitlement,
	}
}

func (s *DBSource) Load(ctx context.Context, p entitlements.Principal) (*entitlements.Snapshot, error) {
	if p.CompanyID == 0 {
		return nil, entitlements.ErrNotFound
	}
	company, err := s.companies.GetByID(p.CompanyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("company %d: %w", p.CompanyID, entitlements.ErrNotFound)
		}
		return nil, fmt.Errorf("load company %d: %w", p.CompanyID, err)
	}
	seats, err := s.members.CountActiveByCompany(company.ID)
	if err != nil {
		return nil, fmt.Errorf("count seats for company %d: %w", company.ID, err)
	}
	rows, err := s.entitlements.ListByCompany(company.ID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements for company %d: %w", company.ID, err)
	}

	snap := &entitlements.Snapshot{
		Account:   company.Account(),
		SeatsUsed: int(seats),
		Records:   make([]entitlements.Record, 0, len(rows)),
	}
	for i := range rows {
		snap.Records = append(snap.Records, rows[i].ToRecord())
	}
	return snap, nil
}

// PendingReader reports usage recorded but not yet written to the database.
type PendingReader interface {
	Pending(ctx context.Context, entitlementID uint) (int64, error)
}

type pendingOverlay struct {
	next    entitlements.Source
	pending PendingReader
}

// WithPendingUsage adds unflushed usage onto UsedThisPeriod so a quota reads
// correctly between counter flushes.
func WithPendingUsage(next entitlements.Source, pending PendingReader) entitlements.Source {
	if pending == nil {
		return next
	}
	return &pendingOverlay{next: next, pending: pending}
}

func (o *pendingOverlay) Load(ctx context.Context, p entitlements.Principal) (*entitlements.Snapshot, error) {
	snap, err := o.next.Load(ctx, p)
	if err != nil {
		return nil, err
	}
	for i := range snap.Records {
		rec := &snap.Records[i]
		if rec.ID == 0 {
			continue
		}
		n, err := o.pending.Pending(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("pending usage for entitlement %d: %w", rec.ID, err)
		}
		rec.UsedThisPeriod += n
	}
	return snap, nil
}

// New picks the source named by kind.
func New(kind string, repos *repository.Repositories, client *planclient.Client) (entitlements.Source, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindDB:
		return NewDBSource(repos), nil
	case KindUpstream:
		if client == nil {
			return nil, errors.New("plansource: upstream source needs a plan client")
		}
		return client, nil
	default:
		return nil, fmt.Errorf("plansource: unknown PLAN_SOURCE %q", kind)
	}
}

// FromEnv builds the source configured by PLAN_SOURCE.
func FromEnv(repos *repository.Repositories) (entitlements.Source, error) {
	return New(env.GetEnv("PLAN_SOURCE", KindDB), repos, planclient.NewClientFromEnv())
}
