package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/app/repository"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/mail"
)

var ErrNoRecipient = errors.New("jobqueue: company has no billing email or owner")

// ExpiryNoticeProcessor mails a company that one of its windows ends soon.
type ExpiryNoticeProcessor struct {
	Companies    repository.CompanyRepository
	Members      repository.TeamMemberRepository
	Entitlements repository.EntitlementRepository
	Mailer       mail.Sender
	Now          func() time.Time
}

func (p *ExpiryNoticeProcessor) Process(ctx context.Context, job *Job) error {
	payload, err := ExpiryNoticeJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid expiry notice payload: %w", err)
	}

	e, err := p.Entitlements.GetByID(payload.EntitlementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[ExpiryNotice] entitlement %d gone, dropping job %s", payload.EntitlementID, job.ID)
			return nil
		}
		return err
	}
	// Renewed, already notified or switched off since the scan.
	if e.EndsAt == nil || !e.EndsAt.Equal(payload.EndsAt) || !e.NeedsExpiryNotice() || !e.Enabled {
		return nil
	}

	company, err := p.Companies.GetByID(e.CompanyID)
	if err != nil {
		return err
	}
	to, err := p.recipient(company)
	if err != nil {
		return err
	}

	card := entitlements.BuildCard(e.ToRecord(), p.Now())
	subject, body := expiryNoticeMessage(company.Name, card)
	if err := p.Mailer.Send(to, subject, body); err != nil {
		return fmt.Errorf("send expiry notice: %w", err)
	}
	return p.Entitlements.MarkNotified(e.ID, *e.EndsAt)
}

func (p *ExpiryNoticeProcessor) recipient(company *models.Company) (string, error) {
	if company.BillingEmail != "" {
		return company.BillingEmail, nil
	}
	if p.Members == nil {
		return "", ErrNoRecipient
	}
	owner, err := p.Members.GetOwner(company.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoRecipient
		}
		return "", err
	}
	return owner.Email, nil
}

func expiryNoticeMessage(companyName string, card entitlements.Card) (string, string) {
	feature := featureTitle(card.Feature)
	what := "plan"
	if card.InTrial {
		what = "trial"
	}

	subject := fmt.Sprintf("Your %s %s ends soon (%s)", feature, what, strings.ToLower(card.Status))
	if card.Expired {
		subject = fmt.Sprintf("Your %s %s has ended", feature, what)
	}

	body := fmt.Sprintf(
		"<p>Hello %s,</p>"+
			"<p>your %s %s ends on <strong>%s</strong> (%s, %d%% of the period used).</p>"+
			"<p>Renew in your account settings to keep access.</p>",
		html.EscapeString(companyName),
		html.EscapeString(feature), what,
		card.End.UTC().Format("2 Jan 2006 15:04 MST"),
		html.EscapeString(card.Status), card.Percent,
	)
	return subject, body
}

// featureTitle turns a feature key into words for the mail, dropping
// control characters along the way.
func featureTitle(feature string) string {
	feature = strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, feature)
	words := strings.Fields(feature)
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + w[size:]
	}
	return strings.Join(words, " ")
}
