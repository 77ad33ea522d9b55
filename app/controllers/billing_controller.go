package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/billing"
)

// BillingService is the part of billing.Service the HTTP layer uses.
type BillingService interface {
	RecordWebhookEvent(ctx context.Context, in billing.WebhookEventInput) (bool, *models.BillingWebhookEvent, error)
	HandleEvent(ctx context.Context, ev *billing.WebhookEvent, rawPayload string) (uint, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error
	ReconcileCompanyPlan(ctx context.Context, companyID uint) (string, error)
}

type BillingController struct {
	Service BillingService
	Secret  string
}

func NewBillingController(svc BillingService, secret string) *BillingController {
	return &BillingController{Service: svc, Secret: secret}
}

// HandleWebhook serves POST /webhooks/billing. Unsigned requests are
// rejected before anything is stored so forged event IDs cannot shadow
// real deliveries.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.Body()...)
	if bc.Secret == "" || !billing.VerifyWebhookSignature(rawBody, c.Get("X-Billing-Signature"), bc.Secret) {
		log.Warnf("[Billing] webhook with invalid signature from %s", c.IP())
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", billing.ErrInvalidSignature.Error())
	}

	ev, err := billing.ParseWebhookEvent(rawBody)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	var companyID *uint
	if ev.CompanyID != 0 {
		id := ev.CompanyID
		companyID = &id
	}
	created, stored, err := bc.Service.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        ev.Provider,
		ProviderEventID: ev.ID,
		CompanyID:       companyID,
		EventType:       ev.Type,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[Billing] persisting webhook %s failed: %v", ev.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to persist webhook")
	}
	// Redeliveries of a failed event are processed again.
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return c.JSON(fiber.Map{"status": "duplicate"})
	}

	_, handleErr := bc.Service.HandleEvent(ctx, ev, string(rawBody))
	if err := bc.Service.MarkWebhookProcessed(ctx, stored.ID, handleErr); err != nil {
		log.Errorf("[Billing] marking webhook %d processed failed: %v", stored.ID, err)
	}
	if handleErr != nil {
		if errors.Is(handleErr, billing.ErrUnknownCompany) {
			log.Warnf("[Billing] webhook %s ignored: %v", ev.ID, handleErr)
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		log.Errorf("[Billing] webhook %s failed: %v", ev.ID, handleErr)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to apply subscription")
	}
	return c.JSON(fiber.Map{"status": "processed"})
}

// HandleReconcile serves POST /api/v1/admin/companies/:id/billing/reconcile.
func (bc *BillingController) HandleReconcile(c *fiber.Ctx) error {
	companyID, err := strconv.ParseUint(strings.TrimSpace(c.Params("id")), 10, 64)
	if err != nil || companyID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid company id")
	}

	plan, err := bc.Service.ReconcileCompanyPlan(c.UserContext(), uint(companyID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Company not found")
		}
		log.Errorf("[Billing] reconcile company %d failed: %v", companyID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Plan reconcile failed")
	}
	return c.JSON(fiber.Map{"company_id": companyID, "plan": plan})
}
