package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/app/repository"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/jobqueue"
)

// UsageFlusher queues an immediate drain of buffered usage.
type UsageFlusher interface {
	EnqueueUsageFlush(ctx context.Context) (*jobqueue.Job, error)
}

// AdminEntitlementController lets marketplace staff grant and adjust entitlements.
type AdminEntitlementController struct {
	Companies    repository.CompanyRepository
	Entitlements repository.EntitlementRepository
	Flusher      UsageFlusher
	Now          Clock
}

func NewAdminEntitlementController(repos *repository.Repositories, flusher UsageFlusher, now Clock) *AdminEntitlementController {
	if now == nil {
		now = time.Now
	}
	return &AdminEntitlementController{
		Companies:    repos.Company,
		Entitlements: repos.Entitlement,
		Flusher:      flusher,
		Now:          now,
	}
}

// featureKeyRule keeps feature keys usable in URLs and on one mail header line.
const featureKeyRule = "required,max=50,excludesall= /\r\n\t"

// entitlementUpdate is a partial update; absent fields keep their value.
type entitlementUpdate struct {
	Enabled    *bool            `json:"enabled"`
	IsTrial    *bool            `json:"is_trial"`
	ClearTrial bool             `json:"clear_trial"`
	CreatedAt  *time.Time       `json:"created_at"`
	PaidAt     *time.Time       `json:"paid_at"`
	EndsAt     *time.Time       `json:"ends_at"`
	Limits     map[string]int64 `json:"limits" validate:"omitempty,dive,keys,required,max=50,endkeys,min=0"`
	ResetUsage bool             `json:"reset_usage"`
}

// HandlePutEntitlement serves PUT /api/v1/admin/companies/:id/entitlements/:feature.
func (ac *AdminEntitlementController) HandlePutEntitlement(c *fiber.Ctx) error {
	companyID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || companyID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid company id")
	}
	feature := strings.ToLower(strings.TrimSpace(c.Params("feature")))
	if err := validate.Var(feature, featureKeyRule); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid feature key")
	}

	var req entitlementUpdate
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", validationMessage(err))
	}

	if _, err := ac.Companies.GetByID(uint(companyID)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Company not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load company")
	}

	now := ac.Now()
	e, err := ac.Entitlements.GetByCompanyAndFeature(uint(companyID), feature)
	created := false
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		e = &models.Entitlement{CompanyID: uint(companyID), Feature: feature, Enabled: true, CreatedAt: now}
		created = true
	case err != nil:
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load entitlement")
	}

	if err := applyEntitlementUpdate(e, req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	if err := e.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	if e.EndsAt != nil && e.EndsAt.Before(e.CreatedAt) {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "ends_at must not be before created_at")
	}

	if err := ac.Entitlements.Save(e); err != nil {
		log.Errorf("[Admin] saving %s for company %d failed: %v", feature, companyID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to save entitlement")
	}
	action, status := "updated", fiber.StatusOK
	if created {
		action, status = "created", fiber.StatusCreated
	}
	log.Infof("[Admin] %s entitlement %s for company %d", action, feature, companyID)

	return c.Status(status).JSON(fiber.Map{
		"id":         e.ID,
		"company_id": e.CompanyID,
		"paid_at":    formatTimePtr(e.PaidAt),
		"ends_at":    formatTimePtr(e.EndsAt),
		"card":       entitlements.BuildCard(e.ToRecord(), now),
	})
}

func applyEntitlementUpdate(e *models.Entitlement, req entitlementUpdate) error {
	if req.Enabled != nil {
		e.Enabled = *req.Enabled
	}
	if req.ClearTrial {
		e.IsTrial = nil
	} else if req.IsTrial != nil {
		trial := *req.IsTrial
		e.IsTrial = &trial
	}
	if req.CreatedAt != nil {
		e.CreatedAt = req.CreatedAt.UTC()
	}
	if req.PaidAt != nil {
		paid := req.PaidAt.UTC()
		if e.PaidAt == nil || !e.PaidAt.Equal(paid) {
			e.UsedThisPeriod = 0
		}
		e.PaidAt = &paid
	}
	if req.EndsAt != nil {
		ends := req.EndsAt.UTC()
		e.EndsAt = &ends
	}
	if req.Limits != nil {
		if err := e.SetLimits(req.Limits); err != nil {
			return fmt.Errorf("invalid limits: %w", err)
		}
	}
	if req.ResetUsage {
		e.UsedThisPeriod = 0
	}
	return nil
}

// HandleFlushUsage serves POST /api/v1/admin/usage/flush.
func (ac *AdminEntitlementController) HandleFlushUsage(c *fiber.Ctx) error {
	if ac.Flusher == nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Job queue not running")
	}
	job, err := ac.Flusher.EnqueueUsageFlush(c.UserContext())
	if err != nil {
		log.Errorf("[Admin] enqueue usage flush failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to enqueue usage flush")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": job.ID, "status": job.Status})
}
