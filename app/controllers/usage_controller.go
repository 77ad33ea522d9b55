package controllers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
)

// UsageRecorder buffers metered units until the next flush.
type UsageRecorder interface {
	Add(ctx context.Context, entitlementID uint, amount int64) (int64, error)
}

// UsageController meters consumption of quota-limited features. Source
// must already include unflushed usage in UsedThisPeriod.
type UsageController struct {
	Source entitlements.Source
	Usage  UsageRecorder
	Now    Clock
}

func NewUsageController(source entitlements.Source, usage UsageRecorder, now Clock) *UsageController {
	if now == nil {
		now = time.Now
	}
	return &UsageController{Source: source, Usage: usage, Now: now}
}

type usageRequest struct {
	Amount int64 `json:"amount" validate:"min=1,max=10000"`
}

// HandleRecordUsage serves POST /api/v1/account/entitlements/:feature/usage.
func (uc *UsageController) HandleRecordUsage(c *fiber.Ctx) error {
	feature := strings.ToLower(strings.TrimSpace(c.Params("feature")))

	var req usageRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "amount must be between 1 and 10000")
	}

	now := uc.Now()
	userCtx := usercontext.GetUserContext(c)
	snap, err := uc.Source.Load(c.UserContext(), userCtx.Principal())
	if err != nil {
		return sourceError(c, err)
	}
	rec, ok := snap.Find(feature)
	if !ok {
		return jsonError(c, fiber.StatusNotFound, "not_found", fmt.Sprintf("No entitlement for %q", feature))
	}
	if rec.ID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Usage can only be metered for locally stored entitlements")
	}

	card := entitlements.BuildCard(rec, now)
	if !card.Active() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": fmt.Sprintf("%s is %s", feature, strings.ToLower(card.Status)),
			"status":  card.Status,
		})
	}

	meter := card.QuotaMeter()
	if !meter.Allows(req.Amount) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":   "quota_exhausted",
			"message": fmt.Sprintf("Quota for %s exhausted until %s", feature, card.End.UTC().Format(time.RFC3339)),
			"usage":   meter,
		})
	}

	if _, err := uc.Usage.Add(c.UserContext(), rec.ID, req.Amount); err != nil {
		log.Errorf("[Usage] buffering %d units for entitlement %d failed: %v", req.Amount, rec.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record usage")
	}

	return c.JSON(fiber.Map{
		"feature": feature,
		"usage":   entitlements.MeterFor(entitlements.QuotaKey, meter.Used+req.Amount, meter.Limit),
	})
}
