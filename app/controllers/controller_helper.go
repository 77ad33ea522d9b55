package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/planclient"
)

// Clock is injected so a request evaluates every window at one instant.
type Clock func() time.Time

var validate = validator.New()

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// validationMessage names the first field that failed and why.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s failed the %s check", field, fe.Tag())
	}
}

// sourceError maps plan source failures onto the API error shape.
func sourceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, entitlements.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Account not found")
	case errors.Is(err, planclient.ErrUnauthorized):
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Plan service rejected the credentials")
	case errors.Is(err, planclient.ErrUpstream), errors.Is(err, planclient.ErrInvalidPayload):
		log.Warnf("[Plan] upstream failure: %v", err)
		return jsonError(c, fiber.StatusBadGateway, "upstream_unavailable", "Plan service unavailable")
	default:
		log.Errorf("[Plan] load failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load plan")
	}
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
