package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/app/repository"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
)

// APIKeyAuthMiddleware authenticates requests carrying a member API key.
// Requests already authenticated by session, or without a key, pass through
// untouched so RequireAPIAuth can decide.
func APIKeyAuthMiddleware(members repository.TeamMemberRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if usercontext.IsLoggedIn(c) {
			return c.Next()
		}
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Next()
		}

		member, err := members.GetByAPIKeyHash(models.HashAPIKey(apiKey))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorf("[APIKey] lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}
		if !member.IsActive() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Member inactive"})
		}

		if err := members.TouchAPIKey(member.ID, time.Now()); err != nil {
			log.Warnf("[APIKey] failed to update last use for member %d: %v", member.ID, err)
		}

		usercontext.Set(c, usercontext.UserContext{
			MemberID:   member.ID,
			CompanyID:  member.CompanyID,
			Email:      member.Email,
			Role:       member.Role,
			IsLoggedIn: true,
			IsAdmin:    member.IsStaff(),
			ViaAPIKey:  true,
			Token:      apiKey,
		})
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
