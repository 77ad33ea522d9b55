package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/session"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session into a UserContext for every request.
func UserContextMiddleware(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, ok, err := store.Load(c)
		if err != nil {
			log.Warnf("[Session] %v", err)
		}
		if err != nil || !ok {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		usercontext.Set(c, usercontext.UserContext{
			MemberID:   sess.MemberID,
			CompanyID:  sess.CompanyID,
			Email:      sess.Email,
			Role:       sess.Role,
			IsLoggedIn: true,
			IsAdmin:    sess.Role == models.ROLE_STAFF,
			Token:      sess.Token,
		})
		return c.Next()
	}
}
