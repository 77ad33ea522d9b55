package viewmodel

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/utils"
)

// Layout is what layouts/main.html reads on every page.
type Layout struct {
	Title     string
	Email     string
	AvatarURL string
	IsStaff   bool
	Flash     fiber.Map
	CSRF      interface{}
}

func NewLayout(c *fiber.Ctx, title string) Layout {
	u := usercontext.GetUserContext(c)
	l := Layout{
		Title:   title,
		IsStaff: u.IsAdmin,
		Flash:   flash.Get(c),
		CSRF:    c.Locals("csrf"),
	}
	if u.IsLoggedIn {
		l.Email = u.Email
		if l.Email != "" {
			l.AvatarURL = utils.AvatarURL(l.Email, 32)
		}
	}
	return l
}
