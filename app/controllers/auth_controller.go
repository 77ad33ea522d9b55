package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/repository"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/constants"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/session"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/viewmodel"
)

const loginFailedMessage = "There is a problem with the login process"

type AuthController struct {
	Store   *session.Store
	Members repository.TeamMemberRepository
}

func NewAuthController(store *session.Store, members repository.TeamMemberRepository) *AuthController {
	return &AuthController{Store: store, Members: members}
}

// HandleLoginPage renders GET /login.
func (ac *AuthController) HandleLoginPage(c *fiber.Ctx) error {
	if usercontext.IsLoggedIn(c) {
		return c.Redirect(constants.PlanRoute, fiber.StatusSeeOther)
	}
	return c.Render("login", viewmodel.LoginPage{Layout: viewmodel.NewLayout(c, "Sign in")}, "layouts/main")
}

// HandleLogin serves POST /login.
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	fm := fiber.Map{"type": "error"}

	email := strings.ToLower(strings.TrimSpace(c.FormValue("email")))
	password := c.FormValue("password")
	if email == "" || password == "" {
		fm["message"] = "Email and password are required"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	// Lookup and password failures read the same to the client.
	member, err := ac.Members.GetByEmail(email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Auth] member lookup failed: %v", err)
		}
		fm["message"] = loginFailedMessage
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}
	if !member.IsActive() || !member.CheckPassword(password) {
		fm["message"] = loginFailedMessage
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	if err := ac.Store.Save(c, session.Session{
		MemberID:  member.ID,
		CompanyID: member.CompanyID,
		Role:      member.Role,
		Email:     member.Email,
	}); err != nil {
		log.Errorf("[Auth] saving session for member %d failed: %v", member.ID, err)
		fm["message"] = "Something went wrong, please try again"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	if err := ac.Members.TouchLogin(member.ID, time.Now()); err != nil {
		log.Warnf("[Auth] failed to record login for member %d: %v", member.ID, err)
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Welcome back"}).Redirect(constants.PlanRoute)
}

// HandleLogout serves POST /logout.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	if err := ac.Store.Destroy(c); err != nil {
		log.Warnf("[Auth] destroying session failed: %v", err)
	}
	usercontext.Set(c, usercontext.UserContext{})
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "You have been signed out"}).Redirect(constants.LoginRoute)
}
