package controllers

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/session"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/usercontext"
)

type fakeMembers struct {
	byEmail map[string]*models.TeamMember
	logins  []uint
}

func (f *fakeMembers) Create(*models.TeamMember) error                    { return nil }
func (f *fakeMembers) GetByID(uint) (*models.TeamMember, error)           { return nil, gorm.ErrRecordNotFound }
func (f *fakeMembers) GetByAPIKeyHash(string) (*models.TeamMember, error) { return nil, gorm.ErrRecordNotFound }
func (f *fakeMembers) GetOwner(uint) (*models.TeamMember, error)          { return nil, gorm.ErrRecordNotFound }
func (f *fakeMembers) CountActiveByCompany(uint) (int64, error)           { return 0, nil }
func (f *fakeMembers) TouchAPIKey(uint, time.Time) error                  { return nil }
func (f *fakeMembers) TouchLogin(id uint, _ time.Time) error              { f.logins = append(f.logins, id); return nil }

func (f *fakeMembers) GetByEmail(email string) (*models.TeamMember, error) {
	if m, ok := f.byEmail[email]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newAuthApp(t *testing.T, loggedIn bool) (*fiber.App, *fakeMembers) {
	t.Helper()
	owner, err := models.NewTeamMember(3, "Ada Owner", "owner@kronos.test", "correct-horse", models.ROLE_OWNER)
	require.NoError(t, err)
	owner.ID = 11
	inactive, err := models.NewTeamMember(3, "Old Clerk", "clerk@kronos.test", "correct-horse", models.ROLE_MEMBER)
	require.NoError(t, err)
	inactive.ID = 12
	inactive.Status = models.STATUS_INACTIVE

	members := &fakeMembers{byEmail: map[string]*models.TeamMember{
		owner.Email:    owner,
		inactive.Email: inactive,
	}}
	ctrl := NewAuthController(session.NewStore(nil, false), members)

	app := fiber.New(fiber.Config{Views: html.New("../../views", ".html")})
	app.Use(func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{IsLoggedIn: loggedIn, MemberID: 11, CompanyID: 3})
		return c.Next()
	})
	app.Get("/login", ctrl.HandleLoginPage)
	app.Post("/login", ctrl.HandleLogin)
	app.Post("/logout", ctrl.HandleLogout)
	return app, members
}

func postLogin(t *testing.T, app *fiber.App, email, password string) (int, string, []string) {
	t.Helper()
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get(fiber.HeaderLocation), resp.Header.Values(fiber.HeaderSetCookie)
}

func TestHandleLogin(t *testing.T) {
	app, members := newAuthApp(t, false)

	status, location, cookies := postLogin(t, app, " Owner@Kronos.test ", "correct-horse")
	assert.Equal(t, fiber.StatusFound, status)
	assert.Equal(t, "/account/plan", location)
	assert.Equal(t, []uint{11}, members.logins)

	var hasSession bool
	for _, c := range cookies {
		if strings.HasPrefix(c, "dd_session=") {
			hasSession = true
		}
	}
	assert.True(t, hasSession, "expected a session cookie, got %v", cookies)
}

func TestHandleLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing password", "owner@kronos.test", ""},
		{"wrong password", "owner@kronos.test", "battery-staple"},
		{"unknown email", "nobody@kronos.test", "correct-horse"},
		{"inactive member", "clerk@kronos.test", "correct-horse"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app, members := newAuthApp(t, false)

			status, location, _ := postLogin(t, app, tc.email, tc.password)
			assert.Equal(t, fiber.StatusFound, status)
			assert.Equal(t, "/login", location)
			assert.Empty(t, members.logins)
		})
	}
}

func TestHandleLoginPage(t *testing.T) {
	t.Run("anonymous sees the form", func(t *testing.T) {
		app, _ := newAuthApp(t, false)
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/login", nil), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := readBody(t, resp)
		assert.Contains(t, body, `action="/login"`)
		assert.Contains(t, body, `name="password"`)
	})

	t.Run("signed in member is sent to the plan", func(t *testing.T) {
		app, _ := newAuthApp(t, true)
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/login", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/account/plan", resp.Header.Get(fiber.HeaderLocation))
	})
}

func TestHandleLogout(t *testing.T) {
	app, _ := newAuthApp(t, true)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/logout", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))
}
