package session

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/cache"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/env"
)

const (
	keyMemberID  = "member_id"
	keyCompanyID = "company_id"
	keyRole      = "role"
	keyEmail     = "email"
	keyToken     = "token"
)

// Session is the authenticated state carried between requests.
type Session struct {
	MemberID  uint
	CompanyID uint
	Role      string
	Email     string
	// Token is forwarded as a bearer credential to the upstream plan API.
	Token string
}

func (s Session) LoggedIn() bool {
	return s.MemberID != 0 && s.CompanyID != 0
}

// Store is the single read/update point for session state. Handlers get it
// injected instead of reaching into cookies or storage themselves.
type Store struct {
	store *fibersession.Store
}

// NewStore wraps a fiber session store on the given storage; nil storage
// keeps sessions in memory.
func NewStore(storage fiber.Storage, secure bool) *Store {
	return &Store{store: fibersession.New(fibersession.Config{
		Storage:        storage,
		CookieHTTPOnly: true,
		CookieSecure:   secure,
		CookieSameSite: "Lax",
		Expiration:     8 * time.Hour,
		KeyLookup:      "cookie:dd_session",
	})}
}

// NewRedisStore keeps sessions on DB 1 of the cache server.
func NewRedisStore() *Store {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if c := cache.GetClient(); c != nil {
		if h, p, err := net.SplitHostPort(c.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := c.Options().Password; p != "" {
			password = p
		}
	}

	storage := redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
	return NewStore(storage, !env.IsDev())
}

// Load returns the session for the request; ok is false for anonymous visitors.
func (s *Store) Load(c *fiber.Ctx) (Session, bool, error) {
	sess, err := s.store.Get(c)
	if err != nil {
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	out := Session{
		MemberID:  asUint(sess.Get(keyMemberID)),
		CompanyID: asUint(sess.Get(keyCompanyID)),
		Role:      asString(sess.Get(keyRole)),
		Email:     asString(sess.Get(keyEmail)),
		Token:     asString(sess.Get(keyToken)),
	}
	return out, out.LoggedIn(), nil
}

// Save replaces the stored session and rotates its ID.
func (s *Store) Save(c *fiber.Ctx, in Session) error {
	sess, err := s.store.Get(c)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("regenerate session: %w", err)
	}
	sess.Set(keyMemberID, in.MemberID)
	sess.Set(keyCompanyID, in.CompanyID)
	sess.Set(keyRole, in.Role)
	sess.Set(keyEmail, in.Email)
	sess.Set(keyToken, in.Token)
	return sess.Save()
}

func (s *Store) Destroy(c *fiber.Ctx) error {
	sess, err := s.store.Get(c)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	return sess.Destroy()
}

func asUint(v interface{}) uint {
	switch n := v.(type) {
	case uint:
		return n
	case uint64:
		return uint(n)
	case int:
		if n > 0 {
			return uint(n)
		}
	case int64:
		if n > 0 {
			return uint(n)
		}
	}
	return 0
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
