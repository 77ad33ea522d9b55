package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/ManuelReschke/DealerDesk/app/repository"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/billing"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/cache"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/database"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/env"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/jobqueue"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/mail"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/plansource"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/router"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/session"
)

func main() {
	app, jobs := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("[Main] shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("[Main] shutdown: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	// final usage flush happens in Stop
	jobs.Stop()
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/dealerdesk to project root
		"../../../", // Fallback
	}

	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	app := fiber.New(fiber.Config{
		Views:     html.New(basePath+"views", ".html"),
		BodyLimit: 1 << 20,
	})

	// no favicon is shipped; answer 204 instead of hitting the router
	app.Use(favicon.New())

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// static files
	app.Static("/", basePath+"public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	usage := counter.NewUsageCounter(cache.GetClient(), db)

	source, err := plansource.FromEnv(repos)
	if err != nil {
		log.Fatal(err)
	}
	// usage is only metered locally when the database is authoritative
	if !strings.EqualFold(strings.TrimSpace(env.GetEnv("PLAN_SOURCE", plansource.KindDB)), plansource.KindUpstream) {
		source = plansource.WithPendingUsage(source, usage)
	}

	jobs := jobqueue.NewManager(jobqueue.Deps{
		Redis:          cache.GetClient(),
		Usage:          usage,
		Companies:      repos.Company,
		Members:        repos.TeamMember,
		Entitlements:   repos.Entitlement,
		Mailer:         mail.SMTPSender{},
		Workers:        env.GetInt("JOB_WORKERS", 2),
		ExpiryInterval: env.GetDuration("EXPIRY_NOTICE_INTERVAL", time.Hour),
	})
	jobqueue.SetManager(jobs)
	jobs.Start()

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Store:         session.NewRedisStore(),
		Repos:         repos,
		Source:        source,
		Usage:         usage,
		Billing:       billing.NewServiceFromDB(db).WithUsageBuffer(usage),
		BillingSecret: env.GetEnv("BILLING_WEBHOOK_SECRET", ""),
		Flusher:       jobs,
		Now:           time.Now,
	})

	return app, jobs
}
