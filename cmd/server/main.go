package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/appesso/taskpay/internal/alerts"
	"github.com/appesso/taskpay/internal/api"
	"github.com/appesso/taskpay/internal/auth"
	"github.com/appesso/taskpay/internal/db"
	"github.com/appesso/taskpay/internal/escrow"
	"github.com/appesso/taskpay/internal/jobs"
	mware "github.com/appesso/taskpay/internal/middleware"
	"github.com/appesso/taskpay/internal/store"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Initialize database connection and schema
	db.Init()

	// Notification queue
	alerts.Init()
	defer alerts.Close()

	engine := escrow.New(store.NewPostgres(db.Conn), alerts.Notifier{}, escrow.Config{
		FallbackCap:     envInt64("ESCROW_FALLBACK_CAP", 0),
		SettlementDelay: time.Duration(envInt64("SETTLEMENT_DELAY_SECONDS", 30)) * time.Second,
		Logger:          log.Logger,
	})

	// In-process settlement scheduler
	scheduler := jobs.NewScheduler(engine)
	if err := scheduler.Start(os.Getenv("CRON_SCHEDULE")); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer scheduler.Stop()

	e := echo.New()
	e.HideBanner = true

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	// Health and observability routes
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := db.Conn.Ping(context.Background()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Public routes with per-IP rate limiting to protect signup/login
	h := api.New(engine)
	authHandler := &auth.Handler{Engine: engine}

	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", authHandler.Signup)
	authGroup.POST("/login", authHandler.Login)

	// Protected routes
	app := e.Group("")
	app.Use(mware.JWTMiddleware)

	app.GET("/auth/me", authHandler.Me)

	app.POST("/tasks", h.CreateTask)
	app.GET("/tasks", h.ListTasks)
	app.GET("/tasks/:id", h.GetTask)
	app.POST("/tasks/:id/accept", h.Accept)
	app.POST("/tasks/:id/request-completion", h.RequestCompletion)
	app.POST("/tasks/:id/confirm-completion", h.ConfirmCompletion)
	app.POST("/tasks/:id/outcome", h.ResolveOutcome)

	app.GET("/wallet/balance", h.Balance)
	app.GET("/wallet/transactions", h.Transactions)
	app.POST("/wallet/transfer", h.Transfer)
	app.POST("/wallet/deposit", h.Deposit)
	app.POST("/wallet/withdraw", h.Withdraw)
	app.GET("/wallet/reconcile", h.Reconcile)
	app.POST("/wallet/reconcile", h.ApplyCorrection)

	// Settlement jobs for external cron services
	cronGroup := e.Group("/cron")
	cronGroup.Use(mware.CronGuard)
	cronGroup.POST("/expire-tasks", h.CronExpireTasks)
	cronGroup.POST("/auto-release", h.CronAutoRelease)
	cronGroup.POST("/settle-transfers", h.CronSettleTransfers)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := e.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", raw).Msg("invalid integer in environment")
	}
	return n
}
