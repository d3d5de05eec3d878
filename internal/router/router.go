// internal/router/router.go
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/civilaviation/fop-backend/internal/config"
	"github.com/civilaviation/fop-backend/internal/handlers"
	"github.com/civilaviation/fop-backend/internal/metrics"
	"github.com/civilaviation/fop-backend/internal/middleware"
	"github.com/civilaviation/fop-backend/internal/services"
	"github.com/civilaviation/fop-backend/internal/utils"
)

// App is the HTTP engine plus the background work it depends on.
type App struct {
	Engine    *gin.Engine
	Scheduler *services.Scheduler

	limiters []*middleware.RateLimiter
}

// Start launches the scheduler and the rate limiter janitors.
func (a *App) Start(ctx context.Context) error {
	for _, l := range a.limiters {
		go l.Run(ctx)
	}
	return a.Scheduler.Start(ctx)
}

func (a *App) Stop() {
	a.Scheduler.Stop()
}

type options struct {
	gateway    services.PaymentGateway
	hasGateway bool
	mailer     services.Mailer
}

type Option func(*options)

// WithGateway replaces the Stripe gateway; nil disables card intents.
func WithGateway(g services.PaymentGateway) Option {
	return func(o *options) {
		o.gateway = g
		o.hasGateway = true
	}
}

// WithMailer replaces SMTP delivery of staff emails.
func WithMailer(m services.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

func Initialize(db *gorm.DB, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Initialize services
	notificationService := services.NewNotificationService(db, cfg)
	if o.mailer != nil {
		notificationService.WithMailer(o.mailer)
	}
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	paymentService := services.NewPaymentService(cfg)
	gateway := o.gateway
	if !o.hasGateway && paymentService.Configured() {
		gateway = paymentService
	}
	feeService := services.NewFeeService(db, cfg)
	applicationService := services.NewApplicationService(db, feeService, storageService, gateway, notificationService)
	adminService := services.NewAdminService(db, notificationService)
	scheduler := services.NewScheduler(applicationService, notificationService, cfg.Fees)

	// Initialize handlers
	applicationHandler := handlers.NewApplicationHandler(applicationService, cfg.Storage.MaxUploadMB)
	paymentHandler := handlers.NewPaymentHandler(applicationService, paymentService)
	feeHandler := handlers.NewFeeHandler(feeService)
	adminHandler := handlers.NewAdminHandler(adminService, feeService)
	healthHandler := handlers.NewHealthHandler(db)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)
	utils.SetJWTIssuer(cfg.JWT.Issuer)

	generalRate := rate.Limit(cfg.RateLimit.RequestsPerSecond)
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		generalRate = rate.Inf
	}
	generalLimiter := middleware.NewRateLimiter(generalRate, cfg.RateLimit.Burst)
	uploadLimiter := middleware.NewRateLimiter(rate.Every(6*time.Second), 10)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	if cfg.Metrics.Enabled {
		r.Use(metrics.Middleware(cfg.Metrics.Path))
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}
	r.Use(middleware.CORS(cfg.Frontend.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(generalLimiter.Middleware())
	r.Use(middleware.AuditLogMiddleware(db, "/health", "/v1/fees", "/v1/webhooks"))

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/v1")
	{
		// Public fee quotes; the tenant comes from X-Tenant-ID.
		feeRoutes := v1.Group("/fees")
		feeRoutes.Use(middleware.TenantFromHeader(), middleware.TenantRequired())
		{
			feeRoutes.POST("/permit-quote", feeHandler.QuotePermit)
			feeRoutes.POST("/tariff-quote", feeHandler.QuoteTariff)
			feeRoutes.POST("/interest", feeHandler.QuoteInterest)
		}

		// Payment gateway callbacks carry their own signature.
		v1.POST("/webhooks/stripe", paymentHandler.StripeWebhook)

		protected := v1.Group("")
		protected.Use(middleware.AuthRequired(), middleware.TenantFromHeader(), middleware.TenantRequired())

		staff := []string{middleware.RoleOfficer, middleware.RoleFinance, middleware.RoleDirector}
		reviewers := []string{middleware.RoleOfficer, middleware.RoleDirector}
		finance := []string{middleware.RoleFinance, middleware.RoleDirector}
		payers := []string{middleware.RoleOperator, middleware.RoleFinance}

		applications := protected.Group("/applications")
		{
			applications.POST("", middleware.RequireRole(middleware.RoleOperator), applicationHandler.CreateApplication)
			applications.GET("", middleware.RequireRole(append(staff, middleware.RoleOperator)...), applicationHandler.GetApplications)
			applications.GET("/:id", applicationHandler.GetApplication)

			applications.POST("/:id/submit", middleware.RequireRole(middleware.RoleOperator), applicationHandler.SubmitApplication)
			applications.POST("/:id/review", middleware.RequireRole(reviewers...), applicationHandler.StartReview)
			applications.POST("/:id/approve", middleware.RequireRole(reviewers...), applicationHandler.ApproveApplication)
			applications.POST("/:id/reject", middleware.RequireRole(reviewers...), applicationHandler.RejectApplication)
			applications.POST("/:id/cancel", middleware.RequireRole(middleware.RoleOperator, middleware.RoleOfficer), applicationHandler.CancelApplication)

			applications.POST("/:id/documents", uploadLimiter.Middleware(),
				middleware.RequireRole(middleware.RoleOperator, middleware.RoleOfficer), applicationHandler.UploadDocument)
			applications.GET("/:id/documents/:type", applicationHandler.DownloadDocument)
			applications.POST("/:id/documents/:type/verify", middleware.RequireRole(reviewers...), applicationHandler.VerifyDocument)
			applications.POST("/:id/documents/:type/reject", middleware.RequireRole(reviewers...), applicationHandler.RejectDocument)

			applications.POST("/:id/payment", middleware.RequireRole(payers...), paymentHandler.RequestPayment)
			applications.POST("/:id/payment/retry", middleware.RequireRole(payers...), paymentHandler.RetryPayment)
			applications.POST("/:id/payment/sync", middleware.RequireRole(payers...), paymentHandler.SyncPayment)
			applications.POST("/:id/payment/complete", middleware.RequireRole(finance...), paymentHandler.CompletePayment)
			applications.POST("/:id/payment/fail", middleware.RequireRole(finance...), paymentHandler.FailPayment)
			applications.POST("/:id/payment/verify", middleware.RequireRole(finance...), paymentHandler.VerifyPayment)
			applications.POST("/:id/payment/refund", middleware.RequireRole(finance...), paymentHandler.RefundPayment)

			applications.POST("/:id/fee-override", middleware.RequireRole(middleware.RoleDirector), applicationHandler.OverrideFee)
			applications.POST("/:id/waivers", middleware.RequireRole(middleware.RoleOperator), applicationHandler.RequestWaiver)
			applications.POST("/:id/waivers/:waiverId/approve", middleware.RequireRole(finance...), applicationHandler.ApproveWaiver)
			applications.POST("/:id/waivers/:waiverId/reject", middleware.RequireRole(finance...), applicationHandler.RejectWaiver)
			applications.POST("/:id/flag", middleware.RequireRole(staff...), applicationHandler.FlagApplication)
			applications.POST("/:id/unflag", middleware.RequireRole(reviewers...), applicationHandler.UnflagApplication)
		}

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRole(middleware.RoleDirector))
		{
			admin.GET("/stats", adminHandler.GetDashboardStats)

			feeRates := admin.Group("/fee-rates")
			{
				feeRates.GET("", adminHandler.GetFeeRates)
				feeRates.POST("", adminHandler.SupersedeFeeRate)
				feeRates.DELETE("/:id", adminHandler.DeactivateFeeRate)
			}

			admin.GET("/settings", adminHandler.GetSettings)
			admin.PUT("/settings", adminHandler.UpdateSettings)

			admin.GET("/notifications", adminHandler.GetNotifications)
			admin.PUT("/notifications/:id/read", adminHandler.MarkNotificationRead)

			admin.GET("/audit-logs", adminHandler.GetAuditLogs)
			admin.GET("/analytics", adminHandler.GetAnalytics)
		}
	}

	return &App{
		Engine:    r,
		Scheduler: scheduler,
		limiters:  []*middleware.RateLimiter{generalLimiter, uploadLimiter},
	}, nil
}
