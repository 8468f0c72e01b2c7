package router

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vedshala/lms-api/config"
	"github.com/vedshala/lms-api/database"
	"github.com/vedshala/lms-api/handlers"
	admin_handlers "github.com/vedshala/lms-api/handlers/admin"
	affiliate_handlers "github.com/vedshala/lms-api/handlers/affiliate"
	analytics_handlers "github.com/vedshala/lms-api/handlers/analytics"
	auth_handlers "github.com/vedshala/lms-api/handlers/auth"
	certificate_handlers "github.com/vedshala/lms-api/handlers/certificate"
	coupon_handlers "github.com/vedshala/lms-api/handlers/coupon"
	course_handlers "github.com/vedshala/lms-api/handlers/course"
	notification_handlers "github.com/vedshala/lms-api/handlers/notification"
	payment_handlers "github.com/vedshala/lms-api/handlers/payment"
	"github.com/vedshala/lms-api/services"
	"github.com/vedshala/lms-api/services/storage"
	"github.com/vedshala/lms-api/utils"
	"github.com/vedshala/lms-api/utils/auth"
	"github.com/vedshala/lms-api/utils/cache"
	"github.com/vedshala/lms-api/utils/middleware"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, store database.Storage) {
	// Get JWT secret from environment
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "vedshala-api"
	}

	// Initialize JWT manager with config
	jwtConfig := auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Initialize Redis cache for brute force protection
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection will be disabled.", err)
	}

	// Initialize brute force protection
	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	// Initialize auth middleware with DB for blacklist checking
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	// Core services
	emailService := services.NewEmailService()
	codeService := services.NewCodeService(db)
	commissionService := services.NewCommissionService(db)
	payoutService := services.NewPayoutService(db)
	couponService := services.NewCouponService(db, codeService)
	paymentService := services.NewPaymentService(db, couponService, commissionService)
	jyotishiService := services.NewJyotishiService(db, codeService)
	notificationService := services.NewNotificationService(db)
	certificateService := services.NewCertificateService(db)
	analyticsService := services.NewAnalyticsService(db, commissionService)

	// Object storage for payout proofs, optional
	var spacesClient *storage.SpacesClient
	if env, err := config.Get(); err == nil && env.DO_SPACES_ACCESS_KEY != "" {
		spacesClient, err = storage.NewSpacesClient(storage.SpacesConfig{
			AccessKey: env.DO_SPACES_ACCESS_KEY,
			SecretKey: env.DO_SPACES_SECRET_KEY,
			Bucket:    env.DO_SPACES_BUCKET,
			Region:    env.DO_SPACES_REGION,
			Endpoint:  env.DO_SPACES_ENDPOINT,
			CDNURL:    env.DO_SPACES_CDN_URL,
		})
		if err != nil {
			log.Printf("Warning: Failed to init Spaces client: %v. Proof uploads will be disabled.", err)
		}
	}

	// Handlers
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager, bruteForceProtection, emailService)
	courseHandler := course_handlers.NewCourseHandler(db)
	paymentHandler := payment_handlers.NewPaymentHandler(paymentService)
	couponHandler := coupon_handlers.NewCouponHandler(couponService)
	affiliateHandler := affiliate_handlers.NewAffiliateHandler(
		commissionService, payoutService, jyotishiService, couponService,
		notificationService, emailService)
	payoutAdminHandler := admin_handlers.NewPayoutAdminHandler(
		db, payoutService, notificationService, emailService, spacesClient)
	jyotishiAdminHandler := admin_handlers.NewJyotishiAdminHandler(jyotishiService, commissionService)
	analyticsHandler := analytics_handlers.NewAnalyticsHandler(db, analyticsService)
	notificationHandler := notification_handlers.NewNotificationHandler(notificationService)
	certificateHandler := certificate_handlers.NewCertificateHandler(certificateService)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, store))

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/forgot-password", authHandler.ForgotPassword)
	authGroup.Post("/reset-password", authHandler.ResetPassword)

	// Protected auth routes
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/change-password", authMiddleware.Required(), authHandler.ChangePassword)

	// Profile routes (protected)
	profileGroup := api.Group("/profile", authMiddleware.Required())
	profileGroup.Get("/", authHandler.GetProfile)
	profileGroup.Put("/", authHandler.UpdateProfile)

	// ==================== Course Catalog ====================

	courses := api.Group("/courses")
	courses.Get("/", courseHandler.ListCourses)                                       // Public: List active courses
	courses.Get("/:id", courseHandler.GetCourse)                                      // Public: Get course by ID
	courses.Post("/", authMiddleware.RequireAdmin(), courseHandler.CreateCourse)      // Admin only: Create course
	courses.Put("/:id", authMiddleware.RequireAdmin(), courseHandler.UpdateCourse)    // Admin only: Update course
	courses.Delete("/:id", authMiddleware.RequireAdmin(), courseHandler.DeleteCourse) // Admin only: Delete course

	// ==================== Checkout ====================

	payments := api.Group("/payments", authMiddleware.Required())
	payments.Post("/orders", paymentHandler.CreateOrder)      // Protected: Start checkout
	payments.Post("/:id/confirm", paymentHandler.ConfirmPayment) // Protected: Gateway confirmation
	payments.Get("/", paymentHandler.ListMyPayments)          // Protected: Own payment history

	// Coupon validation is public so the checkout page can price codes
	api.Get("/coupons/:code/validate", couponHandler.ValidateCoupon)
	api.Get("/coupon-types", couponHandler.ListTypes)

	// ==================== Certificates ====================

	certificates := api.Group("/certificates")
	certificates.Get("/:serial/verify", certificateHandler.VerifyCertificate)                     // Public: Verify by serial
	certificates.Get("/", authMiddleware.Required(), certificateHandler.ListMyCertificates)      // Protected: Own certificates

	// ==================== Jyotishi (affiliate) Panel ====================

	jyotishi := api.Group("/jyotishi", authMiddleware.Required(), authMiddleware.RequireJyotishi())
	jyotishi.Get("/dashboard", affiliateHandler.GetDashboard)      // Jyotishi: Earnings + available balance
	jyotishi.Get("/commissions", affiliateHandler.ListCommissions) // Jyotishi: Commission history
	jyotishi.Get("/coupons", affiliateHandler.ListCoupons)         // Jyotishi: Own coupons
	jyotishi.Post("/payouts", affiliateHandler.RequestPayout)      // Jyotishi: Request a payout
	jyotishi.Get("/payouts", affiliateHandler.ListPayouts)         // Jyotishi: Own payout history
	jyotishi.Get("/payouts/:id", affiliateHandler.GetPayout)       // Jyotishi: Payout detail
	jyotishi.Put("/bank-details", affiliateHandler.UpdateBankDetails)

	// ==================== Notifications ====================

	notifications := api.Group("/notifications", authMiddleware.Required())
	notifications.Get("/", notificationHandler.GetNotifications)
	notifications.Get("/unread-count", notificationHandler.GetUnreadCount)
	notifications.Post("/read-all", notificationHandler.MarkAllAsRead)
	notifications.Post("/:id/read", notificationHandler.MarkAsRead)
	notifications.Delete("/", notificationHandler.DeleteAllNotifications)
	notifications.Delete("/:id", notificationHandler.DeleteNotification)

	// ==================== Admin Panel ====================

	admin := api.Group("/admin", authMiddleware.RequireAdmin())

	// Dashboard & analytics
	admin.Get("/analytics/dashboard", analyticsHandler.GetDashboard)
	admin.Get("/analytics/top-jyotishis", analyticsHandler.GetTopJyotishis)
	admin.Get("/analytics/revenue", analyticsHandler.GetRevenueSeries)
	admin.Get("/analytics/overview", func(c *fiber.Ctx) error { return admin_handlers.GetOverviewAnalytics(c, store) })
	admin.Get("/analytics/payouts", func(c *fiber.Ctx) error { return admin_handlers.GetPayoutAnalytics(c, store) })

	// Payout queue
	admin.Get("/payouts", payoutAdminHandler.ListPayouts)
	admin.Get("/payouts/:id", payoutAdminHandler.GetPayout)
	admin.Post("/payouts/:id/settle", middleware.AdminAuditLog(store, "payout_settle", "payouts"), payoutAdminHandler.SettlePayout)
	admin.Post("/payouts/:id/reject", middleware.AdminAuditLog(store, "payout_reject", "payouts"), payoutAdminHandler.RejectPayout)
	admin.Post("/payouts/:id/proof", middleware.AdminAuditLog(store, "payout_proof_upload", "payouts"), payoutAdminHandler.UploadProof)

	// Jyotishi management
	admin.Get("/jyotishis", jyotishiAdminHandler.ListJyotishis)
	admin.Get("/jyotishis/balances", jyotishiAdminHandler.GetBalances)
	admin.Post("/jyotishis/:id/settle", middleware.AdminAuditLog(store, "payout_bulk_settle", "payouts"), payoutAdminHandler.BulkSettlePayout)
	admin.Put("/jyotishis/:id/rate", middleware.AdminAuditLog(store, "jyotishi_rate_update", "users"), jyotishiAdminHandler.UpdateRate)

	// Coupons
	admin.Post("/coupon-types", middleware.AdminAuditLog(store, "coupon_type_create", "coupons"), couponHandler.CreateType)
	admin.Post("/coupons", middleware.AdminAuditLog(store, "coupon_create", "coupons"), couponHandler.CreateCoupon)
	admin.Post("/coupons/preview", couponHandler.PreviewCoupon)

	// Refunds
	admin.Post("/payments/:id/refund", middleware.AdminAuditLog(store, "payment_refund", "payments"), paymentHandler.RefundPayment)

	// Certificates
	admin.Post("/enrollments/:id/certificate", middleware.AdminAuditLog(store, "certificate_issue", "certificates"), certificateHandler.IssueCertificate)

	// User management
	admin.Get("/users/stats", func(c *fiber.Ctx) error { return admin_handlers.GetUserStats(c, store) })
	admin.Get("/users", func(c *fiber.Ctx) error { return admin_handlers.ListUsers(c, store) })
	admin.Get("/users/:id", func(c *fiber.Ctx) error { return admin_handlers.GetUser(c, store) })
	admin.Put("/users/:id", middleware.AdminAuditLog(store, "user_update", "users"), func(c *fiber.Ctx) error { return admin_handlers.UpdateUser(c, store) })
	admin.Delete("/users/:id", middleware.AdminAuditLog(store, "user_delete", "users"), func(c *fiber.Ctx) error { return admin_handlers.DeleteUser(c, store) })
	admin.Post("/users/:id/reset-password", middleware.AdminAuditLog(store, "password_reset", "users"), func(c *fiber.Ctx) error { return admin_handlers.ResetUserPassword(c, store) })
	admin.Post("/users/:id/promote", middleware.AdminAuditLog(store, "jyotishi_promote", "users"), jyotishiAdminHandler.Promote)

	// Audit logs
	admin.Get("/audit", func(c *fiber.Ctx) error { return admin_handlers.ListAuditLogs(c, store) })
	admin.Get("/audit/:id", func(c *fiber.Ctx) error { return admin_handlers.GetAuditLog(c, store) })

	// Settings management
	admin.Get("/settings", func(c *fiber.Ctx) error { return admin_handlers.ListSettings(c, store) })
	admin.Get("/settings/:key", func(c *fiber.Ctx) error { return admin_handlers.GetSetting(c, store) })
	admin.Put("/settings/:key", middleware.AdminAuditLog(store, "setting_update", "settings"), func(c *fiber.Ctx) error { return admin_handlers.UpdateSetting(c, store) })
	admin.Delete("/settings/:key", middleware.AdminAuditLog(store, "setting_delete", "settings"), func(c *fiber.Ctx) error { return admin_handlers.DeleteSetting(c, store) })
}
