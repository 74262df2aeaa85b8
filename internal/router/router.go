package router

import (
	"database/sql"
	"fmt"

	"cafe_backend/internal/config"
	"cafe_backend/internal/handlers"
	"cafe_backend/internal/middleware"
	"cafe_backend/internal/repositories"
	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Dependencies are the clients built by main. Limiter and Events may be nil,
// which disables order rate limiting and the live board respectively.
type Dependencies struct {
	DB        *sql.DB
	Config    *config.Config
	MenuCache services.MenuCache
	Gateway   services.PaymentGateway
	Notifier  services.Notifier
	Events    handlers.EventSubscriber
	Limiter   middleware.Limiter
}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, deps Dependencies) error {
	if err := handlers.RegisterValidators(); err != nil {
		return fmt.Errorf("registering validators: %w", err)
	}
	cfg := deps.Config
	db := deps.DB

	// Initialize Repositories
	authRepo := repositories.NewAuthRepository(db)
	menuRepo := repositories.NewMenuRepository(db)
	movementRepo := repositories.NewInventoryMovementRepository(db)
	orderRepo := repositories.NewOrderRepository(db)
	subRepo := repositories.NewSubscriptionRepository(db)
	webhookRepo := repositories.NewWebhookEventRepository(db)
	reportRepo := repositories.NewReportRepository(db)

	// Initialize Services
	jwt := utils.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	authService := services.NewAuthService(authRepo, jwt)
	inventoryService := services.NewInventoryService(menuRepo, movementRepo, db, deps.MenuCache, deps.Notifier, cfg.Orders.LowStockThreshold)
	subscriptionService := services.NewSubscriptionService(subRepo, db, deps.Notifier, cfg.Timezone)
	orderService := services.NewOrderService(db, orderRepo, menuRepo, authRepo, inventoryService, subscriptionService,
		deps.Gateway, deps.Notifier, cfg.Orders, cfg.Timezone)
	paymentService := services.NewPaymentService(db, orderRepo, webhookRepo, inventoryService, deps.Notifier, cfg.Razorpay.WebhookSecret)
	reportService := services.NewReportService(reportRepo, cfg.Orders.LowStockThreshold, cfg.Timezone)

	// Initialize Handlers
	h := routeHandlers{
		auth:          handlers.NewAuthHandler(authService),
		orders:        handlers.NewOrderHandler(orderService),
		inventory:     handlers.NewInventoryHandler(inventoryService),
		subscriptions: handlers.NewSubscriptionHandler(subscriptionService),
		webhooks:      handlers.NewWebhookHandler(paymentService),
		reports:       handlers.NewReportHandler(reportService),
		cron:          handlers.NewCronHandler(orderService, subscriptionService, inventoryService),
	}
	if deps.Events != nil {
		h.live = handlers.NewLiveHandler(deps.Events, cfg.CORSAllowedOrigins)
	}

	apiV1 := engine.Group("/api/v1")

	var orderLimit []gin.HandlerFunc
	if deps.Limiter != nil {
		orderLimit = append(orderLimit, middleware.RateLimit(deps.Limiter))
	}
	setupPublicRoutes(apiV1, h, orderLimit...)

	// Setup authenticated routes
	staff := apiV1.Group("")
	staff.Use(middleware.AuthMiddleware(jwt))
	{
		SetupAuthenticatedAuthRoutes(staff.Group("/auth"), h.auth)

		admin := staff.Group("/admin")
		admin.Use(middleware.RoleAuthMiddleware("ADMIN", "STAFF"))
		SetupAdminOrderRoutes(admin, h.orders, h.live)
		SetupAdminInventoryRoutes(admin, h.inventory)
		SetupAdminSubscriptionRoutes(admin, h.subscriptions)
		SetupReportRoutes(admin, h.reports)

		adminOnly := admin.Group("")
		adminOnly.Use(middleware.RoleAuthMiddleware("ADMIN"))
		adminOnly.POST("/staff", h.auth.CreateStaff)
	}

	cron := apiV1.Group("/cron")
	cron.Use(middleware.CronAuth(cfg.CronSecret))
	SetupCronRoutes(cron, h.cron)
	return nil
}

type routeHandlers struct {
	auth          *handlers.AuthHandler
	orders        *handlers.OrderHandler
	inventory     *handlers.InventoryHandler
	subscriptions *handlers.SubscriptionHandler
	webhooks      *handlers.WebhookHandler
	reports       *handlers.ReportHandler
	cron          *handlers.CronHandler
	live          *handlers.LiveHandler
}
