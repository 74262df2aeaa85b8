package router

import (
	"cafe_backend/internal/handlers"

	"github.com/gin-gonic/gin"
)

// setupPublicRoutes sets up the customer-facing routes. orderLimit guards order creation.
func setupPublicRoutes(apiGroup *gin.RouterGroup, h routeHandlers, orderLimit ...gin.HandlerFunc) {
	apiGroup.POST("/auth/login", h.auth.LoginUser)
	apiGroup.GET("/menu", h.inventory.GetMenu)

	orderRoutes := apiGroup.Group("/orders")
	{
		orderRoutes.POST("", append(orderLimit, h.orders.CreateOrder)...)
		orderRoutes.POST("/cancel", h.orders.CancelOrder)
		orderRoutes.GET("/:id", h.orders.GetOrderByID)
		orderRoutes.GET("/:id/status", h.orders.GetOrderStatus)
	}

	userRoutes := apiGroup.Group("/users")
	{
		userRoutes.GET("/:id/orders", h.orders.GetUserOrders)
		userRoutes.GET("/:id/subscription", h.subscriptions.GetUserSubscription)
	}

	subscriptionRoutes := apiGroup.Group("/subscriptions")
	{
		subscriptionRoutes.GET("/plans", h.subscriptions.GetPlans)
		subscriptionRoutes.POST("/cancel", h.subscriptions.CancelSubscription)
		subscriptionRoutes.PUT("/auto-renew", h.subscriptions.SetAutoRenew)
	}

	apiGroup.POST("/notifications/register", h.auth.RegisterPushToken)
	apiGroup.POST("/webhooks/razorpay", h.webhooks.HandleRazorpay)
}

func SetupAuthenticatedAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.POST("/logout", authHandler.LogoutUser)
	group.GET("/me", authHandler.GetCurrentUser)
}

// SetupAdminOrderRoutes sets up the kitchen and counter routes. live may be nil.
func SetupAdminOrderRoutes(adminGroup *gin.RouterGroup, orderHandler *handlers.OrderHandler, live *handlers.LiveHandler) {
	orderRoutes := adminGroup.Group("/orders")
	{
		orderRoutes.GET("", orderHandler.GetOrders)
		orderRoutes.POST("/pos", orderHandler.CreatePOSOrder)
		orderRoutes.GET("/:id/history", orderHandler.GetOrderHistory)
		orderRoutes.PATCH("/:id/status", orderHandler.UpdateOrderStatus)
		if live != nil {
			orderRoutes.GET("/live", live.StreamOrders)
		}
	}
}

func SetupAdminInventoryRoutes(adminGroup *gin.RouterGroup, inventoryHandler *handlers.InventoryHandler) {
	adminGroup.GET("/inventory", inventoryHandler.GetInventory)
	adminGroup.PATCH("/inventory", inventoryHandler.UpdateInventory)
	adminGroup.GET("/inventory/low-stock", inventoryHandler.GetLowStock)
	adminGroup.GET("/inventory-movements", inventoryHandler.GetInventoryMovements)
	adminGroup.POST("/menu-items", inventoryHandler.CreateMenuItem)
}

func SetupAdminSubscriptionRoutes(adminGroup *gin.RouterGroup, subscriptionHandler *handlers.SubscriptionHandler) {
	adminGroup.POST("/subscriptions", subscriptionHandler.ActivateSubscription)
}

// SetupReportRoutes sets up the dashboard report routes.
func SetupReportRoutes(adminGroup *gin.RouterGroup, reportHandler *handlers.ReportHandler) {
	reportRoutes := adminGroup.Group("/reports")
	{
		reportRoutes.GET("/summary", reportHandler.GetDashboardSummary)
		reportRoutes.GET("/sales", reportHandler.GetSalesReport)
		reportRoutes.GET("/revenue", reportHandler.GetRevenueReport)
	}
}

// SetupCronRoutes sets up the scheduler endpoints. The group must carry CronAuth.
func SetupCronRoutes(cronGroup *gin.RouterGroup, cronHandler *handlers.CronHandler) {
	cronGroup.POST("/reset-daily", cronHandler.ResetDailyLimits)
	cronGroup.POST("/renew", cronHandler.ProcessRenewals)
	cronGroup.POST("/subscription-expiry", cronHandler.ProcessExpiry)
	cronGroup.POST("/low-stock", cronHandler.CheckLowStock)
	cronGroup.POST("/expire-pending", cronHandler.ExpirePendingOrders)
}
