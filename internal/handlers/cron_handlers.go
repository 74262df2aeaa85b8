package handlers

import (
	"net/http"

	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// CronHandler exposes the scheduled jobs to an external scheduler.
// Every job is safe to run twice.
type CronHandler struct {
	orderService        services.OrderService
	subscriptionService services.SubscriptionService
	inventoryService    services.InventoryService
}

// NewCronHandler creates a new CronHandler.
func NewCronHandler(os services.OrderService, ss services.SubscriptionService, is services.InventoryService) *CronHandler {
	return &CronHandler{orderService: os, subscriptionService: ss, inventoryService: is}
}

func (h *CronHandler) ResetDailyLimits(c *gin.Context) {
	reset, err := h.subscriptionService.ResetDailyLimits(c.Request.Context())
	if err != nil {
		utils.LogError(err, "ResetDailyLimits: cron job failed")
		utils.RespondInternalError(c, "Failed to reset daily limits.")
		return
	}
	utils.LogInfo("cron: daily limits reset", map[string]interface{}{"subscriptions": reset})
	c.JSON(http.StatusOK, gin.H{"success": true, "reset": reset})
}

func (h *CronHandler) ProcessRenewals(c *gin.Context) {
	summary, err := h.subscriptionService.ProcessRenewals(c.Request.Context())
	if err != nil {
		utils.LogError(err, "ProcessRenewals: cron job failed")
		utils.RespondInternalError(c, "Failed to process renewals.")
		return
	}
	utils.LogInfo("cron: renewals processed", map[string]interface{}{
		"renewed": summary.Renewed, "expired": summary.Expired, "cancelled": summary.Cancelled, "failed": summary.Failed,
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

func (h *CronHandler) ProcessExpiry(c *gin.Context) {
	summary, err := h.subscriptionService.ProcessExpiry(c.Request.Context())
	if err != nil {
		utils.LogError(err, "ProcessExpiry: cron job failed")
		utils.RespondInternalError(c, "Failed to process subscription expiry.")
		return
	}
	utils.LogInfo("cron: subscription expiry processed", map[string]interface{}{"expired": summary.Expired, "reminders": summary.Reminders})
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

func (h *CronHandler) CheckLowStock(c *gin.Context) {
	items, err := h.inventoryService.CheckLowStock(c.Request.Context())
	if err != nil {
		utils.LogError(err, "CheckLowStock: cron job failed")
		utils.RespondInternalError(c, "Failed to check low stock.")
		return
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "low_stock": len(items), "items": names})
}

func (h *CronHandler) ExpirePendingOrders(c *gin.Context) {
	expired, err := h.orderService.ExpireStalePending(c.Request.Context())
	if err != nil {
		utils.LogError(err, "ExpirePendingOrders: cron job failed")
		utils.RespondInternalError(c, "Failed to expire pending orders.")
		return
	}
	if expired > 0 {
		utils.LogInfo("cron: stale pending orders expired", map[string]interface{}{"orders": expired})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "expired": expired})
}
