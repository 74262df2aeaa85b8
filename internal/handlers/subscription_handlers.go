package handlers

import (
	"net/http"

	"cafe_backend/internal/models"
	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type ActivateSubscriptionRequest struct {
	UserID   int64  `json:"user_id" binding:"required,gt=0"`
	PlanType string `json:"plan_type" binding:"required"`
}

type CancelSubscriptionRequest struct {
	UserID int64   `json:"user_id" binding:"required,gt=0"`
	Reason *string `json:"reason"`
}

type AutoRenewRequest struct {
	UserID    int64 `json:"user_id" binding:"required,gt=0"`
	AutoRenew *bool `json:"auto_renew" binding:"required"`
}

// SubscriptionHandler holds the subscription service.
type SubscriptionHandler struct {
	subscriptionService services.SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(ss services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: ss}
}

// GetPlans lists the purchasable plans.
func (h *SubscriptionHandler) GetPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": models.Plans()})
}

// GetUserSubscription reports the user's current plan and remaining quota.
func (h *SubscriptionHandler) GetUserSubscription(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	status, err := h.subscriptionService.GetStatus(c.Request.Context(), userID)
	if err != nil {
		utils.LogError(err, "GetUserSubscription: Error from subscriptionService.GetStatus for userID "+utils.Int64ToStr(userID))
		respondServiceError(c, err, "Failed to fetch subscription.")
		return
	}
	c.JSON(http.StatusOK, status)
}

// ActivateSubscription starts a plan for a user after payment was taken at the counter.
func (h *SubscriptionHandler) ActivateSubscription(c *gin.Context) {
	var req ActivateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "ActivateSubscription")
		return
	}

	sub, err := h.subscriptionService.Activate(c.Request.Context(), req.UserID, req.PlanType)
	if err != nil {
		utils.LogError(err, "ActivateSubscription: Error from subscriptionService.Activate", map[string]interface{}{"user_id": req.UserID, "plan": req.PlanType})
		respondServiceError(c, err, "Failed to activate subscription.")
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// CancelSubscription stops a subscription. Credits stay usable until the period ends.
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	var req CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "CancelSubscription")
		return
	}

	sub, err := h.subscriptionService.Cancel(c.Request.Context(), req.UserID, req.Reason)
	if err != nil {
		utils.LogError(err, "CancelSubscription: Error from subscriptionService.Cancel for userID "+utils.Int64ToStr(req.UserID))
		respondServiceError(c, err, "Failed to cancel subscription.")
		return
	}
	c.JSON(http.StatusOK, sub)
}

// SetAutoRenew toggles renewal at period end.
func (h *SubscriptionHandler) SetAutoRenew(c *gin.Context) {
	var req AutoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "SetAutoRenew")
		return
	}

	sub, err := h.subscriptionService.SetAutoRenew(c.Request.Context(), req.UserID, *req.AutoRenew)
	if err != nil {
		utils.LogError(err, "SetAutoRenew: Error from subscriptionService.SetAutoRenew for userID "+utils.Int64ToStr(req.UserID))
		respondServiceError(c, err, "Failed to update auto-renew.")
		return
	}
	c.JSON(http.StatusOK, sub)
}
