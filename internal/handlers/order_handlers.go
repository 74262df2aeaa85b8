package handlers

import (
	"errors"
	"net/http"

	"cafe_backend/internal/models"
	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// OrderHandler holds the order service.
type OrderHandler struct {
	orderService services.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(os services.OrderService) *OrderHandler {
	return &OrderHandler{orderService: os}
}

// CreateOrder places a customer order. Online payments come back with the checkout to open.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req services.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "CreateOrder")
		return
	}

	result, err := h.orderService.CreateOrder(c.Request.Context(), req)
	if err != nil {
		utils.LogError(err, "CreateOrder: Error from orderService.CreateOrder", map[string]interface{}{"user_id": req.UserID, "mode": req.Mode})
		respondServiceError(c, err, "Failed to create order.")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CancelOrder cancels a customer's own order inside the cancellation window.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	var req services.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "CancelOrder")
		return
	}

	result, err := h.orderService.CancelOrder(c.Request.Context(), req)
	if err != nil {
		utils.LogError(err, "CancelOrder: Error from orderService.CancelOrder for orderID "+utils.Int64ToStr(req.OrderID))
		respondServiceError(c, err, "Failed to cancel order.")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetOrderByID returns an order with its items.
func (h *OrderHandler) GetOrderByID(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if !errors.Is(err, services.ErrOrderNotFound) {
			utils.LogError(err, "GetOrderByID: Error from orderService.GetOrder for ID "+utils.Int64ToStr(orderID))
		}
		respondServiceError(c, err, "Failed to fetch order.")
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetOrderStatus is the lightweight endpoint polled by the tracking screen.
func (h *OrderHandler) GetOrderStatus(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	status, err := h.orderService.GetOrderStatus(c.Request.Context(), orderID)
	if err != nil {
		if !errors.Is(err, services.ErrOrderNotFound) {
			utils.LogError(err, "GetOrderStatus: Error from orderService.GetOrderStatus for ID "+utils.Int64ToStr(orderID))
		}
		respondServiceError(c, err, "Failed to fetch order status.")
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetOrderHistory lists every status change of an order.
func (h *OrderHandler) GetOrderHistory(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	events, err := h.orderService.GetOrderHistory(c.Request.Context(), orderID)
	if err != nil {
		utils.LogError(err, "GetOrderHistory: Error from orderService.GetOrderHistory for ID "+utils.Int64ToStr(orderID))
		respondServiceError(c, err, "Failed to fetch order history.")
		return
	}
	if events == nil {
		events = []models.OrderStatusEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// GetUserOrders lists one customer's orders, newest first.
func (h *OrderHandler) GetUserOrders(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page, pageSize, ok := parsePagination(c)
	if !ok {
		return
	}

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		utils.LogError(err, "GetUserOrders: Error from orderService.ListUserOrders for userID "+utils.Int64ToStr(userID))
		respondServiceError(c, err, "Failed to fetch orders.")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetOrders handles the admin order list with filters.
func (h *OrderHandler) GetOrders(c *gin.Context) {
	var filters models.OrderFilters
	var ok bool

	if filters.UserID, ok = optionalInt64Query(c, "user_id"); !ok {
		return
	}
	if status := c.Query("status"); status != "" {
		filters.Status = &status
	}
	if mode := c.Query("mode"); mode != "" {
		filters.Mode = &mode
	}
	if source := c.Query("source"); source != "" {
		filters.Source = &source
	}
	if date := c.Query("date"); date != "" {
		filters.Date = &date
	}
	if filters.Page, filters.PageSize, ok = parsePagination(c); !ok {
		return
	}

	orders, totalCount, err := h.orderService.ListOrders(c.Request.Context(), filters)
	if err != nil {
		utils.LogError(err, "GetOrders: Error from orderService.ListOrders")
		respondServiceError(c, err, "Failed to fetch orders.")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      orders,
		"total":     totalCount,
		"page":      filters.Page,
		"page_size": filters.PageSize,
	})
}

// UpdateOrderStatus moves an order through the kitchen workflow.
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "UpdateOrderStatus")
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, req, actorID(c))
	if err != nil {
		utils.LogError(err, "UpdateOrderStatus: Error from orderService.UpdateStatus for ID "+utils.Int64ToStr(orderID), map[string]interface{}{"status": req.Status})
		respondServiceError(c, err, "Failed to update order status.")
		return
	}
	c.JSON(http.StatusOK, order)
}

// CreatePOSOrder records a counter sale by the authenticated staff member.
func (h *OrderHandler) CreatePOSOrder(c *gin.Context) {
	staffID := actorID(c)
	if staffID == nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "User not authenticated.", "Missing user ID in context"))
		return
	}

	var req services.CreatePOSOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "CreatePOSOrder")
		return
	}

	order, err := h.orderService.CreatePOSOrder(c.Request.Context(), req, *staffID)
	if err != nil {
		utils.LogError(err, "CreatePOSOrder: Error from orderService.CreatePOSOrder", map[string]interface{}{"staff_id": *staffID})
		respondServiceError(c, err, "Failed to create POS order.")
		return
	}
	c.JSON(http.StatusCreated, order)
}
