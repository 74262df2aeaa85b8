package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"cafe_backend/internal/models"
	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// InventoryHandler serves the public menu and the admin stock screens.
type InventoryHandler struct {
	inventoryService services.InventoryService
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(is services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: is}
}

// GetMenu lists orderable items. ?mode=SUBSCRIPTION narrows to items a plan can redeem,
// ?all=true includes unavailable ones.
func (h *InventoryHandler) GetMenu(c *gin.Context) {
	filters := models.MenuFilters{AvailableOnly: true}
	if all, err := strconv.ParseBool(c.DefaultQuery("all", "false")); err == nil && all {
		filters.AvailableOnly = false
	}
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		filters.Category = &category
	}
	if modeStr := c.Query("mode"); modeStr != "" {
		mode := models.OrderMode(strings.ToUpper(modeStr))
		if mode != models.OrderModeNormal && mode != models.OrderModeSubscription {
			utils.RespondValidationFailed(c, "mode must be NORMAL or SUBSCRIPTION")
			return
		}
		filters.Mode = &mode
	}

	items, err := h.inventoryService.ListMenu(c.Request.Context(), filters)
	if err != nil {
		utils.LogError(err, "GetMenu: Error from inventoryService.ListMenu")
		respondServiceError(c, err, "Failed to fetch menu.")
		return
	}
	if items == nil {
		items = []models.MenuItem{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// GetInventory lists every item with its stock counters.
func (h *InventoryHandler) GetInventory(c *gin.Context) {
	items, err := h.inventoryService.ListInventory(c.Request.Context())
	if err != nil {
		utils.LogError(err, "GetInventory: Error from inventoryService.ListInventory")
		respondServiceError(c, err, "Failed to fetch inventory.")
		return
	}
	if items == nil {
		items = []models.MenuItem{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// GetLowStock lists available items at or below their threshold.
func (h *InventoryHandler) GetLowStock(c *gin.Context) {
	items, err := h.inventoryService.LowStockItems(c.Request.Context())
	if err != nil {
		utils.LogError(err, "GetLowStock: Error from inventoryService.LowStockItems")
		respondServiceError(c, err, "Failed to fetch low stock items.")
		return
	}
	if items == nil {
		items = []models.MenuItem{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// UpdateInventory sets an item's stock or availability.
func (h *InventoryHandler) UpdateInventory(c *gin.Context) {
	var req services.UpdateInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "UpdateInventory")
		return
	}

	item, err := h.inventoryService.AdminUpdate(c.Request.Context(), req, actorID(c))
	if err != nil {
		utils.LogError(err, "UpdateInventory: Error from inventoryService.AdminUpdate for item "+utils.Int64ToStr(req.ID))
		respondServiceError(c, err, "Failed to update inventory.")
		return
	}
	c.JSON(http.StatusOK, item)
}

// CreateMenuItem adds a catalogue entry with its opening stock.
func (h *InventoryHandler) CreateMenuItem(c *gin.Context) {
	var req services.CreateMenuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "CreateMenuItem")
		return
	}

	item, err := h.inventoryService.CreateMenuItem(c.Request.Context(), req, actorID(c))
	if err != nil {
		utils.LogError(err, "CreateMenuItem: Error from inventoryService.CreateMenuItem")
		respondServiceError(c, err, "Failed to create menu item.")
		return
	}
	c.JSON(http.StatusCreated, item)
}
