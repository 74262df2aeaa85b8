package handlers

import (
	"net/http"
	"strings"
	"time"

	"cafe_backend/internal/models"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const movementDateLayout = "2006-01-02"

var movementTypes = map[models.MovementType]bool{
	models.MovementReserve: true,
	models.MovementRelease: true,
	models.MovementConsume: true,
	models.MovementRestock: true,
	models.MovementAdjust:  true,
}

// GetInventoryMovements lists the stock ledger with filters.
func (h *InventoryHandler) GetInventoryMovements(c *gin.Context) {
	var filters models.InventoryMovementFilters
	var ok bool

	if filters.MenuItemID, ok = optionalInt64Query(c, "menu_item_id"); !ok {
		return
	}
	if filters.OrderID, ok = optionalInt64Query(c, "order_id"); !ok {
		return
	}
	if mt := strings.ToUpper(c.Query("movement_type")); mt != "" {
		if !movementTypes[models.MovementType(mt)] {
			utils.RespondValidationFailed(c, "movement_type must be one of RESERVE, RELEASE, CONSUME, RESTOCK, ADJUST")
			return
		}
		filters.MovementType = &mt
	}
	if from := c.Query("date_from"); from != "" {
		t, err := time.Parse(movementDateLayout, from)
		if err != nil {
			utils.RespondValidationFailed(c, "date_from must be YYYY-MM-DD")
			return
		}
		filters.DateFrom = &t
	}
	if to := c.Query("date_to"); to != "" {
		t, err := time.Parse(movementDateLayout, to)
		if err != nil {
			utils.RespondValidationFailed(c, "date_to must be YYYY-MM-DD")
			return
		}
		// Inclusive of the whole end day.
		end := t.AddDate(0, 0, 1)
		filters.DateTo = &end
	}
	if filters.Page, filters.PageSize, ok = parsePagination(c); !ok {
		return
	}

	movements, total, err := h.inventoryService.ListMovements(c.Request.Context(), filters)
	if err != nil {
		utils.LogError(err, "GetInventoryMovements: Error from inventoryService.ListMovements")
		respondServiceError(c, err, "Failed to fetch inventory movements.")
		return
	}
	if movements == nil {
		movements = []models.InventoryMovement{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      movements,
		"total":     total,
		"page":      filters.Page,
		"page_size": filters.PageSize,
	})
}
