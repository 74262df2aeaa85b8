package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
)

// respondServiceError maps the service sentinels shared by most endpoints.
// fallback is the message used for the generic 500.
func respondServiceError(c *gin.Context, err error, fallback string) {
	var quotaErr *services.QuotaError
	var stockErr *services.StockError

	if errors.As(err, &quotaErr) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnprocessableEntity, quotaErr.Result.Code, quotaErr.Result.Reason, quotaErr.Error()))
	} else if errors.As(err, &stockErr) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeInsufficientStock, stockErr.Error(), utils.Int64ToStr(stockErr.ItemID)))
	} else if errors.Is(err, services.ErrValidation) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, err.Error(), err.Error()))
	} else if errors.Is(err, services.ErrItemUnavailable) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeItemUnavailable, err.Error(), err.Error()))
	} else if errors.Is(err, services.ErrOrderNotFound) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Order not found.", err.Error()))
	} else if errors.Is(err, services.ErrMenuItemNotFound) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Menu item not found.", err.Error()))
	} else if errors.Is(err, services.ErrUserNotFound) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "User not found.", err.Error()))
	} else if errors.Is(err, services.ErrSubscriptionNotFound) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "No active subscription found.", err.Error()))
	} else if errors.Is(err, services.ErrSubscriptionExists) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeSubscriptionActive, "User already has an active subscription.", err.Error()))
	} else if errors.Is(err, services.ErrOrderOwnership) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "This order belongs to another user.", err.Error()))
	} else if errors.Is(err, services.ErrCancellationWindowExpired) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeWindowExpired, "Cancellation window has expired.", err.Error()))
	} else if errors.Is(err, services.ErrOrderNotCancellable) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeNotCancellable, "Order can no longer be cancelled.", err.Error()))
	} else if errors.Is(err, services.ErrInvalidTransition) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeInvalidTransition, err.Error(), err.Error()))
	} else if errors.Is(err, services.ErrInvalidOrderStatus) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid order status provided.", err.Error()))
	} else if errors.Is(err, services.ErrPaymentGateway) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadGateway, utils.ErrCodePaymentGateway, "Payment gateway is unavailable. Please try again.", "Gateway error"))
	} else if errors.Is(err, services.ErrRetryable) {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeRetryable, "The request conflicted with another update. Please retry.", "Concurrent update"))
	} else {
		utils.RespondInternalError(c, fallback)
	}
}

func respondBindError(c *gin.Context, err error, op string) {
	utils.LogError(err, op+": Failed to bind JSON")
	utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
}

// parseIDParam reads a positive int64 path parameter, responding 400 on failure.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := utils.StrToInt64(c.Param(name))
	if err != nil || id <= 0 {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid "+name+" format.", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// parsePagination applies the page/page_size defaults, responding 400 on malformed input.
func parsePagination(c *gin.Context) (int, int, bool) {
	page, pageSize := defaultPage, defaultPageSize
	if pageStr := c.Query("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid page format.", "page must be a positive integer"))
			return 0, 0, false
		}
		page = p
	}
	if pageSizeStr := c.Query("page_size"); pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid page_size format.", "page_size must be a positive integer"))
			return 0, 0, false
		}
		if ps > maxPageSize {
			ps = maxPageSize
		}
		pageSize = ps
	}
	return page, pageSize, true
}

// optionalInt64Query parses an optional numeric filter.
func optionalInt64Query(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := utils.StrToInt64(raw)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid "+name+" format.", err.Error()))
		return nil, false
	}
	return &v, true
}

// actorID returns the authenticated staff id set by AuthMiddleware, if any.
func actorID(c *gin.Context) *int64 {
	raw, exists := c.Get("userID")
	if !exists {
		return nil
	}
	id, ok := raw.(int64)
	if !ok {
		return nil
	}
	return &id
}
