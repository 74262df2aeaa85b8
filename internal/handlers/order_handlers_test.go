package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cafe_backend/internal/models"
	"cafe_backend/internal/payment"
	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	svc := new(mockOrderService)
	h := NewOrderHandler(svc)

	req := services.CreateOrderRequest{
		UserID: 1,
		Mode:   models.OrderModeNormal,
		Items:  []services.CreateOrderItemRequest{{MenuItemID: 3, Quantity: 2}},
	}
	svc.On("CreateOrder", mock.Anything, req).Return(&services.CreateOrderResult{
		Order:    &models.Order{ID: 42, DisplayID: "JAN26-0042", Status: models.StatusPendingPayment},
		Checkout: &payment.GatewayOrder{ID: "order_abc", Amount: 16000, Currency: payment.Currency},
	}, nil).Once()

	w := performRequest(t, http.MethodPost, "/orders", "/orders", h.CreateOrder, req, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body services.CreateOrderResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "JAN26-0042", body.Order.DisplayID)
	assert.Equal(t, "order_abc", body.Checkout.ID)
	svc.AssertExpectations(t)
}

func TestCreateOrder_RejectsMalformedPayloads(t *testing.T) {
	svc := new(mockOrderService)
	h := NewOrderHandler(svc)

	tests := []struct {
		name string
		body string
	}{
		{"unknown mode", `{"user_id":1,"mode":"BULK","items":[{"menu_item_id":1,"quantity":1}]}`},
		{"unknown payment method", `{"user_id":1,"mode":"NORMAL","payment_method":"CHEQUE","items":[{"menu_item_id":1,"quantity":1}]}`},
		{"empty cart", `{"user_id":1,"mode":"NORMAL","items":[]}`},
		{"zero quantity", `{"user_id":1,"mode":"NORMAL","items":[{"menu_item_id":1,"quantity":0}]}`},
		{"missing user", `{"mode":"NORMAL","items":[{"menu_item_id":1,"quantity":1}]}`},
		{"not json", `mode=NORMAL`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(t, http.MethodPost, "/orders", "/orders", h.CreateOrder, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, utils.ErrCodeValidationFailed, decodeError(t, w).Error.Code)
		})
	}
	svc.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	body := services.CreateOrderRequest{
		UserID: 1,
		Mode:   models.OrderModeSubscription,
		Items:  []services.CreateOrderItemRequest{{MenuItemID: 3, Quantity: 1}},
	}

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "daily limit",
			err:     &services.QuotaError{Result: models.QuotaResult{Code: models.QuotaDailyExceeded, Reason: "Daily limit exceeded. Remaining today: 1"}},
			status:  http.StatusUnprocessableEntity,
			code:    models.QuotaDailyExceeded,
			message: "Daily limit exceeded. Remaining today: 1",
		},
		{
			name:    "stock",
			err:     fmt.Errorf("reserving: %w", &services.StockError{ItemID: 3, Name: "Filter Coffee", Requested: 1, Available: 0}),
			status:  http.StatusConflict,
			code:    utils.ErrCodeInsufficientStock,
			message: "Insufficient stock for Filter Coffee. Requested: 1, Available: 0",
		},
		{
			name:   "unavailable",
			err:    fmt.Errorf("%w: Filter Coffee", services.ErrItemUnavailable),
			status: http.StatusConflict,
			code:   utils.ErrCodeItemUnavailable,
		},
		{
			name:   "gateway",
			err:    fmt.Errorf("%w: timeout", services.ErrPaymentGateway),
			status: http.StatusBadGateway,
			code:   utils.ErrCodePaymentGateway,
		},
		{
			name:   "retryable",
			err:    fmt.Errorf("%w: reserve", services.ErrRetryable),
			status: http.StatusConflict,
			code:   utils.ErrCodeRetryable,
		},
		{
			name:    "unexpected",
			err:     errors.New("pq: connection refused"),
			status:  http.StatusInternalServerError,
			code:    utils.ErrCodeInternalServerError,
			message: "Failed to create order.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockOrderService)
			svc.On("CreateOrder", mock.Anything, body).Return(nil, tt.err).Once()
			h := NewOrderHandler(svc)

			w := performRequest(t, http.MethodPost, "/orders", "/orders", h.CreateOrder, body, nil)
			require.Equal(t, tt.status, w.Code)
			apiErr := decodeError(t, w)
			assert.Equal(t, tt.code, apiErr.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, apiErr.Error.Message)
			}
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}

func TestCancelOrder(t *testing.T) {
	svc := new(mockOrderService)
	h := NewOrderHandler(svc)

	ok := services.CancelOrderRequest{OrderID: 5, UserID: 1}
	svc.On("CancelOrder", mock.Anything, ok).Return(&services.CancelResult{
		Order:        &models.Order{ID: 5, Status: models.StatusCancelled},
		RefundStatus: models.RefundProcessed,
		Message:      "Order cancelled. Refund initiated.",
	}, nil).Once()
	late := services.CancelOrderRequest{OrderID: 6, UserID: 1}
	svc.On("CancelOrder", mock.Anything, late).Return(nil, services.ErrCancellationWindowExpired).Once()
	foreign := services.CancelOrderRequest{OrderID: 7, UserID: 1}
	svc.On("CancelOrder", mock.Anything, foreign).Return(nil, services.ErrOrderOwnership).Once()

	w := performRequest(t, http.MethodPost, "/orders/cancel", "/orders/cancel", h.CancelOrder, ok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"refund_status":"PROCESSED"`)

	w = performRequest(t, http.MethodPost, "/orders/cancel", "/orders/cancel", h.CancelOrder, late, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, utils.ErrCodeWindowExpired, decodeError(t, w).Error.Code)

	w = performRequest(t, http.MethodPost, "/orders/cancel", "/orders/cancel", h.CancelOrder, foreign, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	svc.AssertExpectations(t)
}

func TestGetOrderByID(t *testing.T) {
	svc := new(mockOrderService)
	h := NewOrderHandler(svc)
	svc.On("GetOrder", mock.Anything, int64(9)).Return(&models.Order{ID: 9, DisplayID: "JAN26-0009"}, nil).Once()
	svc.On("GetOrder", mock.Anything, int64(10)).Return(nil, fmt.Errorf("%w: ID 10", services.ErrOrderNotFound)).Once()

	w := performRequest(t, http.MethodGet, "/orders/9", "/orders/:id", h.GetOrderByID, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(t, http.MethodGet, "/orders/10", "/orders/:id", h.GetOrderByID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(t, http.MethodGet, "/orders/abc", "/orders/:id", h.GetOrderByID, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestGetOrders_FiltersAndPaging(t *testing.T) {
	svc := new(mockOrderService)
	h := NewOrderHandler(svc)

	status := "done"
	source := "POS"
	svc.On("ListOrders", mock.Anything, models.OrderFilters{Status: &status, Source: &source, Page: 1, PageSize: 10}).
		Return([]models.Order(nil), 0, nil).Once()

	w := performRequest(t, http.MethodGet, "/admin/orders?status=done&source=POS", "/admin/orders", h.GetOrders, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[],"total":0,"page":1,"page_size":10}`, w.Body.String())

	w = performRequest(t, http.MethodGet, "/admin/orders?page=0", "/admin/orders", h.GetOrders, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(t, http.MethodGet, "/admin/orders?user_id=x", "/admin/orders", h.GetOrders, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestUpdateOrderStatus(t *testing.T) {
	svc := new(mockOrderService)
	h := NewOrderHandler(svc)
	staffID := int64(10)

	ready := services.UpdateOrderStatusRequest{Status: "done"}
	svc.On("UpdateStatus", mock.Anything, int64(4), ready, &staffID).
		Return(&models.Order{ID: 4, Status: models.StatusReady}, nil).Once()
	backwards := services.UpdateOrderStatusRequest{Status: "PREPARING"}
	svc.On("UpdateStatus", mock.Anything, int64(4), backwards, &staffID).
		Return(nil, fmt.Errorf("%w: READY -> PREPARING", services.ErrInvalidTransition)).Once()

	w := performRequest(t, http.MethodPatch, "/admin/orders/4/status", "/admin/orders/:id/status", h.UpdateOrderStatus, ready, &staffID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"READY"`)

	w = performRequest(t, http.MethodPatch, "/admin/orders/4/status", "/admin/orders/:id/status", h.UpdateOrderStatus, backwards, &staffID)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, utils.ErrCodeInvalidTransition, decodeError(t, w).Error.Code)

	w = performRequest(t, http.MethodPatch, "/admin/orders/4/status", "/admin/orders/:id/status", h.UpdateOrderStatus, `{"status":"FLYING"}`, &staffID)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(t, http.MethodPatch, "/admin/orders/4/status", "/admin/orders/:id/status", h.UpdateOrderStatus, `{"status":"PREPARING","delay_minutes":-5}`, &staffID)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestCreatePOSOrder(t *testing.T) {
	svc := new(mockOrderService)
	h := NewOrderHandler(svc)
	staffID := int64(10)

	req := services.CreatePOSOrderRequest{
		PaymentMethod: models.PaymentCash,
		Items:         []services.CreateOrderItemRequest{{MenuItemID: 1, Quantity: 1}},
	}
	svc.On("CreatePOSOrder", mock.Anything, req, staffID).
		Return(&models.Order{ID: 11, Source: models.SourcePOS, Status: models.StatusConfirmed}, nil).Once()

	w := performRequest(t, http.MethodPost, "/admin/orders/pos", "/admin/orders/pos", h.CreatePOSOrder, req, &staffID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Without an authenticated staff member there is no one to attribute the sale to.
	w = performRequest(t, http.MethodPost, "/admin/orders/pos", "/admin/orders/pos", h.CreatePOSOrder, req, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	svc.AssertExpectations(t)
}

func TestGetUserOrders(t *testing.T) {
	svc := new(mockOrderService)
	h := NewOrderHandler(svc)
	svc.On("ListUserOrders", mock.Anything, int64(1), 2, 5).
		Return([]models.Order{{ID: 3}}, 6, nil).Once()

	w := performRequest(t, http.MethodGet, "/users/1/orders?page=2&page_size=5", "/users/:id/orders", h.GetUserOrders, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data     []models.Order `json:"data"`
		Total    int            `json:"total"`
		Page     int            `json:"page"`
		PageSize int            `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 6, body.Total)
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 5, body.PageSize)
	svc.AssertExpectations(t)
}
