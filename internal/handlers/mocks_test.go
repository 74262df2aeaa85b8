package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"cafe_backend/internal/models"
	"cafe_backend/internal/repositories"
	"cafe_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

// performRequest serves one request. A non-nil staffID is installed as the authenticated user.
func performRequest(t *testing.T, method, path, route string, handler gin.HandlerFunc, body interface{}, staffID *int64) *httptest.ResponseRecorder {
	t.Helper()
	engine := gin.New()
	chain := []gin.HandlerFunc{}
	if staffID != nil {
		id := *staffID
		chain = append(chain, func(c *gin.Context) {
			c.Set("userID", id)
			c.Set("userRole", models.RoleStaff)
		})
	}
	engine.Handle(method, route, append(chain, handler)...)

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apiErrorBody {
	t.Helper()
	var body apiErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// --- OrderService ---

type mockOrderService struct{ mock.Mock }

func (m *mockOrderService) CreateOrder(ctx context.Context, req services.CreateOrderRequest) (*services.CreateOrderResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*services.CreateOrderResult)
	return res, args.Error(1)
}

func (m *mockOrderService) CreatePOSOrder(ctx context.Context, req services.CreatePOSOrderRequest, staffID int64) (*models.Order, error) {
	args := m.Called(ctx, req, staffID)
	res, _ := args.Get(0).(*models.Order)
	return res, args.Error(1)
}

func (m *mockOrderService) CancelOrder(ctx context.Context, req services.CancelOrderRequest) (*services.CancelResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*services.CancelResult)
	return res, args.Error(1)
}

func (m *mockOrderService) UpdateStatus(ctx context.Context, orderID int64, req services.UpdateOrderStatusRequest, actorID *int64) (*models.Order, error) {
	args := m.Called(ctx, orderID, req, actorID)
	res, _ := args.Get(0).(*models.Order)
	return res, args.Error(1)
}

func (m *mockOrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	res, _ := args.Get(0).(*models.Order)
	return res, args.Error(1)
}

func (m *mockOrderService) GetOrderStatus(ctx context.Context, orderID int64) (*services.OrderStatusResponse, error) {
	args := m.Called(ctx, orderID)
	res, _ := args.Get(0).(*services.OrderStatusResponse)
	return res, args.Error(1)
}

func (m *mockOrderService) GetOrderHistory(ctx context.Context, orderID int64) ([]models.OrderStatusEvent, error) {
	args := m.Called(ctx, orderID)
	res, _ := args.Get(0).([]models.OrderStatusEvent)
	return res, args.Error(1)
}

func (m *mockOrderService) ListOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error) {
	args := m.Called(ctx, filters)
	res, _ := args.Get(0).([]models.Order)
	return res, args.Int(1), args.Error(2)
}

func (m *mockOrderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]models.Order, int, error) {
	args := m.Called(ctx, userID, page, pageSize)
	res, _ := args.Get(0).([]models.Order)
	return res, args.Int(1), args.Error(2)
}

func (m *mockOrderService) ExpireStalePending(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// --- InventoryService ---

type mockInventoryService struct{ mock.Mock }

func (m *mockInventoryService) ReserveStock(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) (services.ReserveResult, error) {
	args := m.Called(ctx, exec, itemID, qty, orderID)
	return args.Get(0).(services.ReserveResult), args.Error(1)
}

func (m *mockInventoryService) ReleaseStock(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) error {
	return m.Called(ctx, exec, itemID, qty, orderID).Error(0)
}

func (m *mockInventoryService) ConsumeReserved(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) error {
	return m.Called(ctx, exec, itemID, qty, orderID).Error(0)
}

func (m *mockInventoryService) ConsumeImmediate(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) (services.ReserveResult, error) {
	args := m.Called(ctx, exec, itemID, qty, orderID)
	return args.Get(0).(services.ReserveResult), args.Error(1)
}

func (m *mockInventoryService) Restock(ctx context.Context, exec repositories.SQLExecutor, itemID int64, qty int, orderID *int64) error {
	return m.Called(ctx, exec, itemID, qty, orderID).Error(0)
}

func (m *mockInventoryService) AdminUpdate(ctx context.Context, req services.UpdateInventoryRequest, actorID *int64) (*models.MenuItem, error) {
	args := m.Called(ctx, req, actorID)
	res, _ := args.Get(0).(*models.MenuItem)
	return res, args.Error(1)
}

func (m *mockInventoryService) CreateMenuItem(ctx context.Context, req services.CreateMenuItemRequest, actorID *int64) (*models.MenuItem, error) {
	args := m.Called(ctx, req, actorID)
	res, _ := args.Get(0).(*models.MenuItem)
	return res, args.Error(1)
}

func (m *mockInventoryService) ListMenu(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, error) {
	args := m.Called(ctx, filters)
	res, _ := args.Get(0).([]models.MenuItem)
	return res, args.Error(1)
}

func (m *mockInventoryService) ListInventory(ctx context.Context) ([]models.MenuItem, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]models.MenuItem)
	return res, args.Error(1)
}

func (m *mockInventoryService) ListMovements(ctx context.Context, filters models.InventoryMovementFilters) ([]models.InventoryMovement, int, error) {
	args := m.Called(ctx, filters)
	res, _ := args.Get(0).([]models.InventoryMovement)
	return res, args.Int(1), args.Error(2)
}

func (m *mockInventoryService) LowStockItems(ctx context.Context) ([]models.MenuItem, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]models.MenuItem)
	return res, args.Error(1)
}

func (m *mockInventoryService) CheckLowStock(ctx context.Context) ([]models.MenuItem, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]models.MenuItem)
	return res, args.Error(1)
}

func (m *mockInventoryService) StockChanged(ctx context.Context, itemIDs ...int64) {
	m.Called(ctx, itemIDs)
}

// --- SubscriptionService ---

type mockSubscriptionService struct{ mock.Mock }

func (m *mockSubscriptionService) ValidateQuota(ctx context.Context, userID int64, qty int) (models.QuotaResult, error) {
	args := m.Called(ctx, userID, qty)
	return args.Get(0).(models.QuotaResult), args.Error(1)
}

func (m *mockSubscriptionService) DeductCredits(ctx context.Context, exec repositories.SQLExecutor, userID int64, qty int) (*models.UserSubscription, time.Time, error) {
	args := m.Called(ctx, exec, userID, qty)
	res, _ := args.Get(0).(*models.UserSubscription)
	return res, args.Get(1).(time.Time), args.Error(2)
}

func (m *mockSubscriptionService) RestoreCredits(ctx context.Context, exec repositories.SQLExecutor, subscriptionID, userID int64, usageDate *time.Time, qty int) error {
	return m.Called(ctx, exec, subscriptionID, userID, usageDate, qty).Error(0)
}

func (m *mockSubscriptionService) Activate(ctx context.Context, userID int64, planType string) (*models.UserSubscription, error) {
	args := m.Called(ctx, userID, planType)
	res, _ := args.Get(0).(*models.UserSubscription)
	return res, args.Error(1)
}

func (m *mockSubscriptionService) Cancel(ctx context.Context, userID int64, reason *string) (*models.UserSubscription, error) {
	args := m.Called(ctx, userID, reason)
	res, _ := args.Get(0).(*models.UserSubscription)
	return res, args.Error(1)
}

func (m *mockSubscriptionService) SetAutoRenew(ctx context.Context, userID int64, autoRenew bool) (*models.UserSubscription, error) {
	args := m.Called(ctx, userID, autoRenew)
	res, _ := args.Get(0).(*models.UserSubscription)
	return res, args.Error(1)
}

func (m *mockSubscriptionService) GetStatus(ctx context.Context, userID int64) (*services.SubscriptionStatusResponse, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).(*services.SubscriptionStatusResponse)
	return res, args.Error(1)
}

func (m *mockSubscriptionService) ResetDailyLimits(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSubscriptionService) ProcessRenewals(ctx context.Context) (*services.RenewalSummary, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*services.RenewalSummary)
	return res, args.Error(1)
}

func (m *mockSubscriptionService) ProcessExpiry(ctx context.Context) (*services.ExpirySummary, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*services.ExpirySummary)
	return res, args.Error(1)
}

// --- PaymentService ---

type mockPaymentService struct{ mock.Mock }

func (m *mockPaymentService) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (*services.WebhookResult, error) {
	args := m.Called(ctx, body, signature, eventID)
	res, _ := args.Get(0).(*services.WebhookResult)
	return res, args.Error(1)
}

// --- AuthService ---

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) LoginUser(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*services.AuthResponse)
	return res, args.Error(1)
}

func (m *mockAuthService) CreateStaff(ctx context.Context, req services.CreateStaffRequest) (*models.User, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*models.User)
	return res, args.Error(1)
}

func (m *mockAuthService) GetUserProfile(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).(*models.User)
	return res, args.Error(1)
}

func (m *mockAuthService) RegisterPushToken(ctx context.Context, req services.RegisterPushTokenRequest) error {
	return m.Called(ctx, req).Error(0)
}

// --- ReportService ---

type mockReportService struct{ mock.Mock }

func (m *mockReportService) DashboardSummary(ctx context.Context) (*models.DashboardSummary, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*models.DashboardSummary)
	return res, args.Error(1)
}

func (m *mockReportService) SalesReport(ctx context.Context, params models.ReportRequestParams) ([]models.SalesReportItem, error) {
	args := m.Called(ctx, params)
	res, _ := args.Get(0).([]models.SalesReportItem)
	return res, args.Error(1)
}

func (m *mockReportService) DailyRevenue(ctx context.Context, params models.ReportRequestParams) ([]models.DailyRevenue, error) {
	args := m.Called(ctx, params)
	res, _ := args.Get(0).([]models.DailyRevenue)
	return res, args.Error(1)
}
