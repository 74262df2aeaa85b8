package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cafe_backend/internal/config"
	"cafe_backend/internal/models"
	"cafe_backend/internal/payment"
	"cafe_backend/internal/repositories"
	"cafe_backend/pkg/utils"
)

const (
	stalePendingBatch  = 100
	maxSubscriptionQty = 2
)

// --- Data Transfer Objects (DTOs) ---

// CreateOrderItemRequest is one cart line.
type CreateOrderItemRequest struct {
	MenuItemID int64 `json:"menu_item_id" binding:"required,gt=0"`
	Quantity   int   `json:"quantity" binding:"required,gt=0"`
}

// CreateOrderRequest is a customer checkout.
type CreateOrderRequest struct {
	UserID        int64                    `json:"user_id" binding:"required,gt=0"`
	Mode          models.OrderMode         `json:"mode" binding:"required,order_mode"`
	PaymentMethod models.PaymentMethod     `json:"payment_method" binding:"omitempty,payment_method"`
	Items         []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Note          *string                  `json:"note"`
	TimeSlot      *string                  `json:"time_slot"`
}

// CreatePOSOrderRequest is a counter sale entered by staff.
type CreatePOSOrderRequest struct {
	CustomerPhone *string                  `json:"customer_phone"`
	CustomerName  *string                  `json:"customer_name"`
	PaymentMethod models.PaymentMethod     `json:"payment_method" binding:"omitempty,payment_method"`
	Items         []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Note          *string                  `json:"note"`
}

// CreateOrderResult carries the order and, for online payments, the checkout the client opens.
type CreateOrderResult struct {
	Order    *models.Order         `json:"order"`
	Checkout *payment.GatewayOrder `json:"checkout,omitempty"`
}

type CancelOrderRequest struct {
	OrderID int64 `json:"order_id" binding:"required,gt=0"`
	UserID  int64 `json:"user_id" binding:"required,gt=0"`
}

type CancelResult struct {
	Order        *models.Order       `json:"order"`
	RefundStatus models.RefundStatus `json:"refund_status"`
	Message      string              `json:"message"`
}

// UpdateOrderStatusRequest is used for updating the status of an order.
// Sending the current status with a delay reschedules the order.
type UpdateOrderStatusRequest struct {
	Status       string  `json:"status" binding:"required,order_status"`
	Reason       *string `json:"reason"`
	DelayMinutes *int    `json:"delay_minutes" binding:"omitempty,gte=0,lte=240"`
}

// OrderStatusResponse is the lightweight payload polled by the order tracking screen.
type OrderStatusResponse struct {
	ID             int64              `json:"id"`
	DisplayID      string             `json:"display_id"`
	Status         models.OrderStatus `json:"status"`
	StatusReason   *string            `json:"status_reason,omitempty"`
	DelayMinutes   *int               `json:"delay_minutes,omitempty"`
	CanCancel      bool               `json:"can_cancel"`
	CancelDeadline time.Time          `json:"cancel_deadline"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// --- End of DTOs ---

// --- OrderService Interface ---
type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error)
	CreatePOSOrder(ctx context.Context, req CreatePOSOrderRequest, staffID int64) (*models.Order, error)
	CancelOrder(ctx context.Context, req CancelOrderRequest) (*CancelResult, error)
	UpdateStatus(ctx context.Context, orderID int64, req UpdateOrderStatusRequest, actorID *int64) (*models.Order, error)

	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrderStatus(ctx context.Context, orderID int64) (*OrderStatusResponse, error)
	GetOrderHistory(ctx context.Context, orderID int64) ([]models.OrderStatusEvent, error)
	ListOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error)
	ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]models.Order, int, error)

	ExpireStalePending(ctx context.Context) (int, error)
}

// --- orderService Implementation ---
type orderService struct {
	db            *sql.DB
	orderRepo     repositories.OrderRepository
	menuRepo      repositories.MenuRepository
	authRepo      repositories.AuthRepository
	inventory     InventoryService
	subscriptions SubscriptionService
	gateway       PaymentGateway
	notifier      Notifier
	cfg           config.OrderConfig
	loc           *time.Location
	now           func() time.Time
}

// NewOrderService creates a new instance of OrderService.
func NewOrderService(
	db *sql.DB,
	orderRepo repositories.OrderRepository,
	menuRepo repositories.MenuRepository,
	authRepo repositories.AuthRepository,
	inventory InventoryService,
	subscriptions SubscriptionService,
	gateway PaymentGateway,
	notifier Notifier,
	cfg config.OrderConfig,
	loc *time.Location,
) OrderService {
	if loc == nil {
		loc = time.UTC
	}
	return &orderService{
		db:            db,
		orderRepo:     orderRepo,
		menuRepo:      menuRepo,
		authRepo:      authRepo,
		inventory:     inventory,
		subscriptions: subscriptions,
		gateway:       gateway,
		notifier:      notifierOrNoop(notifier),
		cfg:           cfg,
		loc:           loc,
		now:           time.Now,
	}
}

type orderLine struct {
	item models.MenuItem
	qty  int
}

func (l orderLine) unitPrice(mode models.OrderMode) float64 {
	if mode == models.OrderModeSubscription {
		return 0
	}
	return l.item.Price
}

func totalQuantity(lines []orderLine) int {
	n := 0
	for _, l := range lines {
		n += l.qty
	}
	return n
}

func lineItemIDs(lines []orderLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.item.ID)
	}
	return ids
}

func orderItemIDs(items []models.OrderItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.MenuItemID)
	}
	return ids
}

// mergeLines validates cart lines and folds repeated items into one line, keeping first-seen order.
func mergeLines(items []CreateOrderItemRequest) ([]CreateOrderItemRequest, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	merged := make([]CreateOrderItemRequest, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, it := range items {
		if it.MenuItemID <= 0 {
			return nil, fmt.Errorf("%w: menu_item_id is required for every item", ErrValidation)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for item ID %d must be positive", ErrValidation, it.MenuItemID)
		}
		if i, seen := index[it.MenuItemID]; seen {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.MenuItemID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

// loadLines resolves cart lines against the menu and applies the per-mode item rules.
func (s *orderService) loadLines(ctx context.Context, mode models.OrderMode, reqItems []CreateOrderItemRequest) ([]orderLine, error) {
	merged, err := mergeLines(reqItems)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(merged))
	for _, it := range merged {
		ids = append(ids, it.MenuItemID)
	}
	items, err := s.menuRepo.GetItemsByIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}

	lines := make([]orderLine, 0, len(merged))
	for _, it := range merged {
		item, ok := items[it.MenuItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item ID %d", ErrMenuItemNotFound, it.MenuItemID)
		}
		if !item.IsAvailable {
			return nil, fmt.Errorf("%w: %s is currently unavailable", ErrItemUnavailable, item.Name)
		}
		if !item.Type.AllowsMode(mode) {
			return nil, fmt.Errorf("%w: %s cannot be ordered in %s mode", ErrItemUnavailable, item.Name, strings.ToLower(string(mode)))
		}
		if mode == models.OrderModeSubscription {
			if it.Quantity > maxSubscriptionQty {
				return nil, fmt.Errorf("%w: Max %d units allowed for %s.", ErrValidation, maxSubscriptionQty, item.Name)
			}
			if it.Quantity > 1 && !item.IsDoubleAllowed {
				return nil, fmt.Errorf("%w: You can only take 1 quantity of %s per order in subscription.", ErrValidation, item.Name)
			}
		}
		lines = append(lines, orderLine{item: item, qty: it.Quantity})
	}
	return lines, nil
}

// nextDisplayID renders "OCT26-0042": café-local month and year plus a per-month counter.
func (s *orderService) nextDisplayID(ctx context.Context, exec repositories.SQLExecutor) (string, error) {
	period := strings.ToUpper(s.now().In(s.loc).Format("Jan06"))
	seq, err := s.orderRepo.NextDisplaySequence(ctx, exec, period)
	if err != nil {
		return "", fmt.Errorf("failed to allocate display id: %w", err)
	}
	return fmt.Sprintf("%s-%04d", period, seq), nil
}

// insertOrder writes the order row, its items and the opening status event.
func (s *orderService) insertOrder(ctx context.Context, tx *sql.Tx, order *models.Order, lines []orderLine) error {
	displayID, err := s.nextDisplayID(ctx, tx)
	if err != nil {
		return err
	}
	order.DisplayID = displayID
	order.CreatedAt = s.now()

	total := 0.0
	for _, l := range lines {
		total += l.unitPrice(order.Mode) * float64(l.qty)
	}
	order.TotalAmount = utils.RoundMoney(total)

	if _, err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	order.Items = make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		item := models.OrderItem{
			OrderID:    order.ID,
			MenuItemID: l.item.ID,
			Name:       l.item.Name,
			UnitPrice:  l.unitPrice(order.Mode),
			Quantity:   l.qty,
		}
		if _, err := s.orderRepo.CreateOrderItem(ctx, tx, &item); err != nil {
			return fmt.Errorf("failed to create order item for %s: %w", l.item.Name, err)
		}
		order.Items = append(order.Items, item)
	}

	return s.recordEvent(ctx, tx, order.ID, nil, order.Status, models.StatusMeta{ActorID: order.CreatedBy})
}

func (s *orderService) recordEvent(ctx context.Context, exec repositories.SQLExecutor, orderID int64, from *models.OrderStatus, to models.OrderStatus, meta models.StatusMeta) error {
	event := models.OrderStatusEvent{
		OrderID:      orderID,
		FromStatus:   from,
		ToStatus:     to,
		Reason:       meta.Reason,
		DelayMinutes: meta.DelayMinutes,
		ActorID:      meta.ActorID,
		CreatedAt:    s.now(),
	}
	if _, err := s.orderRepo.CreateStatusEvent(ctx, exec, &event); err != nil {
		return fmt.Errorf("failed to record status event for order %d: %w", orderID, err)
	}
	return nil
}

func (s *orderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.UserID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if req.Mode != models.OrderModeNormal && req.Mode != models.OrderModeSubscription {
		return nil, fmt.Errorf("%w: mode must be NORMAL or SUBSCRIPTION", ErrValidation)
	}
	if _, err := s.authRepo.FindUserByID(ctx, nil, req.UserID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: ID %d", ErrUserNotFound, req.UserID)
		}
		return nil, fmt.Errorf("failed to load user %d: %w", req.UserID, err)
	}

	lines, err := s.loadLines(ctx, req.Mode, req.Items)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:   req.UserID,
		Mode:     req.Mode,
		Source:   models.SourceWeb,
		Note:     trimmedOrNil(req.Note),
		TimeSlot: trimmedOrNil(req.TimeSlot),
	}

	if req.Mode == models.OrderModeSubscription {
		created, err := s.createSubscriptionOrder(ctx, order, lines)
		if err != nil {
			return nil, err
		}
		return &CreateOrderResult{Order: created}, nil
	}

	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentUPI
	}
	switch {
	case method.IsOnline():
		order.PaymentMethod = method
		return s.createOnlineOrder(ctx, order, lines)
	case method == models.PaymentCash:
		order.PaymentMethod = method
		created, err := s.createPaidOrder(ctx, order, lines)
		if err != nil {
			return nil, err
		}
		return &CreateOrderResult{Order: created}, nil
	}
	return nil, fmt.Errorf("%w: payment method %s is not accepted for normal orders", ErrValidation, method)
}

// createOnlineOrder reserves stock and opens a gateway checkout. The reservation is
// committed before calling the gateway, so a gateway failure is compensated separately.
func (s *orderService) createOnlineOrder(ctx context.Context, order *models.Order, lines []orderLine) (*CreateOrderResult, error) {
	order.Status = models.StatusPendingPayment

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertOrder(ctx, tx, order, lines); err != nil {
		return nil, err
	}
	for _, l := range lines {
		res, err := s.inventory.ReserveStock(ctx, tx, l.item.ID, l.qty, &order.ID)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			res.ItemName = l.item.Name
			return nil, res.StockError()
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	s.inventory.StockChanged(ctx, lineItemIDs(lines)...)

	notes := map[string]string{
		"order_id":   utils.Int64ToStr(order.ID),
		"display_id": order.DisplayID,
		"user_id":    utils.Int64ToStr(order.UserID),
	}
	checkout, err := s.gateway.CreateOrder(ctx, utils.RupeesToPaise(order.TotalAmount), order.DisplayID, notes)
	if err != nil {
		utils.LogError(err, "Payment gateway order creation failed", map[string]interface{}{"order_id": order.ID})
		s.abandonCheckout(ctx, order, "Payment gateway unavailable")
		return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
	if err := s.orderRepo.SetGatewayOrderID(ctx, s.db, order.ID, checkout.ID); err != nil {
		utils.LogError(err, "Failed to store gateway order id", map[string]interface{}{"order_id": order.ID, "gateway_order_id": checkout.ID})
		s.abandonCheckout(ctx, order, "Payment could not be initialised")
		return nil, fmt.Errorf("%w: could not link checkout to order", ErrPaymentGateway)
	}
	order.GatewayOrderID = &checkout.ID

	utils.LogInfo("Order awaiting payment", map[string]interface{}{
		"order_id": order.ID, "display_id": order.DisplayID, "gateway_order_id": checkout.ID, "amount_paise": checkout.Amount,
	})
	s.notifier.NotifyOrderStatus(order)
	return &CreateOrderResult{Order: order, Checkout: checkout}, nil
}

// abandonCheckout moves a pending order to PAYMENT_FAILED and releases its reservation.
// It runs detached from the request so a disconnecting client cannot leave stock held.
func (s *orderService) abandonCheckout(ctx context.Context, order *models.Order, reason string) {
	if _, err := s.failPendingOrder(context.WithoutCancel(ctx), order, reason, nil); err != nil {
		utils.LogError(err, "Failed to compensate pending order", map[string]interface{}{"order_id": order.ID})
	}
}

// failPendingOrder reports false when the order had already left PENDING_PAYMENT.
func (s *orderService) failPendingOrder(ctx context.Context, order *models.Order, reason string, actorID *int64) (bool, error) {
	items := order.Items
	if items == nil {
		var err error
		if items, err = s.orderRepo.GetOrderItemsByOrderID(ctx, nil, order.ID); err != nil {
			return false, fmt.Errorf("failed to load items of order %d: %w", order.ID, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	meta := models.StatusMeta{Reason: &reason, ActorID: actorID}
	if err := s.orderRepo.TransitionStatus(ctx, tx, order.ID, models.StatusPendingPayment, models.StatusPaymentFailed, meta); err != nil {
		if errors.Is(err, repositories.ErrConditionNotMet) {
			return false, nil
		}
		return false, fmt.Errorf("failed to mark order %d as payment failed: %w", order.ID, err)
	}
	for _, it := range items {
		if err := s.inventory.ReleaseStock(ctx, tx, it.MenuItemID, it.Quantity, &order.ID); err != nil {
			return false, err
		}
	}
	from := models.StatusPendingPayment
	if err := s.recordEvent(ctx, tx, order.ID, &from, models.StatusPaymentFailed, meta); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit payment failure: %w", err)
	}

	order.Status = models.StatusPaymentFailed
	order.StatusReason = &reason
	order.Items = items
	s.inventory.StockChanged(ctx, orderItemIDs(items)...)
	s.notifier.NotifyOrderStatus(order)
	return true, nil
}

// createPaidOrder is the cash and POS path: stock leaves the shelf immediately.
func (s *orderService) createPaidOrder(ctx context.Context, order *models.Order, lines []orderLine) (*models.Order, error) {
	order.Status = models.StatusConfirmed

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertOrder(ctx, tx, order, lines); err != nil {
		return nil, err
	}
	for _, l := range lines {
		res, err := s.inventory.ConsumeImmediate(ctx, tx, l.item.ID, l.qty, &order.ID)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			res.ItemName = l.item.Name
			return nil, res.StockError()
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	s.inventory.StockChanged(ctx, lineItemIDs(lines)...)
	s.notifier.NotifyOrderStatus(order)
	return order, nil
}

// createSubscriptionOrder charges credits instead of money. The quota is checked once
// up front for a clear message and again by the guarded deduction inside the transaction.
func (s *orderService) createSubscriptionOrder(ctx context.Context, order *models.Order, lines []orderLine) (*models.Order, error) {
	qty := totalQuantity(lines)
	result, err := s.subscriptions.ValidateQuota(ctx, order.UserID, qty)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, &QuotaError{Result: result}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	sub, usageDay, err := s.subscriptions.DeductCredits(ctx, tx, order.UserID, qty)
	if err != nil {
		return nil, err
	}
	order.Status = models.StatusConfirmed
	order.PaymentMethod = models.PaymentSubscription
	order.SubscriptionID = &sub.ID
	order.UsageDate = &usageDay

	if err := s.insertOrder(ctx, tx, order, lines); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit subscription order: %w", err)
	}

	s.notifier.NotifyOrderStatus(order)
	return order, nil
}

func (s *orderService) CreatePOSOrder(ctx context.Context, req CreatePOSOrderRequest, staffID int64) (*models.Order, error) {
	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentCash
	}
	if method == models.PaymentSubscription {
		return nil, fmt.Errorf("%w: subscription orders cannot be placed at the counter", ErrValidation)
	}

	lines, err := s.loadLines(ctx, models.OrderModeNormal, req.Items)
	if err != nil {
		return nil, err
	}
	customer, err := s.resolveCustomer(ctx, req.CustomerPhone, req.CustomerName)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:        customer.ID,
		Mode:          models.OrderModeNormal,
		Source:        models.SourcePOS,
		PaymentMethod: method,
		Note:          trimmedOrNil(req.Note),
		CreatedBy:     &staffID,
	}
	created, err := s.createPaidOrder(ctx, order, lines)
	if err != nil {
		return nil, err
	}
	created.UserName = &customer.Name
	return created, nil
}

// resolveCustomer finds or creates the customer by phone. No phone means the shared walk-in account.
func (s *orderService) resolveCustomer(ctx context.Context, phone, name *string) (*models.User, error) {
	userPhone := models.WalkInPhone
	userName := "Walk-in Customer"
	if phone != nil && !utils.IsEmpty(*phone) {
		userPhone = utils.NormalizePhone(*phone)
		if !utils.IsValidPhone(userPhone) {
			return nil, fmt.Errorf("%w: invalid phone number", ErrValidation)
		}
		userName = "Guest"
	}
	if name != nil && !utils.IsEmpty(*name) {
		userName = strings.TrimSpace(*name)
	}

	user, err := s.authRepo.FindUserByPhone(ctx, nil, userPhone)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}

	user = &models.User{Name: userName, Phone: userPhone, Role: models.RoleCustomer, IsActive: true}
	if _, err := s.authRepo.CreateUser(ctx, s.db, user, nil); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			// Created concurrently by another till.
			return s.authRepo.FindUserByPhone(ctx, nil, userPhone)
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return user, nil
}

func (s *orderService) CancelOrder(ctx context.Context, req CancelOrderRequest) (*CancelResult, error) {
	order, err := s.getOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != req.UserID {
		return nil, ErrOrderOwnership
	}
	if !order.Status.IsCancellable() {
		return nil, fmt.Errorf("%w: order is %s", ErrOrderNotCancellable, order.Status)
	}
	if s.now().Sub(order.CreatedAt) > s.cfg.CancellationWindow {
		return nil, fmt.Errorf("%w: orders can only be cancelled within %s of placing them",
			ErrCancellationWindowExpired, s.cfg.CancellationWindow)
	}

	reason := "Cancelled by customer"
	return s.cancelWithCompensation(ctx, order, models.StatusMeta{Reason: &reason})
}

// cancelWithCompensation cancels the order and gives back whatever it took, all in one
// transaction. The refund runs after commit and never undoes the cancellation.
func (s *orderService) cancelWithCompensation(ctx context.Context, order *models.Order, meta models.StatusMeta) (*CancelResult, error) {
	items := order.Items
	if items == nil {
		var err error
		if items, err = s.orderRepo.GetOrderItemsByOrderID(ctx, nil, order.ID); err != nil {
			return nil, fmt.Errorf("failed to load items of order %d: %w", order.ID, err)
		}
	}
	from := order.Status

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.orderRepo.TransitionStatus(ctx, tx, order.ID, from, models.StatusCancelled, meta); err != nil {
		return nil, retryable(err, fmt.Sprintf("failed to cancel order %d", order.ID))
	}

	touchedStock := false
	switch {
	case order.Mode == models.OrderModeSubscription:
		if order.SubscriptionID == nil {
			utils.LogWarn("Subscription order has no recorded subscription, credits not restored", map[string]interface{}{"order_id": order.ID})
			break
		}
		qty := 0
		for _, it := range items {
			qty += it.Quantity
		}
		if err := s.subscriptions.RestoreCredits(ctx, tx, *order.SubscriptionID, order.UserID, order.UsageDate, qty); err != nil {
			return nil, err
		}
	case from.HoldsReservation():
		for _, it := range items {
			if err := s.inventory.ReleaseStock(ctx, tx, it.MenuItemID, it.Quantity, &order.ID); err != nil {
				return nil, err
			}
		}
		touchedStock = true
	case from.HasConsumedStock():
		for _, it := range items {
			if err := s.inventory.Restock(ctx, tx, it.MenuItemID, it.Quantity, &order.ID); err != nil {
				return nil, err
			}
		}
		touchedStock = true
	}

	if err := s.recordEvent(ctx, tx, order.ID, &from, models.StatusCancelled, meta); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	order.Status = models.StatusCancelled
	order.StatusReason = meta.Reason
	order.Items = items
	if touchedStock {
		s.inventory.StockChanged(ctx, orderItemIDs(items)...)
	}

	refundStatus := s.refundIfPaid(ctx, order)
	s.notifier.NotifyOrderStatus(order)

	utils.LogInfo("Order cancelled", map[string]interface{}{
		"order_id": order.ID, "from_status": from, "refund_status": refundStatus,
	})
	return &CancelResult{Order: order, RefundStatus: refundStatus, Message: cancelMessage(refundStatus)}, nil
}

func cancelMessage(status models.RefundStatus) string {
	switch status {
	case models.RefundProcessed:
		return "Order cancelled. Your refund has been initiated."
	case models.RefundFailedManualReview:
		return "Order cancelled. Your refund could not be processed automatically and will be reviewed by our staff."
	}
	return "Order cancelled successfully."
}

// refundIfPaid refunds a captured payment. A gateway failure is recorded for manual review.
func (s *orderService) refundIfPaid(ctx context.Context, order *models.Order) models.RefundStatus {
	if order.PaymentID == nil || *order.PaymentID == "" || order.TotalAmount <= 0 {
		return models.RefundNotApplicable
	}
	ctx = context.WithoutCancel(ctx)

	status := models.RefundProcessed
	var refundID *string
	refund, err := s.gateway.Refund(ctx, *order.PaymentID, utils.RupeesToPaise(order.TotalAmount))
	if err != nil {
		utils.LogError(err, "Refund failed, flagged for manual review", map[string]interface{}{
			"order_id": order.ID, "payment_id": *order.PaymentID,
		})
		status = models.RefundFailedManualReview
	} else {
		refundID = &refund.ID
	}

	if err := s.orderRepo.SetRefund(ctx, s.db, order.ID, status, refundID); err != nil {
		utils.LogError(err, "Failed to record refund outcome", map[string]interface{}{"order_id": order.ID, "refund_status": status})
	}
	order.RefundStatus = &status
	order.RefundID = refundID
	return status
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID int64, req UpdateOrderStatusRequest, actorID *int64) (*models.Order, error) {
	next, ok := models.ParseOrderStatus(req.Status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderStatus, req.Status)
	}
	if req.DelayMinutes != nil && *req.DelayMinutes < 0 {
		return nil, fmt.Errorf("%w: delay_minutes cannot be negative", ErrValidation)
	}
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	meta := models.StatusMeta{Reason: trimmedOrNil(req.Reason), DelayMinutes: req.DelayMinutes, ActorID: actorID}

	if next == models.StatusCancelled {
		if !order.Status.IsCancellable() {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
		}
		if meta.Reason == nil {
			reason := "Cancelled by staff"
			meta.Reason = &reason
		}
		res, err := s.cancelWithCompensation(ctx, order, meta)
		if err != nil {
			return nil, err
		}
		return res.Order, nil
	}

	if !order.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
	}
	if next == order.Status && req.DelayMinutes == nil {
		return nil, fmt.Errorf("%w: delay_minutes is required to reschedule an order", ErrValidation)
	}
	if order.Status == models.StatusPendingPayment && next == models.StatusPaymentFailed {
		if meta.Reason == nil {
			reason := "Marked as payment failed by staff"
			meta.Reason = &reason
		}
		moved, err := s.failPendingOrder(ctx, order, *meta.Reason, actorID)
		if err != nil {
			return nil, err
		}
		if !moved {
			return nil, fmt.Errorf("%w: order %d is no longer awaiting payment", ErrRetryable, orderID)
		}
		return s.getOrder(ctx, orderID)
	}

	from := order.Status
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.orderRepo.TransitionStatus(ctx, tx, orderID, from, next, meta); err != nil {
		return nil, retryable(err, fmt.Sprintf("failed to update status of order %d", orderID))
	}
	// Staff confirming a pending order settles it at the counter.
	settled := from == models.StatusPendingPayment && next == models.StatusConfirmed
	if settled {
		for _, it := range order.Items {
			if err := s.inventory.ConsumeReserved(ctx, tx, it.MenuItemID, it.Quantity, &order.ID); err != nil {
				return nil, err
			}
		}
	}
	if err := s.recordEvent(ctx, tx, orderID, &from, next, meta); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	if settled {
		s.inventory.StockChanged(ctx, orderItemIDs(order.Items)...)
	}
	if next == models.StatusRefunded {
		s.refundIfPaid(ctx, order)
	}

	updated, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyOrderStatus(updated)
	return updated, nil
}

// ExpireStalePending fails checkouts that were never paid and frees their reservations.
func (s *orderService) ExpireStalePending(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.PendingPaymentTTL)
	orders, err := s.orderRepo.GetStalePendingOrders(ctx, cutoff, stalePendingBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale pending orders: %w", err)
	}

	expired := 0
	for i := range orders {
		moved, err := s.failPendingOrder(ctx, &orders[i], "Payment not completed in time", nil)
		if err != nil {
			utils.LogError(err, "Failed to expire pending order", map[string]interface{}{"order_id": orders[i].ID})
			continue
		}
		if moved {
			expired++
		}
	}
	if expired > 0 {
		utils.LogInfo("Expired stale pending orders", map[string]interface{}{"count": expired, "cutoff": cutoff})
	}
	return expired, nil
}

func (s *orderService) getOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, nil, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: ID %d", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}
	items, err := s.orderRepo.GetOrderItemsByOrderID(ctx, nil, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items of order %d: %w", orderID, err)
	}
	order.Items = items
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.getOrder(ctx, orderID)
}

func (s *orderService) GetOrderStatus(ctx context.Context, orderID int64) (*OrderStatusResponse, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, nil, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: ID %d", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}
	deadline := order.CreatedAt.Add(s.cfg.CancellationWindow)
	return &OrderStatusResponse{
		ID:             order.ID,
		DisplayID:      order.DisplayID,
		Status:         order.Status,
		StatusReason:   order.StatusReason,
		DelayMinutes:   order.DelayMinutes,
		CanCancel:      order.Status.IsCancellable() && s.now().Before(deadline),
		CancelDeadline: deadline,
		UpdatedAt:      order.UpdatedAt,
	}, nil
}

func (s *orderService) GetOrderHistory(ctx context.Context, orderID int64) ([]models.OrderStatusEvent, error) {
	if _, err := s.orderRepo.GetOrderByID(ctx, nil, orderID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: ID %d", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}
	events, err := s.orderRepo.GetStatusEvents(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history of order %d: %w", orderID, err)
	}
	return events, nil
}

func (s *orderService) ListOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error) {
	if filters.Status != nil {
		st, ok := models.ParseOrderStatus(*filters.Status)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidOrderStatus, *filters.Status)
		}
		canonical := string(st)
		filters.Status = &canonical
	}
	if filters.Date != nil {
		if _, err := time.Parse("2006-01-02", *filters.Date); err != nil {
			return nil, 0, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
		}
	}
	orders, total, err := s.orderRepo.GetOrders(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]models.Order, int, error) {
	if userID <= 0 {
		return nil, 0, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.ListOrders(ctx, models.OrderFilters{UserID: &userID, Page: page, PageSize: pageSize})
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	return utils.NewNullString(*s)
}
