package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cafe_backend/internal/models"
)

// OrderRepository defines the interface for order-related database operations.
type OrderRepository interface {
	// Order methods
	NextDisplaySequence(ctx context.Context, executor SQLExecutor, period string) (int, error)
	CreateOrder(ctx context.Context, executor SQLExecutor, order *models.Order) (int64, error)
	GetOrderByID(ctx context.Context, executor SQLExecutor, orderID int64) (*models.Order, error)
	GetOrderByGatewayOrderID(ctx context.Context, executor SQLExecutor, gatewayOrderID string) (*models.Order, error)
	GetOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error)
	GetStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
	TransitionStatus(ctx context.Context, executor SQLExecutor, orderID int64, from, to models.OrderStatus, meta models.StatusMeta) error
	MarkPaid(ctx context.Context, executor SQLExecutor, orderID int64, paymentID string) error
	SetGatewayOrderID(ctx context.Context, executor SQLExecutor, orderID int64, gatewayOrderID string) error
	SetRefund(ctx context.Context, executor SQLExecutor, orderID int64, status models.RefundStatus, refundID *string) error

	// OrderItem methods
	CreateOrderItem(ctx context.Context, executor SQLExecutor, item *models.OrderItem) (int64, error)
	GetOrderItemsByOrderID(ctx context.Context, executor SQLExecutor, orderID int64) ([]models.OrderItem, error)

	// Status history
	CreateStatusEvent(ctx context.Context, executor SQLExecutor, event *models.OrderStatusEvent) (int64, error)
	GetStatusEvents(ctx context.Context, orderID int64) ([]models.OrderStatusEvent, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository.
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `o.id, o.display_id, o.user_id, o.mode, o.source, o.status, o.payment_method, o.total_amount,
	o.gateway_order_id, o.payment_id, o.note, o.time_slot, o.status_reason, o.delay_minutes,
	o.refund_status, o.refund_id, o.subscription_id, o.usage_date, o.created_by, o.created_at, o.updated_at`

func scanOrder(s scanner, o *models.Order, extra ...interface{}) error {
	dest := []interface{}{
		&o.ID, &o.DisplayID, &o.UserID, &o.Mode, &o.Source, &o.Status, &o.PaymentMethod, &o.TotalAmount,
		&o.GatewayOrderID, &o.PaymentID, &o.Note, &o.TimeSlot, &o.StatusReason, &o.DelayMinutes,
		&o.RefundStatus, &o.RefundID, &o.SubscriptionID, &o.UsageDate, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	}
	return s.Scan(append(dest, extra...)...)
}

// --- Order Methods ---

// NextDisplaySequence hands out the next per-period counter value atomically.
func (r *orderRepository) NextDisplaySequence(ctx context.Context, executor SQLExecutor, period string) (int, error) {
	query := `INSERT INTO order_display_counters (period, last_value) VALUES ($1, 1)
	          ON CONFLICT (period) DO UPDATE SET last_value = order_display_counters.last_value + 1
	          RETURNING last_value`
	var next int
	if err := executor.QueryRowContext(ctx, query, period).Scan(&next); err != nil {
		return 0, wrapDBError(err, "allocating display sequence")
	}
	return next, nil
}

func (r *orderRepository) CreateOrder(ctx context.Context, executor SQLExecutor, order *models.Order) (int64, error) {
	query := `INSERT INTO orders
	            (display_id, user_id, mode, source, status, payment_method, total_amount,
	             note, time_slot, subscription_id, usage_date, created_by, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	          RETURNING id`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt

	err := executor.QueryRowContext(ctx, query,
		order.DisplayID, order.UserID, order.Mode, order.Source, order.Status, order.PaymentMethod, order.TotalAmount,
		order.Note, order.TimeSlot, order.SubscriptionID, order.UsageDate, order.CreatedBy, order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		return 0, wrapDBError(err, "creating order")
	}
	return order.ID, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, executor SQLExecutor, orderID int64) (*models.Order, error) {
	if executor == nil {
		executor = r.db
	}
	order := &models.Order{}
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	if err := scanOrder(executor.QueryRowContext(ctx, query, orderID), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting order by ID %d: %v", ErrDatabaseError, orderID, err)
	}
	return order, nil
}

func (r *orderRepository) GetOrderByGatewayOrderID(ctx context.Context, executor SQLExecutor, gatewayOrderID string) (*models.Order, error) {
	if executor == nil {
		executor = r.db
	}
	order := &models.Order{}
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.gateway_order_id = $1`
	if err := scanOrder(executor.QueryRowContext(ctx, query, gatewayOrderID), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting order by gateway order %s: %v", ErrDatabaseError, gatewayOrderID, err)
	}
	return order, nil
}

func (r *orderRepository) GetOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error) {
	orders := []models.Order{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + orderColumns + `, u.name AS user_name, COUNT(*) OVER() AS total_count
        FROM orders o
        LEFT JOIN users u ON o.user_id = u.id`)

	var conditions []string
	var args []interface{}
	argCounter := 1

	if filters.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("o.user_id = $%d", argCounter))
		args = append(args, *filters.UserID)
		argCounter++
	}
	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", argCounter))
		args = append(args, *filters.Status)
		argCounter++
	}
	if filters.Mode != nil && *filters.Mode != "" {
		conditions = append(conditions, fmt.Sprintf("o.mode = $%d", argCounter))
		args = append(args, *filters.Mode)
		argCounter++
	}
	if filters.Source != nil && *filters.Source != "" {
		conditions = append(conditions, fmt.Sprintf("o.source = $%d", argCounter))
		args = append(args, *filters.Source)
		argCounter++
	}
	if filters.Date != nil && *filters.Date != "" {
		parsedDate, err := time.Parse("2006-01-02", *filters.Date)
		if err == nil {
			conditions = append(conditions, fmt.Sprintf("o.created_at >= $%d AND o.created_at < $%d", argCounter, argCounter+1))
			args = append(args, parsedDate, parsedDate.AddDate(0, 0, 1))
			argCounter += 2
		}
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY o.created_at DESC")

	page, pageSize := normalizePage(filters.Page, filters.PageSize)
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCounter, argCounter+1))
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, wrapDBError(err, "querying orders")
	}
	defer rows.Close()

	for rows.Next() {
		var o models.Order
		var userName sql.NullString
		if err := scanOrder(rows, &o, &userName, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning order: %v", ErrDatabaseError, err)
		}
		if userName.Valid {
			name := userName.String
			o.UserName = &name
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating orders: %v", ErrDatabaseError, err)
	}
	return orders, totalCount, nil
}

// GetStalePendingOrders lists checkouts still awaiting payment that were created before the cutoff.
func (r *orderRepository) GetStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o
	          WHERE o.status = $1 AND o.created_at < $2
	          ORDER BY o.created_at
	          LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, models.StatusPendingPayment, createdBefore, limit)
	if err != nil {
		return nil, wrapDBError(err, "querying stale pending orders")
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("%w: scanning order: %v", ErrDatabaseError, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating stale orders: %v", ErrDatabaseError, err)
	}
	return orders, nil
}

// TransitionStatus is a compare-and-set on the status column. It fails with
// ErrConditionNotMet when the order is no longer in the expected state.
func (r *orderRepository) TransitionStatus(ctx context.Context, executor SQLExecutor, orderID int64, from, to models.OrderStatus, meta models.StatusMeta) error {
	query := `UPDATE orders
	          SET status = $1, status_reason = $2, delay_minutes = $3, updated_at = NOW()
	          WHERE id = $4 AND status = $5`
	res, err := executor.ExecContext(ctx, query, to, meta.Reason, meta.DelayMinutes, orderID, from)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("updating status of order %d", orderID))
	}
	return expectAffected(res, fmt.Sprintf("order %d is no longer %s", orderID, from))
}

// MarkPaid confirms a pending order and stores the gateway payment id.
func (r *orderRepository) MarkPaid(ctx context.Context, executor SQLExecutor, orderID int64, paymentID string) error {
	query := `UPDATE orders
	          SET status = $1, payment_id = $2, updated_at = NOW()
	          WHERE id = $3 AND status = $4`
	res, err := executor.ExecContext(ctx, query, models.StatusConfirmed, paymentID, orderID, models.StatusPendingPayment)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("marking order %d paid", orderID))
	}
	return expectAffected(res, fmt.Sprintf("order %d is not awaiting payment", orderID))
}

func (r *orderRepository) SetGatewayOrderID(ctx context.Context, executor SQLExecutor, orderID int64, gatewayOrderID string) error {
	query := `UPDATE orders SET gateway_order_id = $1, updated_at = NOW() WHERE id = $2`
	res, err := executor.ExecContext(ctx, query, gatewayOrderID, orderID)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("setting gateway order of order %d", orderID))
	}
	if err := expectAffected(res, "setting gateway order id"); err != nil {
		return ErrNotFound
	}
	return nil
}

func (r *orderRepository) SetRefund(ctx context.Context, executor SQLExecutor, orderID int64, status models.RefundStatus, refundID *string) error {
	query := `UPDATE orders SET refund_status = $1, refund_id = $2, updated_at = NOW() WHERE id = $3`
	res, err := executor.ExecContext(ctx, query, status, refundID, orderID)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("recording refund of order %d", orderID))
	}
	if err := expectAffected(res, "recording refund"); err != nil {
		return ErrNotFound
	}
	return nil
}

// --- OrderItem Methods ---

func (r *orderRepository) CreateOrderItem(ctx context.Context, executor SQLExecutor, item *models.OrderItem) (int64, error) {
	query := `INSERT INTO order_items (order_id, menu_item_id, name, unit_price, quantity)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id`
	err := executor.QueryRowContext(ctx, query,
		item.OrderID, item.MenuItemID, item.Name, item.UnitPrice, item.Quantity,
	).Scan(&item.ID)
	if err != nil {
		return 0, wrapDBError(err, "creating order item")
	}
	return item.ID, nil
}

func (r *orderRepository) GetOrderItemsByOrderID(ctx context.Context, executor SQLExecutor, orderID int64) ([]models.OrderItem, error) {
	if executor == nil {
		executor = r.db
	}
	query := `SELECT id, order_id, menu_item_id, name, unit_price, quantity
	          FROM order_items WHERE order_id = $1 ORDER BY id`
	rows, err := executor.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("getting items of order %d", orderID))
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, fmt.Errorf("%w: scanning order item: %v", ErrDatabaseError, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating order items: %v", ErrDatabaseError, err)
	}
	return items, nil
}

// --- Status history ---

func (r *orderRepository) CreateStatusEvent(ctx context.Context, executor SQLExecutor, event *models.OrderStatusEvent) (int64, error) {
	query := `INSERT INTO order_status_events (order_id, from_status, to_status, reason, delay_minutes, actor_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id`
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	err := executor.QueryRowContext(ctx, query,
		event.OrderID, event.FromStatus, event.ToStatus, event.Reason, event.DelayMinutes, event.ActorID, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return 0, wrapDBError(err, "creating order status event")
	}
	return event.ID, nil
}

func (r *orderRepository) GetStatusEvents(ctx context.Context, orderID int64) ([]models.OrderStatusEvent, error) {
	query := `SELECT id, order_id, from_status, to_status, reason, delay_minutes, actor_id, created_at
	          FROM order_status_events WHERE order_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, wrapDBError(err, "getting order status events")
	}
	defer rows.Close()

	events := []models.OrderStatusEvent{}
	for rows.Next() {
		var ev models.OrderStatusEvent
		if err := rows.Scan(&ev.ID, &ev.OrderID, &ev.FromStatus, &ev.ToStatus, &ev.Reason, &ev.DelayMinutes, &ev.ActorID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning order status event: %v", ErrDatabaseError, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating order status events: %v", ErrDatabaseError, err)
	}
	return events, nil
}
