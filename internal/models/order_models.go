package models

import (
	"strings"
	"time"
)

type OrderMode string

const (
	OrderModeNormal       OrderMode = "NORMAL"
	OrderModeSubscription OrderMode = "SUBSCRIPTION"
)

type PaymentMethod string

const (
	PaymentUPI          PaymentMethod = "UPI"
	PaymentCard         PaymentMethod = "CARD"
	PaymentCash         PaymentMethod = "CASH"
	PaymentSubscription PaymentMethod = "SUBSCRIPTION"
)

// IsOnline reports whether the method is settled through the payment gateway.
func (p PaymentMethod) IsOnline() bool {
	return p == PaymentUPI || p == PaymentCard
}

type OrderSource string

const (
	SourceWeb OrderSource = "WEB"
	SourcePOS OrderSource = "POS"
)

type RefundStatus string

const (
	RefundNotApplicable      RefundStatus = "NOT_APPLICABLE"
	RefundProcessed          RefundStatus = "PROCESSED"
	RefundFailedManualReview RefundStatus = "FAILED_MANUAL_REVIEW"
)

// OrderStatus is the closed set of states an order can be in.
type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	StatusConfirmed      OrderStatus = "CONFIRMED"
	StatusPreparing      OrderStatus = "PREPARING"
	StatusReady          OrderStatus = "READY"
	StatusCompleted      OrderStatus = "COMPLETED"
	StatusCancelled      OrderStatus = "CANCELLED"
	StatusPaymentFailed  OrderStatus = "PAYMENT_FAILED"
	StatusRefunded       OrderStatus = "REFUNDED"
	StatusDisposed       OrderStatus = "DISPOSED"
)

// Legacy spellings accepted on input.
var statusAliases = map[string]OrderStatus{
	"DONE":    StatusReady,
	"SOLD":    StatusCompleted,
	"PENDING": StatusPendingPayment,
}

// orderTransitions is the full state machine. A status listed as its own
// successor may be rescheduled (same status, new delay).
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPendingPayment: {StatusConfirmed, StatusPaymentFailed, StatusCancelled},
	StatusConfirmed:      {StatusConfirmed, StatusPreparing, StatusReady, StatusCancelled},
	StatusPreparing:      {StatusPreparing, StatusReady, StatusCancelled},
	StatusReady:          {StatusCompleted, StatusDisposed},
	StatusCompleted:      {StatusRefunded},
}

// ParseOrderStatus normalises case and legacy aliases.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if alias, ok := statusAliases[v]; ok {
		return alias, true
	}
	st := OrderStatus(v)
	switch st {
	case StatusPendingPayment, StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted,
		StatusCancelled, StatusPaymentFailed, StatusRefunded, StatusDisposed:
		return st, true
	}
	return "", false
}

// CanTransitionTo reports whether next is reachable in one step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for statuses with no outgoing transitions except the refund of a completed sale.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusPaymentFailed, StatusRefunded, StatusDisposed:
		return true
	}
	return false
}

// IsCancellable reports whether a cancellation may still compensate this order.
func (s OrderStatus) IsCancellable() bool {
	return s.CanTransitionTo(StatusCancelled)
}

// HoldsReservation is true while units sit in reserved_stock for this order.
func (s OrderStatus) HoldsReservation() bool {
	return s == StatusPendingPayment
}

// HasConsumedStock is true once stock has been decremented for this order.
func (s OrderStatus) HasConsumedStock() bool {
	switch s {
	case StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted, StatusDisposed, StatusRefunded:
		return true
	}
	return false
}

// Order is the persisted order row plus its items.
type Order struct {
	ID             int64         `json:"id"`
	DisplayID      string        `json:"display_id"`
	UserID         int64         `json:"user_id"`
	Mode           OrderMode     `json:"mode"`
	Source         OrderSource   `json:"source"`
	Status         OrderStatus   `json:"status"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	TotalAmount    float64       `json:"total_amount"`
	GatewayOrderID *string       `json:"gateway_order_id,omitempty"`
	PaymentID      *string       `json:"payment_id,omitempty"`
	Note           *string       `json:"note,omitempty"`
	TimeSlot       *string       `json:"time_slot,omitempty"`
	StatusReason   *string       `json:"status_reason,omitempty"`
	DelayMinutes   *int          `json:"delay_minutes,omitempty"`
	RefundStatus   *RefundStatus `json:"refund_status,omitempty"`
	RefundID       *string       `json:"refund_id,omitempty"`
	SubscriptionID *int64        `json:"subscription_id,omitempty"`
	UsageDate      *time.Time    `json:"usage_date,omitempty"`
	CreatedBy      *int64        `json:"created_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	Items    []OrderItem `json:"items,omitempty"`
	UserName *string     `json:"user_name,omitempty"`
}

// TotalQuantity sums item quantities.
func (o *Order) TotalQuantity() int {
	total := 0
	for _, it := range o.Items {
		total += it.Quantity
	}
	return total
}

// OrderItem snapshots name and price at order time.
type OrderItem struct {
	ID         int64   `json:"id"`
	OrderID    int64   `json:"order_id"`
	MenuItemID int64   `json:"menu_item_id"`
	Name       string  `json:"name"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
}

// LineTotal is UnitPrice * Quantity.
func (i OrderItem) LineTotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// StatusMeta carries the context of a transition instead of encoding it in the status string.
type StatusMeta struct {
	Reason       *string
	DelayMinutes *int
	ActorID      *int64
}

// OrderStatusEvent is one row of an order's audit trail.
type OrderStatusEvent struct {
	ID           int64        `json:"id"`
	OrderID      int64        `json:"order_id"`
	FromStatus   *OrderStatus `json:"from_status,omitempty"`
	ToStatus     OrderStatus  `json:"to_status"`
	Reason       *string      `json:"reason,omitempty"`
	DelayMinutes *int         `json:"delay_minutes,omitempty"`
	ActorID      *int64       `json:"actor_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// OrderFilters defines available filters for listing orders.
type OrderFilters struct {
	UserID   *int64
	Status   *string
	Mode     *string
	Source   *string
	Date     *string // YYYY-MM-DD
	Page     int
	PageSize int
}
