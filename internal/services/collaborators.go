package services

import (
	"context"
	"time"

	"cafe_backend/internal/models"
	"cafe_backend/internal/payment"
)

// Notifier receives state changes after they are committed. Implementations must
// not block; delivery failures never reach the caller.
type Notifier interface {
	NotifyOrderStatus(order *models.Order)
	NotifyStockUpdate(item *models.MenuItem)
	NotifySubscriptionExpiring(sub *models.UserSubscription)
	NotifyLowStock(items []models.MenuItem)
}

// MenuCache is an optional read-through cache for menu listings.
type MenuCache interface {
	Get(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, bool, error)
	Set(ctx context.Context, filters models.MenuFilters, items []models.MenuItem) error
	Invalidate(ctx context.Context) error
}

// PaymentGateway creates checkout orders and refunds captured payments.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (*payment.GatewayOrder, error)
	Refund(ctx context.Context, paymentID string, amountPaise int64) (*payment.Refund, error)
}

type noopNotifier struct{}

func (noopNotifier) NotifyOrderStatus(*models.Order) {}
func (noopNotifier) NotifyStockUpdate(*models.MenuItem) {}
func (noopNotifier) NotifySubscriptionExpiring(*models.UserSubscription) {}
func (noopNotifier) NotifyLowStock([]models.MenuItem) {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// calendarDay returns the café-local date of t as midnight UTC, matching how
// DATE columns come back from the driver.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
