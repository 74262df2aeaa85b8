package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cafe_backend/internal/cache"
	"cafe_backend/internal/models"
	"cafe_backend/internal/repositories"
	"cafe_backend/pkg/utils"
)

// UserDirectory resolves recipients.
type UserDirectory interface {
	FindUserByID(ctx context.Context, executor repositories.SQLExecutor, userID int64) (*models.User, error)
	FindStaffWithPushTokens(ctx context.Context) ([]models.User, error)
}

// EventPublisher pushes realtime events to the live board.
type EventPublisher interface {
	Publish(ctx context.Context, channel, eventType string, data interface{}) error
}

// Dispatcher fans state changes out to WhatsApp, FCM and the realtime channels.
// Every Notify* call returns immediately; delivery runs in the background with
// its own deadline and failures are only logged.
type Dispatcher struct {
	users      UserDirectory
	whatsapp   TemplateSender
	push       PushSender
	events     EventPublisher
	adminPhone string
	timeout    time.Duration
	wg         sync.WaitGroup
}

func NewDispatcher(users UserDirectory, whatsapp TemplateSender, push PushSender, events EventPublisher, adminPhone string) *Dispatcher {
	return &Dispatcher{
		users:      users,
		whatsapp:   whatsapp,
		push:       push,
		events:     events,
		adminPhone: adminPhone,
		timeout:    15 * time.Second,
	}
}

// Wait blocks until in-flight deliveries finish. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) goAsync(name string, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				utils.LogError(fmt.Errorf("panic: %v", r), "Notification task panicked", map[string]interface{}{"task": name})
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func readableStatus(s models.OrderStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// statusMessages lists the transitions customers hear about.
var statusMessages = map[models.OrderStatus]string{
	models.StatusConfirmed:     "Your order %s is confirmed.",
	models.StatusPreparing:     "Your order %s is being prepared.",
	models.StatusReady:         "Your order %s is ready for pickup.",
	models.StatusCancelled:     "Your order %s was cancelled.",
	models.StatusPaymentFailed: "Payment for order %s failed.",
	models.StatusRefunded:      "Your order %s was refunded.",
}

func orderEventData(o *models.Order) map[string]interface{} {
	data := map[string]interface{}{
		"id":           o.ID,
		"display_id":   o.DisplayID,
		"user_id":      o.UserID,
		"status":       o.Status,
		"mode":         o.Mode,
		"source":       o.Source,
		"total_amount": o.TotalAmount,
		"updated_at":   o.UpdatedAt,
	}
	if o.DelayMinutes != nil {
		data["delay_minutes"] = *o.DelayMinutes
	}
	if o.StatusReason != nil {
		data["status_reason"] = *o.StatusReason
	}
	return data
}

// NotifyOrderStatus publishes the new state to the live board and tells the customer.
func (d *Dispatcher) NotifyOrderStatus(order *models.Order) {
	if order == nil {
		return
	}
	snapshot := *order
	d.goAsync("order_status", func(ctx context.Context) {
		if d.events != nil {
			if err := d.events.Publish(ctx, cache.ChannelOrders, "order.status", orderEventData(&snapshot)); err != nil {
				utils.LogWarn("Failed to publish order event", map[string]interface{}{"order_id": snapshot.ID, "error": err.Error()})
			}
		}

		text, ok := statusMessages[snapshot.Status]
		if !ok {
			return
		}
		user, err := d.users.FindUserByID(ctx, nil, snapshot.UserID)
		if err != nil {
			utils.LogWarn("Order notification skipped, user lookup failed", map[string]interface{}{"order_id": snapshot.ID, "error": err.Error()})
			return
		}
		if user.IsWalkIn() {
			return
		}

		if snapshot.Status == models.StatusReady {
			err = d.whatsapp.SendTemplate(ctx, user.Phone, TemplateOrderReady, user.Name, snapshot.DisplayID)
		} else {
			err = d.whatsapp.SendTemplate(ctx, user.Phone, TemplateOrderStatus, snapshot.DisplayID, readableStatus(snapshot.Status))
		}
		if err != nil {
			utils.LogWarn("WhatsApp order notification failed", map[string]interface{}{"order_id": snapshot.ID, "error": err.Error()})
		}

		if user.FCMToken != nil && *user.FCMToken != "" {
			err := d.push.Send(ctx, *user.FCMToken, "Order "+snapshot.DisplayID, fmt.Sprintf(text, snapshot.DisplayID), map[string]string{
				"type":     "ORDER_STATUS",
				"order_id": utils.Int64ToStr(snapshot.ID),
				"status":   string(snapshot.Status),
			})
			if err != nil {
				utils.LogWarn("Push order notification failed", map[string]interface{}{"order_id": snapshot.ID, "error": err.Error()})
			}
		}
	})
}

// NotifyStockUpdate publishes an item's counters to the inventory channel.
func (d *Dispatcher) NotifyStockUpdate(item *models.MenuItem) {
	if item == nil || d.events == nil {
		return
	}
	data := map[string]interface{}{
		"id":              item.ID,
		"name":            item.Name,
		"stock":           item.Stock,
		"reserved_stock":  item.ReservedStock,
		"available_stock": item.AvailableStock(),
		"is_available":    item.IsAvailable,
	}
	d.goAsync("stock_update", func(ctx context.Context) {
		if err := d.events.Publish(ctx, cache.ChannelInventory, "inventory.updated", data); err != nil {
			utils.LogWarn("Failed to publish stock event", map[string]interface{}{"item_id": data["id"], "error": err.Error()})
		}
	})
}

// NotifySubscriptionExpiring reminds a customer whose plan ends soon.
func (d *Dispatcher) NotifySubscriptionExpiring(sub *models.UserSubscription) {
	if sub == nil {
		return
	}
	snapshot := *sub
	d.goAsync("subscription_expiring", func(ctx context.Context) {
		user, err := d.users.FindUserByID(ctx, nil, snapshot.UserID)
		if err != nil {
			utils.LogWarn("Expiry reminder skipped, user lookup failed", map[string]interface{}{"subscription_id": snapshot.ID, "error": err.Error()})
			return
		}
		plan := models.PlanDisplayName(snapshot.PlanType)
		endDate := snapshot.EndDate.Format("02 Jan 2006")

		if err := d.whatsapp.SendTemplate(ctx, user.Phone, TemplateSubscriptionExpiring, user.Name, plan, endDate); err != nil {
			utils.LogWarn("WhatsApp expiry reminder failed", map[string]interface{}{"subscription_id": snapshot.ID, "error": err.Error()})
		}
		if user.FCMToken != nil && *user.FCMToken != "" {
			body := fmt.Sprintf("Your %s plan ends on %s. Renew to keep your meals coming.", plan, endDate)
			if err := d.push.Send(ctx, *user.FCMToken, "Subscription expiring", body, map[string]string{
				"type": "SUBSCRIPTION_EXPIRING",
				"url":  "/subscription",
			}); err != nil {
				utils.LogWarn("Push expiry reminder failed", map[string]interface{}{"subscription_id": snapshot.ID, "error": err.Error()})
			}
		}
	})
}

// lowStockSummary renders "Milk (2), Eggs (5)" capped at 100 characters.
func lowStockSummary(items []models.MenuItem) string {
	parts := make([]string, 0, len(items))
	for i := range items {
		parts = append(parts, fmt.Sprintf("%s (%d)", items[i].Name, items[i].AvailableStock()))
	}
	summary := strings.Join(parts, ", ")
	if len(summary) > 100 {
		summary = summary[:100] + "..."
	}
	return summary
}

// NotifyLowStock alerts staff devices and the admin WhatsApp number.
func (d *Dispatcher) NotifyLowStock(items []models.MenuItem) {
	if len(items) == 0 {
		return
	}
	summary := lowStockSummary(items)
	d.goAsync("low_stock", func(ctx context.Context) {
		if d.adminPhone != "" {
			if err := d.whatsapp.SendTemplate(ctx, d.adminPhone, TemplateLowStock, summary); err != nil {
				utils.LogWarn("WhatsApp low stock alert failed", map[string]interface{}{"error": err.Error()})
			}
		}

		staff, err := d.users.FindStaffWithPushTokens(ctx)
		if err != nil {
			utils.LogWarn("Low stock push skipped, staff lookup failed", map[string]interface{}{"error": err.Error()})
			return
		}
		for _, u := range staff {
			if u.FCMToken == nil {
				continue
			}
			if err := d.push.Send(ctx, *u.FCMToken, "Low Stock Alert", "Running low on: "+summary, map[string]string{
				"type": "LOW_STOCK_ALERT",
				"url":  "/admin/stock",
			}); err != nil {
				utils.LogWarn("Push low stock alert failed", map[string]interface{}{"user_id": u.ID, "error": err.Error()})
			}
		}
	})
}
