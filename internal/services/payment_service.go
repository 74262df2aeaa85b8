package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cafe_backend/internal/models"
	"cafe_backend/internal/payment"
	"cafe_backend/internal/repositories"
	"cafe_backend/pkg/utils"
)

// Webhook outcomes reported back in WebhookResult.Action.
const (
	WebhookConfirmed        = "confirmed"
	WebhookFailed           = "payment_failed"
	WebhookDuplicate        = "duplicate"
	WebhookIgnored          = "ignored"
	WebhookOrderNotFound    = "order_not_found"
	WebhookAlreadyProcessed = "already_processed"
)

// WebhookResult is returned to the gateway. Received is true for every verified delivery.
type WebhookResult struct {
	Received bool   `json:"received"`
	Action   string `json:"action,omitempty"`
}

// --- PaymentService Interface ---
type PaymentService interface {
	HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error)
}

type paymentService struct {
	db            *sql.DB
	orderRepo     repositories.OrderRepository
	webhookRepo   repositories.WebhookEventRepository
	inventory     InventoryService
	notifier      Notifier
	webhookSecret string
}

// NewPaymentService creates a new instance of PaymentService.
func NewPaymentService(
	db *sql.DB,
	orderRepo repositories.OrderRepository,
	webhookRepo repositories.WebhookEventRepository,
	inventory InventoryService,
	notifier Notifier,
	webhookSecret string,
) PaymentService {
	return &paymentService{
		db:            db,
		orderRepo:     orderRepo,
		webhookRepo:   webhookRepo,
		inventory:     inventory,
		notifier:      notifierOrNoop(notifier),
		webhookSecret: webhookSecret,
	}
}

// HandleWebhook applies a gateway payment event exactly once. The event id is recorded
// in the same transaction as the order change; replays find it and do nothing.
func (s *paymentService) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error) {
	if !payment.VerifyWebhookSignature(body, signature, s.webhookSecret) {
		return nil, ErrInvalidSignature
	}
	event, err := payment.ParseWebhookEvent(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !event.IsCaptured() && !event.IsFailed() {
		return &WebhookResult{Received: true, Action: WebhookIgnored}, nil
	}

	gatewayOrderID := event.GatewayOrderID()
	if eventID == "" {
		eventID = event.Event + ":" + event.PaymentID()
	}
	logFields := map[string]interface{}{"event": event.Event, "event_id": eventID, "gateway_order_id": gatewayOrderID}

	seen, err := s.webhookRepo.Exists(ctx, models.ProviderRazorpay, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to check webhook event: %w", err)
	}
	if seen {
		utils.LogInfo("Duplicate webhook delivery ignored", logFields)
		return &WebhookResult{Received: true, Action: WebhookDuplicate}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	record := &models.PaymentWebhookEvent{
		Provider:  models.ProviderRazorpay,
		EventID:   eventID,
		EventType: event.Event,
		Payload:   body,
	}
	if err := s.webhookRepo.Record(ctx, tx, record); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			utils.LogInfo("Duplicate webhook delivery ignored", logFields)
			return &WebhookResult{Received: true, Action: WebhookDuplicate}, nil
		}
		return nil, fmt.Errorf("failed to record webhook event: %w", err)
	}

	order, err := s.orderRepo.GetOrderByGatewayOrderID(ctx, tx, gatewayOrderID)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to find order for webhook: %w", err)
		}
		utils.LogWarn("Webhook for unknown gateway order", logFields)
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit webhook event: %w", err)
		}
		return &WebhookResult{Received: true, Action: WebhookOrderNotFound}, nil
	}
	logFields["order_id"] = order.ID

	if order.Status != models.StatusPendingPayment {
		logFields["status"] = order.Status
		if event.IsCaptured() && order.Status != models.StatusConfirmed {
			// Money arrived after the checkout was abandoned.
			utils.LogWarn("Payment captured for an order that is no longer payable, refund manually", logFields)
		} else {
			utils.LogInfo("Webhook for order no longer awaiting payment", logFields)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit webhook event: %w", err)
		}
		return &WebhookResult{Received: true, Action: WebhookAlreadyProcessed}, nil
	}

	items, err := s.orderRepo.GetOrderItemsByOrderID(ctx, tx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items of order %d: %w", order.ID, err)
	}

	from := models.StatusPendingPayment
	var action string
	var statusEvent models.OrderStatusEvent
	if event.IsCaptured() {
		action = WebhookConfirmed
		if err := s.orderRepo.MarkPaid(ctx, tx, order.ID, event.PaymentID()); err != nil {
			if errors.Is(err, repositories.ErrConditionNotMet) {
				utils.LogWarn("Payment captured while the order left PENDING_PAYMENT, refund manually", logFields)
				return &WebhookResult{Received: true, Action: WebhookAlreadyProcessed}, nil
			}
			return nil, retryable(err, fmt.Sprintf("failed to confirm order %d", order.ID))
		}
		for _, it := range items {
			if err := s.inventory.ConsumeReserved(ctx, tx, it.MenuItemID, it.Quantity, &order.ID); err != nil {
				return nil, err
			}
		}
		paymentID := event.PaymentID()
		order.Status = models.StatusConfirmed
		order.PaymentID = &paymentID
		statusEvent = models.OrderStatusEvent{OrderID: order.ID, FromStatus: &from, ToStatus: models.StatusConfirmed}
	} else {
		action = WebhookFailed
		reason := event.FailureReason()
		meta := models.StatusMeta{Reason: &reason}
		if err := s.orderRepo.TransitionStatus(ctx, tx, order.ID, from, models.StatusPaymentFailed, meta); err != nil {
			if errors.Is(err, repositories.ErrConditionNotMet) {
				utils.LogInfo("Payment failure for an order that left PENDING_PAYMENT", logFields)
				return &WebhookResult{Received: true, Action: WebhookAlreadyProcessed}, nil
			}
			return nil, retryable(err, fmt.Sprintf("failed to mark order %d as payment failed", order.ID))
		}
		for _, it := range items {
			if err := s.inventory.ReleaseStock(ctx, tx, it.MenuItemID, it.Quantity, &order.ID); err != nil {
				return nil, err
			}
		}
		order.Status = models.StatusPaymentFailed
		order.StatusReason = &reason
		statusEvent = models.OrderStatusEvent{OrderID: order.ID, FromStatus: &from, ToStatus: models.StatusPaymentFailed, Reason: &reason}
	}

	if _, err := s.orderRepo.CreateStatusEvent(ctx, tx, &statusEvent); err != nil {
		return nil, fmt.Errorf("failed to record status event for order %d: %w", order.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit webhook: %w", err)
	}

	order.Items = items
	s.inventory.StockChanged(ctx, orderItemIDs(items)...)
	s.notifier.NotifyOrderStatus(order)

	utils.LogInfo("Payment webhook applied", logFields)
	return &WebhookResult{Received: true, Action: action}, nil
}
