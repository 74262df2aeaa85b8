package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// VerifyWebhookSignature checks the X-Razorpay-Signature header: hex HMAC-SHA256 of
// the raw body keyed by the webhook secret. An unset secret never verifies.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// SignWebhookBody produces the signature Razorpay would send for body.
func SignWebhookBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookEvent is the subset of a Razorpay webhook payload the café reacts to.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Amount           int64  `json:"amount"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decoding webhook payload: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("webhook payload has no event name")
	}
	return &ev, nil
}

func (e *WebhookEvent) PaymentID() string {
	return e.Payload.Payment.Entity.ID
}

// GatewayOrderID prefers the payment entity and falls back to the order entity (order.paid).
func (e *WebhookEvent) GatewayOrderID() string {
	if id := e.Payload.Payment.Entity.OrderID; id != "" {
		return id
	}
	return e.Payload.Order.Entity.ID
}

func (e *WebhookEvent) IsCaptured() bool {
	return e.Event == EventPaymentCaptured || e.Event == EventOrderPaid
}

func (e *WebhookEvent) IsFailed() bool {
	return e.Event == EventPaymentFailed
}

// FailureReason is the gateway's description of a failed payment, if any.
func (e *WebhookEvent) FailureReason() string {
	return e.Payload.Payment.Entity.ErrorDescription
}
