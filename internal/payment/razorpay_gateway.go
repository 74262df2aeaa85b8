package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cafe_backend/internal/config"
	"cafe_backend/pkg/utils"

	"github.com/google/uuid"
	razorpay "github.com/razorpay/razorpay-go"
)

// Currency is the only currency the café charges in.
const Currency = "INR"

var ErrGatewayRequest = errors.New("payment gateway request failed")

// GatewayOrder is the checkout handle returned to the client.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // paise
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	KeyID    string `json:"key_id,omitempty"`
	Mock     bool   `json:"mock,omitempty"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// orderAPI and refundAPI narrow the razorpay SDK resources to what the gateway calls.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type refundAPI interface {
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway talks to Razorpay. Without API keys it runs in mock mode and
// fabricates ids locally so checkout can be exercised end to end in development.
type RazorpayGateway struct {
	keyID    string
	orders   orderAPI
	payments refundAPI
	mock     bool
}

func NewRazorpayGateway(cfg config.RazorpayConfig) *RazorpayGateway {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		utils.LogWarn("Razorpay keys not configured, payment gateway running in mock mode")
		return &RazorpayGateway{mock: true}
	}
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return &RazorpayGateway{
		keyID:    cfg.KeyID,
		orders:   client.Order,
		payments: client.Payment,
	}
}

func (g *RazorpayGateway) IsMock() bool {
	return g.mock
}

// CreateOrder registers a gateway order. The SDK is synchronous, so ctx only
// short-circuits a request that was already cancelled.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (*GatewayOrder, error) {
	if amountPaise <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrGatewayRequest, amountPaise)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if g.mock {
		id := "order_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
		utils.LogInfo("Mock gateway order created", map[string]interface{}{"gateway_order_id": id, "receipt": receipt})
		return &GatewayOrder{ID: id, Amount: amountPaise, Currency: Currency, Receipt: receipt, Mock: true}, nil
	}

	data := map[string]interface{}{
		"amount":   amountPaise,
		"currency": Currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	body, err := g.orders.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating order %s: %v", ErrGatewayRequest, receipt, err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: creating order %s: response has no id", ErrGatewayRequest, receipt)
	}
	return &GatewayOrder{ID: id, Amount: amountPaise, Currency: Currency, Receipt: receipt, KeyID: g.keyID}, nil
}

// Refund issues a full or partial refund against a captured payment.
func (g *RazorpayGateway) Refund(ctx context.Context, paymentID string, amountPaise int64) (*Refund, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: refund requires a payment id", ErrGatewayRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if g.mock {
		return &Refund{
			ID:        "rfnd_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
			PaymentID: paymentID,
			Amount:    amountPaise,
			Status:    "processed",
		}, nil
	}

	body, err := g.payments.Refund(paymentID, int(amountPaise), map[string]interface{}{"speed": "normal"}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: refunding payment %s: %v", ErrGatewayRequest, paymentID, err)
	}
	refund := &Refund{PaymentID: paymentID, Amount: amountPaise}
	refund.ID, _ = body["id"].(string)
	refund.Status, _ = body["status"].(string)
	if refund.ID == "" {
		return nil, fmt.Errorf("%w: refunding payment %s: response has no id", ErrGatewayRequest, paymentID)
	}
	return refund, nil
}
