package models

import (
	"encoding/json"
	"time"
)

const ProviderRazorpay = "razorpay"

// PaymentWebhookEvent records a processed gateway delivery. (Provider, EventID) is unique.
type PaymentWebhookEvent struct {
	ID              int64           `json:"id"`
	Provider        string          `json:"provider"`
	EventID         string          `json:"event_id"`
	EventType       string          `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
	ProcessedAt     time.Time       `json:"processed_at"`
	ProcessingError *string         `json:"processing_error,omitempty"`
}
