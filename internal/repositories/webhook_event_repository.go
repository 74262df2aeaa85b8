package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cafe_backend/internal/models"
)

// WebhookEventRepository remembers which gateway deliveries were already applied.
type WebhookEventRepository interface {
	// Record inserts the event and returns ErrDuplicateKey when (provider, event_id) was seen before.
	Record(ctx context.Context, executor SQLExecutor, event *models.PaymentWebhookEvent) error
	Exists(ctx context.Context, provider, eventID string) (bool, error)
}

type webhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Record(ctx context.Context, executor SQLExecutor, event *models.PaymentWebhookEvent) error {
	// ON CONFLICT keeps the surrounding transaction usable on a duplicate.
	query := `INSERT INTO payment_webhook_events (provider, event_id, event_type, payload, processing_error)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (provider, event_id) DO NOTHING
	          RETURNING id, processed_at`
	payload := []byte(event.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	err := executor.QueryRowContext(ctx, query,
		event.Provider, event.EventID, event.EventType, string(payload), event.ProcessingError,
	).Scan(&event.ID, &event.ProcessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: webhook event %s/%s already processed", ErrDuplicateKey, event.Provider, event.EventID)
		}
		return wrapDBError(err, "recording webhook event")
	}
	return nil
}

func (r *webhookEventRepository) Exists(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM payment_webhook_events WHERE provider = $1 AND event_id = $2)`
	if err := r.db.QueryRowContext(ctx, query, provider, eventID).Scan(&exists); err != nil {
		return false, wrapDBError(err, "checking webhook event")
	}
	return exists, nil
}
