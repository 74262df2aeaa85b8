package services

import (
	"errors"
	"fmt"

	"cafe_backend/internal/models"
	"cafe_backend/internal/repositories"
)

// Custom Errors. Handlers map these to HTTP statuses with errors.Is.
var (
	ErrValidation                = errors.New("validation error")
	ErrOrderNotFound             = errors.New("order not found")
	ErrMenuItemNotFound          = errors.New("menu item not found")
	ErrItemUnavailable           = errors.New("item unavailable")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrQuotaRejected             = errors.New("subscription quota rejected")
	ErrCancellationWindowExpired = errors.New("cancellation window expired")
	ErrOrderNotCancellable       = errors.New("order can no longer be cancelled")
	ErrOrderOwnership            = errors.New("order belongs to another user")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrInvalidOrderStatus        = errors.New("invalid order status")
	ErrPaymentGateway            = errors.New("payment gateway unavailable")
	ErrInvalidSignature          = errors.New("invalid webhook signature")
	ErrRetryable                 = errors.New("concurrent update, please retry")

	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrSubscriptionNotFound = errors.New("no active subscription found")
	ErrSubscriptionExists   = errors.New("user already has an active subscription")
)

// QuotaError carries the specific quota rule that rejected a subscription order.
type QuotaError struct {
	Result models.QuotaResult
}

func (e *QuotaError) Error() string {
	return e.Result.Reason
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaRejected
}

// StockError names the item that could not be reserved or sold.
type StockError struct {
	ItemID    int64
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Requested: %d, Available: %d", e.Name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// retryable turns serialization failures and lost compare-and-set races into ErrRetryable.
func retryable(err error, op string) error {
	if errors.Is(err, repositories.ErrConcurrentUpdate) || errors.Is(err, repositories.ErrConditionNotMet) {
		return fmt.Errorf("%w: %s: %v", ErrRetryable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
