package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cafe_backend/internal/models"
)

// SubscriptionRepository owns user_subscriptions and daily_usage. Credit counters
// are only written through DeductCredits, RestoreCredits and the cron resets.
type SubscriptionRepository interface {
	Create(ctx context.Context, executor SQLExecutor, sub *models.UserSubscription) (int64, error)
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.UserSubscription, error)
	GetActiveByUserID(ctx context.Context, executor SQLExecutor, userID int64) (*models.UserSubscription, error)
	GetLatestByUserID(ctx context.Context, userID int64) (*models.UserSubscription, error)

	DeductCredits(ctx context.Context, executor SQLExecutor, id int64, qty int, now time.Time) error
	RestoreCredits(ctx context.Context, executor SQLExecutor, id int64, qty int, restoreDaily bool) error
	IncrementDailyUsage(ctx context.Context, executor SQLExecutor, userID int64, date time.Time, qty int) error
	DecrementDailyUsage(ctx context.Context, executor SQLExecutor, userID int64, date time.Time, qty int) error

	Cancel(ctx context.Context, executor SQLExecutor, id int64, reason *string, now time.Time) error
	SetAutoRenew(ctx context.Context, executor SQLExecutor, id int64, autoRenew bool) error
	ResetDailyUsed(ctx context.Context) (int64, error)
	GetDueForRenewal(ctx context.Context, now time.Time) ([]models.UserSubscription, error)
	Renew(ctx context.Context, executor SQLExecutor, id int64, start, end time.Time) error
	Close(ctx context.Context, executor SQLExecutor, id int64, status models.SubscriptionStatus) error
	GetExpiringBetween(ctx context.Context, from, to time.Time) ([]models.UserSubscription, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a new instance of SubscriptionRepository.
func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, plan_type, credits_total, credits_used, daily_limit, daily_used,
	start_date, end_date, status, auto_renew, is_cancelled, cancelled_at, cancellation_reason, created_at, updated_at`

func scanSubscription(s scanner, sub *models.UserSubscription) error {
	return s.Scan(
		&sub.ID, &sub.UserID, &sub.PlanType, &sub.CreditsTotal, &sub.CreditsUsed, &sub.DailyLimit, &sub.DailyUsed,
		&sub.StartDate, &sub.EndDate, &sub.Status, &sub.AutoRenew, &sub.IsCancelled, &sub.CancelledAt,
		&sub.CancellationReason, &sub.CreatedAt, &sub.UpdatedAt,
	)
}

func (r *subscriptionRepository) querySubscriptions(ctx context.Context, query string, args ...interface{}) ([]models.UserSubscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "querying subscriptions")
	}
	defer rows.Close()

	subs := []models.UserSubscription{}
	for rows.Next() {
		var sub models.UserSubscription
		if err := scanSubscription(rows, &sub); err != nil {
			return nil, fmt.Errorf("%w: scanning subscription: %v", ErrDatabaseError, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating subscriptions: %v", ErrDatabaseError, err)
	}
	return subs, nil
}

func (r *subscriptionRepository) getOne(ctx context.Context, executor SQLExecutor, op, query string, args ...interface{}) (*models.UserSubscription, error) {
	if executor == nil {
		executor = r.db
	}
	sub := &models.UserSubscription{}
	if err := scanSubscription(executor.QueryRowContext(ctx, query, args...), sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDatabaseError, op, err)
	}
	return sub, nil
}

func (r *subscriptionRepository) Create(ctx context.Context, executor SQLExecutor, sub *models.UserSubscription) (int64, error) {
	query := `INSERT INTO user_subscriptions
	            (user_id, plan_type, credits_total, credits_used, daily_limit, daily_used,
	             start_date, end_date, status, auto_renew, created_at, updated_at)
	          VALUES ($1, $2, $3, 0, $4, 0, $5, $6, $7, $8, NOW(), NOW())
	          RETURNING id, created_at, updated_at`
	err := executor.QueryRowContext(ctx, query,
		sub.UserID, sub.PlanType, sub.CreditsTotal, sub.DailyLimit, sub.StartDate, sub.EndDate, sub.Status, sub.AutoRenew,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return 0, wrapDBError(err, "creating subscription")
	}
	return sub.ID, nil
}

func (r *subscriptionRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.UserSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE id = $1`
	return r.getOne(ctx, executor, fmt.Sprintf("getting subscription %d", id), query, id)
}

// GetActiveByUserID returns the newest ACTIVE subscription. Inside a transaction the row is locked.
func (r *subscriptionRepository) GetActiveByUserID(ctx context.Context, executor SQLExecutor, userID int64) (*models.UserSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions
	          WHERE user_id = $1 AND status = 'ACTIVE'
	          ORDER BY end_date DESC
	          LIMIT 1`
	if _, inTx := executor.(*sql.Tx); inTx {
		query += ` FOR UPDATE`
	}
	return r.getOne(ctx, executor, fmt.Sprintf("getting active subscription of user %d", userID), query, userID)
}

// GetLatestByUserID returns the most recent subscription in any status.
func (r *subscriptionRepository) GetLatestByUserID(ctx context.Context, userID int64) (*models.UserSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions
	          WHERE user_id = $1
	          ORDER BY (status = 'ACTIVE') DESC, end_date DESC
	          LIMIT 1`
	return r.getOne(ctx, r.db, fmt.Sprintf("getting latest subscription of user %d", userID), query, userID)
}

// DeductCredits re-checks every quota ceiling in the same statement that increments the counters.
func (r *subscriptionRepository) DeductCredits(ctx context.Context, executor SQLExecutor, id int64, qty int, now time.Time) error {
	query := `UPDATE user_subscriptions
	          SET credits_used = credits_used + $1, daily_used = daily_used + $1, updated_at = NOW()
	          WHERE id = $2
	            AND status = 'ACTIVE'
	            AND end_date >= $3
	            AND credits_used + $1 <= credits_total
	            AND daily_used + $1 <= daily_limit`
	res, err := executor.ExecContext(ctx, query, qty, id, now)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("deducting credits from subscription %d", id))
	}
	return expectAffected(res, fmt.Sprintf("deducting credits from subscription %d", id))
}

// RestoreCredits gives credits back, never below zero. restoreDaily is false when
// the daily counter has been reset since the order was placed.
func (r *subscriptionRepository) RestoreCredits(ctx context.Context, executor SQLExecutor, id int64, qty int, restoreDaily bool) error {
	query := `UPDATE user_subscriptions
	          SET credits_used = GREATEST(credits_used - $1, 0),
	              daily_used = CASE WHEN $3 THEN GREATEST(daily_used - $1, 0) ELSE daily_used END,
	              updated_at = NOW()
	          WHERE id = $2`
	res, err := executor.ExecContext(ctx, query, qty, id, restoreDaily)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("restoring credits to subscription %d", id))
	}
	if err := expectAffected(res, "restoring credits"); err != nil {
		return ErrNotFound
	}
	return nil
}

func (r *subscriptionRepository) IncrementDailyUsage(ctx context.Context, executor SQLExecutor, userID int64, date time.Time, qty int) error {
	query := `INSERT INTO daily_usage (user_id, usage_date, items_redeemed) VALUES ($1, $2, $3)
	          ON CONFLICT (user_id, usage_date) DO UPDATE SET items_redeemed = daily_usage.items_redeemed + EXCLUDED.items_redeemed`
	if _, err := executor.ExecContext(ctx, query, userID, date, qty); err != nil {
		return wrapDBError(err, "recording daily usage")
	}
	return nil
}

func (r *subscriptionRepository) DecrementDailyUsage(ctx context.Context, executor SQLExecutor, userID int64, date time.Time, qty int) error {
	query := `UPDATE daily_usage SET items_redeemed = GREATEST(items_redeemed - $1, 0)
	          WHERE user_id = $2 AND usage_date = $3`
	if _, err := executor.ExecContext(ctx, query, qty, userID, date); err != nil {
		return wrapDBError(err, "restoring daily usage")
	}
	return nil
}

// Cancel soft-cancels: access continues until end_date, the cycle will not renew.
func (r *subscriptionRepository) Cancel(ctx context.Context, executor SQLExecutor, id int64, reason *string, now time.Time) error {
	query := `UPDATE user_subscriptions
	          SET is_cancelled = TRUE, cancelled_at = $1, cancellation_reason = $2, auto_renew = FALSE, updated_at = NOW()
	          WHERE id = $3 AND status = 'ACTIVE' AND is_cancelled = FALSE`
	res, err := executor.ExecContext(ctx, query, now, reason, id)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("cancelling subscription %d", id))
	}
	return expectAffected(res, fmt.Sprintf("subscription %d is not cancellable", id))
}

func (r *subscriptionRepository) SetAutoRenew(ctx context.Context, executor SQLExecutor, id int64, autoRenew bool) error {
	query := `UPDATE user_subscriptions SET auto_renew = $1, updated_at = NOW()
	          WHERE id = $2 AND status = 'ACTIVE' AND ($1 = FALSE OR is_cancelled = FALSE)`
	res, err := executor.ExecContext(ctx, query, autoRenew, id)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("updating auto renew of subscription %d", id))
	}
	return expectAffected(res, fmt.Sprintf("auto renew of subscription %d", id))
}

// ResetDailyUsed zeroes every active daily counter. Returns the number of rows touched.
func (r *subscriptionRepository) ResetDailyUsed(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE user_subscriptions SET daily_used = 0, updated_at = NOW()
	                                   WHERE status = 'ACTIVE' AND daily_used > 0`)
	if err != nil {
		return 0, wrapDBError(err, "resetting daily usage")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetDueForRenewal lists active subscriptions whose cycle ended at or before now.
func (r *subscriptionRepository) GetDueForRenewal(ctx context.Context, now time.Time) ([]models.UserSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions
	          WHERE status = 'ACTIVE' AND end_date <= $1
	          ORDER BY end_date`
	return r.querySubscriptions(ctx, query, now)
}

// Renew rolls the cycle forward and resets both counters. Guarded on the old end date
// so two concurrent cron runs cannot renew twice.
func (r *subscriptionRepository) Renew(ctx context.Context, executor SQLExecutor, id int64, start, end time.Time) error {
	query := `UPDATE user_subscriptions
	          SET start_date = $1, end_date = $2, credits_used = 0, daily_used = 0, updated_at = NOW()
	          WHERE id = $3 AND status = 'ACTIVE' AND auto_renew = TRUE AND is_cancelled = FALSE AND end_date = $1`
	res, err := executor.ExecContext(ctx, query, start, end, id)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("renewing subscription %d", id))
	}
	return expectAffected(res, fmt.Sprintf("renewing subscription %d", id))
}

func (r *subscriptionRepository) Close(ctx context.Context, executor SQLExecutor, id int64, status models.SubscriptionStatus) error {
	query := `UPDATE user_subscriptions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = 'ACTIVE'`
	res, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("closing subscription %d", id))
	}
	return expectAffected(res, fmt.Sprintf("closing subscription %d", id))
}

// GetExpiringBetween lists active subscriptions ending in [from, to) that will not renew.
func (r *subscriptionRepository) GetExpiringBetween(ctx context.Context, from, to time.Time) ([]models.UserSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions
	          WHERE status = 'ACTIVE' AND end_date >= $1 AND end_date < $2
	            AND (auto_renew = FALSE OR is_cancelled = TRUE)
	          ORDER BY end_date`
	return r.querySubscriptions(ctx, query, from, to)
}
