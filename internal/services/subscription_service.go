package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cafe_backend/internal/models"
	"cafe_backend/internal/repositories"
	"cafe_backend/pkg/utils"
)

const (
	expiryReminderWindow = 48 * time.Hour
	maxRenewalCycles     = 12
)

// SubscriptionStatusResponse is what the customer app shows on its plan screen.
type SubscriptionStatusResponse struct {
	HasSubscription  bool                     `json:"has_subscription"`
	Subscription     *models.UserSubscription `json:"subscription,omitempty"`
	PlanName         string                   `json:"plan_name,omitempty"`
	CreditsRemaining int                      `json:"credits_remaining"`
	DailyRemaining   int                      `json:"daily_remaining"`
	DaysRemaining    int                      `json:"days_remaining"`
	IsActive         bool                     `json:"is_active"`
}

// RenewalSummary is the cron report of one ProcessRenewals run.
type RenewalSummary struct {
	Renewed   int `json:"renewed"`
	Expired   int `json:"expired"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ExpirySummary is the cron report of one ProcessExpiry run.
type ExpirySummary struct {
	Expired   int `json:"expired"`
	Reminders int `json:"reminders"`
}

// --- SubscriptionService Interface ---
type SubscriptionService interface {
	ValidateQuota(ctx context.Context, userID int64, qty int) (models.QuotaResult, error)
	DeductCredits(ctx context.Context, exec repositories.SQLExecutor, userID int64, qty int) (*models.UserSubscription, time.Time, error)
	RestoreCredits(ctx context.Context, exec repositories.SQLExecutor, subscriptionID, userID int64, usageDate *time.Time, qty int) error

	Activate(ctx context.Context, userID int64, planType string) (*models.UserSubscription, error)
	Cancel(ctx context.Context, userID int64, reason *string) (*models.UserSubscription, error)
	SetAutoRenew(ctx context.Context, userID int64, autoRenew bool) (*models.UserSubscription, error)
	GetStatus(ctx context.Context, userID int64) (*SubscriptionStatusResponse, error)

	ResetDailyLimits(ctx context.Context) (int64, error)
	ProcessRenewals(ctx context.Context) (*RenewalSummary, error)
	ProcessExpiry(ctx context.Context) (*ExpirySummary, error)
}

// --- subscriptionService Implementation ---
type subscriptionService struct {
	subRepo  repositories.SubscriptionRepository
	db       *sql.DB
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

// NewSubscriptionService creates a new instance of SubscriptionService.
// loc is the café's timezone; the daily limit resets on its midnight.
func NewSubscriptionService(subRepo repositories.SubscriptionRepository, db *sql.DB, notifier Notifier, loc *time.Location) SubscriptionService {
	if loc == nil {
		loc = time.UTC
	}
	return &subscriptionService{
		subRepo:  subRepo,
		db:       db,
		notifier: notifierOrNoop(notifier),
		loc:      loc,
		now:      time.Now,
	}
}

// CheckQuota applies the quota rules in order. The first failing rule decides the reason.
func CheckQuota(sub *models.UserSubscription, qty int, now time.Time) models.QuotaResult {
	switch {
	case sub == nil:
		return models.QuotaResult{Code: models.QuotaNoSubscription, Reason: "No active subscription found."}
	case sub.Status != models.SubscriptionActive:
		return models.QuotaResult{Code: models.QuotaInactive, Reason: "Subscription is inactive or paused.", Subscription: sub}
	case now.After(sub.EndDate):
		return models.QuotaResult{Code: models.QuotaExpired, Reason: "Subscription has expired.", Subscription: sub}
	case sub.CreditsUsed+qty > sub.CreditsTotal:
		return models.QuotaResult{
			Code:         models.QuotaMonthlyExceeded,
			Reason:       fmt.Sprintf("Monthly quota exceeded. Remaining: %d", sub.CreditsRemaining()),
			Subscription: sub,
		}
	case sub.DailyUsed+qty > sub.DailyLimit:
		return models.QuotaResult{
			Code:         models.QuotaDailyExceeded,
			Reason:       fmt.Sprintf("Daily limit exceeded. Remaining today: %d", sub.DailyRemaining()),
			Subscription: sub,
		}
	}
	return models.QuotaResult{Valid: true, Subscription: sub}
}

func (s *subscriptionService) ValidateQuota(ctx context.Context, userID int64, qty int) (models.QuotaResult, error) {
	if qty <= 0 {
		return models.QuotaResult{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	sub, err := s.subRepo.GetLatestByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return CheckQuota(nil, qty, s.now()), nil
		}
		return models.QuotaResult{}, fmt.Errorf("failed to load subscription of user %d: %w", userID, err)
	}
	return CheckQuota(sub, qty, s.now()), nil
}

// DeductCredits charges qty credits against the user's active subscription inside exec's
// transaction. It returns the subscription and the café-local usage date to store on the order.
func (s *subscriptionService) DeductCredits(ctx context.Context, exec repositories.SQLExecutor, userID int64, qty int) (*models.UserSubscription, time.Time, error) {
	now := s.now()
	sub, err := s.subRepo.GetActiveByUserID(ctx, exec, userID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, time.Time{}, fmt.Errorf("failed to load subscription of user %d: %w", userID, err)
	}
	if result := CheckQuota(sub, qty, now); !result.Valid {
		return nil, time.Time{}, &QuotaError{Result: result}
	}

	if err := s.subRepo.DeductCredits(ctx, exec, sub.ID, qty, now); err != nil {
		if !errors.Is(err, repositories.ErrConditionNotMet) {
			return nil, time.Time{}, retryable(err, "failed to deduct credits")
		}
		// The guarded update saw different counters than our read. Report the current reason.
		fresh, readErr := s.subRepo.GetByID(ctx, exec, sub.ID)
		if readErr == nil {
			if result := CheckQuota(fresh, qty, now); !result.Valid {
				return nil, time.Time{}, &QuotaError{Result: result}
			}
		}
		return nil, time.Time{}, fmt.Errorf("%w: subscription %d changed during deduction", ErrRetryable, sub.ID)
	}

	usageDay := calendarDay(now, s.loc)
	if err := s.subRepo.IncrementDailyUsage(ctx, exec, userID, usageDay, qty); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to record daily usage: %w", err)
	}

	sub.CreditsUsed += qty
	sub.DailyUsed += qty
	return sub, usageDay, nil
}

// RestoreCredits returns credits to the subscription recorded on the order. The daily
// counter is only restored when the order was placed today; otherwise it was already reset.
func (s *subscriptionService) RestoreCredits(ctx context.Context, exec repositories.SQLExecutor, subscriptionID, userID int64, usageDate *time.Time, qty int) error {
	today := calendarDay(s.now(), s.loc)
	restoreDaily := usageDate != nil && calendarDay(*usageDate, time.UTC).Equal(today)

	if err := s.subRepo.RestoreCredits(ctx, exec, subscriptionID, qty, restoreDaily); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			utils.LogWarn("Credit restore skipped, subscription missing", map[string]interface{}{
				"subscription_id": subscriptionID,
				"user_id":         userID,
			})
			return nil
		}
		return fmt.Errorf("failed to restore credits: %w", err)
	}
	if usageDate != nil {
		if err := s.subRepo.DecrementDailyUsage(ctx, exec, userID, *usageDate, qty); err != nil {
			return fmt.Errorf("failed to restore daily usage: %w", err)
		}
	}
	return nil
}

func (s *subscriptionService) Activate(ctx context.Context, userID int64, planType string) (*models.UserSubscription, error) {
	plan, ok := models.LookupPlan(planType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrValidation, planType)
	}
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.subRepo.GetActiveByUserID(ctx, tx, userID)
	switch {
	case err == nil && !now.After(current.EndDate):
		return nil, fmt.Errorf("%w: plan %s is active until %s", ErrSubscriptionExists,
			models.PlanDisplayName(current.PlanType), current.EndDate.In(s.loc).Format("02 Jan 2006"))
	case err == nil:
		if err := s.subRepo.Close(ctx, tx, current.ID, models.SubscriptionExpired); err != nil {
			return nil, retryable(err, "failed to close lapsed subscription")
		}
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, fmt.Errorf("failed to check existing subscription: %w", err)
	}

	sub := &models.UserSubscription{
		UserID:       userID,
		PlanType:     plan.Type,
		CreditsTotal: plan.CreditsTotal,
		DailyLimit:   plan.DailyLimit,
		StartDate:    now,
		EndDate:      plan.PeriodEnd(now),
		Status:       models.SubscriptionActive,
		AutoRenew:    plan.Renewable,
	}
	if _, err := s.subRepo.Create(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit subscription: %w", err)
	}

	utils.LogInfo("Subscription activated", map[string]interface{}{"user_id": userID, "plan": plan.Type, "subscription_id": sub.ID})
	return sub, nil
}

func (s *subscriptionService) activeSubscription(ctx context.Context, exec repositories.SQLExecutor, userID int64) (*models.UserSubscription, error) {
	sub, err := s.subRepo.GetActiveByUserID(ctx, exec, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to load subscription of user %d: %w", userID, err)
	}
	return sub, nil
}

// Cancel keeps access until the end date and stops renewal.
func (s *subscriptionService) Cancel(ctx context.Context, userID int64, reason *string) (*models.UserSubscription, error) {
	sub, err := s.activeSubscription(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if sub.IsCancelled {
		return nil, fmt.Errorf("%w: subscription is already cancelled", ErrValidation)
	}

	now := s.now()
	if reason != nil {
		reason = utils.NewNullString(*reason)
	}
	if err := s.subRepo.Cancel(ctx, s.db, sub.ID, reason, now); err != nil {
		if errors.Is(err, repositories.ErrConditionNotMet) {
			return nil, fmt.Errorf("%w: subscription is already cancelled", ErrValidation)
		}
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	sub.IsCancelled = true
	sub.CancelledAt = &now
	sub.CancellationReason = reason
	sub.AutoRenew = false
	return sub, nil
}

func (s *subscriptionService) SetAutoRenew(ctx context.Context, userID int64, autoRenew bool) (*models.UserSubscription, error) {
	sub, err := s.activeSubscription(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if autoRenew {
		if sub.IsCancelled {
			return nil, fmt.Errorf("%w: a cancelled subscription cannot be renewed automatically", ErrValidation)
		}
		if plan, ok := models.LookupPlan(sub.PlanType); !ok || !plan.Renewable {
			return nil, fmt.Errorf("%w: plan %s does not renew", ErrValidation, models.PlanDisplayName(sub.PlanType))
		}
	}

	if err := s.subRepo.SetAutoRenew(ctx, s.db, sub.ID, autoRenew); err != nil {
		return nil, retryable(err, "failed to update auto renew")
	}
	sub.AutoRenew = autoRenew
	return sub, nil
}

func (s *subscriptionService) GetStatus(ctx context.Context, userID int64) (*SubscriptionStatusResponse, error) {
	sub, err := s.subRepo.GetLatestByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return &SubscriptionStatusResponse{HasSubscription: false}, nil
		}
		return nil, fmt.Errorf("failed to load subscription of user %d: %w", userID, err)
	}

	now := s.now()
	return &SubscriptionStatusResponse{
		HasSubscription:  true,
		Subscription:     sub,
		PlanName:         models.PlanDisplayName(sub.PlanType),
		CreditsRemaining: sub.CreditsRemaining(),
		DailyRemaining:   sub.DailyRemaining(),
		DaysRemaining:    sub.DaysRemaining(now),
		IsActive:         sub.Status == models.SubscriptionActive && !now.After(sub.EndDate),
	}, nil
}

func (s *subscriptionService) ResetDailyLimits(ctx context.Context) (int64, error) {
	n, err := s.subRepo.ResetDailyUsed(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily limits: %w", err)
	}
	utils.LogInfo("Daily subscription limits reset", map[string]interface{}{"subscriptions": n})
	return n, nil
}

// ProcessRenewals rolls due subscriptions forward from their old end date, so a late cron
// run does not shift the billing anchor. Cancelled and non-renewing ones are closed.
func (s *subscriptionService) ProcessRenewals(ctx context.Context) (*RenewalSummary, error) {
	now := s.now()
	due, err := s.subRepo.GetDueForRenewal(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions due for renewal: %w", err)
	}

	summary := &RenewalSummary{}
	for i := range due {
		sub := &due[i]
		plan, known := models.LookupPlan(sub.PlanType)

		var opErr error
		switch {
		case sub.IsCancelled:
			opErr = s.subRepo.Close(ctx, s.db, sub.ID, models.SubscriptionCancelled)
			if opErr == nil {
				summary.Cancelled++
			}
		case !sub.AutoRenew || !known || !plan.Renewable:
			opErr = s.subRepo.Close(ctx, s.db, sub.ID, models.SubscriptionExpired)
			if opErr == nil {
				summary.Expired++
			}
		default:
			start, end := sub.EndDate, plan.PeriodEnd(sub.EndDate)
			for cycles := 1; !end.After(now) && cycles < maxRenewalCycles; cycles++ {
				start, end = end, plan.PeriodEnd(end)
			}
			if start.Equal(sub.EndDate) {
				opErr = s.subRepo.Renew(ctx, s.db, sub.ID, start, end)
			} else {
				// Several cycles were missed: anchor the guard on the stored end date.
				opErr = s.renewSkipping(ctx, sub, start, end)
			}
			if opErr == nil {
				summary.Renewed++
			}
		}

		if opErr != nil {
			if errors.Is(opErr, repositories.ErrConditionNotMet) {
				summary.Skipped++
				continue
			}
			summary.Failed++
			utils.LogError(opErr, "Subscription renewal failed", map[string]interface{}{"subscription_id": sub.ID})
		}
	}

	utils.LogInfo("Subscription renewals processed", map[string]interface{}{
		"renewed": summary.Renewed, "expired": summary.Expired, "cancelled": summary.Cancelled,
		"skipped": summary.Skipped, "failed": summary.Failed,
	})
	return summary, nil
}

// renewSkipping first rolls the row onto the stored end date and then to the target
// cycle, inside one transaction, keeping both guarded statements.
func (s *subscriptionService) renewSkipping(ctx context.Context, sub *models.UserSubscription, start, end time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.subRepo.Renew(ctx, tx, sub.ID, sub.EndDate, start); err != nil {
		return err
	}
	if err := s.subRepo.Renew(ctx, tx, sub.ID, start, end); err != nil {
		return err
	}
	return tx.Commit()
}

// ProcessExpiry closes lapsed subscriptions that will not renew and reminds customers
// whose plan ends within two days.
func (s *subscriptionService) ProcessExpiry(ctx context.Context) (*ExpirySummary, error) {
	now := s.now()
	summary := &ExpirySummary{}

	due, err := s.subRepo.GetDueForRenewal(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed subscriptions: %w", err)
	}
	for i := range due {
		sub := &due[i]
		if sub.AutoRenew && !sub.IsCancelled {
			continue
		}
		status := models.SubscriptionExpired
		if sub.IsCancelled {
			status = models.SubscriptionCancelled
		}
		if err := s.subRepo.Close(ctx, s.db, sub.ID, status); err != nil {
			if !errors.Is(err, repositories.ErrConditionNotMet) {
				utils.LogError(err, "Failed to close lapsed subscription", map[string]interface{}{"subscription_id": sub.ID})
			}
			continue
		}
		summary.Expired++
	}

	expiring, err := s.subRepo.GetExpiringBetween(ctx, now, now.Add(expiryReminderWindow))
	if err != nil {
		return summary, fmt.Errorf("failed to list expiring subscriptions: %w", err)
	}
	for i := range expiring {
		s.notifier.NotifySubscriptionExpiring(&expiring[i])
		summary.Reminders++
	}
	return summary, nil
}
