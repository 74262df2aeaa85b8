package models

import (
	"sort"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// UserSubscription is one billing cycle of a plan. Renewal rolls the same row forward.
type UserSubscription struct {
	ID                 int64              `json:"id"`
	UserID             int64              `json:"user_id"`
	PlanType           string             `json:"plan_type"`
	CreditsTotal       int                `json:"credits_total"`
	CreditsUsed        int                `json:"credits_used"`
	DailyLimit         int                `json:"daily_limit"`
	DailyUsed          int                `json:"daily_used"`
	StartDate          time.Time          `json:"start_date"`
	EndDate            time.Time          `json:"end_date"`
	Status             SubscriptionStatus `json:"status"`
	AutoRenew          bool               `json:"auto_renew"`
	IsCancelled        bool               `json:"is_cancelled"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	CancellationReason *string            `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (s *UserSubscription) CreditsRemaining() int {
	if r := s.CreditsTotal - s.CreditsUsed; r > 0 {
		return r
	}
	return 0
}

func (s *UserSubscription) DailyRemaining() int {
	if r := s.DailyLimit - s.DailyUsed; r > 0 {
		return r
	}
	return 0
}

// DaysRemaining rounds partial days up, never negative.
func (s *UserSubscription) DaysRemaining(now time.Time) int {
	left := s.EndDate.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// DailyUsage counts the items a user redeemed on one calendar day.
type DailyUsage struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	UsageDate     time.Time `json:"usage_date"`
	ItemsRedeemed int       `json:"items_redeemed"`
}

// Quota rejection codes.
const (
	QuotaNoSubscription  = "NO_SUBSCRIPTION"
	QuotaInactive        = "SUBSCRIPTION_INACTIVE"
	QuotaExpired         = "SUBSCRIPTION_EXPIRED"
	QuotaMonthlyExceeded = "MONTHLY_QUOTA_EXCEEDED"
	QuotaDailyExceeded   = "DAILY_LIMIT_EXCEEDED"
)

// QuotaResult is the outcome of a quota check. Reason is shown to the customer verbatim.
type QuotaResult struct {
	Valid        bool              `json:"valid"`
	Code         string            `json:"code,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Subscription *UserSubscription `json:"-"`
}

// Plan describes a purchasable subscription tier.
type Plan struct {
	Type         string        `json:"type"`
	DisplayName  string        `json:"display_name"`
	CreditsTotal int           `json:"credits_total"`
	DailyLimit   int           `json:"daily_limit"`
	Price        float64       `json:"price"`
	Duration     time.Duration `json:"-"`
	Months       int           `json:"months,omitempty"`
	Renewable    bool          `json:"renewable"`
}

// PeriodEnd returns the end of a cycle starting at start.
func (p Plan) PeriodEnd(start time.Time) time.Time {
	if p.Months > 0 {
		return start.AddDate(0, p.Months, 0)
	}
	return start.Add(p.Duration)
}

var planCatalogue = map[string]Plan{
	"MONTHLY_MESS":    {Type: "MONTHLY_MESS", DisplayName: "Ultimate Plan", CreditsTotal: 60, DailyLimit: 3, Price: 4999, Months: 1, Renewable: true},
	"LIGHT_BITE":      {Type: "LIGHT_BITE", DisplayName: "Light Bite Pass", CreditsTotal: 30, DailyLimit: 1, Price: 1499, Months: 1, Renewable: true},
	"FEAST_FUEL":      {Type: "FEAST_FUEL", DisplayName: "Feast & Fuel", CreditsTotal: 45, DailyLimit: 2, Price: 2999, Months: 1, Renewable: true},
	"TOTAL_WELLNESS":  {Type: "TOTAL_WELLNESS", DisplayName: "Total Wellness", CreditsTotal: 60, DailyLimit: 2, Price: 3999, Months: 1, Renewable: true},
	"HOT_SIPS_SNACKS": {Type: "HOT_SIPS_SNACKS", DisplayName: "Hot Sips + SnacknMunch", CreditsTotal: 30, DailyLimit: 2, Price: 999, Months: 1, Renewable: true},
	"TRIAL":           {Type: "TRIAL", DisplayName: "1-Week Trial", CreditsTotal: 7, DailyLimit: 1, Price: 299, Duration: 7 * 24 * time.Hour},
}

// LookupPlan finds a plan by its type code.
func LookupPlan(planType string) (Plan, bool) {
	p, ok := planCatalogue[planType]
	return p, ok
}

// Plans lists the catalogue sorted by price.
func Plans() []Plan {
	out := make([]Plan, 0, len(planCatalogue))
	for _, p := range planCatalogue {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// PlanDisplayName falls back to the raw code for unknown plans.
func PlanDisplayName(planType string) string {
	if p, ok := planCatalogue[planType]; ok {
		return p.DisplayName
	}
	return planType
}
