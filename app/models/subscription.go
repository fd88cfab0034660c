package models

import "time"

type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusInactive   SubscriptionStatus = "inactive"
)

// Subscription mirrors the billing provider's view of a user's plan.
// There is at most one row per user.
type Subscription struct {
	UserID             string             `json:"user_id"`
	StripeCustomerID   string             `json:"stripe_customer_id,omitempty"`
	StripeSubscription string             `json:"stripe_subscription_id,omitempty"`
	StripePriceID      string             `json:"stripe_price_id,omitempty"`
	Status             SubscriptionStatus `json:"status"`
	Plan               Plan               `json:"plan_type"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	LastEventAt        *time.Time         `json:"-"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// IsPremium reports whether the row grants unlimited credits. A past_due
// subscription keeps premium access while the provider retries the payment.
func (s Subscription) IsPremium() bool {
	return s.Plan == PlanPremium && (s.Status == StatusActive || s.Status == StatusPastDue)
}

// SubscriptionChange carries only the fields a billing event actually reports.
// Nil and empty fields leave the stored value untouched.
type SubscriptionChange struct {
	CustomerRef       string
	SubscriptionRef   string
	PriceRef          string
	Status            *SubscriptionStatus
	Plan              *Plan
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd *bool
	EventAt           time.Time
	// Force applies the change even when a newer event was already recorded.
	Force bool
}
