// Package models defines the records Otouri persists per user.
package models

import "time"

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Profile is created on first authenticated request and refreshed from token claims.
type Profile struct {
	UserID     string    `json:"id" db:"user_id"`
	Email      string    `json:"email" db:"email"`
	FullName   string    `json:"full_name" db:"full_name"`
	IsAdmin    bool      `json:"is_admin" db:"is_admin"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// UserOverview is one row of the admin users table.
type UserOverview struct {
	UserID      string             `json:"id"`
	Email       string             `json:"email"`
	FullName    string             `json:"full_name"`
	IsAdmin     bool               `json:"is_admin"`
	Plan        Plan               `json:"plan_type"`
	Status      SubscriptionStatus `json:"status"`
	CreditsUsed int                `json:"credits_used"`
	CreditsMax  int                `json:"credits_limit"`
	CreatedAt   time.Time          `json:"created_at"`
}

type AdminStats struct {
	TotalUsers          int `json:"total_users"`
	PremiumUsers        int `json:"premium_users"`
	PastDueSubscribers  int `json:"past_due_subscriptions"`
	TotalChats          int `json:"total_chats"`
	TotalImageSearches  int `json:"total_image_searches"`
	TotalFavorites      int `json:"total_favorites"`
	CreditsConsumed     int `json:"credits_consumed"`
	UnreadNotifications int `json:"unread_notifications"`
}
