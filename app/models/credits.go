package models

import "time"

// UnlimitedCredits is stored as credits_limit for premium users.
const UnlimitedCredits = -1

type UsageLedger struct {
	UserID       string    `json:"user_id"`
	CreditsUsed  int       `json:"credits_used"`
	CreditsLimit int       `json:"credits_limit"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (l UsageLedger) Unlimited() bool {
	return l.CreditsLimit < 0
}

// Remaining returns -1 for unlimited ledgers and never goes below zero otherwise.
func (l UsageLedger) Remaining() int {
	if l.Unlimited() {
		return UnlimitedCredits
	}
	if left := l.CreditsLimit - l.CreditsUsed; left > 0 {
		return left
	}
	return 0
}

// UsageSnapshot is what the dashboard shows for the current user.
type UsageSnapshot struct {
	Plan             Plan `json:"plan"`
	CreditsUsed      int  `json:"creditsUsed"`
	CreditsLimit     int  `json:"creditsLimit"`
	RemainingCredits int  `json:"remainingCredits"`
	Unlimited        bool `json:"unlimited"`
}
