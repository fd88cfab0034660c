// Package app enforces per-user credit limits for paid actions.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/sirupsen/logrus"
)

var (
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrUsageLookupFailed   = errors.New("usage lookup failed")
)

type DenyReason string

const (
	ReasonLimitExceeded DenyReason = "limit_exceeded"
	ReasonLookupFailed  DenyReason = "lookup_failed"
)

// Decision is the outcome of a credit check. RemainingCredits is -1 for unlimited plans.
type Decision struct {
	Allowed          bool       `json:"allowed"`
	RemainingCredits int        `json:"remainingCredits"`
	Reason           DenyReason `json:"reason,omitempty"`
}

type subscriptionReader interface {
	GetSubscription(ctx context.Context, userID string) (models.Subscription, error)
}

// UsageLedger decides whether a user may spend credits and records the spend.
type UsageLedger struct {
	store     LedgerStore
	subs      subscriptionReader
	freeLimit int
	log       *logrus.Entry
}

func NewUsageLedger(store LedgerStore, subs subscriptionReader, freeLimit int, log *logrus.Entry) *UsageLedger {
	return &UsageLedger{store: store, subs: subs, freeLimit: freeLimit, log: log.WithField("component", "usage")}
}

// Consume checks and records cost credits in a single conditional write.
// A failed lookup never grants usage.
func (l *UsageLedger) Consume(ctx context.Context, userID string, cost int) (Decision, error) {
	if cost <= 0 {
		cost = 1
	}

	unlimited, err := l.isPremium(ctx, userID)
	if err != nil {
		l.log.WithError(err).WithField("user_id", userID).Error("subscription lookup failed")
		return Decision{Reason: ReasonLookupFailed}, fmt.Errorf("%w: %v", ErrUsageLookupFailed, err)
	}

	ledger, applied, err := l.store.ConsumeCredits(ctx, userID, cost, unlimited, l.freeLimit)
	if err != nil {
		l.log.WithError(err).WithField("user_id", userID).Error("credit consume failed")
		return Decision{Reason: ReasonLookupFailed}, fmt.Errorf("%w: %v", ErrUsageLookupFailed, err)
	}
	if !applied {
		return Decision{RemainingCredits: ledger.Remaining(), Reason: ReasonLimitExceeded}, ErrCreditLimitExceeded
	}

	remaining := ledger.Remaining()
	if unlimited {
		remaining = models.UnlimitedCredits
	}
	return Decision{Allowed: true, RemainingCredits: remaining}, nil
}

// Refund gives back credits reserved for an action that did not complete.
func (l *UsageLedger) Refund(ctx context.Context, userID string, cost int) error {
	if cost <= 0 {
		cost = 1
	}
	return l.store.RefundCredits(ctx, userID, cost)
}

// Snapshot returns the plan and balance shown on the dashboard.
func (l *UsageLedger) Snapshot(ctx context.Context, userID string) (models.UsageSnapshot, error) {
	premium, err := l.isPremium(ctx, userID)
	if err != nil {
		return models.UsageSnapshot{}, err
	}
	ledger, err := l.store.GetLedger(ctx, userID, l.freeLimit)
	if err != nil {
		return models.UsageSnapshot{}, err
	}

	snap := models.UsageSnapshot{
		Plan:             models.PlanFree,
		CreditsUsed:      ledger.CreditsUsed,
		CreditsLimit:     ledger.CreditsLimit,
		RemainingCredits: ledger.Remaining(),
		Unlimited:        ledger.Unlimited(),
	}
	if premium {
		snap.Plan = models.PlanPremium
		snap.Unlimited = true
		snap.CreditsLimit = models.UnlimitedCredits
		snap.RemainingCredits = models.UnlimitedCredits
	}
	return snap, nil
}

func (l *UsageLedger) isPremium(ctx context.Context, userID string) (bool, error) {
	sub, err := l.subs.GetSubscription(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.IsPremium(), nil
}

func (s *PGStore) ensureLedger(ctx context.Context, userID string, freeLimit int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_credits (user_id, credits_used, credits_limit)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO NOTHING;
	`, userID, freeLimit)
	return err
}

func (s *PGStore) ConsumeCredits(ctx context.Context, userID string, cost int, unlimited bool, freeLimit int) (models.UsageLedger, bool, error) {
	if err := s.ensureLedger(ctx, userID, freeLimit); err != nil {
		return models.UsageLedger{}, false, err
	}

	ledger := models.UsageLedger{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		UPDATE user_credits
		SET credits_used = credits_used + $2, updated_at = now()
		WHERE user_id = $1
		  AND ($3 OR credits_limit < 0 OR credits_used + $2 <= credits_limit)
		RETURNING credits_used, credits_limit, updated_at;
	`, userID, cost, unlimited).Scan(&ledger.CreditsUsed, &ledger.CreditsLimit, &ledger.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		current, err := s.GetLedger(ctx, userID, freeLimit)
		if err != nil {
			return models.UsageLedger{}, false, err
		}
		return current, false, nil
	}
	if err != nil {
		return models.UsageLedger{}, false, err
	}
	return ledger, true, nil
}

func (s *PGStore) RefundCredits(ctx context.Context, userID string, cost int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_credits
		SET credits_used = GREATEST(credits_used - $2, 0), updated_at = now()
		WHERE user_id = $1;
	`, userID, cost)
	return err
}

func (s *PGStore) GetLedger(ctx context.Context, userID string, freeLimit int) (models.UsageLedger, error) {
	if err := s.ensureLedger(ctx, userID, freeLimit); err != nil {
		return models.UsageLedger{}, err
	}
	ledger := models.UsageLedger{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT credits_used, credits_limit, updated_at
		FROM user_credits
		WHERE user_id = $1;
	`, userID).Scan(&ledger.CreditsUsed, &ledger.CreditsLimit, &ledger.UpdatedAt)
	if err != nil {
		return models.UsageLedger{}, err
	}
	return ledger, nil
}

// SetCreditLimit switches the ledger to a new quota. A plan change starts a fresh count.
func (s *PGStore) SetCreditLimit(ctx context.Context, userID string, limit int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_credits (user_id, credits_used, credits_limit)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET credits_used = CASE
				WHEN user_credits.credits_limit <> EXCLUDED.credits_limit THEN 0
				ELSE user_credits.credits_used
			END,
			credits_limit = EXCLUDED.credits_limit,
			updated_at = now();
	`, userID, limit)
	return err
}
