package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/sirupsen/logrus"
)

// Billing event types the reconciler acts on. Everything else is acknowledged and ignored.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentFailed       = "invoice.payment_failed"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
)

type ReconcileResult string

const (
	ResultApplied    ReconcileResult = "applied"
	ResultDuplicate  ReconcileResult = "duplicate"
	ResultIgnored    ReconcileResult = "ignored"
	ResultStale      ReconcileResult = "stale"
	ResultUnresolved ReconcileResult = "unresolved"
)

// BillingEvent is a provider event reduced to what the reconciler reads.
// Zero values mean the event did not carry the field.
type BillingEvent struct {
	ID                string
	Type              string
	CreatedAt         time.Time
	UserID            string
	CustomerRef       string
	SubscriptionRef   string
	PriceRef          string
	ProviderStatus    string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd *bool
}

// BillingSubscription is the provider's current view of one subscription.
type BillingSubscription struct {
	ID                string
	CustomerRef       string
	PriceRef          string
	Status            string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

type subscriptionFetcher interface {
	FetchSubscription(ctx context.Context, id string) (BillingSubscription, error)
}

type reconcilerStore interface {
	SubscriptionStore
	SetCreditLimit(ctx context.Context, userID string, limit int) error
}

// SubscriptionReconciler keeps the subscriptions table in line with billing events.
// Duplicate deliveries are skipped by event id; out-of-order deliveries are skipped
// by comparing event time with the last applied event.
type SubscriptionReconciler struct {
	store     reconcilerStore
	fetcher   subscriptionFetcher
	notifier  *Notifier
	freeLimit int
	log       *logrus.Entry
}

func NewSubscriptionReconciler(store reconcilerStore, fetcher subscriptionFetcher, notifier *Notifier, freeLimit int, log *logrus.Entry) *SubscriptionReconciler {
	return &SubscriptionReconciler{
		store:     store,
		fetcher:   fetcher,
		notifier:  notifier,
		freeLimit: freeLimit,
		log:       log.WithField("component", "reconciler"),
	}
}

// Apply reconciles one event. A non-nil error means nothing was recorded and the
// event can be safely replayed.
func (r *SubscriptionReconciler) Apply(ctx context.Context, ev BillingEvent) (ReconcileResult, error) {
	if !handledEvent(ev.Type) {
		return ResultIgnored, nil
	}

	if ev.ID != "" {
		seen, err := r.store.EventProcessed(ctx, ev.ID)
		if err != nil {
			return "", fmt.Errorf("check processed event: %w", err)
		}
		if seen {
			return ResultDuplicate, nil
		}
	}

	userID, err := r.resolveUser(ctx, ev)
	if errors.Is(err, ErrNotFound) {
		r.log.WithFields(logrus.Fields{
			"event_id":     ev.ID,
			"type":         ev.Type,
			"customer":     ev.CustomerRef,
			"subscription": ev.SubscriptionRef,
		}).Warn("billing event matches no user")
		return ResultUnresolved, r.markProcessed(ctx, ev)
	}
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}

	current, err := r.store.GetSubscription(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("load subscription: %w", err)
	}
	exists := err == nil

	if exists && skipForCurrentState(ev, current) {
		return ResultStale, r.markProcessed(ctx, ev)
	}

	if (ev.Type == EventCheckoutCompleted || ev.Type == EventSubscriptionCreated) && ev.PeriodEnd == nil {
		r.fillFromProvider(ctx, &ev)
	}

	change := changeFor(ev)
	applied, err := r.store.ApplySubscriptionChange(ctx, userID, change)
	if err != nil {
		return "", fmt.Errorf("apply subscription change: %w", err)
	}
	if !applied {
		return ResultStale, r.markProcessed(ctx, ev)
	}

	if change.Plan != nil {
		limit := r.freeLimit
		if *change.Plan == models.PlanPremium {
			limit = models.UnlimitedCredits
		}
		if err := r.store.SetCreditLimit(ctx, userID, limit); err != nil {
			return "", fmt.Errorf("set credit limit: %w", err)
		}
	}

	if r.notifier != nil && stateChanged(exists, current, change) {
		plan := current.Plan
		if change.Plan != nil {
			plan = *change.Plan
		}
		r.notifier.SubscriptionChanged(ctx, userID, ev.ID, *change.Status, plan)
	}

	r.log.WithFields(logrus.Fields{
		"event_id": ev.ID,
		"type":     ev.Type,
		"user_id":  userID,
		"status":   *change.Status,
	}).Info("subscription reconciled")
	return ResultApplied, r.markProcessed(ctx, ev)
}

func (r *SubscriptionReconciler) resolveUser(ctx context.Context, ev BillingEvent) (string, error) {
	if ev.UserID != "" {
		return ev.UserID, nil
	}
	if ev.CustomerRef == "" && ev.SubscriptionRef == "" {
		return "", ErrNotFound
	}
	return r.store.FindSubscriptionUser(ctx, ev.CustomerRef, ev.SubscriptionRef)
}

// fillFromProvider copies period bounds and price from the provider when the
// event itself (checkout sessions in particular) does not carry them.
func (r *SubscriptionReconciler) fillFromProvider(ctx context.Context, ev *BillingEvent) {
	if r.fetcher == nil || ev.SubscriptionRef == "" {
		return
	}
	sub, err := r.fetcher.FetchSubscription(ctx, ev.SubscriptionRef)
	if err != nil {
		r.log.WithError(err).WithField("subscription", ev.SubscriptionRef).Warn("subscription fetch failed, period bounds left empty")
		return
	}
	if !sub.PeriodStart.IsZero() {
		ev.PeriodStart = &sub.PeriodStart
	}
	if !sub.PeriodEnd.IsZero() {
		ev.PeriodEnd = &sub.PeriodEnd
	}
	if ev.PriceRef == "" {
		ev.PriceRef = sub.PriceRef
	}
	if ev.CustomerRef == "" {
		ev.CustomerRef = sub.CustomerRef
	}
	if ev.CancelAtPeriodEnd == nil {
		cancel := sub.CancelAtPeriodEnd
		ev.CancelAtPeriodEnd = &cancel
	}
}

func (r *SubscriptionReconciler) markProcessed(ctx context.Context, ev BillingEvent) error {
	if ev.ID == "" {
		return nil
	}
	if err := r.store.MarkEventProcessed(ctx, ev.ID, ev.Type); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func handledEvent(t string) bool {
	switch t {
	case EventCheckoutCompleted, EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionDeleted, EventPaymentFailed, EventPaymentSucceeded:
		return true
	}
	return false
}

// skipForCurrentState drops events that would resurrect a finished subscription
// or that only make sense from a state the row is not in.
func skipForCurrentState(ev BillingEvent, current models.Subscription) bool {
	if ev.Type == EventCheckoutCompleted || ev.Type == EventSubscriptionCreated {
		return current.Status == models.StatusCanceled &&
			ev.SubscriptionRef != "" && ev.SubscriptionRef == current.StripeSubscription
	}
	sameSub := ev.SubscriptionRef == "" || current.StripeSubscription == "" || ev.SubscriptionRef == current.StripeSubscription
	if !sameSub {
		return true
	}
	if current.Status == models.StatusCanceled && ev.Type != EventSubscriptionDeleted {
		return true
	}
	if ev.Type == EventPaymentSucceeded && current.Status != models.StatusPastDue {
		return true
	}
	return false
}

func changeFor(ev BillingEvent) models.SubscriptionChange {
	change := models.SubscriptionChange{
		CustomerRef:       ev.CustomerRef,
		SubscriptionRef:   ev.SubscriptionRef,
		PriceRef:          ev.PriceRef,
		PeriodStart:       ev.PeriodStart,
		PeriodEnd:         ev.PeriodEnd,
		CancelAtPeriodEnd: ev.CancelAtPeriodEnd,
		EventAt:           ev.CreatedAt,
	}

	status := models.StatusInactive
	plan := models.PlanFree
	switch ev.Type {
	case EventCheckoutCompleted, EventSubscriptionCreated, EventPaymentSucceeded:
		status, plan = models.StatusActive, models.PlanPremium
	case EventPaymentFailed:
		status = models.StatusPastDue
		change.Status = &status
		return change
	case EventSubscriptionUpdated:
		if premiumProviderStatus(ev.ProviderStatus) {
			status, plan = models.StatusActive, models.PlanPremium
		}
	case EventSubscriptionDeleted:
		status = models.StatusCanceled
		// deletion is terminal for its subscription, whatever arrived before it
		change.Force = true
	}
	change.Status = &status
	change.Plan = &plan
	return change
}

// premiumProviderStatus reports whether a Stripe subscription status grants paid access.
func premiumProviderStatus(status string) bool {
	switch status {
	case "active", "trialing":
		return true
	}
	return false
}

func stateChanged(existed bool, current models.Subscription, change models.SubscriptionChange) bool {
	if !existed {
		return true
	}
	if change.Status != nil && *change.Status != current.Status {
		return true
	}
	return change.Plan != nil && *change.Plan != current.Plan
}

func (s *PGStore) GetSubscription(ctx context.Context, userID string) (models.Subscription, error) {
	var (
		sub                                 models.Subscription
		customer, subscription, price       sql.NullString
		periodStart, periodEnd, lastEventAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
		       status, plan_type, current_period_start, current_period_end,
		       cancel_at_period_end, last_event_at, updated_at
		FROM subscriptions
		WHERE user_id = $1;
	`, userID).Scan(
		&sub.UserID, &customer, &subscription, &price,
		&sub.Status, &sub.Plan, &periodStart, &periodEnd,
		&sub.CancelAtPeriodEnd, &lastEventAt, &sub.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, ErrNotFound
	}
	if err != nil {
		return models.Subscription{}, err
	}
	sub.StripeCustomerID = customer.String
	sub.StripeSubscription = subscription.String
	sub.StripePriceID = price.String
	sub.CurrentPeriodStart = timePtr(periodStart)
	sub.CurrentPeriodEnd = timePtr(periodEnd)
	sub.LastEventAt = timePtr(lastEventAt)
	return sub, nil
}

func (s *PGStore) FindSubscriptionUser(ctx context.Context, customerRef, subscriptionRef string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM subscriptions
		WHERE ($1 <> '' AND stripe_subscription_id = $1)
		   OR ($2 <> '' AND stripe_customer_id = $2)
		ORDER BY (stripe_subscription_id = $1) DESC
		LIMIT 1;
	`, subscriptionRef, customerRef).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return userID, err
}

func (s *PGStore) ApplySubscriptionChange(ctx context.Context, userID string, change models.SubscriptionChange) (bool, error) {
	var status, plan sql.NullString
	if change.Status != nil {
		status = sql.NullString{String: string(*change.Status), Valid: true}
	}
	if change.Plan != nil {
		plan = sql.NullString{String: string(*change.Plan), Valid: true}
	}
	var cancel sql.NullBool
	if change.CancelAtPeriodEnd != nil {
		cancel = sql.NullBool{Bool: *change.CancelAtPeriodEnd, Valid: true}
	}
	eventAt := nullTime(&change.EventAt)

	var got string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (
			user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
			status, plan_type, current_period_start, current_period_end,
			cancel_at_period_end, last_event_at, updated_at
		)
		VALUES ($1, $2, $3, $4, COALESCE($5, 'inactive'), COALESCE($6, 'free'), $7, $8, COALESCE($9, FALSE), $10, now())
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id     = COALESCE($2, subscriptions.stripe_customer_id),
			stripe_subscription_id = COALESCE($3, subscriptions.stripe_subscription_id),
			stripe_price_id        = COALESCE($4, subscriptions.stripe_price_id),
			status                 = COALESCE($5, subscriptions.status),
			plan_type              = COALESCE($6, subscriptions.plan_type),
			current_period_start   = COALESCE($7, subscriptions.current_period_start),
			current_period_end     = COALESCE($8, subscriptions.current_period_end),
			cancel_at_period_end   = COALESCE($9, subscriptions.cancel_at_period_end),
			last_event_at          = GREATEST($10, subscriptions.last_event_at),
			updated_at             = now()
		WHERE $11
		   OR $10::timestamptz IS NULL
		   OR subscriptions.last_event_at IS NULL
		   OR subscriptions.last_event_at <= $10
		RETURNING user_id;
	`,
		userID,
		nullIfEmpty(change.CustomerRef),
		nullIfEmpty(change.SubscriptionRef),
		nullIfEmpty(change.PriceRef),
		status,
		plan,
		nullTime(change.PeriodStart),
		nullTime(change.PeriodEnd),
		cancel,
		eventAt,
		change.Force,
	).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGStore) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, stripe_customer_id, status, plan_type)
		VALUES ($1, $2, 'inactive', 'free')
		ON CONFLICT (user_id) DO UPDATE
		SET stripe_customer_id = EXCLUDED.stripe_customer_id, updated_at = now();
	`, userID, customerID)
	return err
}

func (s *PGStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM billing_events WHERE event_id = $1);
	`, eventID).Scan(&exists)
	return exists, err
}

func (s *PGStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING;
	`, eventID, eventType)
	return err
}
