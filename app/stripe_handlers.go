package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"
	"github.com/mmayman666/Otouri-app-final-sub001/auth"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const maxWebhookBodyBytes = int64(65536)

// CreateCheckoutSession starts a Stripe Checkout Session for the authenticated user.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if s.billing == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	customerID, err := s.ensureStripeCustomer(c, claims)
	if err != nil {
		s.log.WithError(err).WithField("user_id", claims.Subject).Error("ensure stripe customer failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	url, err := s.billing.CreateCheckoutSession(c.Request.Context(), claims.Subject, customerID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", claims.Subject).Error("stripe checkout session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// CreatePortalSession creates a Stripe Customer Portal session for the authenticated user.
func (s *Server) CreatePortalSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if s.billing == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	sub, err := s.store.GetSubscription(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.log.WithError(err).WithField("user_id", userID).Error("portal lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}
	if sub.StripeCustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}

	url, err := s.billing.CreatePortalSession(c.Request.Context(), sub.StripeCustomerID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("stripe portal session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// GetSubscription returns the caller's subscription row, or a free placeholder.
func (s *Server) GetSubscription(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sub, err := s.store.GetSubscription(c.Request.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusOK, models.Subscription{UserID: userID, Status: models.StatusInactive, Plan: models.PlanFree})
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("subscription lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ensureStripeCustomer reuses the stored customer id or creates one tagged with the user id.
func (s *Server) ensureStripeCustomer(c *gin.Context, claims *auth.Claims) (string, error) {
	ctx := c.Request.Context()
	sub, err := s.store.GetSubscription(ctx, claims.Subject)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}

	customerID, err := s.billing.CreateCustomer(ctx, claims.Subject, claims.Email)
	if err != nil {
		return "", err
	}
	if err := s.store.SetStripeCustomer(ctx, claims.Subject, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

// StripeWebhook verifies and reconciles Stripe billing events. Once the signature
// checks out the event is always acknowledged, even when reconciling it failed.
func (s *Server) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		s.log.WithError(err).Warn("stripe webhook read failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	endpointSecret := s.cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		s.log.Error("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		s.log.WithError(err).Warn("stripe webhook signature failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	ev, err := billingEventFromStripe(event)
	if err != nil {
		s.log.WithError(err).WithField("event_id", event.ID).Warn("stripe event payload invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}

	result, err := s.reconciler.Apply(c.Request.Context(), ev)
	if err != nil {
		billingEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		s.log.WithError(err).WithFields(logrus.Fields{
			"event_id": ev.ID,
			"type":     ev.Type,
		}).Error("stripe event reconcile failed")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	billingEventsTotal.WithLabelValues(ev.Type, string(result)).Inc()

	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": result})
}

// billingEventFromStripe keeps only the fields the reconciler reads.
func billingEventFromStripe(event stripe.Event) (BillingEvent, error) {
	ev := BillingEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		CreatedAt: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return ev, nil
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return ev, fmt.Errorf("checkout session: %w", err)
		}
		ev.UserID = sess.ClientReferenceID
		if ev.UserID == "" {
			ev.UserID = sess.Metadata["user_id"]
		}
		if sess.Customer != nil {
			ev.CustomerRef = sess.Customer.ID
		}
		if sess.Subscription != nil {
			ev.SubscriptionRef = sess.Subscription.ID
		}

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return ev, fmt.Errorf("subscription: %w", err)
		}
		bs := billingSubscriptionFromStripe(&sub)
		ev.UserID = sub.Metadata["user_id"]
		ev.CustomerRef = bs.CustomerRef
		ev.SubscriptionRef = bs.ID
		ev.PriceRef = bs.PriceRef
		ev.ProviderStatus = bs.Status
		cancel := bs.CancelAtPeriodEnd
		ev.CancelAtPeriodEnd = &cancel
		if !bs.PeriodStart.IsZero() {
			ev.PeriodStart = &bs.PeriodStart
		}
		if !bs.PeriodEnd.IsZero() {
			ev.PeriodEnd = &bs.PeriodEnd
		}

	case EventPaymentFailed, EventPaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return ev, fmt.Errorf("invoice: %w", err)
		}
		if inv.Customer != nil {
			ev.CustomerRef = inv.Customer.ID
		}
		if inv.Subscription != nil {
			ev.SubscriptionRef = inv.Subscription.ID
		}
	}
	return ev, nil
}
