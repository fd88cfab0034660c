package app

import (
	"context"
	"errors"
	"time"

	"github.com/mmayman666/Otouri-app-final-sub001/app/config"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// BillingProvider is the slice of the payment processor the API uses.
type BillingProvider interface {
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, userID, customerID string) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	FetchSubscription(ctx context.Context, id string) (BillingSubscription, error)
}

// StripeBilling implements BillingProvider with a dedicated client instead of the
// package level stripe.Key.
type StripeBilling struct {
	api     *client.API
	priceID string
	siteURL string
}

// NewStripeBilling returns nil when Stripe is not configured.
func NewStripeBilling(cfg config.StripeConfig) *StripeBilling {
	if !cfg.BillingConfigured() {
		return nil
	}
	return &StripeBilling{
		api:     client.New(cfg.SecretKey, nil),
		priceID: cfg.PriceIDPremium,
		siteURL: cfg.SiteURL,
	}
}

// CreateCustomer registers a Stripe customer tagged with metadata user_id.
func (s *StripeBilling) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	if userID == "" {
		return "", errors.New("missing user id")
	}
	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			"user_id": userID,
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	cust, err := s.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (s *StripeBilling) CreateCheckoutSession(ctx context.Context, userID, customerID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID},
		},
		SuccessURL: stripe.String(s.siteURL + "/dashboard/subscription?success=true"),
		CancelURL:  stripe.String(s.siteURL + "/dashboard/subscription?canceled=true"),
	}
	params.AddMetadata("user_id", userID)
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (s *StripeBilling) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(s.siteURL + "/dashboard/subscription"),
	}
	params.Context = ctx

	sess, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (s *StripeBilling) FetchSubscription(ctx context.Context, id string) (BillingSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Get(id, params)
	if err != nil {
		return BillingSubscription{}, err
	}
	return billingSubscriptionFromStripe(sub), nil
}

func billingSubscriptionFromStripe(sub *stripe.Subscription) BillingSubscription {
	out := BillingSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PriceRef:          subscriptionPrice(sub),
	}
	if sub.Customer != nil {
		out.CustomerRef = sub.Customer.ID
	}
	if sub.CurrentPeriodStart > 0 {
		out.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	if sub.CurrentPeriodEnd > 0 {
		out.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return out
}

func subscriptionPrice(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil {
			return item.Price.ID
		}
	}
	return ""
}
