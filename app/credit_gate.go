package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

type Action string

const (
	ActionChat          Action = "ai_chat"
	ActionImageAnalysis Action = "image_analysis"
)

// CreditGate wraps a paid action with check, consume and execute.
//
// Credits are reserved before the provider is called. When the provider call
// fails the reservation is refunded, so users only pay for actions that ran.
type CreditGate struct {
	ledger       *UsageLedger
	notifier     *Notifier
	lowThreshold int
	log          *logrus.Entry
}

func NewCreditGate(ledger *UsageLedger, notifier *Notifier, lowThreshold int, log *logrus.Entry) *CreditGate {
	return &CreditGate{
		ledger:       ledger,
		notifier:     notifier,
		lowThreshold: lowThreshold,
		log:          log.WithField("component", "credit_gate"),
	}
}

// Run consumes cost credits for userID and then calls fn. On rejection fn is
// never called and the returned error wraps ErrCreditLimitExceeded or
// ErrUsageLookupFailed.
func (g *CreditGate) Run(ctx context.Context, userID string, action Action, cost int, fn func(ctx context.Context) error) (Decision, error) {
	if cost <= 0 {
		cost = 1
	}

	decision, err := g.ledger.Consume(ctx, userID, cost)
	if err != nil {
		creditRejectionsTotal.WithLabelValues(string(action), string(decision.Reason)).Inc()
		g.log.WithFields(logrus.Fields{
			"user_id":   userID,
			"action":    action,
			"reason":    decision.Reason,
			"remaining": decision.RemainingCredits,
		}).Info("paid action rejected")
		return decision, err
	}
	creditsConsumedTotal.WithLabelValues(string(action)).Add(float64(cost))

	if err := fn(ctx); err != nil {
		// the request context may already be gone; the refund must still land
		refundCtx := context.WithoutCancel(ctx)
		if rerr := g.ledger.Refund(refundCtx, userID, cost); rerr != nil {
			g.log.WithError(rerr).WithFields(logrus.Fields{"user_id": userID, "action": action}).Error("credit refund failed")
		} else {
			creditRefundsTotal.WithLabelValues(string(action)).Inc()
			if decision.RemainingCredits >= 0 {
				decision.RemainingCredits += cost
			}
		}
		return decision, fmt.Errorf("%s: %w", action, err)
	}

	if g.notifier != nil && decision.RemainingCredits >= 0 && decision.RemainingCredits <= g.lowThreshold {
		g.notifier.LowCredits(context.WithoutCancel(ctx), userID, decision.RemainingCredits)
	}
	return decision, nil
}

// IsRejection reports whether err came from the gate rather than the action.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCreditLimitExceeded) || errors.Is(err, ErrUsageLookupFailed)
}
