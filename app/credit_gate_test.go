package app

import (
	"context"
	"errors"
	"testing"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(store *memStore, freeLimit int) *CreditGate {
	log := testEntry()
	notifier := NewNotifier(store, log)
	return NewCreditGate(NewUsageLedger(store, store, freeLimit, log), notifier, 2, log)
}

func TestGateRunsActionAndConsumes(t *testing.T) {
	store := newMemStore()
	gate := newTestGate(store, 10)

	called := 0
	d, err := gate.Run(context.Background(), "u1", ActionChat, 1, func(context.Context) error {
		called++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, called)
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.RemainingCredits)
	assert.Equal(t, 1, store.ledgers["u1"].CreditsUsed)
}

func TestGateRejectionSkipsAction(t *testing.T) {
	store := newMemStore()
	store.ledgers["u1"] = models.UsageLedger{UserID: "u1", CreditsUsed: 10, CreditsLimit: 10}
	gate := newTestGate(store, 10)
	writesBefore := store.writes

	called := false
	d, err := gate.Run(context.Background(), "u1", ActionImageAnalysis, 1, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCreditLimitExceeded)
	assert.True(t, IsRejection(err))
	assert.False(t, called)
	assert.Equal(t, 0, d.RemainingCredits)
	assert.Equal(t, writesBefore, store.writes)
}

func TestGateRefundsOnProviderFailure(t *testing.T) {
	store := newMemStore()
	gate := newTestGate(store, 10)
	providerErr := errors.New("provider down")

	d, err := gate.Run(context.Background(), "u1", ActionChat, 1, func(context.Context) error {
		return providerErr
	})
	assert.ErrorIs(t, err, providerErr)
	assert.False(t, IsRejection(err))
	assert.Equal(t, 10, d.RemainingCredits)
	assert.Equal(t, 0, store.ledgers["u1"].CreditsUsed)
}

func TestGateRefundSurvivesCanceledContext(t *testing.T) {
	store := newMemStore()
	gate := newTestGate(store, 10)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := gate.Run(ctx, "u1", ActionChat, 1, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.ledgers["u1"].CreditsUsed)
}

func TestGateLowCreditsNotification(t *testing.T) {
	store := newMemStore()
	store.ledgers["u1"] = models.UsageLedger{UserID: "u1", CreditsUsed: 7, CreditsLimit: 10}
	gate := newTestGate(store, 10)

	_, err := gate.Run(context.Background(), "u1", ActionChat, 1, func(context.Context) error { return nil })
	require.NoError(t, err)

	require.Len(t, store.notifications, 1)
	assert.Equal(t, kindLowCredits, store.notifications[0].Kind)
	assert.Equal(t, models.NotificationWarning, store.notifications[0].Type)

	// the same warning is never repeated
	_, err = gate.Run(context.Background(), "u1", ActionChat, 1, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Len(t, store.notifications, 1)
}

func TestGatePremiumNeverWarns(t *testing.T) {
	store := newMemStore()
	store.subs["u1"] = models.Subscription{UserID: "u1", Status: models.StatusActive, Plan: models.PlanPremium}
	gate := newTestGate(store, 1)

	for i := 0; i < 5; i++ {
		d, err := gate.Run(context.Background(), "u1", ActionChat, 1, func(context.Context) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, models.UnlimitedCredits, d.RemainingCredits)
	}
	assert.Empty(t, store.notifications)
}
