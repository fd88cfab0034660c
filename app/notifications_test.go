package app

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPopulator(store *memStore) *NotificationPopulator {
	log := testEntry()
	return NewNotificationPopulator(store, NewNotifier(store, log), 10, 2, log)
}

func kindsFor(store *memStore, userID string) []string {
	var kinds []string
	for _, n := range store.notifications {
		if n.UserID == userID {
			kinds = append(kinds, n.Kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

func TestPopulateNewUser(t *testing.T) {
	store := newMemStore()

	created, err := newTestPopulator(store).PopulateIfEmpty(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, []string{kindExplore, kindWelcome}, kindsFor(store, "u1"))
}

func TestPopulateIsNoopWhenFeedExists(t *testing.T) {
	store := newMemStore()
	store.notifications = append(store.notifications, models.Notification{ID: "n1", UserID: "u1", Kind: "billing:evt_1"})
	store.favorites = append(store.favorites, models.Favorite{ID: 1, UserID: "u1", PerfumeName: "Oud Wood"})

	created, err := newTestPopulator(store).PopulateIfEmpty(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Len(t, store.notifications, 1)
}

func TestPopulateTwiceCreatesOnce(t *testing.T) {
	store := newMemStore()
	p := newTestPopulator(store)

	_, err := p.PopulateIfEmpty(context.Background(), "u1")
	require.NoError(t, err)
	created, err := p.PopulateIfEmpty(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Len(t, store.notifications, 2)
}

func TestPopulateRichHistory(t *testing.T) {
	store := newMemStore()
	store.subs["u1"] = models.Subscription{UserID: "u1", Status: models.StatusActive, Plan: models.PlanPremium}
	for i, name := range []string{"Aventus", "Bleu de Chanel", "Oud Wood", "Sauvage"} {
		store.favorites = append(store.favorites, models.Favorite{ID: int64(i + 1), UserID: "u1", PerfumeName: name})
	}
	for i := 0; i < 23; i++ {
		store.chats = append(store.chats, models.ChatHistory{UserID: "u1", Message: fmt.Sprint(i)})
	}
	store.searches = append(store.searches, models.ImageSearch{UserID: "u1", PerfumeName: "Aventus"})
	store.recs = append(store.recs, models.Recommendation{UserID: "u1", PerfumeName: "Santal 33", Brand: "Le Labo", CreatedAt: time.Now()})

	created, err := newTestPopulator(store).PopulateIfEmpty(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, created)
	assert.Equal(t, []string{
		"chat_milestone_20",
		kindFavorites,
		kindImageSearches,
		kindRecommend,
		kindWelcome,
	}, kindsFor(store, "u1"))

	for _, n := range store.notifications {
		switch n.Kind {
		case kindWelcome:
			assert.Contains(t, n.Message, "Premium")
		case kindFavorites:
			assert.Contains(t, n.Message, "Sauvage")
			assert.NotContains(t, n.Message, "Aventus")
		case kindImageSearches:
			assert.Contains(t, n.Message, "1 image search.")
		case kindRecommend:
			assert.Contains(t, n.Message, "Santal 33 by Le Labo")
		}
	}
}

func TestPopulateLowCreditsOnlyForFreePlan(t *testing.T) {
	store := newMemStore()
	store.ledgers["u1"] = models.UsageLedger{UserID: "u1", CreditsUsed: 9, CreditsLimit: 10}

	_, err := newTestPopulator(store).PopulateIfEmpty(context.Background(), "u1")
	require.NoError(t, err)
	assert.Contains(t, kindsFor(store, "u1"), kindLowCredits)

	premium := newMemStore()
	premium.subs["u1"] = models.Subscription{UserID: "u1", Status: models.StatusActive, Plan: models.PlanPremium}
	premium.ledgers["u1"] = models.UsageLedger{UserID: "u1", CreditsUsed: 9, CreditsLimit: 10}

	_, err = newTestPopulator(premium).PopulateIfEmpty(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotContains(t, kindsFor(premium, "u1"), kindLowCredits)
}

func TestPopulateFailuresDoNotAbort(t *testing.T) {
	store := newMemStore()
	store.fail["ListFavorites"] = true
	store.fail["CreateNotification:"+kindWelcome] = true
	store.searches = append(store.searches, models.ImageSearch{UserID: "u1", PerfumeName: "Aventus"})

	created, err := newTestPopulator(store).PopulateIfEmpty(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, []string{kindImageSearches}, kindsFor(store, "u1"))
}

func TestPopulateCountFailureIsReturned(t *testing.T) {
	store := newMemStore()
	store.fail["CountNotifications"] = true

	_, err := newTestPopulator(store).PopulateIfEmpty(context.Background(), "u1")
	assert.Error(t, err)
	assert.Empty(t, store.notifications)
}

func TestChatMilestoneOnlyOnMultiplesOfTen(t *testing.T) {
	store := newMemStore()
	n := NewNotifier(store, testEntry())

	for _, count := range []int{1, 9, 10, 11, 20, 20} {
		n.ChatMilestone(context.Background(), "u1", count)
	}
	assert.Equal(t, []string{"chat_milestone_10", "chat_milestone_20"}, kindsFor(store, "u1"))
}
