package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

const (
	kindWelcome       = "welcome"
	kindExplore       = "explore"
	kindFavorites     = "favorites"
	kindImageSearches = "image_searches"
	kindRecommend     = "recommendation"
	kindLowCredits    = "low_credits"

	chatMilestoneStep = 10
	recentFavorites   = 3
)

func chatMilestoneKind(n int) string { return fmt.Sprintf("chat_milestone_%d", n) }

func billingKind(eventID string) string { return "billing:" + eventID }

// Notifier writes single notifications on behalf of the system.
type Notifier struct {
	store NotificationStore
	now   func() time.Time
	log   *logrus.Entry
}

func NewNotifier(store NotificationStore, log *logrus.Entry) *Notifier {
	return &Notifier{store: store, now: time.Now, log: log.WithField("component", "notifier")}
}

// Notify inserts one notification. It returns false when the same kind already exists.
func (n *Notifier) Notify(ctx context.Context, source string, note models.Notification) (bool, error) {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.Type == "" {
		note.Type = models.NotificationInfo
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = n.now().UTC()
	}
	created, err := n.store.CreateNotification(ctx, note)
	if err != nil {
		return false, fmt.Errorf("create notification %s: %w", note.Kind, err)
	}
	if created {
		notificationsCreatedTotal.WithLabelValues(source).Inc()
	}
	return created, nil
}

// ChatMilestone announces every tenth saved chat.
func (n *Notifier) ChatMilestone(ctx context.Context, userID string, count int) {
	if count <= 0 || count%chatMilestoneStep != 0 {
		return
	}
	_, err := n.Notify(ctx, "live", chatMilestoneNotification(userID, count))
	if err != nil {
		n.log.WithError(err).WithField("user_id", userID).Warn("chat milestone notification failed")
	}
}

// LowCredits warns a free user that their balance is nearly spent.
func (n *Notifier) LowCredits(ctx context.Context, userID string, remaining int) {
	_, err := n.Notify(ctx, "live", lowCreditsNotification(userID, remaining))
	if err != nil {
		n.log.WithError(err).WithField("user_id", userID).Warn("low credits notification failed")
	}
}

// SubscriptionChanged records a billing state change in the user's feed.
func (n *Notifier) SubscriptionChanged(ctx context.Context, userID, eventID string, status models.SubscriptionStatus, plan models.Plan) {
	note := models.Notification{
		UserID: userID,
		Kind:   billingKind(eventID),
	}
	switch {
	case status == models.StatusActive && plan == models.PlanPremium:
		note.Title = "Premium activated"
		note.Message = "Your premium subscription is active. Enjoy unlimited AI chat and image searches."
		note.Type = models.NotificationSuccess
	case status == models.StatusPastDue:
		note.Title = "Payment failed"
		note.Message = "We could not process your latest payment. Update your billing details to keep premium access."
		note.Type = models.NotificationWarning
	case status == models.StatusCanceled:
		note.Title = "Subscription canceled"
		note.Message = "Your premium subscription has ended. You are now on the free plan."
		note.Type = models.NotificationUpdate
	default:
		note.Title = "Subscription updated"
		note.Message = fmt.Sprintf("Your subscription status is now %s.", status)
		note.Type = models.NotificationUpdate
	}
	if _, err := n.Notify(ctx, "billing", note); err != nil {
		n.log.WithError(err).WithField("user_id", userID).Warn("billing notification failed")
	}
}

// populatorStore is the read and write surface the populator needs.
type populatorStore interface {
	NotificationStore
	LedgerStore
	GetSubscription(ctx context.Context, userID string) (models.Subscription, error)
	ListFavorites(ctx context.Context, userID string, limit int) ([]models.Favorite, error)
	CountChats(ctx context.Context, userID string) (int, error)
	CountImageSearches(ctx context.Context, userID string) (int, error)
	LatestRecommendation(ctx context.Context, userID string) (models.Recommendation, error)
}

// NotificationPopulator backfills an activity feed from a user's own history.
type NotificationPopulator struct {
	store        populatorStore
	notifier     *Notifier
	freeLimit    int
	lowThreshold int
	log          *logrus.Entry
}

func NewNotificationPopulator(store populatorStore, notifier *Notifier, freeLimit, lowThreshold int, log *logrus.Entry) *NotificationPopulator {
	return &NotificationPopulator{
		store:        store,
		notifier:     notifier,
		freeLimit:    freeLimit,
		lowThreshold: lowThreshold,
		log:          log.WithField("component", "populator"),
	}
}

// PopulateIfEmpty derives the initial feed when the user has no notifications yet.
// It returns how many rows were written. Individual derivation failures are logged
// and never stop the remaining ones.
func (p *NotificationPopulator) PopulateIfEmpty(ctx context.Context, userID string) (int, error) {
	existing, err := p.store.CountNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	var errs *multierror.Error
	var pending []models.Notification

	sub, err := p.store.GetSubscription(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		errs = multierror.Append(errs, fmt.Errorf("subscription: %w", err))
	}
	premium := sub.IsPremium()
	pending = append(pending, welcomeNotification(userID, premium))

	favorites, err := p.store.ListFavorites(ctx, userID, recentFavorites)
	switch {
	case err != nil:
		errs = multierror.Append(errs, fmt.Errorf("favorites: %w", err))
	case len(favorites) > 0:
		pending = append(pending, favoritesNotification(userID, favorites))
	default:
		pending = append(pending, exploreNotification(userID))
	}

	chats, err := p.store.CountChats(ctx, userID)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("chat count: %w", err))
	} else if milestone := (chats / chatMilestoneStep) * chatMilestoneStep; milestone > 0 {
		pending = append(pending, chatMilestoneNotification(userID, milestone))
	}

	searches, err := p.store.CountImageSearches(ctx, userID)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("image search count: %w", err))
	} else if searches > 0 {
		pending = append(pending, imageSearchNotification(userID, searches))
	}

	rec, err := p.store.LatestRecommendation(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		errs = multierror.Append(errs, fmt.Errorf("recommendation: %w", err))
	default:
		pending = append(pending, recommendationNotification(userID, rec))
	}

	if !premium {
		ledger, err := p.store.GetLedger(ctx, userID, p.freeLimit)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("credits: %w", err))
		} else if !ledger.Unlimited() && ledger.Remaining() <= p.lowThreshold {
			pending = append(pending, lowCreditsNotification(userID, ledger.Remaining()))
		}
	}

	created := 0
	for _, note := range pending {
		ok, err := p.notifier.Notify(ctx, "populate", note)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if ok {
			created++
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		p.log.WithError(err).WithField("user_id", userID).Warn("notification population incomplete")
	}
	return created, nil
}

func welcomeNotification(userID string, premium bool) models.Notification {
	msg := "Welcome to Otouri! Discover perfumes with our AI assistant and image search."
	if premium {
		msg = "Welcome to Otouri Premium! Enjoy unlimited AI chat and image searches."
	}
	return models.Notification{
		UserID:  userID,
		Kind:    kindWelcome,
		Title:   "Welcome to Otouri",
		Message: msg,
		Type:    models.NotificationSuccess,
	}
}

func exploreNotification(userID string) models.Notification {
	return models.Notification{
		UserID:  userID,
		Kind:    kindExplore,
		Title:   "Explore the perfume database",
		Message: "Browse thousands of fragrances and save the ones you love to your favorites.",
		Type:    models.NotificationInfo,
	}
}

func favoritesNotification(userID string, favorites []models.Favorite) models.Notification {
	names := make([]string, 0, len(favorites))
	for _, f := range favorites {
		names = append(names, f.PerfumeName)
	}
	return models.Notification{
		UserID:  userID,
		Kind:    kindFavorites,
		Title:   "Your favorites",
		Message: fmt.Sprintf("You recently saved %s. Ask the assistant for similar scents.", strings.Join(names, ", ")),
		Type:    models.NotificationRecommendation,
	}
}

func chatMilestoneNotification(userID string, count int) models.Notification {
	return models.Notification{
		UserID:  userID,
		Kind:    chatMilestoneKind(count),
		Title:   "Chat milestone",
		Message: fmt.Sprintf("You have had %d conversations with the perfume assistant.", count),
		Type:    models.NotificationSuccess,
	}
}

func imageSearchNotification(userID string, count int) models.Notification {
	word := "searches"
	if count == 1 {
		word = "search"
	}
	return models.Notification{
		UserID:  userID,
		Kind:    kindImageSearches,
		Title:   "Image searches",
		Message: fmt.Sprintf("You have identified perfumes with %d image %s.", count, word),
		Type:    models.NotificationInfo,
	}
}

func recommendationNotification(userID string, rec models.Recommendation) models.Notification {
	name := rec.PerfumeName
	if rec.Brand != "" {
		name = rec.PerfumeName + " by " + rec.Brand
	}
	return models.Notification{
		UserID:  userID,
		Kind:    kindRecommend,
		Title:   "New recommendation",
		Message: fmt.Sprintf("We think you will like %s.", name),
		Type:    models.NotificationRecommendation,
	}
}

func lowCreditsNotification(userID string, remaining int) models.Notification {
	return models.Notification{
		UserID:  userID,
		Kind:    kindLowCredits,
		Title:   "Credits running low",
		Message: fmt.Sprintf("You have %d free operations left. Upgrade to premium for unlimited access.", remaining),
		Type:    models.NotificationWarning,
	}
}

func (s *PGStore) CountNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1;`, userID).Scan(&n)
	return n, err
}

func (s *PGStore) CreateNotification(ctx context.Context, n models.Notification) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, message, type, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (user_id, kind) DO NOTHING;
	`, n.ID, n.UserID, n.Kind, n.Title, n.Message, n.Type, n.CreatedAt)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *PGStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, title, message, type, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.Type, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PGStore) UnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read;
	`, userID).Scan(&n)
	return n, err
}

func (s *PGStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	var got string
	err := s.db.QueryRowContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING id;
	`, id, userID).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PGStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read;
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
