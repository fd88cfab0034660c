package app

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/mmayman666/Otouri-app-final-sub001/app/config"
	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by store lookups that match no row.
var ErrNotFound = errors.New("not found")

type LedgerStore interface {
	// ConsumeCredits adds cost to credits_used only when the result stays within
	// credits_limit (or unlimited is set). applied is false when the limit blocked it.
	ConsumeCredits(ctx context.Context, userID string, cost int, unlimited bool, freeLimit int) (ledger models.UsageLedger, applied bool, err error)
	RefundCredits(ctx context.Context, userID string, cost int) error
	GetLedger(ctx context.Context, userID string, freeLimit int) (models.UsageLedger, error)
	SetCreditLimit(ctx context.Context, userID string, limit int) error
}

type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID string) (models.Subscription, error)
	FindSubscriptionUser(ctx context.Context, customerRef, subscriptionRef string) (string, error)
	// ApplySubscriptionChange upserts the row unless a newer event was already applied.
	ApplySubscriptionChange(ctx context.Context, userID string, change models.SubscriptionChange) (bool, error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

type NotificationStore interface {
	CountNotifications(ctx context.Context, userID string) (int, error)
	// CreateNotification reports false when (user_id, kind) already exists.
	CreateNotification(ctx context.Context, n models.Notification) (bool, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	UnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

type HistoryStore interface {
	ListFavorites(ctx context.Context, userID string, limit int) ([]models.Favorite, error)
	AddFavorite(ctx context.Context, fav models.Favorite) (models.Favorite, error)
	RemoveFavorite(ctx context.Context, userID string, id int64) error
	SaveChat(ctx context.Context, chat models.ChatHistory) (int, error)
	ListChats(ctx context.Context, userID string, limit int) ([]models.ChatHistory, error)
	CountChats(ctx context.Context, userID string) (int, error)
	SaveImageSearch(ctx context.Context, search models.ImageSearch) error
	ListImageSearches(ctx context.Context, userID string, limit int) ([]models.ImageSearch, error)
	CountImageSearches(ctx context.Context, userID string) (int, error)
	LatestRecommendation(ctx context.Context, userID string) (models.Recommendation, error)
	DashboardCounts(ctx context.Context, userID string) (models.DashboardCounts, error)
}

type ProfileStore interface {
	UpsertProfile(ctx context.Context, p models.Profile) error
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
}

type AdminStore interface {
	AdminStats(ctx context.Context) (models.AdminStats, error)
	ListUserOverviews(ctx context.Context, limit, offset int) ([]models.UserOverview, error)
	ListSubscriptions(ctx context.Context, status models.SubscriptionStatus, limit, offset int) ([]models.Subscription, error)
}

// Store is everything the HTTP layer needs from persistence.
type Store interface {
	LedgerStore
	SubscriptionStore
	NotificationStore
	HistoryStore
	ProfileStore
	AdminStore
}

// PGStore implements Store on Postgres with plain SQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// OpenDB connects to Postgres and verifies the connection.
func OpenDB(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	d, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	d.SetMaxOpenConns(10)
	d.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.PingContext(pingCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return d, nil
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(d *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	driver, err := postgres.WithInstance(d, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrations driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
