package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mmayman666/Otouri-app-final-sub001/app/config"
	"github.com/mmayman666/Otouri-app-final-sub001/auth"

	"github.com/sirupsen/logrus"
)

// Deps are the external clients a Server talks to. Billing and Images may be nil.
type Deps struct {
	Store     Store
	Billing   BillingProvider
	Assistant Assistant
	Images    ImageStore
	Verifier  *auth.Verifier
	Logger    *logrus.Logger
}

// Server holds the request handlers and the components they share.
type Server struct {
	cfg        *config.Config
	store      Store
	billing    BillingProvider
	assistant  Assistant
	images     ImageStore
	verifier   *auth.Verifier
	ledger     *UsageLedger
	gate       *CreditGate
	reconciler *SubscriptionReconciler
	notifier   *Notifier
	populator  *NotificationPopulator
	log        *logrus.Entry
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = NewLogger(cfg.Logs)
	}
	log := logrus.NewEntry(logger)

	notifier := NewNotifier(deps.Store, log)
	ledger := NewUsageLedger(deps.Store, deps.Store, cfg.Credits.FreeLimit, log)

	var fetcher subscriptionFetcher
	if deps.Billing != nil {
		fetcher = deps.Billing
	}

	return &Server{
		cfg:        cfg,
		store:      deps.Store,
		billing:    deps.Billing,
		assistant:  deps.Assistant,
		images:     deps.Images,
		verifier:   deps.Verifier,
		ledger:     ledger,
		gate:       NewCreditGate(ledger, notifier, cfg.Credits.LowThreshold, log),
		reconciler: NewSubscriptionReconciler(deps.Store, fetcher, notifier, cfg.Credits.FreeLimit, log),
		notifier:   notifier,
		populator:  NewNotificationPopulator(deps.Store, notifier, cfg.Credits.FreeLimit, cfg.Credits.LowThreshold, log),
		log:        log,
	}
}

// Bootstrap connects every external dependency described by cfg and returns a
// ready Server plus a cleanup func for the caller to defer.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Server, func(), error) {
	logger := NewLogger(cfg.Logs)

	d, err := OpenDB(ctx, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	if err := RunMigrations(d); err != nil {
		d.Close()
		return nil, nil, err
	}
	logger.Info("connected to Postgres")

	assistant, err := NewAssistant(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("init assistant: %w", err)
	}

	var verifier *auth.Verifier
	if !cfg.Auth.Disabled {
		verifier, err = auth.NewVerifier(auth.VerifierConfig{
			Issuer:    cfg.Auth.Issuer,
			Audience:  cfg.Auth.Audience,
			JWKSURL:   cfg.Auth.JWKSURL,
			JWTSecret: cfg.Auth.JWTSecret,
		})
		if err != nil {
			closeAll(d, assistant)
			return nil, nil, fmt.Errorf("init verifier: %w", err)
		}
	}

	deps := Deps{
		Store:     NewPGStore(d),
		Assistant: assistant,
		Verifier:  verifier,
		Logger:    logger,
	}
	if billing := NewStripeBilling(cfg.Stripe); billing != nil {
		deps.Billing = billing
	} else {
		logger.Warn("stripe not configured, billing routes disabled")
	}
	if cfg.Cloudinary.URL != "" {
		images, err := NewCloudinaryStore(cfg.Cloudinary)
		if err != nil {
			logger.WithError(err).Warn("cloudinary init failed, image uploads disabled")
		} else {
			deps.Images = images
		}
	}

	return NewServer(cfg, deps), func() { closeAll(d, assistant) }, nil
}

func closeAll(d *sql.DB, assistant Assistant) {
	if assistant != nil {
		_ = assistant.Close()
	}
	_ = d.Close()
}
