package main

import (
	"context"
	"log"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/reconnect"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/sync"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/transaction"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/webhook"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/infrastructure/crypto"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/infrastructure/firebase"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/infrastructure/plaid"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/infrastructure/postgres"
	httphandlers "github.com/cpenarrieta/personal-finance-app-sub004/internal/interfaces/http"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	ItemHandler         *httphandlers.ItemHandler
	TransactionHandler  *httphandlers.TransactionHandler
	TagHandler          *httphandlers.TagHandler
	LinkHandler         *httphandlers.LinkHandler
	WebhookHandler      *httphandlers.WebhookHandler
	NotificationHandler *httphandlers.NotificationHandler

	// Services used by the scheduler job provider
	SyncEngine *sync.Engine
	ItemRepo   *postgres.ItemRepository
	Staging    *postgres.StagingRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize encryptor for access tokens at rest
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize repositories
	itemRepo := postgres.NewItemRepository(db, encryptor)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	tagRepo := postgres.NewTagRepository(db)
	stagingRepo := postgres.NewStagingRepository(db, encryptor)
	deviceTokenRepo := postgres.NewDeviceTokenRepository(db)

	// Initialize Plaid client
	plaidClient, err := plaid.NewClient(cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.Environment)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Push notifications are optional: without Firebase credentials the
	// status service runs without a notifier.
	var notifier item.Notifier
	if cfg.Firebase.CredentialsFile != "" {
		fbClient, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, deviceTokenRepo.Deactivate)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase: %v", err)
		} else {
			notifier = firebase.NewNotifier(fbClient, deviceTokenRepo)
			log.Println("Firebase notifications enabled")
		}
	} else {
		log.Println("Firebase notifications disabled (no credentials file)")
	}

	// Initialize domain services
	statusService := item.NewStatusService(itemRepo, notifier)
	classifier := transaction.NewKeywordClassifier()
	syncEngine := sync.NewEngine(plaidClient, itemRepo, accountRepo, transactionRepo, transactionRepo, statusService, classifier)
	splitService := transaction.NewSplitService(transactionRepo)
	negotiator := reconnect.NewNegotiator(plaidClient, itemRepo, accountRepo, transactionRepo, stagingRepo, statusService, cfg.Staging.TTL)

	// Webhook verification can be disabled for sandbox testing
	var verifier webhook.Verifier
	if cfg.Plaid.VerifyWebhooks {
		verifier = plaid.NewWebhookVerifier(plaidClient)
	}
	dispatcher := webhook.NewDispatcher(verifier, syncEngine, statusService)

	return &Dependencies{
		DB:                  db,
		ItemHandler:         httphandlers.NewItemHandler(itemRepo, accountRepo, syncEngine),
		TransactionHandler:  httphandlers.NewTransactionHandler(transactionRepo, splitService),
		TagHandler:          httphandlers.NewTagHandler(tagRepo),
		LinkHandler:         httphandlers.NewLinkHandler(negotiator),
		WebhookHandler:      httphandlers.NewWebhookHandler(dispatcher),
		NotificationHandler: httphandlers.NewNotificationHandler(deviceTokenRepo),
		SyncEngine:          syncEngine,
		ItemRepo:            itemRepo,
		Staging:             stagingRepo,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
