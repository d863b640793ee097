package main

import (
	"log"
	"net/http"

	httphandlers "github.com/cpenarrieta/personal-finance-app-sub004/internal/interfaces/http"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/shared/config"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Items
	mux.HandleFunc("/api/items", deps.ItemHandler.HandleListItems)
	mux.HandleFunc("/api/items/{id}", deps.ItemHandler.HandleItemByID)
	mux.HandleFunc("/api/items/{id}/sync", deps.ItemHandler.HandleSyncItem)
	mux.HandleFunc("/api/accounts/{id}", deps.ItemHandler.HandleAccountByID)

	// Transactions
	mux.HandleFunc("/api/transactions", deps.TransactionHandler.HandleListTransactions)
	mux.HandleFunc("/api/transactions/{id}", deps.TransactionHandler.HandleTransactionByID)
	mux.HandleFunc("/api/transactions/{id}/split", deps.TransactionHandler.HandleSplitTransaction)
	mux.HandleFunc("/api/transactions/{id}/tags", deps.TransactionHandler.HandleTransactionTags)

	// Tags
	mux.HandleFunc("/api/tags", deps.TagHandler.HandleTags)
	mux.HandleFunc("/api/tags/{id}", deps.TagHandler.HandleTagByID)

	// Provider link flow and inbound webhooks
	mux.HandleFunc("/api/plaid/exchange", deps.LinkHandler.HandleExchange)
	mux.HandleFunc("/api/plaid/reconnect/confirm", deps.LinkHandler.HandleConfirmReconnection)
	mux.HandleFunc("/api/plaid/webhook", deps.WebhookHandler.HandleWebhook)

	// Notifications
	mux.HandleFunc("/api/notifications/register-device", deps.NotificationHandler.HandleRegisterDevice)

	// Apply global middleware. Telemetry (otelhttp) owns the server span;
	// Tracing adds the route span and request metrics under it.
	handler := middleware.Logging(middleware.Telemetry(middleware.Tracing(middleware.CORS(cfg.Server.AllowedHosts)(mux))))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS, secure cookies)")
	}

	return handler
}
