package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/webhook"
)

// verificationHeader carries the provider's detached JWS signature.
const verificationHeader = "Plaid-Verification"

// maxWebhookBody caps the request body read. Provider webhooks are small;
// anything larger is hostile.
const maxWebhookBody = 1 << 20

// WebhookDispatcher processes a verified webhook body. Satisfied by
// webhook.Dispatcher.
type WebhookDispatcher interface {
	Handle(ctx context.Context, body []byte, verificationHeader string) (webhook.Result, error)
}

type WebhookHandler struct {
	dispatcher WebhookDispatcher
}

func NewWebhookHandler(dispatcher WebhookDispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Error    string `json:"error,omitempty"`
}

// HandleWebhook ingests one provider webhook. Verified payloads are always
// acknowledged with 200, even when processing failed; only signature failures
// get 401 so the provider retries with a fresh delivery.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	result, err := h.dispatcher.Handle(r.Context(), body, r.Header.Get(verificationHeader))
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			http.Error(w, "Invalid webhook signature", http.StatusUnauthorized)
			return
		}
		log.Printf("Unexpected webhook dispatch error: %v", err)
		http.Error(w, "Webhook processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(webhookResponse{
		Received: result.Acknowledged,
		Error:    result.ProcessingError,
	})
}
