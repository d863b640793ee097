package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/reconnect"
)

// Exchanger negotiates public-token exchanges. Satisfied by
// reconnect.Negotiator.
type Exchanger interface {
	PrepareExchange(ctx context.Context, publicToken string, existingItemID *int64) (*reconnect.ExchangeResult, error)
	ConfirmReconnection(ctx context.Context, stagingToken string) (*reconnect.ConfirmResult, error)
}

type LinkHandler struct {
	negotiator Exchanger
}

func NewLinkHandler(negotiator Exchanger) *LinkHandler {
	return &LinkHandler{negotiator: negotiator}
}

type exchangeRequest struct {
	PublicToken string `json:"publicToken"`
	// ItemID is set when the Link flow was opened in update mode for an
	// existing item.
	ItemID *int64 `json:"itemId,omitempty"`
}

// HandleExchange exchanges a Link public token. Depending on what comes back
// it creates a new item, reactivates an existing one, or stages a
// reconnection for confirmation.
func (h *LinkHandler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding exchange request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.PublicToken == "" {
		http.Error(w, "publicToken is required", http.StatusBadRequest)
		return
	}

	result, err := h.negotiator.PrepareExchange(r.Context(), req.PublicToken, req.ItemID)
	if err != nil {
		if errors.Is(err, item.ErrNotFound) {
			http.Error(w, "Item not found", http.StatusNotFound)
			return
		}
		log.Printf("Error exchanging public token: %v", err)
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type confirmRequest struct {
	StagingToken string `json:"stagingToken"`
}

// HandleConfirmReconnection consumes a staging token and performs the
// destructive item swap the user signed off on.
func (h *LinkHandler) HandleConfirmReconnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding confirm request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.StagingToken == "" {
		http.Error(w, "stagingToken is required", http.StatusBadRequest)
		return
	}

	result, err := h.negotiator.ConfirmReconnection(r.Context(), req.StagingToken)
	if err != nil {
		if errors.Is(err, reconnect.ErrStagingExpired) {
			http.Error(w, "Reconnection staging expired or already used", http.StatusConflict)
			return
		}
		log.Printf("Error confirming reconnection: %v", err)
		http.Error(w, "Failed to confirm reconnection", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
