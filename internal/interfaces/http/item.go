package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/account"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/sync"
)

// SyncTrigger runs one sync for an item. Satisfied by sync.Engine.
type SyncTrigger interface {
	SyncItem(ctx context.Context, itemID int64) (*sync.Result, error)
}

type ItemHandler struct {
	itemRepo    item.Repository
	accountRepo account.Repository
	syncer      SyncTrigger
}

func NewItemHandler(itemRepo item.Repository, accountRepo account.Repository, syncer SyncTrigger) *ItemHandler {
	return &ItemHandler{
		itemRepo:    itemRepo,
		accountRepo: accountRepo,
		syncer:      syncer,
	}
}

type itemResponse struct {
	*item.Item
	Accounts []*account.Account `json:"accounts,omitempty"`
}

// HandleListItems returns all connected items.
func (h *ItemHandler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items, err := h.itemRepo.List(r.Context())
	if err != nil {
		log.Printf("Error listing items: %v", err)
		http.Error(w, "Failed to list items", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// HandleItemByID returns one item with its accounts.
func (h *ItemHandler) HandleItemByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.parseItemID(w, r)
	if !ok {
		return
	}

	it, err := h.itemRepo.GetByID(r.Context(), id)
	if errors.Is(err, item.ErrNotFound) {
		http.Error(w, "Item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting item %d: %v", id, err)
		http.Error(w, "Failed to get item", http.StatusInternalServerError)
		return
	}

	accounts, err := h.accountRepo.ListByItemID(r.Context(), it.ID)
	if err != nil {
		log.Printf("Error listing accounts for item %d: %v", it.ID, err)
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(itemResponse{Item: it, Accounts: accounts})
}

// HandleSyncItem triggers an on-demand sync for an item.
func (h *ItemHandler) HandleSyncItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.parseItemID(w, r)
	if !ok {
		return
	}

	result, err := h.syncer.SyncItem(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, item.ErrNotFound):
			http.Error(w, "Item not found", http.StatusNotFound)
		case errors.Is(err, sync.ErrItemNotSyncable), errors.Is(err, sync.ErrLoginRequired):
			http.Error(w, "Item connection requires user repair before syncing", http.StatusConflict)
		case errors.Is(err, sync.ErrRateLimited):
			http.Error(w, "Provider rate limit reached, retry later", http.StatusTooManyRequests)
		default:
			log.Printf("Error syncing item %d: %v", id, err)
			http.Error(w, "Sync failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleAccountByID returns one account.
func (h *ItemHandler) HandleAccountByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID := r.PathValue("id")
	if accountID == "" {
		http.Error(w, "Account ID is required", http.StatusBadRequest)
		return
	}

	acc, err := h.accountRepo.GetByID(r.Context(), accountID)
	if errors.Is(err, account.ErrNotFound) {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting account %s: %v", accountID, err)
		http.Error(w, "Failed to get account", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(acc)
}

func (h *ItemHandler) parseItemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		http.Error(w, "Item ID is required", http.StatusBadRequest)
		return 0, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
