package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/transaction"
)

// Splitter divides a transaction into synthetic children. Satisfied by
// transaction.SplitService.
type Splitter interface {
	Split(ctx context.Context, transactionID string, splits []transaction.SplitInput) (*transaction.SplitResult, error)
}

type TransactionHandler struct {
	transactionRepo transaction.Repository
	splitter        Splitter
}

func NewTransactionHandler(transactionRepo transaction.Repository, splitter Splitter) *TransactionHandler {
	return &TransactionHandler{
		transactionRepo: transactionRepo,
		splitter:        splitter,
	}
}

// HandleListTransactions returns transactions for a specific account.
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		http.Error(w, "accountId is required", http.StatusBadRequest)
		return
	}

	// Parse pagination parameters
	limit := 50
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	transactions, err := h.transactionRepo.ListByAccountID(r.Context(), accountID, limit, offset)
	if err != nil {
		log.Printf("Error listing transactions for account %s: %v", accountID, err)
		http.Error(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

type transactionDetail struct {
	*transaction.Transaction
	Children []*transaction.Transaction `json:"children,omitempty"`
}

// HandleTransactionByID dispatches GET (detail) and PATCH (update).
func (h *TransactionHandler) HandleTransactionByID(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetTransaction(w, r)
	case http.MethodPatch:
		h.handleUpdateTransaction(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetTransaction returns one transaction, with its children when split.
func (h *TransactionHandler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := r.PathValue("id")
	if transactionID == "" {
		http.Error(w, "Transaction ID is required", http.StatusBadRequest)
		return
	}

	tx, err := h.transactionRepo.GetByID(r.Context(), transactionID)
	if errors.Is(err, transaction.ErrNotFound) {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting transaction %s: %v", transactionID, err)
		http.Error(w, "Failed to get transaction", http.StatusInternalServerError)
		return
	}

	detail := transactionDetail{Transaction: tx}
	if tx.IsSplit {
		children, err := h.transactionRepo.ListChildren(r.Context(), tx.ID)
		if err != nil {
			log.Printf("Error listing children of transaction %s: %v", tx.ID, err)
			http.Error(w, "Failed to list split children", http.StatusInternalServerError)
			return
		}
		detail.Children = children
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

type updateTransactionRequest struct {
	Category    *string `json:"category,omitempty"`
	Subcategory *string `json:"subcategory,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// handleUpdateTransaction updates the user-editable fields.
func (h *TransactionHandler) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := r.PathValue("id")
	if transactionID == "" {
		http.Error(w, "Transaction ID is required", http.StatusBadRequest)
		return
	}

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding update transaction request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.transactionRepo.Update(r.Context(), transactionID, transaction.UpdateParams{
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Notes:       req.Notes,
	})
	if errors.Is(err, transaction.ErrNotFound) {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error updating transaction %s: %v", transactionID, err)
		http.Error(w, "Failed to update transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

type splitRequest struct {
	Splits []transaction.SplitInput `json:"splits"`
}

type amountMismatchResponse struct {
	Error    string `json:"error"`
	Original string `json:"original"`
	Total    string `json:"total"`
}

// HandleSplitTransaction divides a transaction into parts.
func (h *TransactionHandler) HandleSplitTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transactionID := r.PathValue("id")
	if transactionID == "" {
		http.Error(w, "Transaction ID is required", http.StatusBadRequest)
		return
	}

	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding split request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.splitter.Split(r.Context(), transactionID, req.Splits)
	if err != nil {
		var mismatch *transaction.AmountMismatchError
		switch {
		case errors.Is(err, transaction.ErrNotFound):
			http.Error(w, "Transaction not found", http.StatusNotFound)
		case errors.Is(err, transaction.ErrAlreadySplit):
			http.Error(w, "Transaction is already split", http.StatusConflict)
		case errors.Is(err, transaction.ErrTooFewSplits),
			errors.Is(err, transaction.ErrInvalidAmount),
			errors.Is(err, transaction.ErrSplitChild):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &mismatch):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(amountMismatchResponse{
				Error:    mismatch.Error(),
				Original: mismatch.Original.StringFixed(2),
				Total:    mismatch.Total.StringFixed(2),
			})
		default:
			log.Printf("Error splitting transaction %s: %v", transactionID, err)
			http.Error(w, "Failed to split transaction", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

type setTagsRequest struct {
	TagIDs []string `json:"tagIds"`
}

// HandleTransactionTags dispatches GET (list) and PUT (replace) of a
// transaction's tags.
func (h *TransactionHandler) HandleTransactionTags(w http.ResponseWriter, r *http.Request) {
	transactionID := r.PathValue("id")
	if transactionID == "" {
		http.Error(w, "Transaction ID is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		tagIDs, err := h.transactionRepo.GetTransactionTags(r.Context(), transactionID)
		if err != nil {
			log.Printf("Error getting tags for transaction %s: %v", transactionID, err)
			http.Error(w, "Failed to get tags", http.StatusInternalServerError)
			return
		}
		if tagIDs == nil {
			tagIDs = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]string{"tagIds": tagIDs})

	case http.MethodPut:
		var req setTagsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("Error decoding set tags request: %v", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.transactionRepo.SetTransactionTags(r.Context(), transactionID, req.TagIDs); err != nil {
			log.Printf("Error setting tags for transaction %s: %v", transactionID, err)
			http.Error(w, "Failed to set tags", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
