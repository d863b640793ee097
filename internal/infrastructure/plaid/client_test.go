package plaid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(serverURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    serverURL,
		clientID:   "test-client-id",
		secret:     "test-secret",
	}
}

func TestNewClient_Environments(t *testing.T) {
	if _, err := NewClient("id", "secret", "sandbox"); err != nil {
		t.Errorf("expected sandbox to be valid: %v", err)
	}
	if _, err := NewClient("id", "secret", "production"); err != nil {
		t.Errorf("expected production to be valid: %v", err)
	}
	if _, err := NewClient("id", "secret", "staging"); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestTransactionsSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/sync" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if body["client_id"] != "test-client-id" || body["secret"] != "test-secret" {
			t.Error("expected client credentials in request body")
		}
		if body["access_token"] != "access-1" {
			t.Errorf("unexpected access token %v", body["access_token"])
		}
		if body["cursor"] != "cursor-5" {
			t.Errorf("unexpected cursor %v", body["cursor"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"added": []map[string]any{
				{"transaction_id": "ptx-1", "account_id": "pacc-1", "amount": -12.5, "date": "2025-06-01", "name": "Coffee"},
			},
			"removed":     []map[string]any{{"transaction_id": "ptx-old"}},
			"next_cursor": "cursor-6",
			"has_more":    true,
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.TransactionsSync(context.Background(), "access-1", "cursor-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Added) != 1 || resp.Added[0].TransactionID != "ptx-1" {
		t.Errorf("unexpected added: %+v", resp.Added)
	}
	if len(resp.Removed) != 1 || resp.Removed[0].TransactionID != "ptx-old" {
		t.Errorf("unexpected removed: %+v", resp.Removed)
	}
	if resp.NextCursor != "cursor-6" || !resp.HasMore {
		t.Errorf("unexpected pagination: cursor=%q hasMore=%v", resp.NextCursor, resp.HasMore)
	}

	date, err := resp.Added[0].GetDate()
	if err != nil {
		t.Fatalf("failed to parse date: %v", err)
	}
	if date.Format("2006-01-02") != "2025-06-01" {
		t.Errorf("unexpected date %v", date)
	}
}

func TestTransactionsSync_OmitsEmptyCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["cursor"]; ok {
			t.Error("expected cursor to be omitted for first sync")
		}
		json.NewEncoder(w).Encode(map[string]any{"next_cursor": "cursor-1"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.TransactionsSync(context.Background(), "access-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestItemPublicTokenExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/item/public_token/exchange" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"item_id":      "plaid-item-1",
			"request_id":   "req-1",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.ItemPublicTokenExchange(context.Background(), "public-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken != "access-1" || resp.ItemID != "plaid-item-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error_type":    "ITEM_ERROR",
			"error_code":    "ITEM_LOGIN_REQUIRED",
			"error_message": "the login details of this item have changed",
			"request_id":    "req-2",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.TransactionsSync(context.Background(), "access-1", "")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.ErrorCode != "ITEM_LOGIN_REQUIRED" {
		t.Errorf("unexpected API error: %+v", apiErr)
	}
	if !IsLoginRequired(err) {
		t.Error("expected IsLoginRequired to match")
	}
}

func TestIsLoginRequired(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"login required", &APIError{ErrorType: "ITEM_ERROR", ErrorCode: "ITEM_LOGIN_REQUIRED"}, true},
		{"access not granted", &APIError{ErrorType: "ITEM_ERROR", ErrorCode: "ACCESS_NOT_GRANTED"}, true},
		{"other item error", &APIError{ErrorType: "ITEM_ERROR", ErrorCode: "PRODUCTS_NOT_READY"}, false},
		{"rate limit", &APIError{ErrorType: "RATE_LIMIT_EXCEEDED", ErrorCode: "TRANSACTIONS_LIMIT"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLoginRequired(tt.err); got != tt.want {
				t.Errorf("IsLoginRequired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(&APIError{ErrorType: "RATE_LIMIT_EXCEEDED"}) {
		t.Error("expected rate limit error to match")
	}
	if IsRateLimited(errors.New("timeout")) {
		t.Error("expected plain error not to match")
	}
}
