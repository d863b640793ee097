package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/account"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/sync"
)

type mockItemRepo struct {
	getByIDFunc func(ctx context.Context, id int64) (*item.Item, error)
	listFunc    func(ctx context.Context) ([]*item.Item, error)
}

func (m *mockItemRepo) Create(ctx context.Context, params item.CreateItemParams) (*item.Item, error) {
	return nil, errors.New("not implemented")
}

func (m *mockItemRepo) GetByID(ctx context.Context, id int64) (*item.Item, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockItemRepo) GetByPlaidItemID(ctx context.Context, plaidItemID string) (*item.Item, error) {
	return nil, item.ErrNotFound
}

func (m *mockItemRepo) List(ctx context.Context) ([]*item.Item, error) {
	return m.listFunc(ctx)
}

func (m *mockItemRepo) ListByStatus(ctx context.Context, status item.Status) ([]*item.Item, error) {
	return nil, nil
}

func (m *mockItemRepo) UpdateStatus(ctx context.Context, id int64, status item.Status) error {
	return nil
}

type mockAccountRepo struct {
	getByIDFunc      func(ctx context.Context, id string) (*account.Account, error)
	listByItemIDFunc func(ctx context.Context, itemID int64) ([]*account.Account, error)
}

func (m *mockAccountRepo) Upsert(ctx context.Context, params account.UpsertAccountParams) (*account.Account, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id string) (*account.Account, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockAccountRepo) GetByPlaidAccountID(ctx context.Context, plaidAccountID string) (*account.Account, error) {
	return nil, account.ErrNotFound
}

func (m *mockAccountRepo) ListByItemID(ctx context.Context, itemID int64) ([]*account.Account, error) {
	return m.listByItemIDFunc(ctx, itemID)
}

type mockSyncTrigger struct {
	syncItemFunc func(ctx context.Context, itemID int64) (*sync.Result, error)
}

func (m *mockSyncTrigger) SyncItem(ctx context.Context, itemID int64) (*sync.Result, error) {
	return m.syncItemFunc(ctx, itemID)
}

func TestHandleListItems(t *testing.T) {
	items := &mockItemRepo{
		listFunc: func(ctx context.Context) ([]*item.Item, error) {
			return []*item.Item{
				{ID: 1, PlaidItemID: "plaid-item-1", Status: item.StatusActive},
				{ID: 2, PlaidItemID: "plaid-item-2", Status: item.StatusLoginRequired},
			}, nil
		},
	}
	handler := NewItemHandler(items, &mockAccountRepo{}, &mockSyncTrigger{})

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	w := httptest.NewRecorder()
	handler.HandleListItems(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got []*item.Item
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 items, got %d", len(got))
	}
}

func TestHandleListItems_MethodNotAllowed(t *testing.T) {
	handler := NewItemHandler(&mockItemRepo{}, &mockAccountRepo{}, &mockSyncTrigger{})

	req := httptest.NewRequest(http.MethodPost, "/api/items", nil)
	w := httptest.NewRecorder()
	handler.HandleListItems(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestHandleItemByID(t *testing.T) {
	items := &mockItemRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*item.Item, error) {
			if id != 5 {
				return nil, item.ErrNotFound
			}
			return &item.Item{ID: 5, PlaidItemID: "plaid-item-5", Status: item.StatusActive}, nil
		},
	}
	accounts := &mockAccountRepo{
		listByItemIDFunc: func(ctx context.Context, itemID int64) ([]*account.Account, error) {
			return []*account.Account{{ID: "acc-1", ItemID: itemID, Name: "Checking"}}, nil
		},
	}
	handler := NewItemHandler(items, accounts, &mockSyncTrigger{})

	req := httptest.NewRequest(http.MethodGet, "/api/items/5", nil)
	req.SetPathValue("id", "5")
	w := httptest.NewRecorder()
	handler.HandleItemByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		ID       int64              `json:"id"`
		Accounts []*account.Account `json:"accounts"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != 5 || len(got.Accounts) != 1 {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestHandleItemByID_NotFound(t *testing.T) {
	items := &mockItemRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*item.Item, error) {
			return nil, item.ErrNotFound
		},
	}
	handler := NewItemHandler(items, &mockAccountRepo{}, &mockSyncTrigger{})

	req := httptest.NewRequest(http.MethodGet, "/api/items/99", nil)
	req.SetPathValue("id", "99")
	w := httptest.NewRecorder()
	handler.HandleItemByID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleItemByID_InvalidID(t *testing.T) {
	handler := NewItemHandler(&mockItemRepo{}, &mockAccountRepo{}, &mockSyncTrigger{})

	req := httptest.NewRequest(http.MethodGet, "/api/items/abc", nil)
	req.SetPathValue("id", "abc")
	w := httptest.NewRecorder()
	handler.HandleItemByID(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleSyncItem(t *testing.T) {
	syncer := &mockSyncTrigger{
		syncItemFunc: func(ctx context.Context, itemID int64) (*sync.Result, error) {
			return &sync.Result{Added: 3, Modified: 1, Removed: 2, NextCursor: "cursor-9"}, nil
		},
	}
	handler := NewItemHandler(&mockItemRepo{}, &mockAccountRepo{}, syncer)

	req := httptest.NewRequest(http.MethodPost, "/api/items/5/sync", nil)
	req.SetPathValue("id", "5")
	w := httptest.NewRecorder()
	handler.HandleSyncItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got sync.Result
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Added != 3 || got.NextCursor != "cursor-9" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestHandleSyncItem_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", item.ErrNotFound, http.StatusNotFound},
		{"not syncable", sync.ErrItemNotSyncable, http.StatusConflict},
		{"login required", sync.ErrLoginRequired, http.StatusConflict},
		{"rate limited", sync.ErrRateLimited, http.StatusTooManyRequests},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &mockSyncTrigger{
				syncItemFunc: func(ctx context.Context, itemID int64) (*sync.Result, error) {
					return nil, tt.err
				},
			}
			handler := NewItemHandler(&mockItemRepo{}, &mockAccountRepo{}, syncer)

			req := httptest.NewRequest(http.MethodPost, "/api/items/5/sync", nil)
			req.SetPathValue("id", "5")
			w := httptest.NewRecorder()
			handler.HandleSyncItem(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}

func TestHandleAccountByID(t *testing.T) {
	accounts := &mockAccountRepo{
		getByIDFunc: func(ctx context.Context, id string) (*account.Account, error) {
			if id != "acc-1" {
				return nil, account.ErrNotFound
			}
			return &account.Account{ID: "acc-1", Name: "Checking"}, nil
		},
	}
	handler := NewItemHandler(&mockItemRepo{}, accounts, &mockSyncTrigger{})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/acc-1", nil)
	req.SetPathValue("id", "acc-1")
	w := httptest.NewRecorder()
	handler.HandleAccountByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/accounts/missing", nil)
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	handler.HandleAccountByID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
