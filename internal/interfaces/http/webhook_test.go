package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/webhook"
)

type mockDispatcher struct {
	handleFunc func(ctx context.Context, body []byte, header string) (webhook.Result, error)
}

func (m *mockDispatcher) Handle(ctx context.Context, body []byte, header string) (webhook.Result, error) {
	return m.handleFunc(ctx, body, header)
}

func TestHandleWebhook_Acknowledged(t *testing.T) {
	dispatcher := &mockDispatcher{
		handleFunc: func(ctx context.Context, body []byte, header string) (webhook.Result, error) {
			if header != "signed-jwt" {
				t.Errorf("expected verification header to be forwarded, got %q", header)
			}
			if !strings.Contains(string(body), "SYNC_UPDATES_AVAILABLE") {
				t.Errorf("unexpected body %s", body)
			}
			return webhook.Result{Acknowledged: true}, nil
		},
	}
	handler := NewWebhookHandler(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/api/plaid/webhook",
		strings.NewReader(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE"}`))
	req.Header.Set("Plaid-Verification", "signed-jwt")
	w := httptest.NewRecorder()
	handler.HandleWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got struct {
		Received bool   `json:"received"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !got.Received || got.Error != "" {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestHandleWebhook_ProcessingFailureStill200(t *testing.T) {
	dispatcher := &mockDispatcher{
		handleFunc: func(ctx context.Context, body []byte, header string) (webhook.Result, error) {
			return webhook.Result{Acknowledged: true, ProcessingError: "sync failed"}, nil
		},
	}
	handler := NewWebhookHandler(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/api/plaid/webhook", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	handler.HandleWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 even for processing failure, got %d", w.Code)
	}

	var got struct {
		Received bool   `json:"received"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !got.Received || got.Error != "sync failed" {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	dispatcher := &mockDispatcher{
		handleFunc: func(ctx context.Context, body []byte, header string) (webhook.Result, error) {
			return webhook.Result{}, webhook.ErrInvalidSignature
		},
	}
	handler := NewWebhookHandler(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/api/plaid/webhook", strings.NewReader(`{}`))
	req.Header.Set("Plaid-Verification", "forged")
	w := httptest.NewRecorder()
	handler.HandleWebhook(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	handler := NewWebhookHandler(&mockDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/plaid/webhook", nil)
	w := httptest.NewRecorder()
	handler.HandleWebhook(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}
