package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
)

// DeviceTokenRegistrar stores FCM device tokens.
type DeviceTokenRegistrar interface {
	Register(ctx context.Context, token string) error
}

type NotificationHandler struct {
	tokens DeviceTokenRegistrar
}

func NewNotificationHandler(tokens DeviceTokenRegistrar) *NotificationHandler {
	return &NotificationHandler{tokens: tokens}
}

type registerDeviceRequest struct {
	Token string `json:"token"`
}

// HandleRegisterDevice stores a device token for push notifications.
func (h *NotificationHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding register device request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	if err := h.tokens.Register(r.Context(), req.Token); err != nil {
		log.Printf("Error registering device token: %v", err)
		http.Error(w, "Failed to register device", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
