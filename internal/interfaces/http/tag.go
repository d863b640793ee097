package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/transaction"
)

type TagHandler struct {
	tagRepo transaction.TagRepository
}

func NewTagHandler(tagRepo transaction.TagRepository) *TagHandler {
	return &TagHandler{tagRepo: tagRepo}
}

type createTagRequest struct {
	Name string `json:"name"`
}

// HandleTags dispatches GET (list) and POST (create).
func (h *TagHandler) HandleTags(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tags, err := h.tagRepo.ListTags(r.Context())
		if err != nil {
			log.Printf("Error listing tags: %v", err)
			http.Error(w, "Failed to list tags", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tags)

	case http.MethodPost:
		var req createTagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("Error decoding create tag request: %v", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			http.Error(w, "Tag name is required", http.StatusBadRequest)
			return
		}

		t, err := h.tagRepo.CreateTag(r.Context(), name)
		if err != nil {
			log.Printf("Error creating tag %q: %v", name, err)
			http.Error(w, "Failed to create tag", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(t)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleTagByID handles DELETE of a tag.
func (h *TagHandler) HandleTagByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tagID := r.PathValue("id")
	if tagID == "" {
		http.Error(w, "Tag ID is required", http.StatusBadRequest)
		return
	}

	if err := h.tagRepo.DeleteTag(r.Context(), tagID); err != nil {
		if errors.Is(err, transaction.ErrTagNotFound) {
			http.Error(w, "Tag not found", http.StatusNotFound)
			return
		}
		log.Printf("Error deleting tag %s: %v", tagID, err)
		http.Error(w, "Failed to delete tag", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
