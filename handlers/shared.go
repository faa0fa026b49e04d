package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"popcorntracker/models"
	"popcorntracker/services/remote"
)

type sharedGateway interface {
	FetchByUser(ctx context.Context, userID string) ([]models.RemoteRecord, error)
	FetchRecord(ctx context.Context, recordID string) (models.RemoteRecord, error)
}

var _ sharedGateway = (*remote.Client)(nil)

// SharedHandler serves another user's document for the read-only shared
// view. It never reconciles and never writes, locally or remotely.
type SharedHandler struct {
	Remote sharedGateway
}

func NewSharedHandler(gateway sharedGateway) *SharedHandler {
	return &SharedHandler{Remote: gateway}
}

func (h *SharedHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])
	if userID == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	records, err := h.Remote.FetchByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if len(records) == 0 {
		http.Error(w, "no shared document for user", http.StatusNotFound)
		return
	}
	if len(records) > 1 {
		log.Printf("[shared] user %s has %d remote records, serving the first", userID, len(records))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records[0].Document)
}

// GetByRecord serves a shared document addressed by its record id, the form
// shared links carry.
func (h *SharedHandler) GetByRecord(w http.ResponseWriter, r *http.Request) {
	recordID := strings.TrimSpace(mux.Vars(r)["recordID"])
	if recordID == "" {
		http.Error(w, "record id is required", http.StatusBadRequest)
		return
	}

	record, err := h.Remote.FetchRecord(r.Context(), recordID)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, remote.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record.Document)
}
