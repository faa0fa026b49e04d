package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"popcorntracker/models"
	"popcorntracker/services/store"
	"popcorntracker/services/syncer"
)

type identityStore interface {
	Identity() (models.Identity, error)
	SetIdentity(id models.Identity) error
	ClearIdentity() error
}

var _ identityStore = (*store.Service)(nil)

type sessionManager interface {
	Login(id models.Identity) (syncer.Outcome, error)
	Logout()
	Status() syncer.Status
}

var _ sessionManager = (*syncer.Manager)(nil)

type AuthHandler struct {
	Store   identityStore
	Session sessionManager
}

func NewAuthHandler(st identityStore, session sessionManager) *AuthHandler {
	return &AuthHandler{Store: st, Session: session}
}

// Login stores the identity and reconciles the local document against the
// remote record before returning. The UI blocks on this call on purpose.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var id models.Identity
	if err := json.NewDecoder(r.Body).Decode(&id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(id.ID) == "" || strings.TrimSpace(id.Email) == "" {
		http.Error(w, "id and email are required", http.StatusBadRequest)
		return
	}

	if err := h.Store.SetIdentity(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	outcome, err := h.Session.Login(id)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, syncer.ErrInvalidTimestamp) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Outcome syncer.Outcome `json:"outcome"`
	}{Outcome: outcome})
}

// Logout detaches the sync session and forgets the identity. The local
// document stays on disk untouched.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Session.Logout()
	if err := h.Store.ClearIdentity(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the stored identity for session restore on app start.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := h.Store.Identity()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNoIdentity) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(id)
}
