package handlers

import (
	"encoding/json"
	"net/http"

	"popcorntracker/services/store"
)

type failureJournal interface {
	Failures() ([]store.SyncFailure, error)
	ClearFailures() error
}

var _ failureJournal = (*store.Service)(nil)

type SyncHandler struct {
	Session sessionManager
	Journal failureJournal
}

func NewSyncHandler(session sessionManager, journal failureJournal) *SyncHandler {
	return &SyncHandler{Session: session, Journal: journal}
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Session.Status())
}

func (h *SyncHandler) Failures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.Journal.Failures()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if failures == nil {
		failures = []store.SyncFailure{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(failures)
}

func (h *SyncHandler) ClearFailures(w http.ResponseWriter, r *http.Request) {
	if err := h.Journal.ClearFailures(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
