package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"popcorntracker/models"
	"popcorntracker/services/store"
	"popcorntracker/services/syncer"
)

type documentStore interface {
	LoadDocument() (models.Document, bool, error)
	SaveDocument(doc models.Document) error
}

var _ documentStore = (*store.Service)(nil)

type syncPusher interface {
	PushDocument(doc models.Document)
	PushItems(items []models.Item, lastUpdated string)
	PushConfig(cfg models.Config, lastUpdated string)
}

var _ syncPusher = (*syncer.Manager)(nil)

type DocumentHandler struct {
	Store documentStore
	Sync  syncPusher
}

func NewDocumentHandler(st documentStore, sync syncPusher) *DocumentHandler {
	return &DocumentHandler{Store: st, Sync: sync}
}

// loadOrDefault reads the local document, falling back to the default for a
// device that never saved anything. A stored document that cannot be read
// counts as absent too; a corrupt file must never lock the app out.
func loadOrDefault(st documentStore) models.Document {
	doc, found, err := st.LoadDocument()
	if err != nil {
		log.Printf("[handlers] local document unreadable, serving default: %v", err)
		return models.DefaultDocument()
	}
	if !found {
		return models.DefaultDocument()
	}
	return doc
}

// Get returns the local document. A device that has never saved anything
// gets the default document, same as a fresh install.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loadOrDefault(h.Store))
}

// Put replaces the local document, stamps it, and mirrors it to the remote
// record when a session is bound. The save never waits on the push.
func (h *DocumentHandler) Put(w http.ResponseWriter, r *http.Request) {
	var doc models.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc.Normalize()
	doc.Touch()

	if err := h.Store.SaveDocument(doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Sync.PushDocument(doc)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
