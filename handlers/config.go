package handlers

import (
	"encoding/json"
	"net/http"

	"popcorntracker/models"
)

type ConfigHandler struct {
	Store documentStore
	Sync  syncPusher
}

func NewConfigHandler(st documentStore, sync syncPusher) *ConfigHandler {
	return &ConfigHandler{Store: st, Sync: sync}
}

func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc := loadOrDefault(h.Store)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc.Config)
}

// Put replaces the display config, carrying the item list over.
func (h *ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	var cfg models.Config
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc := loadOrDefault(h.Store)

	doc.Config = cfg
	doc.Normalize()
	doc.Touch()

	if err := h.Store.SaveDocument(doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Sync.PushConfig(doc.Config, doc.LastUpdated)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc.Config)
}
