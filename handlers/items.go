package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"popcorntracker/models"
	"popcorntracker/services/metadata"
	"popcorntracker/utils/linktpl"
)

type metadataService interface {
	RefreshItems(ctx context.Context, items []models.Item) ([]models.Item, []metadata.RefreshFailure)
	SearchMedia(ctx context.Context, category models.Category, name string) ([]models.Media, error)
	FindEpisodeSource(ctx context.Context, media *models.AnilistMedia) (metadata.EpisodeSource, bool, error)
	Episodes(ctx context.Context, malID int64, page int) (metadata.JikanEpisodesPage, error)
}

var _ metadataService = (*metadata.Service)(nil)

type ItemsHandler struct {
	Store    documentStore
	Sync     syncPusher
	Metadata metadataService
}

func NewItemsHandler(st documentStore, sync syncPusher, meta metadataService) *ItemsHandler {
	return &ItemsHandler{Store: st, Sync: sync, Metadata: meta}
}

// List returns the tracked items in presentation order, favorites first.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	doc := loadOrDefault(h.Store)
	models.SortItems(doc.Items)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc.Items)
}

// Put replaces the item list, carrying the rest of the document over. An
// item's category is fixed at creation; a payload that changes the category
// of a stored item is rejected wholesale.
func (h *ItemsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var items []models.Item
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc := loadOrDefault(h.Store)
	stored := make(map[string]models.Category, len(doc.Items))
	for _, item := range doc.Items {
		stored[item.ID] = item.Category
	}
	for _, item := range items {
		if !item.Category.Valid() {
			http.Error(w, models.ErrInvalidCategory.Error(), http.StatusBadRequest)
			return
		}
		if prev, ok := stored[item.ID]; ok && prev != item.Category {
			http.Error(w, "item category is fixed at creation", http.StatusBadRequest)
			return
		}
	}

	doc.Items = items
	doc.Normalize()
	doc.Touch()

	if err := h.Store.SaveDocument(doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Sync.PushItems(doc.Items, doc.LastUpdated)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// Create appends a fresh item of the requested category. The category is
// fixed at creation and never changes afterwards.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category models.Category `json:"category"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := models.NewItem(body.Category)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrInvalidCategory) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	doc, err := h.mutate(func(doc *models.Document) { doc.Items = append(doc.Items, item) })
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Sync.PushItems(doc.Items, doc.LastUpdated)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}

// Refresh re-fetches media for the whole list. Item-level provider failures
// never block the rest; the successful subset is saved and mirrored.
func (h *ItemsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	doc := loadOrDefault(h.Store)

	updated, failed := h.Metadata.RefreshItems(r.Context(), doc.Items)

	doc.Items = updated
	doc.Touch()
	if err := h.Store.SaveDocument(doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Sync.PushItems(doc.Items, doc.LastUpdated)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Updated []models.Item             `json:"updated"`
		Failed  []metadata.RefreshFailure `json:"failed"`
	}{Updated: updated, Failed: failed})
}

// Search returns provider media candidates for attaching to an item.
func (h *ItemsHandler) Search(w http.ResponseWriter, r *http.Request) {
	category := models.Category(strings.TrimSpace(r.URL.Query().Get("category")))
	name := strings.TrimSpace(r.URL.Query().Get("q"))
	if name == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	results, err := h.Metadata.SearchMedia(r.Context(), category, name)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, models.ErrInvalidCategory) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	if results == nil {
		results = []models.Media{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// ExpandLink evaluates the item's link template against a value, defaulting
// to the item's current progress value.
func (h *ItemsHandler) ExpandLink(w http.ResponseWriter, r *http.Request) {
	item, ok := h.findItem(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(item.Link) == "" {
		http.Error(w, "item has no link", http.StatusNotFound)
		return
	}

	value := float64(item.Value)
	if raw := r.URL.Query().Get("value"); raw != "" {
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			http.Error(w, "value must be numeric", http.StatusBadRequest)
			return
		}
		value = parsed
	}

	expanded, err := linktpl.Expand(item.Link, value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		URL string `json:"url"`
	}{URL: expanded})
}

// Episodes resolves the item's episode catalog entry and returns one page of
// episodes. Read-only against the external catalog.
func (h *ItemsHandler) Episodes(w http.ResponseWriter, r *http.Request) {
	item, ok := h.findItem(w, r)
	if !ok {
		return
	}
	if item.Media == nil || item.Media.Anilist == nil {
		http.Error(w, "item has no anime media", http.StatusBadRequest)
		return
	}

	source, matched, err := h.Metadata.FindEpisodeSource(r.Context(), item.Media.Anilist)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if !matched {
		http.Error(w, "no episode catalog match", http.StatusNotFound)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "page must be a positive integer", http.StatusBadRequest)
			return
		}
		page = parsed
	}

	episodes, err := h.Metadata.Episodes(r.Context(), source.MalID, page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Source   metadata.EpisodeSource     `json:"source"`
		Episodes metadata.JikanEpisodesPage `json:"episodes"`
	}{Source: source, Episodes: episodes})
}

func (h *ItemsHandler) mutate(apply func(doc *models.Document)) (models.Document, error) {
	doc := loadOrDefault(h.Store)

	apply(&doc)
	doc.Normalize()
	doc.Touch()

	if err := h.Store.SaveDocument(doc); err != nil {
		return models.Document{}, err
	}
	return doc, nil
}

func (h *ItemsHandler) findItem(w http.ResponseWriter, r *http.Request) (models.Item, bool) {
	id := strings.TrimSpace(mux.Vars(r)["itemID"])
	if id == "" {
		http.Error(w, "item id is required", http.StatusBadRequest)
		return models.Item{}, false
	}

	doc := loadOrDefault(h.Store)
	for _, item := range doc.Items {
		if item.ID == id {
			return item, true
		}
	}

	http.Error(w, "item not found", http.StatusNotFound)
	return models.Item{}, false
}
