package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"popcorntracker/handlers"
	"popcorntracker/models"
	"popcorntracker/services/metadata"
	"popcorntracker/services/store"
	"popcorntracker/services/syncer"
)

type recordingPusher struct {
	mu    sync.Mutex
	calls []string
}

func (p *recordingPusher) PushDocument(doc models.Document) { p.record("document") }
func (p *recordingPusher) PushItems(items []models.Item, lastUpdated string) {
	p.record("items")
}
func (p *recordingPusher) PushConfig(cfg models.Config, lastUpdated string) {
	p.record("config")
}

func (p *recordingPusher) record(op string) {
	p.mu.Lock()
	p.calls = append(p.calls, op)
	p.mu.Unlock()
}

func (p *recordingPusher) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type stubMetadata struct {
	updated []models.Item
	failed  []metadata.RefreshFailure

	source  metadata.EpisodeSource
	matched bool
	page    metadata.JikanEpisodesPage
}

func (m *stubMetadata) RefreshItems(ctx context.Context, items []models.Item) ([]models.Item, []metadata.RefreshFailure) {
	return m.updated, m.failed
}

func (m *stubMetadata) SearchMedia(ctx context.Context, category models.Category, name string) ([]models.Media, error) {
	if !category.Valid() {
		return nil, models.ErrInvalidCategory
	}
	return nil, nil
}

func (m *stubMetadata) FindEpisodeSource(ctx context.Context, media *models.AnilistMedia) (metadata.EpisodeSource, bool, error) {
	return m.source, m.matched, nil
}

func (m *stubMetadata) Episodes(ctx context.Context, malID int64, page int) (metadata.JikanEpisodesPage, error) {
	return m.page, nil
}

func newStore(t *testing.T) *store.Service {
	t.Helper()
	svc, err := store.NewService(afero.NewMemMapFs(), "data")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return svc
}

func TestDocumentGetReturnsDefaultWhenAbsent(t *testing.T) {
	h := handlers.NewDocumentHandler(newStore(t), &recordingPusher{})

	req := httptest.NewRequest(http.MethodGet, "/api/document", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var doc models.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}
	if !doc.IsDefault() {
		t.Fatalf("expected default document, got %+v", doc)
	}
}

func TestHandlersSurviveCorruptLocalDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	st, err := store.NewService(fs, "data")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := afero.WriteFile(fs, filepath.Join("data", "document.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to corrupt document: %v", err)
	}

	pusher := &recordingPusher{}
	docH := handlers.NewDocumentHandler(st, pusher)
	itemsH := handlers.NewItemsHandler(st, pusher, &stubMetadata{})
	configH := handlers.NewConfigHandler(st, pusher)

	docRec := httptest.NewRecorder()
	docH.Get(docRec, httptest.NewRequest(http.MethodGet, "/api/document", nil))
	if docRec.Code != http.StatusOK {
		t.Fatalf("document get: expected status 200, got %d", docRec.Code)
	}
	var doc models.Document
	if err := json.Unmarshal(docRec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}
	if !doc.IsDefault() {
		t.Fatalf("expected default document over corrupt file, got %+v", doc)
	}

	itemsRec := httptest.NewRecorder()
	itemsH.List(itemsRec, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	if itemsRec.Code != http.StatusOK || itemsRec.Body.String() != "[]\n" {
		t.Fatalf("items list: expected empty 200, got %d %q", itemsRec.Code, itemsRec.Body.String())
	}

	configRec := httptest.NewRecorder()
	configH.Get(configRec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if configRec.Code != http.StatusOK {
		t.Fatalf("config get: expected status 200, got %d", configRec.Code)
	}

	// Writes start over from the default document and replace the file.
	createRec := httptest.NewRecorder()
	itemsH.Create(createRec, httptest.NewRequest(http.MethodPost, "/api/items", bytes.NewReader([]byte(`{"category":"Anime"}`))))
	if createRec.Code != http.StatusCreated {
		t.Fatalf("item create: expected status 201, got %d", createRec.Code)
	}
	saved, found, err := st.LoadDocument()
	if err != nil || !found {
		t.Fatalf("expected readable document after write, found=%v err=%v", found, err)
	}
	if len(saved.Items) != 1 {
		t.Fatalf("expected one item, got %+v", saved.Items)
	}
}

func TestDocumentPutPersistsAndPushes(t *testing.T) {
	st := newStore(t)
	pusher := &recordingPusher{}
	h := handlers.NewDocumentHandler(st, pusher)

	item, err := models.NewItem(models.CategoryMovie)
	if err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	doc := models.DefaultDocument()
	doc.Items = append(doc.Items, item)
	doc.LastUpdated = "2020-01-01T00:00:00Z"

	payload, _ := json.Marshal(doc)
	req := httptest.NewRequest(http.MethodPut, "/api/document", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Put(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	saved, found, err := st.LoadDocument()
	if err != nil || !found {
		t.Fatalf("expected saved document, found=%v err=%v", found, err)
	}
	if len(saved.Items) != 1 || saved.Items[0].ID != item.ID {
		t.Fatalf("unexpected saved items: %+v", saved.Items)
	}
	if saved.LastUpdated == "2020-01-01T00:00:00Z" {
		t.Fatal("expected the save to restamp lastUpdated")
	}
	if calls := pusher.Calls(); len(calls) != 1 || calls[0] != "document" {
		t.Fatalf("expected one document push, got %v", calls)
	}
}

func TestItemsCreateRejectsUnknownCategory(t *testing.T) {
	h := handlers.NewItemsHandler(newStore(t), &recordingPusher{}, &stubMetadata{})

	req := httptest.NewRequest(http.MethodPost, "/api/items", bytes.NewReader([]byte(`{"category":"vinyl"}`)))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestItemsCreateAppendsAndPushes(t *testing.T) {
	st := newStore(t)
	pusher := &recordingPusher{}
	h := handlers.NewItemsHandler(st, pusher, &stubMetadata{})

	req := httptest.NewRequest(http.MethodPost, "/api/items", bytes.NewReader([]byte(`{"category":"Anime"}`)))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	var created models.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode item: %v", err)
	}
	if created.ID == "" || created.Category != models.CategoryAnime {
		t.Fatalf("unexpected created item: %+v", created)
	}

	saved, _, err := st.LoadDocument()
	if err != nil {
		t.Fatalf("failed to load document: %v", err)
	}
	if len(saved.Items) != 1 || saved.Items[0].ID != created.ID {
		t.Fatalf("expected created item persisted, got %+v", saved.Items)
	}
	if calls := pusher.Calls(); len(calls) != 1 || calls[0] != "items" {
		t.Fatalf("expected one items push, got %v", calls)
	}
}

func TestItemsPutRejectsCategoryChange(t *testing.T) {
	st := newStore(t)
	pusher := &recordingPusher{}
	h := handlers.NewItemsHandler(st, pusher, &stubMetadata{})

	item, _ := models.NewItem(models.CategoryAnime)
	doc := models.DefaultDocument()
	doc.Items = []models.Item{item}
	if err := st.SaveDocument(doc); err != nil {
		t.Fatalf("failed to save document: %v", err)
	}

	changed := item
	changed.Category = models.CategoryMovie
	payload, _ := json.Marshal([]models.Item{changed})

	req := httptest.NewRequest(http.MethodPut, "/api/items", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Put(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	saved, _, err := st.LoadDocument()
	if err != nil {
		t.Fatalf("failed to load document: %v", err)
	}
	if saved.Items[0].Category != models.CategoryAnime {
		t.Fatalf("stored category must be unchanged, got %s", saved.Items[0].Category)
	}
	if calls := pusher.Calls(); len(calls) != 0 {
		t.Fatalf("rejected update must not push, got %v", calls)
	}
}

func TestItemsListSortsFavoritesFirst(t *testing.T) {
	st := newStore(t)
	h := handlers.NewItemsHandler(st, &recordingPusher{}, &stubMetadata{})

	a, _ := models.NewItem(models.CategoryAnime)
	b, _ := models.NewItem(models.CategoryMovie)
	b.IsFavorite = true
	doc := models.DefaultDocument()
	doc.Items = []models.Item{a, b}
	if err := st.SaveDocument(doc); err != nil {
		t.Fatalf("failed to save document: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	var items []models.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to decode items: %v", err)
	}
	if len(items) != 2 || items[0].ID != b.ID {
		t.Fatalf("expected favorite first, got %+v", items)
	}
}

func TestItemsRefreshSavesUpdatedAndReportsFailures(t *testing.T) {
	st := newStore(t)
	pusher := &recordingPusher{}

	ok, _ := models.NewItem(models.CategoryAnime)
	broken, _ := models.NewItem(models.CategorySerie)
	doc := models.DefaultDocument()
	doc.Items = []models.Item{ok, broken}
	if err := st.SaveDocument(doc); err != nil {
		t.Fatalf("failed to save document: %v", err)
	}

	stampedOK := ok
	stamp := int64(1700000000000)
	stampedOK.LastUpdated = &stamp

	meta := &stubMetadata{
		updated: []models.Item{stampedOK, broken},
		failed:  []metadata.RefreshFailure{{ItemID: broken.ID, Error: "tmdb request failed"}},
	}
	h := handlers.NewItemsHandler(st, pusher, meta)

	req := httptest.NewRequest(http.MethodPost, "/api/items/refresh", nil)
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Updated []models.Item             `json:"updated"`
		Failed  []metadata.RefreshFailure `json:"failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Failed) != 1 || resp.Failed[0].ItemID != broken.ID {
		t.Fatalf("unexpected failures: %+v", resp.Failed)
	}

	saved, _, err := st.LoadDocument()
	if err != nil {
		t.Fatalf("failed to load document: %v", err)
	}
	if saved.Items[0].LastUpdated == nil {
		t.Fatal("expected the refreshed subset to be persisted")
	}
	if calls := pusher.Calls(); len(calls) != 1 || calls[0] != "items" {
		t.Fatalf("expected one items push, got %v", calls)
	}
}

func TestExpandLink(t *testing.T) {
	st := newStore(t)
	h := handlers.NewItemsHandler(st, &recordingPusher{}, &stubMetadata{})

	item, _ := models.NewItem(models.CategoryAnime)
	item.Link = "https://watch.example/ep/{{value+1}}"
	item.Value = 4
	doc := models.DefaultDocument()
	doc.Items = []models.Item{item}
	if err := st.SaveDocument(doc); err != nil {
		t.Fatalf("failed to save document: %v", err)
	}

	cases := []struct {
		query string
		want  string
	}{
		{"", "https://watch.example/ep/5"},
		{"?value=2", "https://watch.example/ep/3"},
		{"?value=2,5", "https://watch.example/ep/3-5"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/items/"+item.ID+"/link"+tc.query, nil)
		req = mux.SetURLVars(req, map[string]string{"itemID": item.ID})
		rec := httptest.NewRecorder()
		h.ExpandLink(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%q: expected status 200, got %d: %s", tc.query, rec.Code, rec.Body.String())
		}
		var resp struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%q: failed to decode response: %v", tc.query, err)
		}
		if resp.URL != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.query, tc.want, resp.URL)
		}
	}
}

func TestExpandLinkUnknownItem(t *testing.T) {
	h := handlers.NewItemsHandler(newStore(t), &recordingPusher{}, &stubMetadata{})

	req := httptest.NewRequest(http.MethodGet, "/api/items/nope/link", nil)
	req = mux.SetURLVars(req, map[string]string{"itemID": "nope"})
	rec := httptest.NewRecorder()
	h.ExpandLink(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestEpisodesResolvesCatalogEntry(t *testing.T) {
	st := newStore(t)

	item, _ := models.NewItem(models.CategoryAnime)
	item.Media = &models.Media{Anilist: &models.AnilistMedia{ID: 101, Episodes: 28}}
	doc := models.DefaultDocument()
	doc.Items = []models.Item{item}
	if err := st.SaveDocument(doc); err != nil {
		t.Fatalf("failed to save document: %v", err)
	}

	meta := &stubMetadata{
		source:  metadata.EpisodeSource{MalID: 52991, EpisodeDurationSec: 1440},
		matched: true,
		page: metadata.JikanEpisodesPage{
			Data: []metadata.JikanEpisode{{MalID: 1, Title: "The Journey's End"}},
		},
	}
	h := handlers.NewItemsHandler(st, &recordingPusher{}, meta)

	req := httptest.NewRequest(http.MethodGet, "/api/items/"+item.ID+"/episodes", nil)
	req = mux.SetURLVars(req, map[string]string{"itemID": item.ID})
	rec := httptest.NewRecorder()
	h.Episodes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Source   metadata.EpisodeSource     `json:"source"`
		Episodes metadata.JikanEpisodesPage `json:"episodes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Source.MalID != 52991 || len(resp.Episodes.Data) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestConfigPutCarriesItemsOver(t *testing.T) {
	st := newStore(t)
	pusher := &recordingPusher{}
	h := handlers.NewConfigHandler(st, pusher)

	item, _ := models.NewItem(models.CategoryManga)
	doc := models.DefaultDocument()
	doc.Items = []models.Item{item}
	if err := st.SaveDocument(doc); err != nil {
		t.Fatalf("failed to save document: %v", err)
	}

	cfg := models.DefaultConfig()
	cfg.Colors[models.CategoryAnime] = "#00FF00"
	payload, _ := json.Marshal(cfg)

	req := httptest.NewRequest(http.MethodPut, "/api/config", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Put(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	saved, _, err := st.LoadDocument()
	if err != nil {
		t.Fatalf("failed to load document: %v", err)
	}
	if saved.Config.Colors[models.CategoryAnime] != "#00FF00" {
		t.Fatalf("expected config saved, got %+v", saved.Config)
	}
	if len(saved.Items) != 1 || saved.Items[0].ID != item.ID {
		t.Fatal("config update must not drop the item list")
	}
	if calls := pusher.Calls(); len(calls) != 1 || calls[0] != "config" {
		t.Fatalf("expected one config push, got %v", calls)
	}
}

func TestAuthLoginRequiresIdentityFields(t *testing.T) {
	st := newStore(t)
	manager := syncer.NewManager(st, startedWorker(t, newFakeGateway()), true)
	h := handlers.NewAuthHandler(st, manager)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte(`{"name":"Sam"}`)))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestAuthLoginSyncsAndLogoutDetaches(t *testing.T) {
	st := newStore(t)
	manager := syncer.NewManager(st, startedWorker(t, newFakeGateway()), true)
	auth := handlers.NewAuthHandler(st, manager)
	syncH := handlers.NewSyncHandler(manager, st)

	body := []byte(`{"id":"user-1","email":"sam@example.com","name":"Sam"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	auth.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	statusRec := httptest.NewRecorder()
	syncH.Status(statusRec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))
	var status syncer.Status
	if err := json.Unmarshal(statusRec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if !status.LoggedIn || status.UserID != "user-1" {
		t.Fatalf("expected bound session, got %+v", status)
	}

	logoutRec := httptest.NewRecorder()
	auth.Logout(logoutRec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	if logoutRec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", logoutRec.Code)
	}

	meRec := httptest.NewRecorder()
	auth.Me(meRec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if meRec.Code != http.StatusNotFound {
		t.Fatalf("expected identity cleared, got %d", meRec.Code)
	}
}

func TestSyncFailuresListAndClear(t *testing.T) {
	st := newStore(t)
	manager := syncer.NewManager(st, startedWorker(t, newFakeGateway()), true)
	h := handlers.NewSyncHandler(manager, st)

	if err := st.RecordFailure("setItems", fmt.Errorf("remote write failed: 503")); err != nil {
		t.Fatalf("failed to record failure: %v", err)
	}

	rec := httptest.NewRecorder()
	h.Failures(rec, httptest.NewRequest(http.MethodGet, "/api/sync/failures", nil))

	var failures []store.SyncFailure
	if err := json.Unmarshal(rec.Body.Bytes(), &failures); err != nil {
		t.Fatalf("failed to decode failures: %v", err)
	}
	if len(failures) != 1 || failures[0].Op != "setItems" {
		t.Fatalf("unexpected failures: %+v", failures)
	}

	clearRec := httptest.NewRecorder()
	h.ClearFailures(clearRec, httptest.NewRequest(http.MethodDelete, "/api/sync/failures", nil))
	if clearRec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", clearRec.Code)
	}

	emptyRec := httptest.NewRecorder()
	h.Failures(emptyRec, httptest.NewRequest(http.MethodGet, "/api/sync/failures", nil))
	if body := emptyRec.Body.String(); body != "[]\n" {
		t.Fatalf("expected empty list, got %q", body)
	}
}
