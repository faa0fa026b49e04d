package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"popcorntracker/config"
)

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := config.NewManager(path)

	s, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if s.Server.Port != 7710 {
		t.Fatalf("expected default port 7710, got %d", s.Server.Port)
	}
	if !s.Sync.Enabled {
		t.Fatal("expected sync to be enabled by default")
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults to be written to disk: %v", err)
	}
}

func TestLoadBackfillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"server":{"host":"0.0.0.0"},"remote":{"url":"https://example.restdb.io/rest/document","apiKey":"k"}}`), 0o644); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	s, err := config.NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if s.Storage.Directory != "data" {
		t.Fatalf("expected storage directory backfill, got %q", s.Storage.Directory)
	}
	if s.Metadata.Language != "en" {
		t.Fatalf("expected language backfill, got %q", s.Metadata.Language)
	}
	if s.Remote.APIKey != "k" {
		t.Fatalf("expected remote key to survive, got %q", s.Remote.APIKey)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := config.NewManager(path)

	s := config.DefaultSettings()
	s.Remote.URL = "https://example.restdb.io/rest/document"
	if err := m.Save(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Remote.URL != s.Remote.URL {
		t.Fatalf("expected saved URL to round-trip, got %q", loaded.Remote.URL)
	}
}
