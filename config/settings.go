package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Storage  StorageSettings  `json:"storage"`
	Remote   RemoteSettings   `json:"remote"`
	Metadata MetadataSettings `json:"metadata"`
	Sync     SyncSettings     `json:"sync"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StorageSettings locates the local document store.
type StorageSettings struct {
	Directory string `json:"directory"`
}

// RemoteSettings configures the remote document collection. The API key is a
// single shared app-level key sent as a header on every call.
type RemoteSettings struct {
	URL    string `json:"url"`
	APIKey string `json:"apiKey"`
}

type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	Language   string `json:"language"`
}

// SyncSettings controls the remote mirroring behavior. Local persistence is
// unconditional; remote pushes happen only when sync is enabled and a user
// identity is bound.
type SyncSettings struct {
	Enabled bool `json:"enabled"`
	// DebounceMs is forwarded to the UI, which debounces its save calls;
	// the daemon itself pushes once per mutation.
	DebounceMs int `json:"debounceMs"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first run.
func DefaultSettings() Settings {
	return Settings{
		Server:   ServerSettings{Host: "127.0.0.1", Port: 7710},
		Storage:  StorageSettings{Directory: "data"},
		Remote:   RemoteSettings{URL: "", APIKey: ""},
		Metadata: MetadataSettings{TMDBAPIKey: "", Language: "en"},
		Sync:     SyncSettings{Enabled: true, DebounceMs: 500},
		Log: LogConfig{
			File:       "",
			Level:      "info",
			MaxSize:    10,
			MaxAge:     28,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Manager loads and persists the settings file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for settings introduced after the file was written
	if strings.TrimSpace(s.Storage.Directory) == "" {
		s.Storage.Directory = "data"
	}
	if strings.TrimSpace(s.Metadata.Language) == "" {
		s.Metadata.Language = "en"
	}
	if s.Sync.DebounceMs <= 0 {
		s.Sync.DebounceMs = 500
	}
	if s.Server.Port == 0 {
		s.Server.Port = 7710
	}

	return s, nil
}

// Save writes settings atomically via a temp file rename.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
