// Package store is the local document store: the single source-of-truth
// document, the logged-in identity record, and the sync-failure journal.
// Only UI-facing goroutines mutate it; the sync worker never touches local
// persistence.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"popcorntracker/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrNoIdentity         = errors.New("no identity stored")
)

const (
	documentFile  = "document.json"
	identityFile  = "user.json"
	failuresFile  = "sync_failures.json"
	maxFailureLog = 100
)

// SyncFailure is one recorded remote-sync failure, kept client-side for
// later inspection. Failures never block local use.
type SyncFailure struct {
	Op    string    `json:"op"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// Service persists the canonical local document and related records as JSON
// files inside a storage directory.
type Service struct {
	mu  sync.RWMutex
	fs  afero.Fs
	dir string
}

// NewService creates a store rooted at the provided directory.
func NewService(fsys afero.Fs, storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	if err := fsys.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	return &Service{fs: fsys, dir: storageDir}, nil
}

// LoadDocument returns the locally persisted document. found is false when no
// document has ever been saved. A malformed file is surfaced as an error;
// callers treat it as absent.
func (s *Service) LoadDocument() (models.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc models.Document
	found, err := s.read(documentFile, &doc)
	if err != nil || !found {
		return models.Document{}, false, err
	}

	doc.Normalize()
	return doc, true, nil
}

// SaveDocument overwrites the local document unconditionally.
func (s *Service) SaveDocument(doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(documentFile, doc)
}

// Identity returns the stored logged-in user record, if any.
func (s *Service) Identity() (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id models.Identity
	found, err := s.read(identityFile, &id)
	if err != nil {
		return models.Identity{}, err
	}
	if !found || id.ID == "" {
		return models.Identity{}, ErrNoIdentity
	}
	return id, nil
}

// SetIdentity persists the logged-in user record.
func (s *Service) SetIdentity(id models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(identityFile, id)
}

// ClearIdentity removes the logged-in user record. The local document is
// left untouched.
func (s *Service) ClearIdentity() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(filepath.Join(s.dir, identityFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RecordFailure appends a sync failure to the journal, trimming the oldest
// entries past the cap.
func (s *Service) RecordFailure(op string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failures []SyncFailure
	if _, err := s.read(failuresFile, &failures); err != nil {
		// A corrupt journal is not worth failing a sync over; start fresh.
		failures = nil
	}

	failures = append(failures, SyncFailure{
		Op:    op,
		Error: cause.Error(),
		At:    time.Now().UTC(),
	})
	if len(failures) > maxFailureLog {
		failures = failures[len(failures)-maxFailureLog:]
	}

	return s.write(failuresFile, failures)
}

// Failures lists the recorded sync failures, oldest first.
func (s *Service) Failures() ([]SyncFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var failures []SyncFailure
	if _, err := s.read(failuresFile, &failures); err != nil {
		return nil, err
	}
	if failures == nil {
		failures = []SyncFailure{}
	}
	return failures, nil
}

// ClearFailures empties the failure journal.
func (s *Service) ClearFailures() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(filepath.Join(s.dir, failuresFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Service) read(name string, v any) (bool, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

func (s *Service) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, path)
}
