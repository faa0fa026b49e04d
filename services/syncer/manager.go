package syncer

import (
	"errors"
	"log"
	"sync"
	"time"

	"popcorntracker/models"
)

// SessionWorker is the command surface of the background worker.
type SessionWorker interface {
	SyncDocument(userID, userEmail string) <-chan Result
	SetDocument(doc models.Document) <-chan Result
	SetItems(items []models.Item, lastUpdated string) <-chan Result
	SetConfig(cfg models.Config, lastUpdated string) <-chan Result
}

var _ SessionWorker = (*Worker)(nil)

// opSaveDocument journals local persistence failures, distinct from the
// worker's remote push ops.
const opSaveDocument = "saveDocument"

// ManagerStore is the local persistence surface the manager needs.
type ManagerStore interface {
	DocumentStore
	RecordFailure(op string, cause error) error
}

// Status is a snapshot of the sync session for inspection endpoints.
type Status struct {
	LoggedIn    bool      `json:"loggedIn"`
	UserID      string    `json:"userId,omitempty"`
	Syncing     bool      `json:"syncing"`
	LastOutcome Outcome   `json:"lastOutcome,omitempty"`
	LastSyncAt  time.Time `json:"lastSyncAt,omitzero"`
}

// Manager is the UI-facing facade over the worker and the reconciler. It
// serializes logins, gates remote pushes on a bound identity, and records
// push failures in the journal without ever blocking local use.
type Manager struct {
	store   ManagerStore
	worker  SessionWorker
	rec     *Reconciler
	enabled bool

	mu          sync.Mutex
	boundUser   string
	syncing     bool
	lastOutcome Outcome
	lastSyncAt  time.Time
}

func NewManager(st ManagerStore, w SessionWorker, syncEnabled bool) *Manager {
	return &Manager{
		store:   st,
		worker:  w,
		rec:     NewReconciler(st, w),
		enabled: syncEnabled,
	}
}

// Login binds the sync session to an identity and reconciles the local
// document against the remote one. Called once per login and again on
// identity change; callers block user interaction until it returns.
func (m *Manager) Login(id models.Identity) (Outcome, error) {
	m.mu.Lock()
	m.syncing = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.mu.Unlock()
	}()

	res := <-m.worker.SyncDocument(id.ID, id.Email)
	if res.Err != nil {
		if jerr := m.store.RecordFailure(string(OpSyncDocument), res.Err); jerr != nil {
			log.Printf("[syncer] failed to journal sync error: %v", jerr)
		}
		return "", res.Err
	}

	outcome, err := m.rec.Reconcile(res.Record.Document)
	if err != nil {
		if errors.Is(err, ErrInvalidTimestamp) {
			// Consistency error: refuse to guess a winner.
			return "", err
		}
		if outcome != OutcomePushedLocal {
			// Local persistence failed while adopting the remote document.
			// That is a disk problem, not a push problem; surface it.
			if jerr := m.store.RecordFailure(opSaveDocument, err); jerr != nil {
				log.Printf("[syncer] failed to journal save error: %v", jerr)
			}
			return "", err
		}
		// The local document stays canonical; the failed push is journaled
		// and the user keeps working offline.
		if jerr := m.store.RecordFailure(string(OpSetDocument), err); jerr != nil {
			log.Printf("[syncer] failed to journal push error: %v", jerr)
		}
	}

	m.mu.Lock()
	m.boundUser = id.ID
	m.lastOutcome = outcome
	m.lastSyncAt = time.Now().UTC()
	m.mu.Unlock()

	log.Printf("[syncer] reconciled user %s: %s", id.ID, outcome)
	return outcome, nil
}

// Logout detaches the sync session. The local document is untouched.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.boundUser = ""
	m.lastOutcome = ""
	m.mu.Unlock()
}

// PushDocument mirrors a full document to the remote record, fire-and-forget.
// No-op when no identity is bound or sync is disabled.
func (m *Manager) PushDocument(doc models.Document) {
	m.push(OpSetDocument, func() <-chan Result { return m.worker.SetDocument(doc) })
}

// PushItems mirrors an items update, carrying the rest of the document over.
func (m *Manager) PushItems(items []models.Item, lastUpdated string) {
	m.push(OpSetItems, func() <-chan Result { return m.worker.SetItems(items, lastUpdated) })
}

// PushConfig mirrors a config update, carrying the rest of the document over.
func (m *Manager) PushConfig(cfg models.Config, lastUpdated string) {
	m.push(OpSetConfig, func() <-chan Result { return m.worker.SetConfig(cfg, lastUpdated) })
}

func (m *Manager) push(op Op, send func() <-chan Result) {
	m.mu.Lock()
	bound := m.boundUser != ""
	m.mu.Unlock()

	if !bound || !m.enabled {
		return
	}

	reply := send()
	go func() {
		res := <-reply
		if res.Err == nil {
			return
		}
		log.Printf("[syncer] %s push failed: %v", op, res.Err)
		if jerr := m.store.RecordFailure(string(op), res.Err); jerr != nil {
			log.Printf("[syncer] failed to journal push error: %v", jerr)
		}
	}()
}

// Status reports the current session snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		LoggedIn:    m.boundUser != "",
		UserID:      m.boundUser,
		Syncing:     m.syncing,
		LastOutcome: m.lastOutcome,
		LastSyncAt:  m.lastSyncAt,
	}
}
