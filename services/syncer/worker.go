// Package syncer owns remote mirroring: a background worker that serializes
// every outbound write to the remote document gateway, and the
// reconciliation engine that decides which of the local and remote documents
// wins on login.
package syncer

import (
	"context"
	"errors"
	"log"
	"sync"

	"popcorntracker/models"
	"popcorntracker/services/remote"
)

var (
	ErrWorkerStopped   = errors.New("sync worker is not running")
	ErrSessionNotBound = errors.New("no remote record bound; syncDocument must succeed first")
	ErrUserIDRequired  = errors.New("user id is required")
	ErrInitFailed      = errors.New("failed to initialise remote document")
)

// Op identifies a worker command.
type Op string

const (
	OpSyncDocument Op = "syncDocument"
	OpSetDocument  Op = "setDocument"
	OpSetItems     Op = "setItems"
	OpSetConfig    Op = "setConfig"
)

// Gateway is the remote surface the worker drives.
type Gateway interface {
	FetchByUser(ctx context.Context, userID string) ([]models.RemoteRecord, error)
	Create(ctx context.Context, doc models.Document, userID, userEmail string) (models.RemoteRecord, error)
	Patch(ctx context.Context, recordID string, doc models.Document, userID, userEmail string) (models.RemoteRecord, error)
}

var _ Gateway = (*remote.Client)(nil)

// Result is the typed completion event of one worker command. Each command
// gets its own one-shot channel, so a late subscriber cannot miss it.
type Result struct {
	Op      Op
	Record  models.RemoteRecord
	Created bool
	Err     error
}

type command struct {
	op        Op
	userID    string
	userEmail string
	doc       models.Document
	items     []models.Item
	config    *models.Config
	updated   string
	reply     chan Result
}

// session is the worker's bound state after a successful syncDocument.
// Rebinding replaces it wholesale; nothing is queued per session.
type session struct {
	userID    string
	userEmail string
	recordID  string
	lastDoc   models.Document
	bound     bool
}

// Worker processes sync commands strictly in arrival order on a single
// goroutine. It never touches local persistence and performs no retries: a
// failed remote write is surfaced once and dropped.
type Worker struct {
	gateway Gateway

	mu       sync.Mutex
	running  bool
	commands chan command
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWorker creates a worker for the given gateway.
func NewWorker(gateway Gateway) *Worker {
	return &Worker{gateway: gateway}
}

// Start begins the worker loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.commands = make(chan command, 16)
	w.running = true

	w.wg.Add(1)
	go w.loop()

	log.Println("[syncer] worker started")
	return nil
}

// Stop shuts the worker down. In-flight remote calls are not cancelled once
// issued; pending queued commands fail with ErrWorkerStopped.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	close(w.commands)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[syncer] worker stopped")
	case <-ctx.Done():
		log.Println("[syncer] worker stopped (timeout)")
	}
	return nil
}

// SyncDocument binds the worker session to a user: it fetches the user's
// remote record, creating one with the default document if none exists, and
// returns the canonical record. The worker never reconciles; that is the
// caller's job.
func (w *Worker) SyncDocument(userID, userEmail string) <-chan Result {
	return w.enqueue(command{op: OpSyncDocument, userID: userID, userEmail: userEmail})
}

// SetDocument pushes a full document to the bound remote record.
func (w *Worker) SetDocument(doc models.Document) <-chan Result {
	return w.enqueue(command{op: OpSetDocument, doc: doc})
}

// SetItems pushes new items; config and the rest of the document are carried
// over from whatever the worker was last told.
func (w *Worker) SetItems(items []models.Item, lastUpdated string) <-chan Result {
	return w.enqueue(command{op: OpSetItems, items: items, updated: lastUpdated})
}

// SetConfig pushes a new display config; items are carried over.
func (w *Worker) SetConfig(cfg models.Config, lastUpdated string) <-chan Result {
	return w.enqueue(command{op: OpSetConfig, config: &cfg, updated: lastUpdated})
}

func (w *Worker) enqueue(cmd command) <-chan Result {
	cmd.reply = make(chan Result, 1)

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		cmd.reply <- Result{Op: cmd.op, Err: ErrWorkerStopped}
		return cmd.reply
	}
	w.commands <- cmd
	w.mu.Unlock()

	return cmd.reply
}

func (w *Worker) loop() {
	defer w.wg.Done()

	var sess session
	for cmd := range w.commands {
		cmd.reply <- w.handle(&sess, cmd)
	}
}

func (w *Worker) handle(sess *session, cmd command) Result {
	switch cmd.op {
	case OpSyncDocument:
		return w.handleSync(sess, cmd)
	case OpSetDocument, OpSetItems, OpSetConfig:
		return w.handleSet(sess, cmd)
	default:
		return Result{Op: cmd.op, Err: errors.New("unknown command " + string(cmd.op))}
	}
}

func (w *Worker) handleSync(sess *session, cmd command) Result {
	if cmd.userID == "" {
		return Result{Op: cmd.op, Err: ErrUserIDRequired}
	}

	records, err := w.gateway.FetchByUser(w.ctx, cmd.userID)
	if err != nil {
		return Result{Op: cmd.op, Err: err}
	}

	created := false
	var record models.RemoteRecord
	if len(records) == 0 {
		record, err = w.gateway.Create(w.ctx, models.DefaultDocument(), cmd.userID, cmd.userEmail)
		if err != nil {
			return Result{Op: cmd.op, Err: errors.Join(ErrInitFailed, err)}
		}
		created = true
	} else {
		if len(records) > 1 {
			log.Printf("[syncer] user %s has %d remote records, using %s", cmd.userID, len(records), records[0].ID)
		}
		record = records[0]
	}

	*sess = session{
		userID:    cmd.userID,
		userEmail: cmd.userEmail,
		recordID:  record.ID,
		lastDoc:   record.Document,
		bound:     true,
	}

	return Result{Op: cmd.op, Record: record, Created: created}
}

func (w *Worker) handleSet(sess *session, cmd command) Result {
	if !sess.bound || sess.recordID == "" {
		return Result{Op: cmd.op, Err: ErrSessionNotBound}
	}

	doc := sess.lastDoc
	doc.Normalize()

	switch cmd.op {
	case OpSetDocument:
		doc = cmd.doc
	case OpSetItems:
		doc.Items = cmd.items
		doc.LastUpdated = cmd.updated
	case OpSetConfig:
		doc.Config = *cmd.config
		doc.LastUpdated = cmd.updated
	}

	record, err := w.gateway.Patch(w.ctx, sess.recordID, doc, sess.userID, sess.userEmail)
	if err != nil {
		return Result{Op: cmd.op, Err: err}
	}

	sess.lastDoc = doc
	return Result{Op: cmd.op, Record: record}
}
