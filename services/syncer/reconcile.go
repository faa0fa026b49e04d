package syncer

import (
	"errors"
	"fmt"
	"time"

	"popcorntracker/models"
)

var ErrInvalidTimestamp = errors.New("invalid lastUpdated timestamp")

// Outcome describes what reconciliation did.
type Outcome string

const (
	// OutcomeNoop: both sides were default, nothing to merge.
	OutcomeNoop Outcome = "noop"
	// OutcomeAdoptedRemote: the remote document was persisted locally.
	OutcomeAdoptedRemote Outcome = "adoptedRemote"
	// OutcomePushedLocal: the local document was pushed to the remote record.
	OutcomePushedLocal Outcome = "pushedLocal"
)

// DocumentStore is the local persistence surface the reconciler needs.
type DocumentStore interface {
	LoadDocument() (models.Document, bool, error)
	SaveDocument(models.Document) error
}

// Pusher sends a full document to the bound remote record.
type Pusher interface {
	SetDocument(doc models.Document) <-chan Result
}

// Reconciler decides which of the local and remote documents wins on login.
// Whole-document last-writer-wins: the losing side is fully overwritten,
// never field-merged.
type Reconciler struct {
	store  DocumentStore
	pusher Pusher
}

func NewReconciler(store DocumentStore, pusher Pusher) *Reconciler {
	return &Reconciler{store: store, pusher: pusher}
}

// Reconcile runs the decision algorithm against the canonical remote
// document. It is idempotent: running it twice with no intervening mutation
// yields the same canonical document.
func (r *Reconciler) Reconcile(remoteDoc models.Document) (Outcome, error) {
	local, found, err := r.store.LoadDocument()
	if err != nil {
		// A document that cannot be parsed is treated as absent; the remote
		// copy becomes canonical.
		found = false
	}

	if !found {
		if err := r.store.SaveDocument(remoteDoc); err != nil {
			return "", err
		}
		return OutcomeAdoptedRemote, nil
	}

	localTime, err := parseTimestamp(local.LastUpdated)
	if err != nil {
		return "", fmt.Errorf("%w: local %q", ErrInvalidTimestamp, local.LastUpdated)
	}
	remoteTime, err := parseTimestamp(remoteDoc.LastUpdated)
	if err != nil {
		return "", fmt.Errorf("%w: remote %q", ErrInvalidTimestamp, remoteDoc.LastUpdated)
	}

	localDefault := local.IsDefault()
	remoteDefault := remoteDoc.IsDefault()

	switch {
	case localDefault && remoteDefault:
		return OutcomeNoop, nil
	case !localDefault && remoteDefault:
		return r.pushLocal(local)
	case localDefault && !remoteDefault:
		return r.adoptRemote(remoteDoc)
	case localTime.After(remoteTime):
		return r.pushLocal(local)
	default:
		// Ties favor the previously persisted server state.
		return r.adoptRemote(remoteDoc)
	}
}

func (r *Reconciler) adoptRemote(doc models.Document) (Outcome, error) {
	if err := r.store.SaveDocument(doc); err != nil {
		return "", err
	}
	return OutcomeAdoptedRemote, nil
}

func (r *Reconciler) pushLocal(doc models.Document) (Outcome, error) {
	res := <-r.pusher.SetDocument(doc)
	if res.Err != nil {
		return OutcomePushedLocal, res.Err
	}
	return OutcomePushedLocal, nil
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}
