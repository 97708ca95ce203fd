// Package editor implements the client side of the OT protocol: capturing
// local edits, maintaining the committed / in-flight / pending buffers,
// driving the submission loop, and undo/redo via inversion.
//
// The editor is single-threaded cooperative: all state transitions are
// synchronous with respect to the caller's event loop, and the submission
// loop suspends only at the RPC boundary.
package editor

import (
	"context"
	"fmt"
	"time"

	"github.com/lhoward/cowrite/ot"
	"github.com/lhoward/cowrite/store"
)

// ResponseCode distinguishes the two submit outcomes.
type ResponseCode int

const (
	// Ack: the submission was committed on the revision it was based on.
	Ack ResponseCode = iota + 1
	// DiscoveredNewRevisions: other revisions were committed since the
	// submission's base revision. The response carries them, ending with the
	// submission itself transformed and committed on top.
	DiscoveredNewRevisions
)

// SubmitResult is the server's answer to a submission.
type SubmitResult struct {
	Code           ResponseCode
	LastRevision   int64
	Revisions      []store.Revision
	EndOfRevisions bool
}

// Submitter is the RPC boundary the editor drives. Implementations carry the
// transport (WebSocket, HTTP, in-process for tests).
type Submitter interface {
	Submit(ctx context.Context, docID string, onRevision int64, cs ot.ChangeSet) (SubmitResult, error)
	Revisions(ctx context.Context, docID string, afterRevision int64) ([]store.Revision, error)
}

// Consecutive local edits inside this window compose into the current
// pending change set and merge their undo entries, so a typing burst undoes
// as one step rather than per keystroke.
const composableWindow = 2 * time.Second

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 250 * time.Millisecond
)

type undoItem struct {
	inverse        ot.ChangeSet
	selectionAfter ot.Selection
}

// Editor holds one open document's client state. The invariant at every
// instant:
//
//	localText == apply(pending, apply(inFlight, serverText))
//
// where serverText is the text at committedRevision.
type Editor struct {
	docID     string
	authorID  string
	submitter Submitter

	serverText        []uint16
	committedRevision int64
	inFlight          ot.ChangeSet
	pending           ot.ChangeSet
	localText         []uint16
	selection         ot.Selection

	undoStack       []undoItem
	redoStack       []undoItem
	composableUntil time.Time
	now             func() time.Time

	maxAttempts int
	backoff     time.Duration
}

// NewEditor creates an editor for a document whose text at the given
// committed revision is known. authorID identifies this client in revision
// broadcasts so the editor can recognize its own committed submissions.
func NewEditor(docID, authorID, text string, revision int64, submitter Submitter) *Editor {
	units := ot.Units(text)
	return &Editor{
		docID:             docID,
		authorID:          authorID,
		submitter:         submitter,
		serverText:        units,
		committedRevision: revision,
		localText:         append([]uint16(nil), units...),
		now:               time.Now,
		maxAttempts:       defaultMaxAttempts,
		backoff:           defaultBackoff,
	}
}

// Text returns the local text, including unacknowledged edits.
func (e *Editor) Text() string { return ot.UnitsString(e.localText) }

// CommittedRevision returns the highest server revision integrated so far.
func (e *Editor) CommittedRevision() int64 { return e.committedRevision }

// ServerText returns the text at CommittedRevision.
func (e *Editor) ServerText() string { return ot.UnitsString(e.serverText) }

// HasUnsyncedEdits reports whether any local edit has not been acknowledged.
func (e *Editor) HasUnsyncedEdits() bool {
	return !e.inFlight.IsEmpty() || !e.pending.IsEmpty()
}

// Selection returns the current selection.
func (e *Editor) Selection() ot.Selection { return e.selection }

// SetSelection replaces the selection, e.g. after a pointer event.
func (e *Editor) SetSelection(sel ot.Selection) { e.selection = sel }

// ApplyLocal records an edit rooted at the local text: it composes into the
// pending buffer, pushes its inverse onto the undo stack, and clears the
// redo stack.
func (e *Editor) ApplyLocal(cs ot.ChangeSet) error {
	inverse, err := ot.Invert(cs, e.localText)
	if err != nil {
		return fmt.Errorf("local edit: %w", err)
	}
	selectionBefore := e.selection
	pendingWasEmpty := e.pending.IsEmpty()
	if err := e.applyEdit(cs); err != nil {
		return fmt.Errorf("local edit: %w", err)
	}
	e.redoStack = nil

	now := e.now()
	if !pendingWasEmpty && len(e.undoStack) > 0 && now.Before(e.composableUntil) {
		// Merge into the current typing burst.
		top := &e.undoStack[len(e.undoStack)-1]
		merged, err := ot.Compose(inverse, top.inverse)
		if err != nil {
			return fmt.Errorf("local edit: merging undo entry: %w", err)
		}
		top.inverse = merged
		return nil
	}
	e.undoStack = append(e.undoStack, undoItem{inverse: inverse, selectionAfter: selectionBefore})
	e.composableUntil = now.Add(composableWindow)
	return nil
}

// applyEdit folds a change set rooted at the local text into the pending
// buffer and advances the local text and selection. Undo bookkeeping is the
// caller's business.
func (e *Editor) applyEdit(cs ot.ChangeSet) error {
	newText, err := ot.Apply(e.localText, cs)
	if err != nil {
		return err
	}
	if e.pending.IsEmpty() {
		e.pending = cs
	} else {
		composed, err := ot.Compose(e.pending, cs)
		if err != nil {
			return err
		}
		e.pending = composed
	}
	e.localText = newText
	e.selection = ot.TransformSelection(e.selection, cs)
	return nil
}

// Sync drives the single-flight submission loop until the editor has nothing
// left to submit. Transport errors are retried with backoff on the same base
// revision; the submission is idempotent by (docID, onRevision, changeSet).
func (e *Editor) Sync(ctx context.Context) error {
	for {
		if e.inFlight.IsEmpty() {
			if e.pending.IsEmpty() {
				return nil
			}
			e.inFlight = e.pending
			e.pending = ot.ChangeSet{}
		}

		res, err := e.submit(ctx)
		if err != nil {
			return err
		}
		switch res.Code {
		case Ack:
			if err := e.handleAck(ctx, res); err != nil {
				return err
			}
		case DiscoveredNewRevisions:
			if err := e.integrate(ctx, res.Revisions); err != nil {
				return err
			}
		default:
			return fmt.Errorf("sync %q: unknown response code %d", e.docID, res.Code)
		}
	}
}

func (e *Editor) submit(ctx context.Context) (SubmitResult, error) {
	backoff := e.backoff
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		res, err := e.submitter.Submit(ctx, e.docID, e.committedRevision, e.inFlight)
		if err == nil {
			return res, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return SubmitResult{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return SubmitResult{}, fmt.Errorf("submit %q on revision %d after %d attempts: %w",
		e.docID, e.committedRevision, e.maxAttempts, lastErr)
}

func (e *Editor) handleAck(ctx context.Context, res SubmitResult) error {
	newText, err := ot.Apply(e.serverText, e.inFlight)
	if err != nil {
		return fmt.Errorf("ack for %q: %w", e.docID, err)
	}
	e.serverText = newText
	e.committedRevision = res.LastRevision
	e.inFlight = ot.ChangeSet{}
	// Normally empty in the ack case, but tolerated.
	return e.integrate(ctx, res.Revisions)
}

// HandleRemote integrates revisions arriving over the pub-sub channel.
// Duplicates are skipped; a gap falls back to fetching the missing range.
func (e *Editor) HandleRemote(ctx context.Context, revs []store.Revision) error {
	return e.integrate(ctx, revs)
}

// integrate folds committed revisions into the editor state in order:
// server text advances, in-flight and pending are transformed past each
// foreign revision, the undo stacks and selection follow, and a revision
// authored by this client is adopted as the acknowledgement of the in-flight
// submission.
func (e *Editor) integrate(ctx context.Context, revs []store.Revision) error {
	for i := 0; i < len(revs); i++ {
		r := revs[i]
		if r.Number <= e.committedRevision {
			continue
		}
		if r.Number != e.committedRevision+1 {
			// Gap in the pub-sub stream: fetch the missing range and restart
			// from there.
			missing, err := e.submitter.Revisions(ctx, e.docID, e.committedRevision)
			if err != nil {
				return fmt.Errorf("integrate %q: filling gap before revision %d: %w", e.docID, r.Number, err)
			}
			return e.integrate(ctx, missing)
		}
		if err := e.integrateOne(r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Editor) integrateOne(r store.Revision) error {
	if r.AuthorID == e.authorID && !e.inFlight.IsEmpty() {
		// Our own submission, transformed and committed by the server. Adopt
		// it as the acknowledgement rather than transforming against it.
		newText, err := ot.Apply(e.serverText, r.ChangeSet)
		if err != nil {
			return fmt.Errorf("integrate %q revision %d (own): %w", e.docID, r.Number, err)
		}
		e.serverText = newText
		e.committedRevision = r.Number
		e.inFlight = ot.ChangeSet{}
		return nil
	}

	cs := r.ChangeSet
	var err error
	if !e.inFlight.IsEmpty() {
		cs, e.inFlight, err = ot.Transform(cs, e.inFlight)
		if err != nil {
			return fmt.Errorf("integrate %q revision %d: transforming in-flight: %w", e.docID, r.Number, err)
		}
	}
	if !e.pending.IsEmpty() {
		cs, e.pending, err = ot.Transform(cs, e.pending)
		if err != nil {
			return fmt.Errorf("integrate %q revision %d: transforming pending: %w", e.docID, r.Number, err)
		}
	}

	newServer, err := ot.Apply(e.serverText, r.ChangeSet)
	if err != nil {
		return fmt.Errorf("integrate %q revision %d: %w", e.docID, r.Number, err)
	}
	newLocal, err := ot.Apply(e.localText, cs)
	if err != nil {
		return fmt.Errorf("integrate %q revision %d: %w", e.docID, r.Number, err)
	}
	e.serverText = newServer
	e.localText = newLocal
	e.committedRevision = r.Number
	e.selection = ot.TransformSelection(e.selection, cs)
	if err := transformStack(e.undoStack, cs); err != nil {
		return fmt.Errorf("integrate %q revision %d: undo stack: %w", e.docID, r.Number, err)
	}
	if err := transformStack(e.redoStack, cs); err != nil {
		return fmt.Errorf("integrate %q revision %d: redo stack: %w", e.docID, r.Number, err)
	}
	return nil
}
