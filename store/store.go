// Package store defines the persistence contracts for the collaborative
// editor: an append-only, gap-free, per-document revision log with
// compare-and-set semantics, and a document metadata store. Memory and
// Firestore implementations are provided; CachedLog layers a read-through
// cache over any RevisionLog.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lhoward/cowrite/ot"
)

// Revision is one committed entry of a document's revision log. Entries are
// immutable once written and densely numbered starting at 1.
type Revision struct {
	DocID       string       `json:"docId"`
	Number      int64        `json:"revision"`
	AuthorID    string       `json:"authorId"`
	ChangeSet   ot.ChangeSet `json:"changeSet"`
	CommittedAt time.Time    `json:"committedAt"`
}

// RevisionLog is the append-only revision history of every document.
//
// AppendIf appends rev as revision expectedRev+1 if and only if the log head
// for the document is still expectedRev; otherwise it returns a
// *ConflictError carrying the actual head. The check-and-append must be
// atomic against concurrent writers. rev.Number must equal expectedRev+1.
//
// Range returns up to limit revisions with numbers strictly greater than
// afterRev, in ascending order with no gaps. limit <= 0 means no limit.
type RevisionLog interface {
	AppendIf(ctx context.Context, docID string, expectedRev int64, rev Revision) error
	Range(ctx context.Context, docID string, afterRev int64, limit int) ([]Revision, error)
	Head(ctx context.Context, docID string) (int64, error)
}

// ConflictError reports a lost compare-and-set: another writer appended
// first. Callers re-read the log and retry.
type ConflictError struct {
	DocID    string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on %q: expected head %d, actual %d", e.DocID, e.Expected, e.Actual)
}

// AsConflict unwraps a *ConflictError if err is one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrNotFound reports an unknown document ID.
var ErrNotFound = errors.New("document not found")

// DocumentInfo holds document metadata and the snapshot cache. The snapshot
// is a write-behind copy of the text at SnapshotRevision so sessions don't
// replay the full log on start; the revision log stays authoritative.
type DocumentInfo struct {
	ID               string
	OrgID            string
	Title            string
	SnapshotText     string
	SnapshotRevision int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DocumentStore abstracts document metadata persistence.
type DocumentStore interface {
	Create(ctx context.Context, info DocumentInfo) error
	Get(ctx context.Context, id string) (*DocumentInfo, error)
	List(ctx context.Context, orgID string) ([]DocumentInfo, error)
	UpdateTitle(ctx context.Context, id, title string) error
	UpdateSnapshot(ctx context.Context, id, text string, revision int64) error
}
