package store

import (
	"context"
	"sync"
)

// logTail caches a contiguous suffix of one document's revision log:
// revisions first..first+len(revs)-1, with revs[i].Number == first+i.
type logTail struct {
	first int64
	revs  []Revision
}

func (t *logTail) head() int64 {
	return t.first + int64(len(t.revs)) - 1
}

// CachedLog wraps a backing RevisionLog with an in-memory read-through
// cache. Revision entries are immutable once written, so a cached suffix can
// never go stale; only the head moves, and AppendIf keeps the cached suffix
// in step with every append that goes through this process. A conflict means
// another writer appended elsewhere, which drops the cached suffix for that
// document.
//
// maxTail bounds the cached suffix per document; older entries fall off the
// front and are served from the backing log on demand.
type CachedLog struct {
	backing RevisionLog
	maxTail int
	mu      sync.Mutex
	tails   map[string]*logTail
}

func NewCachedLog(backing RevisionLog, maxTail int) *CachedLog {
	if maxTail <= 0 {
		maxTail = 1024
	}
	return &CachedLog{
		backing: backing,
		maxTail: maxTail,
		tails:   make(map[string]*logTail),
	}
}

func (c *CachedLog) AppendIf(ctx context.Context, docID string, expectedRev int64, rev Revision) error {
	err := c.backing.AppendIf(ctx, docID, expectedRev, rev)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if _, ok := AsConflict(err); ok {
			// Another writer got there first; our suffix may now be behind.
			delete(c.tails, docID)
		}
		return err
	}

	tail, ok := c.tails[docID]
	if !ok || tail.head() != expectedRev {
		// Not contiguous with what we have cached. Start a fresh suffix.
		c.tails[docID] = &logTail{first: rev.Number, revs: []Revision{rev}}
		return nil
	}
	tail.revs = append(tail.revs, rev)
	if len(tail.revs) > c.maxTail {
		drop := len(tail.revs) - c.maxTail
		tail.revs = append([]Revision(nil), tail.revs[drop:]...)
		tail.first += int64(drop)
	}
	return nil
}

func (c *CachedLog) Range(ctx context.Context, docID string, afterRev int64, limit int) ([]Revision, error) {
	c.mu.Lock()
	tail, ok := c.tails[docID]
	if ok && afterRev+1 >= tail.first {
		out := serveFromTail(tail, afterRev, limit)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	revs, err := c.backing.Range(ctx, docID, afterRev, limit)
	if err != nil {
		return nil, err
	}
	c.fill(docID, revs)
	return revs, nil
}

func serveFromTail(tail *logTail, afterRev int64, limit int) []Revision {
	start := afterRev + 1 - tail.first
	if start >= int64(len(tail.revs)) {
		return nil
	}
	revs := tail.revs[start:]
	if limit > 0 && limit < len(revs) {
		revs = revs[:limit]
	}
	out := make([]Revision, len(revs))
	copy(out, revs)
	return out
}

// fill seeds the cache from a backing read when it extends or replaces the
// cached suffix.
func (c *CachedLog) fill(docID string, revs []Revision) {
	if len(revs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tail, ok := c.tails[docID]
	if ok && revs[len(revs)-1].Number <= tail.head() {
		return
	}
	keep := revs
	if len(keep) > c.maxTail {
		keep = keep[len(keep)-c.maxTail:]
	}
	c.tails[docID] = &logTail{
		first: keep[0].Number,
		revs:  append([]Revision(nil), keep...),
	}
}

func (c *CachedLog) Head(ctx context.Context, docID string) (int64, error) {
	c.mu.Lock()
	if tail, ok := c.tails[docID]; ok {
		head := tail.head()
		c.mu.Unlock()
		return head, nil
	}
	c.mu.Unlock()
	return c.backing.Head(ctx, docID)
}
