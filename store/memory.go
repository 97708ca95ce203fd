package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is an in-memory RevisionLog. Revision N lives at index N-1, so
// the slice length is the log head.
type MemoryLog struct {
	mu   sync.RWMutex
	logs map[string][]Revision
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{logs: make(map[string][]Revision)}
}

func (l *MemoryLog) AppendIf(_ context.Context, docID string, expectedRev int64, rev Revision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	head := int64(len(l.logs[docID]))
	if head != expectedRev {
		return &ConflictError{DocID: docID, Expected: expectedRev, Actual: head}
	}
	if rev.Number != expectedRev+1 {
		return fmt.Errorf("append to %q: revision number %d, want %d", docID, rev.Number, expectedRev+1)
	}
	l.logs[docID] = append(l.logs[docID], rev)
	return nil
}

func (l *MemoryLog) Range(_ context.Context, docID string, afterRev int64, limit int) ([]Revision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	log := l.logs[docID]
	if afterRev < 0 {
		return nil, fmt.Errorf("range over %q: negative revision %d", docID, afterRev)
	}
	if afterRev >= int64(len(log)) {
		return nil, nil
	}
	tail := log[afterRev:]
	if limit > 0 && limit < len(tail) {
		tail = tail[:limit]
	}
	out := make([]Revision, len(tail))
	copy(out, tail)
	return out, nil
}

func (l *MemoryLog) Head(_ context.Context, docID string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.logs[docID])), nil
}

// MemoryStore is an in-memory DocumentStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*DocumentInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*DocumentInfo)}
}

func (s *MemoryStore) Create(_ context.Context, info DocumentInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[info.ID]; exists {
		return fmt.Errorf("document %q already exists", info.ID)
	}
	now := time.Now()
	info.CreatedAt = now
	info.UpdatedAt = now
	s.docs[info.ID] = &info
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	info := *doc
	return &info, nil
}

func (s *MemoryStore) List(_ context.Context, orgID string) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]DocumentInfo, 0, len(s.docs))
	for _, doc := range s.docs {
		if orgID == "" || doc.OrgID == orgID {
			result = append(result, *doc)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	doc.Title = title
	doc.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdateSnapshot(_ context.Context, id, text string, revision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	doc.SnapshotText = text
	doc.SnapshotRevision = revision
	doc.UpdatedAt = time.Now()
	return nil
}
