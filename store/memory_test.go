package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lhoward/cowrite/ot"
)

func ctx() context.Context { return context.Background() }

func rev(docID string, number int64, author, text string, baseLen int) Revision {
	return Revision{
		DocID:       docID,
		Number:      number,
		AuthorID:    author,
		ChangeSet:   ot.NewInsert(0, text, baseLen),
		CommittedAt: time.Now(),
	}
}

func TestMemoryLog_AppendAndRange(t *testing.T) {
	l := NewMemoryLog()

	if err := l.AppendIf(ctx(), "doc1", 0, rev("doc1", 1, "a", "hello", 0)); err != nil {
		t.Fatal(err)
	}
	if err := l.AppendIf(ctx(), "doc1", 1, rev("doc1", 2, "b", "x", 5)); err != nil {
		t.Fatal(err)
	}

	head, err := l.Head(ctx(), "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if head != 2 {
		t.Errorf("head = %d, want 2", head)
	}

	revs, err := l.Range(ctx(), "doc1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 2 {
		t.Fatalf("len = %d, want 2", len(revs))
	}
	for i, r := range revs {
		if r.Number != int64(i+1) {
			t.Errorf("revs[%d].Number = %d, want %d", i, r.Number, i+1)
		}
	}

	revs, err = l.Range(ctx(), "doc1", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 1 || revs[0].Number != 2 {
		t.Errorf("range after 1 = %+v, want just revision 2", revs)
	}
}

func TestMemoryLog_AppendConflict(t *testing.T) {
	l := NewMemoryLog()
	if err := l.AppendIf(ctx(), "doc1", 0, rev("doc1", 1, "a", "hello", 0)); err != nil {
		t.Fatal(err)
	}

	// Stale expected revision loses the CAS.
	err := l.AppendIf(ctx(), "doc1", 0, rev("doc1", 1, "b", "bye", 0))
	ce, ok := AsConflict(err)
	if !ok {
		t.Fatalf("error = %v, want ConflictError", err)
	}
	if ce.Actual != 1 {
		t.Errorf("Actual = %d, want 1", ce.Actual)
	}

	// The log is unchanged.
	head, _ := l.Head(ctx(), "doc1")
	if head != 1 {
		t.Errorf("head = %d, want 1", head)
	}
}

func TestMemoryLog_AppendWrongNumber(t *testing.T) {
	l := NewMemoryLog()
	if err := l.AppendIf(ctx(), "doc1", 0, rev("doc1", 7, "a", "x", 0)); err == nil {
		t.Error("expected error for revision number != expected+1")
	}
}

func TestMemoryLog_RangeLimit(t *testing.T) {
	l := NewMemoryLog()
	base := 0
	for i := int64(1); i <= 5; i++ {
		if err := l.AppendIf(ctx(), "doc1", i-1, rev("doc1", i, "a", "x", base)); err != nil {
			t.Fatal(err)
		}
		base++
	}
	revs, err := l.Range(ctx(), "doc1", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 2 || revs[0].Number != 2 || revs[1].Number != 3 {
		t.Errorf("range = %+v, want revisions 2 and 3", revs)
	}
}

func TestMemoryLog_DocsAreIndependent(t *testing.T) {
	l := NewMemoryLog()
	if err := l.AppendIf(ctx(), "doc1", 0, rev("doc1", 1, "a", "x", 0)); err != nil {
		t.Fatal(err)
	}
	if err := l.AppendIf(ctx(), "doc2", 0, rev("doc2", 1, "a", "y", 0)); err != nil {
		t.Fatal(err)
	}
	head, _ := l.Head(ctx(), "doc2")
	if head != 1 {
		t.Errorf("doc2 head = %d, want 1", head)
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create(ctx(), DocumentInfo{ID: "doc1", OrgID: "org1", Title: "Notes"}); err != nil {
		t.Fatal(err)
	}

	info, err := s.Get(ctx(), "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Title != "Notes" || info.OrgID != "org1" {
		t.Errorf("info = %+v", info)
	}

	if err := s.Create(ctx(), DocumentInfo{ID: "doc1"}); err == nil {
		t.Error("expected error creating duplicate document")
	}

	if _, err := s.Get(ctx(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_UpdateTitleAndSnapshot(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create(ctx(), DocumentInfo{ID: "doc1", Title: "Old"}); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateTitle(ctx(), "doc1", "New"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSnapshot(ctx(), "doc1", "hello", 3); err != nil {
		t.Fatal(err)
	}

	info, err := s.Get(ctx(), "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Title != "New" || info.SnapshotText != "hello" || info.SnapshotRevision != 3 {
		t.Errorf("info = %+v", info)
	}

	if err := s.UpdateTitle(ctx(), "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ListByOrg(t *testing.T) {
	s := NewMemoryStore()
	s.Create(ctx(), DocumentInfo{ID: "doc1", OrgID: "org1"})
	s.Create(ctx(), DocumentInfo{ID: "doc2", OrgID: "org2"})
	s.Create(ctx(), DocumentInfo{ID: "doc3", OrgID: "org1"})

	docs, err := s.List(ctx(), "org1")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Errorf("len = %d, want 2", len(docs))
	}

	all, err := s.List(ctx(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want 3", len(all))
	}
}
