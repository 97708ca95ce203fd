package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lhoward/cowrite/ot"
)

// FirestoreLog is a Firestore-backed RevisionLog. Revisions live in a
// per-document subcollection keyed by zero-padded revision number; the
// Create precondition on that key supplies the compare-and-set. Change sets
// are stored as binary codec blobs.
type FirestoreLog struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreLog(client *firestore.Client) *FirestoreLog {
	return &FirestoreLog{client: client, collection: "documents"}
}

func (l *FirestoreLog) revisions(docID string) *firestore.CollectionRef {
	return l.client.Collection(l.collection).Doc(docID).Collection("revisions")
}

func zeroPad(revision int64) string {
	return fmt.Sprintf("%012d", revision)
}

func (l *FirestoreLog) AppendIf(ctx context.Context, docID string, expectedRev int64, rev Revision) error {
	if rev.Number != expectedRev+1 {
		return fmt.Errorf("append to %q: revision number %d, want %d", docID, rev.Number, expectedRev+1)
	}
	blob, err := ot.EncodeChangeSet(rev.ChangeSet)
	if err != nil {
		return fmt.Errorf("append to %q: %w", docID, err)
	}
	_, err = l.revisions(docID).Doc(zeroPad(rev.Number)).Create(ctx, map[string]interface{}{
		"revision":    rev.Number,
		"authorId":    rev.AuthorID,
		"changeSet":   blob,
		"committedAt": rev.CommittedAt,
	})
	if status.Code(err) == codes.AlreadyExists {
		actual, headErr := l.Head(ctx, docID)
		if headErr != nil {
			actual = rev.Number
		}
		return &ConflictError{DocID: docID, Expected: expectedRev, Actual: actual}
	}
	return err
}

func (l *FirestoreLog) Range(ctx context.Context, docID string, afterRev int64, limit int) ([]Revision, error) {
	q := l.revisions(docID).
		OrderBy(firestore.DocumentID, firestore.Asc).
		StartAfter(zeroPad(afterRev))
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var revs []Revision
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		rev, err := snapshotToRevision(docID, snap)
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

func (l *FirestoreLog) Head(ctx context.Context, docID string) (int64, error) {
	iter := l.revisions(docID).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	number, _ := snap.Data()["revision"].(int64)
	return number, nil
}

func snapshotToRevision(docID string, snap *firestore.DocumentSnapshot) (Revision, error) {
	data := snap.Data()
	number, _ := data["revision"].(int64)
	authorID, _ := data["authorId"].(string)
	committedAt, _ := data["committedAt"].(time.Time)
	blob, ok := data["changeSet"].([]byte)
	if !ok {
		return Revision{}, fmt.Errorf("revision %s of %q: missing change set blob", snap.Ref.ID, docID)
	}
	cs, err := ot.DecodeChangeSet(blob)
	if err != nil {
		return Revision{}, fmt.Errorf("revision %s of %q: %w", snap.Ref.ID, docID, err)
	}
	return Revision{
		DocID:       docID,
		Number:      number,
		AuthorID:    authorID,
		ChangeSet:   cs,
		CommittedAt: committedAt,
	}, nil
}

// FirestoreStore is a Firestore-backed DocumentStore.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, collection: "documents"}
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) Create(ctx context.Context, info DocumentInfo) error {
	now := time.Now()
	_, err := s.docRef(info.ID).Create(ctx, map[string]interface{}{
		"orgId":            info.OrgID,
		"title":            info.Title,
		"snapshotText":     info.SnapshotText,
		"snapshotRevision": info.SnapshotRevision,
		"createdAt":        now,
		"updatedAt":        now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("document %q already exists", info.ID)
	}
	return err
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	snap, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return snapshotToDocInfo(id, snap), nil
}

func snapshotToDocInfo(id string, snap *firestore.DocumentSnapshot) *DocumentInfo {
	data := snap.Data()
	orgID, _ := data["orgId"].(string)
	title, _ := data["title"].(string)
	snapshotText, _ := data["snapshotText"].(string)
	snapshotRevision, _ := data["snapshotRevision"].(int64)
	createdAt, _ := data["createdAt"].(time.Time)
	updatedAt, _ := data["updatedAt"].(time.Time)
	return &DocumentInfo{
		ID:               id,
		OrgID:            orgID,
		Title:            title,
		SnapshotText:     snapshotText,
		SnapshotRevision: snapshotRevision,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
}

func (s *FirestoreStore) List(ctx context.Context, orgID string) ([]DocumentInfo, error) {
	q := s.client.Collection(s.collection).Query
	if orgID != "" {
		q = q.Where("orgId", "==", orgID)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var result []DocumentInfo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *snapshotToDocInfo(snap.Ref.ID, snap))
	}
	return result, nil
}

func (s *FirestoreStore) UpdateTitle(ctx context.Context, id, title string) error {
	_, err := s.docRef(id).Update(ctx, []firestore.Update{
		{Path: "title", Value: title},
		{Path: "updatedAt", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return err
}

func (s *FirestoreStore) UpdateSnapshot(ctx context.Context, id, text string, revision int64) error {
	_, err := s.docRef(id).Update(ctx, []firestore.Update{
		{Path: "snapshotText", Value: text},
		{Path: "snapshotRevision", Value: revision},
		{Path: "updatedAt", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return err
}
