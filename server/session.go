package server

import (
	"context"
	"log"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/lhoward/cowrite/ot"
	"github.com/lhoward/cowrite/store"
)

// revisionBatchSize caps how many revisions a single response carries.
// Clients page through the rest with getRevisions.
const revisionBatchSize = 100

type submitRequest struct {
	client *Client
	msg    ClientMessage
}

type revsRequest struct {
	client   *Client
	afterRev int64
}

type cursorUpdate struct {
	client *Client
	sel    ot.Selection
}

// submitMemo records the last admitted submission per client so a retried
// submit with the same base revision and payload returns the committed
// revision instead of double-applying.
type submitMemo struct {
	onRevision int64
	digest     uint64
	committed  int64
}

// Session is the per-document single-writer actor. One goroutine owns the
// document snapshot and serializes every join, leave, submission, and cursor
// update for its document; different documents proceed in parallel. The
// revision-log compare-and-set is the backstop if two processes ever run a
// session for the same document.
type Session struct {
	docID   string
	doc     *ot.Document
	log     store.RevisionLog
	docs    store.DocumentStore
	clients mapset.Set[*Client]
	memos   map[string]submitMemo

	incoming chan submitRequest
	revs     chan revsRequest
	cursors  chan cursorUpdate
	join     chan *Client
	leave    chan *Client
	stop     chan struct{}
}

func newSession(docID string, info *store.DocumentInfo, revLog store.RevisionLog, docs store.DocumentStore) (*Session, error) {
	s := &Session{
		docID:    docID,
		doc:      ot.NewDocument(info.SnapshotText, info.SnapshotRevision),
		log:      revLog,
		docs:     docs,
		clients:  mapset.NewSet[*Client](),
		memos:    make(map[string]submitMemo),
		incoming: make(chan submitRequest, 64),
		revs:     make(chan revsRequest, 16),
		cursors:  make(chan cursorUpdate, 64),
		join:     make(chan *Client, 16),
		leave:    make(chan *Client, 16),
		stop:     make(chan struct{}),
	}
	// The snapshot lags the log; replay the tail to reach the head.
	if err := s.catchUp(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Run is the session's main loop. It serializes all state transitions.
func (s *Session) Run() {
	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case c := <-s.leave:
			s.handleLeave(c)
		case req := <-s.incoming:
			s.handleSubmit(req)
		case req := <-s.revs:
			s.handleGetRevisions(req)
		case cu := <-s.cursors:
			s.handleCursor(cu)
		case <-s.stop:
			return
		}
	}
}

// catchUp replays revisions committed past the in-memory snapshot.
func (s *Session) catchUp(ctx context.Context) error {
	for {
		revs, err := s.log.Range(ctx, s.docID, s.doc.Revision(), revisionBatchSize)
		if err != nil {
			return err
		}
		for _, r := range revs {
			if _, err := s.doc.Advance(r.ChangeSet); err != nil {
				return err
			}
		}
		if len(revs) < revisionBatchSize {
			return nil
		}
	}
}

func (s *Session) handleJoin(c *Client) {
	s.clients.Add(c)
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	c.sendMsg(ServerMessage{
		Type:     MsgDoc,
		DocID:    s.docID,
		Content:  s.doc.String(),
		Revision: s.doc.Revision(),
		ClientID: c.ID,
		Clients:  s.clientInfos(),
	})

	for other := range s.clients.Iter() {
		if other != c {
			other.sendMsg(ServerMessage{
				Type:     MsgJoin,
				ClientID: c.ID,
				Name:     c.Name,
				Color:    c.Color,
			})
		}
	}
}

func (s *Session) handleLeave(c *Client) {
	if !s.clients.Contains(c) {
		return
	}
	s.clients.Remove(c)
	delete(s.memos, c.ID)
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	close(c.send)

	for other := range s.clients.Iter() {
		other.sendMsg(ServerMessage{
			Type:     MsgLeave,
			ClientID: c.ID,
		})
	}
}

// handleSubmit admits one submission: compare the base revision against the
// log head, rebase over anything committed since, validate, append with
// compare-and-set, and answer with Ack or the newly discovered revisions.
// Losing the compare-and-set re-reads the log and retries; that is the only
// retry in the protocol.
func (s *Session) handleSubmit(req submitRequest) {
	ctx := context.Background()
	if req.msg.ChangeSet == nil {
		req.client.reject("submit without change set")
		return
	}
	cs := *req.msg.ChangeSet
	if err := cs.Validate(); err != nil {
		log.Printf("session %s: malformed change set from %s: %v", s.docID, req.client.ID, err)
		req.client.reject("malformed change set")
		return
	}
	digest, err := changeSetDigest(cs)
	if err != nil {
		req.client.reject("malformed change set")
		return
	}
	onRev := req.msg.OnRevision

	// A retried submit with the same base revision and payload was already
	// committed; answer with that revision.
	if m, ok := s.memos[req.client.ID]; ok && m.onRevision == onRev && m.digest == digest {
		req.client.sendMsg(ServerMessage{
			Type:         MsgAck,
			DocID:        s.docID,
			Revision:     m.committed,
			LastRevision: m.committed,
		})
		return
	}

	for {
		cur := s.doc.Revision()
		if onRev > cur {
			// Client claims a revision the server has never assigned.
			log.Printf("session %s: client %s ahead of server: on %d, head %d", s.docID, req.client.ID, onRev, cur)
			req.client.sendError("invalid revision: ahead of server")
			return
		}

		admitted := cs
		var intervening []store.Revision
		if onRev < cur {
			intervening, err = s.log.Range(ctx, s.docID, onRev, 0)
			if err != nil {
				log.Printf("session %s: reading history after %d: %v", s.docID, onRev, err)
				req.client.sendError("failed to read revision history")
				return
			}
			if n := len(intervening); n > 0 && intervening[n-1].Number > cur {
				// Another writer moved the head since we read it. Fold the
				// extra revisions into the snapshot and start over.
				if err := s.catchUp(ctx); err != nil {
					log.Printf("session %s: catch-up behind head: %v", s.docID, err)
					req.client.sendError("failed to read revision history")
					return
				}
				continue
			}
			history := make([]ot.ChangeSet, len(intervening))
			for i, r := range intervening {
				history[i] = r.ChangeSet
			}
			admitted, err = ot.Rebase(cs, history)
			if err != nil {
				log.Printf("session %s: rebasing submission from %s on %d: %v", s.docID, req.client.ID, onRev, err)
				req.client.reject("malformed change set")
				return
			}
		}

		_, text := s.doc.Get()
		if _, err := ot.Apply(text, admitted); err != nil {
			log.Printf("session %s: submission from %s does not apply: %v", s.docID, req.client.ID, err)
			req.client.reject("malformed change set")
			return
		}

		rev := store.Revision{
			DocID:       s.docID,
			Number:      cur + 1,
			AuthorID:    req.client.ID,
			ChangeSet:   admitted,
			CommittedAt: time.Now(),
		}
		if err := s.log.AppendIf(ctx, s.docID, cur, rev); err != nil {
			if _, ok := store.AsConflict(err); ok {
				if err := s.catchUp(ctx); err != nil {
					log.Printf("session %s: catch-up after conflict: %v", s.docID, err)
					req.client.sendError("failed to read revision history")
					return
				}
				continue
			}
			log.Printf("session %s: appending revision %d: %v", s.docID, rev.Number, err)
			req.client.sendError("failed to commit revision")
			return
		}
		if _, err := s.doc.Advance(admitted); err != nil {
			// Validated above; reaching this means the snapshot and log diverged.
			log.Printf("session %s: advancing snapshot to %d: %v", s.docID, rev.Number, err)
			req.client.sendError("internal document state error")
			return
		}
		if err := s.docs.UpdateSnapshot(ctx, s.docID, s.doc.String(), s.doc.Revision()); err != nil {
			log.Printf("session %s: updating snapshot: %v", s.docID, err)
		}
		s.memos[req.client.ID] = submitMemo{onRevision: onRev, digest: digest, committed: rev.Number}

		if len(intervening) == 0 {
			req.client.sendMsg(ServerMessage{
				Type:         MsgAck,
				DocID:        s.docID,
				Revision:     rev.Number,
				LastRevision: rev.Number,
			})
		} else {
			all := append(append([]store.Revision(nil), intervening...), rev)
			req.client.sendMsg(ServerMessage{
				Type:           MsgNewRevisions,
				DocID:          s.docID,
				LastRevision:   rev.Number,
				Revisions:      toPayloads(all),
				EndOfRevisions: true,
			})
		}

		// The author hears about the revision only through its response.
		for c := range s.clients.Iter() {
			if c != req.client {
				c.sendMsg(ServerMessage{
					Type:         MsgRevision,
					DocID:        s.docID,
					Revision:     rev.Number,
					LastRevision: rev.Number,
					Revisions:    toPayloads([]store.Revision{rev}),
					ClientID:     req.client.ID,
				})
			}
		}
		return
	}
}

func (s *Session) handleGetRevisions(req revsRequest) {
	ctx := context.Background()
	revs, err := s.log.Range(ctx, s.docID, req.afterRev, revisionBatchSize)
	if err != nil {
		log.Printf("session %s: reading revisions after %d: %v", s.docID, req.afterRev, err)
		req.client.sendError("failed to read revision history")
		return
	}
	last := req.afterRev
	if len(revs) > 0 {
		last = revs[len(revs)-1].Number
	}
	req.client.sendMsg(ServerMessage{
		Type:           MsgRevisions,
		DocID:          s.docID,
		LastRevision:   last,
		Revisions:      toPayloads(revs),
		EndOfRevisions: last >= s.doc.Revision(),
	})
}

// handleCursor relays a selection to the other subscribers. Selections are
// presence only: never validated against the log, never persisted.
func (s *Session) handleCursor(cu cursorUpdate) {
	sel := cu.sel
	for c := range s.clients.Iter() {
		if c != cu.client {
			c.sendMsg(ServerMessage{
				Type:      MsgCursor,
				DocID:     s.docID,
				ClientID:  cu.client.ID,
				Selection: &sel,
			})
		}
	}
}

func (s *Session) clientInfos() []ClientInfo {
	infos := make([]ClientInfo, 0, s.clients.Cardinality())
	for c := range s.clients.Iter() {
		infos = append(infos, c.Info())
	}
	return infos
}
