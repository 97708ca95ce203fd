package server

import (
	"context"
	"log"
	"sync"

	"github.com/lhoward/cowrite/store"
)

type joinRequest struct {
	client *Client
	docID  string
}

// Hub manages document sessions and routes clients to the right session.
// Sessions are created lazily on first join; the hub never stops them, and
// they keep running after Run returns.
type Hub struct {
	log      store.RevisionLog
	docs     store.DocumentStore
	sessions map[string]*Session
	mu       sync.RWMutex

	joinDoc chan joinRequest
}

func NewHub(revLog store.RevisionLog, docs store.DocumentStore) *Hub {
	return &Hub{
		log:      revLog,
		docs:     docs,
		sessions: make(map[string]*Session),
		joinDoc:  make(chan joinRequest, 64),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for req := range h.joinDoc {
		h.handleJoinDoc(req)
	}
}

func (h *Hub) handleJoinDoc(req joinRequest) {
	h.mu.Lock()
	s, ok := h.sessions[req.docID]
	if !ok {
		ctx := context.Background()
		info, err := h.docs.Get(ctx, req.docID)
		if err != nil {
			// Create the document on first join.
			if createErr := h.docs.Create(ctx, store.DocumentInfo{ID: req.docID, Title: "Untitled"}); createErr != nil {
				log.Printf("hub: failed to create doc %q: %v", req.docID, createErr)
				h.mu.Unlock()
				req.client.sendError("failed to create document")
				return
			}
			info, err = h.docs.Get(ctx, req.docID)
			if err != nil {
				log.Printf("hub: failed to load doc %q: %v", req.docID, err)
				h.mu.Unlock()
				req.client.sendError("failed to load document")
				return
			}
		}

		s, err = newSession(req.docID, info, h.log, h.docs)
		if err != nil {
			log.Printf("hub: failed to start session for %q: %v", req.docID, err)
			h.mu.Unlock()
			req.client.sendError("failed to load document")
			return
		}
		h.sessions[req.docID] = s
		go s.Run()
	}
	h.mu.Unlock()

	s.join <- req.client
}

// GetSession returns the session for a document, if active.
func (h *Hub) GetSession(docID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[docID]
}

// Sessions snapshots the active sessions, for the debug endpoint.
func (h *Hub) Sessions() map[string]*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]*Session, len(h.sessions))
	for id, s := range h.sessions {
		out[id] = s
	}
	return out
}
