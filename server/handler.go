package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sanity-io/litter"

	"github.com/lhoward/cowrite/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Config carries the handler's collaborators.
type Config struct {
	Hub   *Hub
	Docs  store.DocumentStore
	Log   store.RevisionLog
	Debug bool
}

// NewHandler creates the HTTP handler with all routes: the WebSocket
// endpoint for the OT protocol, JSON endpoints for document metadata, and
// an optional debug dump.
func NewHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Serve static files.
	fs := http.FileServer(http.Dir("static"))
	mux.Handle("/", fs)

	// WebSocket endpoint.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade error: %v", err)
			return
		}
		client := newClient(cfg.Hub, conn)
		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("POST /api/documents", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID    string `json:"id"`
			OrgID string `json:"orgId"`
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			req.ID = generateID()
		}
		if req.Title == "" {
			req.Title = "Untitled"
		}
		info := store.DocumentInfo{ID: req.ID, OrgID: req.OrgID, Title: req.Title}
		if err := cfg.Docs.Create(r.Context(), info); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusCreated, info)
	})

	mux.HandleFunc("GET /api/documents", func(w http.ResponseWriter, r *http.Request) {
		docs, err := cfg.Docs.List(r.Context(), r.URL.Query().Get("orgId"))
		if err != nil {
			http.Error(w, "failed to list documents", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, docs)
	})

	mux.HandleFunc("GET /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		info, err := cfg.Docs.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, info)
	})

	mux.HandleFunc("PUT /api/documents/{id}/title", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := cfg.Docs.UpdateTitle(r.Context(), r.PathValue("id"), req.Title); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.Debug {
		mux.HandleFunc("GET /debug/sessions", func(w http.ResponseWriter, r *http.Request) {
			type sessionDebug struct {
				DocID   string
				Head    int64
				Clients int
			}
			var dump []sessionDebug
			for id, s := range cfg.Hub.Sessions() {
				head, err := cfg.Log.Head(r.Context(), id)
				if err != nil {
					head = -1
				}
				dump = append(dump, sessionDebug{
					DocID:   id,
					Head:    head,
					Clients: s.clients.Cardinality(),
				})
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(litter.Sdump(dump)))
		})
	}

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}
