package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/errgroup"

	"github.com/lhoward/cowrite/server"
	"github.com/lhoward/cowrite/store"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	firestoreProject := flag.String("firestore-project", "", "Firestore project ID (empty = in-memory stores)")
	cacheTail := flag.Int("cache-tail", 1024, "revisions cached in memory per document")
	debug := flag.Bool("debug", false, "enable /debug/sessions")
	flag.Parse()

	ctx := context.Background()

	var revLog store.RevisionLog
	var docs store.DocumentStore
	if *firestoreProject != "" {
		client, err := firestore.NewClient(ctx, *firestoreProject)
		if err != nil {
			log.Fatalf("firestore client: %v", err)
		}
		defer client.Close()
		revLog = store.NewCachedLog(store.NewFirestoreLog(client), *cacheTail)
		docs = store.NewFirestoreStore(client)
	} else {
		revLog = store.NewMemoryLog()
		docs = store.NewMemoryStore()
	}

	hub := server.NewHub(revLog, docs)
	handler := server.NewHandler(server.Config{Hub: hub, Docs: docs, Log: revLog, Debug: *debug})

	var g errgroup.Group
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		log.Printf("Starting server on %s", *addr)
		return http.ListenAndServe(*addr, handler)
	})
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}
