package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lhoward/cowrite/ot"
	"github.com/lhoward/cowrite/store"
)

func setupTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	revLog := store.NewMemoryLog()
	docs := store.NewMemoryStore()
	hub := NewHub(revLog, docs)
	go hub.Run()
	handler := NewHandler(Config{Hub: hub, Docs: docs, Log: revLog, Debug: true})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, hub
}

func wsConnect(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWsMsg(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestHandler_WebSocketConnect(t *testing.T) {
	server, _ := setupTestServer(t)

	conn := wsConnect(t, server)
	if err := conn.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "test-doc"}); err != nil {
		t.Fatal(err)
	}

	resp := readWsMsg(t, conn)
	if resp.Type != MsgDoc {
		t.Errorf("expected doc, got %q", resp.Type)
	}
}

func TestHandler_TwoClientsCollaborate(t *testing.T) {
	server, _ := setupTestServer(t)

	conn1 := wsConnect(t, server)
	conn2 := wsConnect(t, server)

	if err := conn1.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "doc1"}); err != nil {
		t.Fatal(err)
	}
	doc1 := readWsMsg(t, conn1)
	if doc1.Type != MsgDoc {
		t.Fatalf("expected doc, got %q", doc1.Type)
	}

	if err := conn2.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "doc1"}); err != nil {
		t.Fatal(err)
	}
	doc2 := readWsMsg(t, conn2)
	if doc2.Type != MsgDoc {
		t.Fatalf("expected doc, got %q", doc2.Type)
	}
	readWsMsg(t, conn1) // join notice for conn2

	// conn1 submits an insert on revision 0.
	cs := ot.NewInsert(0, "hello", 0)
	if err := conn1.WriteJSON(ClientMessage{Type: MsgSubmit, DocID: "doc1", OnRevision: 0, ChangeSet: &cs}); err != nil {
		t.Fatal(err)
	}
	ack := readWsMsg(t, conn1)
	if ack.Type != MsgAck || ack.Revision != 1 {
		t.Fatalf("ack = %+v", ack)
	}

	// conn2 receives the broadcast and can apply it.
	broadcast := readWsMsg(t, conn2)
	if broadcast.Type != MsgRevision {
		t.Fatalf("expected revision, got %q", broadcast.Type)
	}
	if len(broadcast.Revisions) != 1 {
		t.Fatalf("revisions = %+v", broadcast.Revisions)
	}
	got, err := ot.ApplyString(doc2.Content, broadcast.Revisions[0].ChangeSet)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("applied = %q, want %q", got, "hello")
	}
}

func TestHandler_MalformedInsertRejectedAtBoundary(t *testing.T) {
	// A change set carrying a code unit above 0xFFFF is rejected before it
	// reaches the OT engine, and the connection is closed.
	server, hub := setupTestServer(t)

	conn := wsConnect(t, server)
	if err := conn.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "doc1"}); err != nil {
		t.Fatal(err)
	}
	readWsMsg(t, conn)

	raw := `{"type":"submit","docId":"doc1","onRevision":0,"changeSet":{"ops":[{"insert":[65536]}]}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatal(err)
	}

	// The server answers with an error and closes the connection; depending
	// on timing the error message may be lost in the close.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break // closed, as required
		}
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != MsgError {
			t.Fatalf("expected error, got %+v", msg)
		}
	}

	// No revision was appended.
	deadline := time.Now().Add(time.Second)
	for hub.GetSession("doc1") == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s := hub.GetSession("doc1"); s != nil && s.doc.Revision() != 0 {
		t.Errorf("revision = %d, want 0", s.doc.Revision())
	}
}

func TestHandler_DocumentAPI(t *testing.T) {
	server, _ := setupTestServer(t)

	// Create.
	body, _ := json.Marshal(map[string]string{"id": "doc1", "orgId": "org1", "title": "Notes"})
	resp, err := http.Post(server.URL+"/api/documents", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	// Get.
	resp, err = http.Get(server.URL + "/api/documents/doc1")
	if err != nil {
		t.Fatal(err)
	}
	var info store.DocumentInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if info.Title != "Notes" || info.OrgID != "org1" {
		t.Errorf("info = %+v", info)
	}

	// Rename.
	body, _ = json.Marshal(map[string]string{"title": "Renamed"})
	req, _ := http.NewRequest(http.MethodPut, server.URL+"/api/documents/doc1/title", bytes.NewReader(body))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("rename status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	// List.
	resp, err = http.Get(server.URL + "/api/documents?orgId=org1")
	if err != nil {
		t.Fatal(err)
	}
	var docs []store.DocumentInfo
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(docs) != 1 || docs[0].Title != "Renamed" {
		t.Errorf("docs = %+v", docs)
	}

	// Unknown document.
	resp, err = http.Get(server.URL + "/api/documents/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get unknown status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestHandler_DebugSessions(t *testing.T) {
	server, _ := setupTestServer(t)

	conn := wsConnect(t, server)
	if err := conn.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "doc1"}); err != nil {
		t.Fatal(err)
	}
	readWsMsg(t, conn)

	resp, err := http.Get(server.URL + "/debug/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "doc1") {
		t.Errorf("debug dump missing doc1: %s", buf.String())
	}
}
