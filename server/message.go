package server

import (
	"encoding/json"
	"time"

	"github.com/lhoward/cowrite/ot"
	"github.com/lhoward/cowrite/store"
)

// Message types exchanged over WebSocket.
const (
	MsgJoin         = "join"
	MsgLeave        = "leave"
	MsgDoc          = "doc"
	MsgSubmit       = "submit"
	MsgAck          = "ack"
	MsgNewRevisions = "newRevisions"
	MsgRevision     = "revision"
	MsgGetRevisions = "getRevisions"
	MsgRevisions    = "revisions"
	MsgCursor       = "cursor"
	MsgError        = "error"
)

// ClientMessage is a message from client to server.
type ClientMessage struct {
	Type          string        `json:"type"`
	DocID         string        `json:"docId,omitempty"`
	OnRevision    int64         `json:"onRevision,omitempty"`
	ChangeSet     *ot.ChangeSet `json:"changeSet,omitempty"`
	AfterRevision int64         `json:"afterRevision,omitempty"`
	Selection     *ot.Selection `json:"selection,omitempty"`
}

// RevisionPayload is one committed revision on the wire.
type RevisionPayload struct {
	Revision    int64        `json:"revision"`
	AuthorID    string       `json:"authorId"`
	ChangeSet   ot.ChangeSet `json:"changeSet"`
	CommittedAt time.Time    `json:"committedAt"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type           string            `json:"type"`
	DocID          string            `json:"docId,omitempty"`
	Content        string            `json:"content"`
	Revision       int64             `json:"revision"`
	LastRevision   int64             `json:"lastRevision,omitempty"`
	Revisions      []RevisionPayload `json:"revisions,omitempty"`
	EndOfRevisions bool              `json:"endOfRevisions,omitempty"`
	ClientID       string            `json:"clientId,omitempty"`
	Name           string            `json:"name,omitempty"`
	Color          string            `json:"color,omitempty"`
	Selection      *ot.Selection     `json:"selection,omitempty"`
	Message        string            `json:"message,omitempty"`
	Clients        []ClientInfo      `json:"clients,omitempty"`
}

// ClientInfo describes a connected user.
type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

func toPayloads(revs []store.Revision) []RevisionPayload {
	out := make([]RevisionPayload, len(revs))
	for i, r := range revs {
		out[i] = RevisionPayload{
			Revision:    r.Number,
			AuthorID:    r.AuthorID,
			ChangeSet:   r.ChangeSet,
			CommittedAt: r.CommittedAt,
		}
	}
	return out
}
