package ot

import "fmt"

// Document holds a text snapshot and the revision number it corresponds to.
// Revision N means: the result of applying committed change sets 1..N in
// order to the empty string. Advance is the only mutation; whoever owns the
// Document (the editor on the client, the per-document session on the server)
// is responsible for serializing calls.
type Document struct {
	revision int64
	text     []uint16
}

// NewDocument creates a document at the given revision.
func NewDocument(text string, revision int64) *Document {
	return &Document{revision: revision, text: Units(text)}
}

// Get returns the current revision number and text. The returned slice is a
// copy.
func (d *Document) Get() (int64, []uint16) {
	return d.revision, append([]uint16(nil), d.text...)
}

// Revision returns the current revision number.
func (d *Document) Revision() int64 { return d.revision }

// Len returns the text length in UTF-16 code units.
func (d *Document) Len() int { return len(d.text) }

// String returns the current text.
func (d *Document) String() string { return UnitsString(d.text) }

// Advance validates and applies a change set, replacing the text and bumping
// the revision number. On error the document is unchanged.
func (d *Document) Advance(cs ChangeSet) (int64, error) {
	text, err := Apply(d.text, cs)
	if err != nil {
		return d.revision, fmt.Errorf("advance from revision %d: %w", d.revision, err)
	}
	d.text = text
	d.revision++
	return d.revision, nil
}
