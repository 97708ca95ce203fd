package ot

import (
	"errors"
	"testing"
)

func TestDocumentAdvance(t *testing.T) {
	d := NewDocument("hello", 3)

	rev, err := d.Advance(NewInsert(5, " world", 5))
	if err != nil {
		t.Fatal(err)
	}
	if rev != 4 {
		t.Errorf("revision = %d, want 4", rev)
	}
	if d.String() != "hello world" {
		t.Errorf("text = %q, want %q", d.String(), "hello world")
	}
}

func TestDocumentAdvanceRejectsMismatch(t *testing.T) {
	d := NewDocument("hi", 1)

	_, err := d.Advance(NewInsert(0, "x", 5))
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("error = %v, want ErrLengthMismatch", err)
	}
	// State unchanged on error.
	if d.Revision() != 1 || d.String() != "hi" {
		t.Errorf("state = (%d, %q), want (1, %q)", d.Revision(), d.String(), "hi")
	}
}

func TestDocumentGetReturnsCopy(t *testing.T) {
	d := NewDocument("abc", 1)
	_, text := d.Get()
	text[0] = 'z'
	if d.String() != "abc" {
		t.Errorf("text = %q, want %q", d.String(), "abc")
	}
}

func TestDocumentFromEmptyString(t *testing.T) {
	// Revision N is the result of applying revisions 1..N to the empty
	// string.
	d := NewDocument("", 0)
	steps := []ChangeSet{
		NewInsert(0, "hello", 0),
		NewInsert(5, " world", 5),
		NewDelete(0, 1, 11),
		NewInsert(0, "H", 10),
	}
	for _, s := range steps {
		if _, err := d.Advance(s); err != nil {
			t.Fatal(err)
		}
	}
	if d.Revision() != 4 {
		t.Errorf("revision = %d, want 4", d.Revision())
	}
	if d.String() != "Hello world" {
		t.Errorf("text = %q, want %q", d.String(), "Hello world")
	}
}
