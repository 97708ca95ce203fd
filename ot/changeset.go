// Package ot implements the change-set algebra for collaborative plain-text
// editing: apply, compose, transform, and invert over sequences of
// Retain/Insert/Delete operations.
//
// All positions and lengths are measured in UTF-16 code units. Browser
// textarea selection offsets are UTF-16, so every integer that crosses the
// client boundary uses that unit. Insert payloads are stored as []uint16 and
// travel on the wire as 32-bit integers whose top 16 bits must be zero.
package ot

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// Op is a single step in a change set. Exactly one field is set.
type Op struct {
	Retain int      // keep N code units unchanged
	Insert []uint16 // insert code units at cursor
	Delete int      // remove N code units at cursor
}

func (o Op) IsRetain() bool { return o.Retain > 0 && len(o.Insert) == 0 && o.Delete == 0 }
func (o Op) IsInsert() bool { return len(o.Insert) > 0 }
func (o Op) IsDelete() bool { return o.Delete > 0 && len(o.Insert) == 0 }

// ChangeSet is an ordered sequence of operations describing one edit. A
// change set built through the Retain/Insert/Delete methods is always in
// canonical form: no empty operations, adjacent operations of the same kind
// coalesced, and an Insert adjacent to a Delete ordered Insert-first.
type ChangeSet struct {
	Ops []Op
}

// BaseLen returns the expected input document length (retained + deleted).
func (cs ChangeSet) BaseLen() int {
	n := 0
	for _, o := range cs.Ops {
		if o.IsRetain() {
			n += o.Retain
		} else if o.IsDelete() {
			n += o.Delete
		}
	}
	return n
}

// TargetLen returns the document length after the change set is applied.
func (cs ChangeSet) TargetLen() int {
	n := 0
	for _, o := range cs.Ops {
		if o.IsRetain() {
			n += o.Retain
		} else if o.IsInsert() {
			n += len(o.Insert)
		}
	}
	return n
}

// IsEmpty returns true if the change set has no operations at all.
func (cs ChangeSet) IsEmpty() bool { return len(cs.Ops) == 0 }

// IsNoop returns true if the change set makes no changes.
func (cs ChangeSet) IsNoop() bool {
	for _, o := range cs.Ops {
		if o.IsInsert() || o.IsDelete() {
			return false
		}
	}
	return true
}

// Retain appends a Retain operation, extending a trailing Retain.
// Zero or negative counts leave the change set unchanged.
func (cs *ChangeSet) Retain(n int) {
	if n <= 0 {
		return
	}
	if last := cs.last(); last != nil && last.IsRetain() {
		last.Retain += n
		return
	}
	cs.Ops = append(cs.Ops, Op{Retain: n})
}

// Delete appends a Delete operation, extending a trailing Delete.
// Zero or negative counts leave the change set unchanged.
func (cs *ChangeSet) Delete(n int) {
	if n <= 0 {
		return
	}
	if last := cs.last(); last != nil && last.IsDelete() {
		last.Delete += n
		return
	}
	cs.Ops = append(cs.Ops, Op{Delete: n})
}

// Insert appends an Insert operation, extending an adjacent Insert. When the
// trailing operation is a Delete, the Insert is placed before it so the
// canonical Insert-before-Delete ordering holds.
func (cs *ChangeSet) Insert(units []uint16) {
	if len(units) == 0 {
		return
	}
	n := len(cs.Ops)
	if n > 0 && cs.Ops[n-1].IsInsert() {
		cs.Ops[n-1].Insert = append(cs.Ops[n-1].Insert, units...)
		return
	}
	if n > 0 && cs.Ops[n-1].IsDelete() {
		if n > 1 && cs.Ops[n-2].IsInsert() {
			cs.Ops[n-2].Insert = append(cs.Ops[n-2].Insert, units...)
			return
		}
		owned := append([]uint16(nil), units...)
		cs.Ops = append(cs.Ops, Op{})
		copy(cs.Ops[n:], cs.Ops[n-1:])
		cs.Ops[n-1] = Op{Insert: owned}
		return
	}
	cs.Ops = append(cs.Ops, Op{Insert: append([]uint16(nil), units...)})
}

// InsertString appends the UTF-16 encoding of s.
func (cs *ChangeSet) InsertString(s string) {
	cs.Insert(Units(s))
}

func (cs *ChangeSet) last() *Op {
	if len(cs.Ops) == 0 {
		return nil
	}
	return &cs.Ops[len(cs.Ops)-1]
}

// Canonical rebuilds the change set through the builder methods. For a change
// set constructed through them it is the identity.
func (cs ChangeSet) Canonical() ChangeSet {
	var out ChangeSet
	for _, o := range cs.Ops {
		switch {
		case o.IsRetain():
			out.Retain(o.Retain)
		case o.IsInsert():
			out.Insert(o.Insert)
		case o.IsDelete():
			out.Delete(o.Delete)
		}
	}
	return out
}

// Validate checks the change set invariants: every operation has exactly one
// field set and is non-empty. Used when a change set arrives from outside the
// builder methods (deserialization, RPC ingest).
func (cs ChangeSet) Validate() error {
	for i, o := range cs.Ops {
		set := 0
		if o.Retain != 0 {
			set++
		}
		if len(o.Insert) != 0 {
			set++
		}
		if o.Delete != 0 {
			set++
		}
		if set != 1 {
			return fmt.Errorf("op %d: exactly one of retain/insert/delete must be set: %w", i, ErrMalformedChangeSet)
		}
		if o.Retain < 0 || o.Delete < 0 {
			return fmt.Errorf("op %d: negative count: %w", i, ErrMalformedChangeSet)
		}
	}
	return nil
}

// String renders the change set for logs and error messages, e.g.
// `Retain(3), Insert("abc"), Delete(2)`.
func (cs ChangeSet) String() string {
	var b strings.Builder
	for i, o := range cs.Ops {
		if i > 0 {
			b.WriteString(", ")
		}
		switch {
		case o.IsRetain():
			fmt.Fprintf(&b, "Retain(%d)", o.Retain)
		case o.IsInsert():
			fmt.Fprintf(&b, "Insert(%q)", UnitsString(o.Insert))
		case o.IsDelete():
			fmt.Fprintf(&b, "Delete(%d)", o.Delete)
		}
	}
	return b.String()
}

// NewInsert creates a change set that inserts text at pos in a document of
// docLen code units.
func NewInsert(pos int, text string, docLen int) ChangeSet {
	var cs ChangeSet
	cs.Retain(pos)
	cs.InsertString(text)
	cs.Retain(docLen - pos)
	return cs
}

// NewDelete creates a change set that deletes count code units at pos in a
// document of docLen code units.
func NewDelete(pos, count, docLen int) ChangeSet {
	var cs ChangeSet
	cs.Retain(pos)
	cs.Delete(count)
	cs.Retain(docLen - pos - count)
	return cs
}

// Units converts a string to its UTF-16 code unit sequence.
func Units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// UnitsString converts a UTF-16 code unit sequence back to a string. Unpaired
// surrogates become the replacement character; the algebra itself never
// inspects unit values, so lone surrogates survive every operation and only
// degrade at display time.
func UnitsString(units []uint16) string {
	return string(utf16.Decode(units))
}
