package ot

import "fmt"

// Apply applies the change set to a document, returning the new document.
//
// The change set is a list of commands for a cursor walking the input:
// Retain(n) copies n code units, Delete(n) skips n code units, Insert(s)
// emits s. The result length equals cs.TargetLen().
func Apply(doc []uint16, cs ChangeSet) ([]uint16, error) {
	if cs.BaseLen() != len(doc) {
		return nil, fmt.Errorf("apply: document length %d != change set base length %d: %w",
			len(doc), cs.BaseLen(), ErrLengthMismatch)
	}
	out := make([]uint16, 0, cs.TargetLen())
	pos := 0
	for _, o := range cs.Ops {
		switch {
		case o.IsRetain():
			out = append(out, doc[pos:pos+o.Retain]...)
			pos += o.Retain
		case o.IsInsert():
			out = append(out, o.Insert...)
		case o.IsDelete():
			pos += o.Delete
		}
	}
	return out, nil
}

// ApplyString is Apply over a Go string.
func ApplyString(doc string, cs ChangeSet) (string, error) {
	out, err := Apply(Units(doc), cs)
	if err != nil {
		return "", err
	}
	return UnitsString(out), nil
}

// Invert returns the change set that undoes cs. The pre-image document is
// required because a Delete is inverted to an Insert of the deleted units.
//
// For every doc with len(doc) == cs.BaseLen():
//
//	Apply(Apply(doc, cs), Invert(cs, doc)) == doc
func Invert(cs ChangeSet, doc []uint16) (ChangeSet, error) {
	if cs.BaseLen() != len(doc) {
		return ChangeSet{}, fmt.Errorf("invert: document length %d != change set base length %d: %w",
			len(doc), cs.BaseLen(), ErrLengthMismatch)
	}
	var inv ChangeSet
	pos := 0
	for _, o := range cs.Ops {
		switch {
		case o.IsRetain():
			inv.Retain(o.Retain)
			pos += o.Retain
		case o.IsInsert():
			inv.Delete(len(o.Insert))
		case o.IsDelete():
			inv.Insert(doc[pos : pos+o.Delete])
			pos += o.Delete
		}
	}
	return inv, nil
}
