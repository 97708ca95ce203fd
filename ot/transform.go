package ot

import "fmt"

// Transform takes two concurrent change sets a and b, both rooted at the same
// document state, and returns aPrime and bPrime such that
//
//	Apply(Apply(doc, a), bPrime) == Apply(Apply(doc, b), aPrime)
//
// i.e. aPrime applies after b, bPrime applies after a, and both orders
// converge to the same text (TP1).
//
// Tie-break: when both sides insert at the same position, a's insertion lands
// to the left of b's. Every caller in this repository passes the committed
// side (server history, remote revision) as a and the uncommitted side
// (client submission, in-flight, pending, undo entries) as b, so committed
// history wins position among concurrent inserts.
func Transform(a, b ChangeSet) (aPrime, bPrime ChangeSet, err error) {
	if a.BaseLen() != b.BaseLen() {
		return ChangeSet{}, ChangeSet{}, fmt.Errorf(
			"transform: base lengths differ: a=%d, b=%d: %w", a.BaseLen(), b.BaseLen(), ErrLengthMismatch)
	}

	var ap, bp ChangeSet
	ia := newOpIter(a.Ops)
	ib := newOpIter(b.Ops)

	for ia.hasNext() || ib.hasNext() {
		// a inserts first at ties.
		if ia.peekKind() == kindInsert {
			units := ia.take(ia.peekLen()).Insert
			ap.Insert(units)
			bp.Retain(len(units))
			continue
		}
		if ib.peekKind() == kindInsert {
			units := ib.take(ib.peekLen()).Insert
			bp.Insert(units)
			ap.Retain(len(units))
			continue
		}

		// Both heads consume input. Take the shorter chunk.
		if !ia.hasNext() || !ib.hasNext() {
			return ChangeSet{}, ChangeSet{}, fmt.Errorf("transform: ran out of operations: %w", ErrLengthMismatch)
		}
		n := min(ia.peekLen(), ib.peekLen())
		ca := ia.take(n)
		cb := ib.take(n)

		switch {
		case ca.IsRetain() && cb.IsRetain():
			ap.Retain(n)
			bp.Retain(n)
		case ca.IsDelete() && cb.IsRetain():
			ap.Delete(n)
		case ca.IsRetain() && cb.IsDelete():
			bp.Delete(n)
		case ca.IsDelete() && cb.IsDelete():
			// Both deleted the same units. Nothing left to do on either side.
		}
	}

	return ap, bp, nil
}

// Rebase transforms a change set rooted at an older revision so that it
// applies after the given history of later-committed revisions. The history
// is composed into one change set first; an empty history returns cs
// unchanged.
//
// This is the server admission path: a client submission on revision R is
// rebased over everything committed in (R, current].
func Rebase(cs ChangeSet, history []ChangeSet) (ChangeSet, error) {
	if len(history) == 0 {
		return cs, nil
	}
	hist, err := ComposeAll(history)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("rebase: composing history: %w", err)
	}
	_, rebased, err := Transform(hist, cs)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("rebase: %w", err)
	}
	return rebased, nil
}
