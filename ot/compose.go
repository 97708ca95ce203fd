package ot

import "fmt"

// Compose combines two sequentially-applied change sets into one:
//
//	Apply(doc, Compose(a, b)) == Apply(Apply(doc, a), b)
//
// for every doc that a is applicable to. The output length of a must equal
// the input length of b.
func Compose(a, b ChangeSet) (ChangeSet, error) {
	if a.TargetLen() != b.BaseLen() {
		return ChangeSet{}, fmt.Errorf("compose: target length %d != base length %d: %w",
			a.TargetLen(), b.BaseLen(), ErrCompositionMismatch)
	}

	var out ChangeSet
	ia := newOpIter(a.Ops)
	ib := newOpIter(b.Ops)

	for ia.hasNext() || ib.hasNext() {
		// Deletes in a pass through: units deleted by a never reach b.
		if ia.peekKind() == kindDelete {
			out.Delete(ia.take(ia.peekLen()).Delete)
			continue
		}
		// Inserts in b pass through: b inserts into a's output.
		if ib.peekKind() == kindInsert {
			out.Insert(ib.take(ib.peekLen()).Insert)
			continue
		}

		// Both heads now consume a's output. Take the shorter chunk.
		if !ia.hasNext() || !ib.hasNext() {
			return ChangeSet{}, fmt.Errorf("compose: ran out of operations: %w", ErrCompositionMismatch)
		}
		n := min(ia.peekLen(), ib.peekLen())
		ca := ia.take(n)
		cb := ib.take(n)

		switch {
		case ca.IsRetain() && cb.IsRetain():
			out.Retain(n)
		case ca.IsRetain() && cb.IsDelete():
			out.Delete(n)
		case ca.IsInsert() && cb.IsRetain():
			out.Insert(ca.Insert)
		case ca.IsInsert() && cb.IsDelete():
			// Inserted by a, deleted by b: the units never existed.
		}
	}

	return out, nil
}

// ComposeAll folds a series of change sets into one. An empty series yields
// the empty change set.
func ComposeAll(changeSets []ChangeSet) (ChangeSet, error) {
	if len(changeSets) == 0 {
		return ChangeSet{}, nil
	}
	out := changeSets[0]
	for _, cs := range changeSets[1:] {
		var err error
		out, err = Compose(out, cs)
		if err != nil {
			return ChangeSet{}, err
		}
	}
	return out, nil
}
