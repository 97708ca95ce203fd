package editor

import (
	"fmt"

	"github.com/lhoward/cowrite/ot"
)

// Undo/redo uses transposed semantics: each stack entry is an inverse change
// set that is continuously transformed against foreign edits as they arrive
// (see integrateOne), so popping it always addresses current text positions.
// Undoing an insertion that a remote edit has since typed into removes the
// surviving inserted units and leaves the remote units alone.

// Undo reverts the most recent local edit as a new local edit. The reverted
// edit moves to the redo stack. A no-op when the undo stack is empty.
func (e *Editor) Undo() error {
	n := len(e.undoStack)
	if n == 0 {
		return nil
	}
	item := e.undoStack[n-1]
	redo, err := e.reverse(item)
	if err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	e.undoStack = e.undoStack[:n-1]
	e.redoStack = append(e.redoStack, redo)
	return nil
}

// Redo re-applies the most recently undone edit. A no-op when the redo stack
// is empty.
func (e *Editor) Redo() error {
	n := len(e.redoStack)
	if n == 0 {
		return nil
	}
	item := e.redoStack[n-1]
	undo, err := e.reverse(item)
	if err != nil {
		return fmt.Errorf("redo: %w", err)
	}
	e.redoStack = e.redoStack[:n-1]
	e.undoStack = append(e.undoStack, undo)
	return nil
}

// reverse applies an undo item's change set as a local edit and returns the
// item that re-reverts it.
func (e *Editor) reverse(item undoItem) (undoItem, error) {
	inverse, err := ot.Invert(item.inverse, e.localText)
	if err != nil {
		return undoItem{}, err
	}
	counterpart := undoItem{inverse: inverse, selectionAfter: e.selection}
	if err := e.applyEdit(item.inverse); err != nil {
		return undoItem{}, err
	}
	e.selection = item.selectionAfter
	// Reverting ends the current typing burst.
	e.composableUntil = e.now()
	return counterpart, nil
}

// transformStack shifts every entry of a stack across a remote change set
// already transformed to local coordinates. Entries are walked from the top
// (most recent) down, threading the remote change through each.
func transformStack(stack []undoItem, remote ot.ChangeSet) error {
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i].selectionAfter = ot.TransformSelection(stack[i].selectionAfter, remote)
		remoteAfterItem, itemAfterRemote, err := ot.Transform(remote, stack[i].inverse)
		if err != nil {
			return err
		}
		stack[i].inverse = itemAfterRemote
		remote = remoteAfterItem
	}
	return nil
}
