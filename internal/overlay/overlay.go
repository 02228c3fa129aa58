// Package overlay holds the visual layer that draws suggestion underlines
// next to a block without touching the document. A Renderer hands out one
// Handle per block; the engine clears and redraws a handle each time the
// block's suggestions change.
package overlay

import (
	"errors"

	"github.com/dshills/spellmark/internal/reconcile"
)

// ErrHandleDestroyed is returned when a destroyed handle is used.
var ErrHandleDestroyed = errors.New("overlay handle destroyed")

// Handle is the overlay attached to one block.
type Handle interface {
	// ID uniquely identifies the handle.
	ID() string

	// BlockID returns the block the handle is attached to.
	BlockID() string

	// Measurer returns geometry for the block's current runs.
	Measurer(runs []reconcile.Run) reconcile.Measurer

	// Clear removes every underline.
	Clear()

	// Underline adds underline rectangles for one suggestion.
	Underline(suggestion int, rects []reconcile.Rect) error

	// Destroy detaches the handle. Later calls are no-ops.
	Destroy()
}

// Renderer creates handles.
type Renderer interface {
	Attach(documentID, blockID string) (Handle, error)
}

// Mark is one drawn underline.
type Mark struct {
	// Suggestion is the index of the suggestion in the block's list.
	Suggestion int

	Rect reconcile.Rect
}
