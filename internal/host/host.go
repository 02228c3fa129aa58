// Package host defines the document a spell checking engine works on. A
// Host owns a tree of blocks: containers hold other blocks, leaves hold
// editable inline content. The engine reads leaves, and writes to them only
// when a correction is accepted.
package host

import (
	"time"

	"github.com/dshills/spellmark/internal/reconcile"
)

// Document attributes read by the engine.
const (
	// AttrEnable turns checking on or off for a document ("true"/"false").
	AttrEnable = "custom-spellcheck-enable"

	// AttrLanguage sets the document language code, or "auto".
	AttrLanguage = "custom-spellcheck-language"
)

// Block is one node of the document tree.
type Block struct {
	ID string

	// Container blocks hold other blocks and have no content of their own.
	Container bool
}

// Host is the live document tree. Methods on a block that is no longer in
// the tree return spell.ErrDetachedBlock.
type Host interface {
	// DocumentID returns the current document, or "" when none is open.
	DocumentID() string

	// ChildBlocks returns the direct children of a block. The document ID
	// names the root.
	ChildBlocks(id string) ([]Block, error)

	// BlockText returns the plain text of a leaf.
	BlockText(id string) (string, error)

	// BlockMarkup returns the rich inline markup of a leaf.
	BlockMarkup(id string) (string, error)

	// BlockRuns returns the rendered text runs of a leaf.
	BlockRuns(id string) ([]reconcile.Run, error)

	// ReplaceBlockContent replaces the markup of a leaf.
	ReplaceBlockContent(id, markup string) error

	// DocumentAttrs returns the custom attributes of a document.
	DocumentAttrs(documentID string) (map[string]string, error)

	// Events delivers document changes.
	Events() <-chan Event
}

// EventKind names a document change.
type EventKind uint8

const (
	// EventBlockUpdated reports that a leaf's content was edited.
	EventBlockUpdated EventKind = iota + 1

	// EventDocumentSwitched reports that another document became current.
	EventDocumentSwitched

	// EventDocumentLoaded reports that the current document was reloaded.
	EventDocumentLoaded
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventBlockUpdated:
		return "block.updated"
	case EventDocumentSwitched:
		return "document.switched"
	case EventDocumentLoaded:
		return "document.loaded"
	default:
		return "unknown"
	}
}

// Event is a document change.
type Event struct {
	Kind       EventKind
	DocumentID string

	// BlockID is set for EventBlockUpdated.
	BlockID string

	Timestamp time.Time
}

// NewEvent creates an event stamped with the current time.
func NewEvent(kind EventKind, documentID, blockID string) Event {
	return Event{
		Kind:       kind,
		DocumentID: documentID,
		BlockID:    blockID,
		Timestamp:  time.Now(),
	}
}
