// Package store keeps one record per checked block: its state, its latest
// suggestions and the overlay handle that draws them.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/dshills/spellmark/internal/overlay"
	"github.com/dshills/spellmark/internal/spell"
)

// ErrSuperseded is returned by Complete and Fail when the block changed
// while its check was in flight. The record stays Pending and the caller
// owns the check again.
var ErrSuperseded = errors.New("check superseded by a newer edit")

// ErrInactiveDocument is returned by Ensure for a block of a document other
// than the one last passed to Activate.
var ErrInactiveDocument = errors.New("document is not active")

// Record is the engine's knowledge about one block.
type Record struct {
	ID         string
	DocumentID string
	Language   spell.Language
	State      spell.State

	// Suggestions are offsets into the block's plain text as of CheckedAt.
	Suggestions []spell.Suggestion

	Handle    overlay.Handle
	CheckedAt time.Time

	// recheck is set when a forced check arrives while one is in flight.
	recheck bool
}

// Store holds records keyed by block ID. All methods are safe for
// concurrent use; returned records are copies.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	order   []string
	now     func() time.Time

	// active is the only document records may be created for. Empty
	// accepts any document.
	active string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Ensure returns the record for id, creating an Unchecked record when none
// exists. attach is only called for new records. The second result reports
// whether the record was created.
func (s *Store) Ensure(id, documentID string, lang spell.Language, attach func() (overlay.Handle, error)) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" && documentID != s.active {
		return Record{}, false, ErrInactiveDocument
	}

	if r, ok := s.records[id]; ok {
		return r.copy(), false, nil
	}

	var h overlay.Handle
	if attach != nil {
		var err error
		if h, err = attach(); err != nil {
			return Record{}, false, err
		}
	}
	r := &Record{
		ID:         id,
		DocumentID: documentID,
		Language:   lang,
		State:      spell.StateUnchecked,
		Handle:     h,
	}
	s.records[id] = r
	s.order = append(s.order, id)
	return r.copy(), true, nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return r.copy(), true
}

// BeginCheck moves a record to Pending. A Pending record is never claimed
// twice; Checked and Failed records are claimed only when force is set.
// A forced claim of a Pending record asks the owner to check again instead.
// It reports whether the caller owns the check.
func (s *Store) BeginCheck(id string, lang spell.Language, force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return false
	}
	switch r.State {
	case spell.StatePending:
		if force {
			r.recheck = true
			r.Language = lang
		}
		return false
	case spell.StateChecked, spell.StateFailed:
		if !force {
			return false
		}
	}
	r.State = spell.StatePending
	r.Language = lang
	return true
}

// Complete stores the result of a check and marks the record Checked.
// It returns spell.ErrDetachedBlock when the record was removed while the
// check was in flight, and ErrSuperseded when a re-check was requested.
func (s *Store) Complete(id string, suggestions []spell.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return spell.ErrDetachedBlock
	}
	if r.recheck {
		r.recheck = false
		return ErrSuperseded
	}
	r.State = spell.StateChecked
	r.Suggestions = spell.CloneAll(suggestions)
	r.CheckedAt = s.now()
	return nil
}

// Fail marks the record Failed, keeping any earlier suggestions. Like
// Complete it returns ErrSuperseded, once, when a re-check was requested.
func (s *Store) Fail(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return spell.ErrDetachedBlock
	}
	if r.recheck {
		r.recheck = false
		return ErrSuperseded
	}
	r.State = spell.StateFailed
	return nil
}

// Suggestions returns a copy of the record's suggestions.
func (s *Store) Suggestions(id string) []spell.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil
	}
	return spell.CloneAll(r.Suggestions)
}

// Remove deletes the record and destroys its handle.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	r, ok := s.records[id]
	if ok {
		delete(s.records, id)
		s.dropOrder(id)
	}
	s.mu.Unlock()

	if ok && r.Handle != nil {
		r.Handle.Destroy()
	}
	return ok
}

// Clear removes every record and destroys every handle.
func (s *Store) Clear() {
	s.reset(func() {})
}

// Activate removes every record and from then on only accepts records of
// documentID. Both happen under one lock, so no record of another document
// survives a switch.
func (s *Store) Activate(documentID string) {
	s.reset(func() { s.active = documentID })
}

func (s *Store) reset(fn func()) {
	s.mu.Lock()
	records := s.records
	s.records = make(map[string]*Record)
	s.order = nil
	fn()
	s.mu.Unlock()

	for _, r := range records {
		if r.Handle != nil {
			r.Handle.Destroy()
		}
	}
}

// IDs returns block IDs in discovery order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Counts returns the number of records per state.
func (s *Store) Counts() map[spell.State]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[spell.State]int, 4)
	for _, r := range s.records {
		out[r.State]++
	}
	return out
}

func (s *Store) dropOrder(id string) {
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (r *Record) copy() Record {
	c := *r
	c.Suggestions = spell.CloneAll(r.Suggestions)
	return c
}
