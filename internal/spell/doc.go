// Package spell defines the data model shared by every part of spellmark:
// suggestions produced by backends, the languages they understand, the
// per-block check state and the error taxonomy used across the engine.
//
// Offsets and lengths in a Suggestion are rune offsets into the plain-text
// projection of the block that was checked. They are only meaningful against
// the exact text that was submitted; a re-check replaces the whole set.
package spell
