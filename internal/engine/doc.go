// Package engine is the suggestion engine. It discovers the leaf blocks of
// the current document, checks them through a backend in bounded batches,
// filters the results and draws them through an overlay renderer. Accepted
// corrections are spliced back into the block markup and the block is
// checked again.
//
// Block state lives in a store.Store: each record moves from Unchecked to
// Pending while exactly one check is in flight, then to Checked or Failed.
// Checked and Failed records return to Pending only through an explicit
// re-check (an edit, a reload or a forced pass).
//
// Backend errors never leave the scheduler. A failed check marks the record
// Failed and is reported once through the Notifier.
package engine
