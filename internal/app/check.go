package app

import (
	"context"
	"fmt"

	"github.com/dshills/spellmark/internal/spell"
	"github.com/dshills/spellmark/internal/userdict"
)

// Finding is the visible result of checking one block.
type Finding struct {
	BlockID     string
	Text        string
	State       spell.State
	Suggestions []spell.Suggestion
}

// Check runs a full pass over the current document and waits for
// background work to settle.
func (a *Application) Check(ctx context.Context) error {
	if err := a.engine.Refresh(ctx); err != nil {
		return err
	}
	a.engine.Wait()
	return nil
}

// Findings lists the visible suggestions of every leaf block in document
// order. Blocks without suggestions are omitted unless their check failed.
func (a *Application) Findings(documentID string) ([]Finding, error) {
	var out []Finding
	for _, id := range a.host.Leaves(documentID) {
		state, ok := a.engine.State(id)
		if !ok {
			continue
		}
		text, err := a.host.BlockText(id)
		if err != nil {
			return nil, err
		}
		all := a.engine.ListSuggestions(id)
		f := Finding{BlockID: id, Text: text, State: state}
		for _, i := range a.engine.Visible(id) {
			f.Suggestions = append(f.Suggestions, all[i])
		}
		if len(f.Suggestions) == 0 && state != spell.StateFailed {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// FixAll applies the first replacement of every visible suggestion that
// has one and returns how many corrections were applied. Corrections must
// be enabled in the settings.
func (a *Application) FixAll(ctx context.Context, documentID string) (int, error) {
	fixed := 0
	for _, id := range a.host.Leaves(documentID) {
		// Each correction re-checks the block, so indices are looked up
		// again after every change.
		budget := len(a.engine.Visible(id))
		for ; budget > 0; budget-- {
			if err := ctx.Err(); err != nil {
				return fixed, err
			}
			s, ok := a.firstFixable(id)
			if !ok {
				break
			}
			if err := a.engine.ApplyCorrection(ctx, id, s, 0); err != nil {
				return fixed, fmt.Errorf("block %s: %w", id, err)
			}
			fixed++
		}
	}
	a.engine.Wait()
	return fixed, nil
}

func (a *Application) firstFixable(blockID string) (int, bool) {
	all := a.engine.ListSuggestions(blockID)
	for _, i := range a.engine.Visible(blockID) {
		if len(all[i].Replacements) > 0 {
			return i, true
		}
	}
	return 0, false
}

// AddWord adds a word to the user dictionary.
func (a *Application) AddWord(ctx context.Context, word string) error {
	return a.engine.AddToDictionary(ctx, word)
}

// Words lists the user dictionary.
func (a *Application) Words(ctx context.Context) ([]userdict.Entry, error) {
	return a.dict.Entries(ctx)
}

// Languages lists the languages of the selected backend.
func (a *Application) Languages(ctx context.Context) ([]spell.Language, error) {
	return a.engine.Languages(ctx)
}
