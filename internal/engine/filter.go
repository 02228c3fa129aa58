package engine

import (
	"context"
	"slices"

	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/logging"
	"github.com/dshills/spellmark/internal/plugin/lua"
	"github.com/dshills/spellmark/internal/reconcile"
	"github.com/dshills/spellmark/internal/spell"
)

// Dictionary is the user's custom word list.
type Dictionary interface {
	Contains(word string) bool
	Add(ctx context.Context, words ...string) (bool, error)
}

// suggestionFilter decides which suggestions are drawn. Listing always
// returns the full set.
type suggestionFilter struct {
	dict   Dictionary
	script *lua.Filter
	logger *logging.Logger
}

// keep reports whether s should be drawn. runs and text describe the
// block as it is now.
func (f *suggestionFilter) keep(ctx context.Context, cfg *config.Config, runs []reconcile.Run, text string, s spell.Suggestion) bool {
	word := s.FlaggedText(text)
	if word != "" {
		if slices.Contains(cfg.General.CustomDictionary, word) {
			return false
		}
		if f.dict != nil && f.dict.Contains(word) {
			return false
		}
	}

	excluded := reconcile.ElementSet(cfg.Scheduler.ExcludedElements...)
	if reconcile.RangeHasElement(runs, s.Offset, s.End(), excluded) {
		return false
	}

	ok, err := f.script.Keep(ctx, s, word)
	if err != nil {
		f.logger.Warn("filter script: %v", err)
	}
	return ok
}
