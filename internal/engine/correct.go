package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/net/html"

	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/host"
	"github.com/dshills/spellmark/internal/logging"
	"github.com/dshills/spellmark/internal/reconcile"
	"github.com/dshills/spellmark/internal/spell"
	"github.com/dshills/spellmark/internal/store"
)

// ErrCorrectionDisabled is returned when corrections are turned off.
var ErrCorrectionDisabled = errors.New("corrections are disabled")

// NoSelection is the index that leaves a block unchanged.
const NoSelection = -1

// Corrector applies accepted replacements to the document.
type Corrector struct {
	host     host.Host
	store    *store.Store
	sched    *Scheduler
	settings *config.Store
	logger   *logging.Logger
}

// NewCorrector creates a corrector writing through h and re-checking with
// sched.
func NewCorrector(h host.Host, st *store.Store, sched *Scheduler, settings *config.Store, logger *logging.Logger) *Corrector {
	if logger == nil {
		logger = logging.NullLogger
	}
	return &Corrector{host: h, store: st, sched: sched, settings: settings, logger: logger}
}

// Apply replaces the text flagged by suggestion with one of its
// replacements and re-checks the block. An index of NoSelection does
// nothing. Indices out of range return spell.ErrInvalidRange.
func (c *Corrector) Apply(ctx context.Context, sess *Session, blockID string, suggestion, replacement int) error {
	if suggestion == NoSelection || replacement == NoSelection {
		return nil
	}
	if !c.settings.Get().General.ExperimentalCorrect {
		return ErrCorrectionDisabled
	}

	list := c.store.Suggestions(blockID)
	if suggestion < 0 || suggestion >= len(list) {
		c.logger.Debug("correction: suggestion %d of %d in %s", suggestion, len(list), blockID)
		return &spell.RangeError{Start: suggestion, End: suggestion + 1, Limit: len(list)}
	}
	s := list[suggestion]
	if replacement < 0 || replacement >= len(s.Replacements) {
		c.logger.Debug("correction: replacement %d of %d in %s", replacement, len(s.Replacements), blockID)
		return &spell.RangeError{Start: replacement, End: replacement + 1, Limit: len(s.Replacements)}
	}

	markup, err := c.host.BlockMarkup(blockID)
	if err != nil {
		return fmt.Errorf("read block %s: %w", blockID, err)
	}
	start, end, err := reconcile.RichSpanForPlain(markup, s.Offset, s.End())
	if err != nil {
		c.logger.Debug("correction: %v", err)
		return err
	}

	updated := markup[:start] + html.EscapeString(s.Replacements[replacement]) + markup[end:]
	if err := c.host.ReplaceBlockContent(blockID, updated); err != nil {
		return fmt.Errorf("replace block %s: %w", blockID, err)
	}
	return c.sched.CheckAndRender(ctx, sess, blockID)
}
