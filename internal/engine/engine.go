package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dshills/spellmark/internal/backend"
	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/host"
	"github.com/dshills/spellmark/internal/logging"
	"github.com/dshills/spellmark/internal/overlay"
	"github.com/dshills/spellmark/internal/plugin/lua"
	"github.com/dshills/spellmark/internal/reconcile"
	"github.com/dshills/spellmark/internal/spell"
	"github.com/dshills/spellmark/internal/store"
)

// ErrNoSession is returned when no document is open.
var ErrNoSession = errors.New("no document open")

// Engine ties a host, a backend and a renderer together. It is safe for
// concurrent use.
type Engine struct {
	host     host.Host
	checker  backend.Checker
	settings *config.Store
	store    *store.Store
	sched    *Scheduler
	corr     *Corrector

	dict     Dictionary
	filter   *lua.Filter
	notifier Notifier
	yielder  Yielder
	logger   *logging.Logger

	mu      sync.RWMutex
	session *Session

	unsubscribe func()
	closeOnce   sync.Once
}

// New creates an engine. Call Run to follow host events, or Refresh to
// check the current document once.
func New(h host.Host, checker backend.Checker, renderer overlay.Renderer, settings *config.Store, opts ...Option) *Engine {
	e := &Engine{
		host:     h,
		checker:  checker,
		settings: settings,
		store:    store.New(),
		logger:   logging.NullLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = LogNotifier{Logger: e.logger}
	}

	e.sched = NewScheduler(SchedulerOptions{
		Host:       h,
		Store:      e.store,
		Checker:    checker,
		Renderer:   renderer,
		Settings:   settings,
		Dictionary: e.dict,
		Filter:     e.filter,
		Notifier:   e.notifier,
		Yielder:    e.yielder,
		Logger:     e.logger.WithComponent("scheduler"),
	})
	e.corr = NewCorrector(h, e.store, e.sched, settings, e.logger.WithComponent("correct"))
	e.unsubscribe = settings.Subscribe(e.settingsChanged)
	return e
}

// Run follows host events until ctx is cancelled or the event stream
// closes. The current document, if any, is checked first.
func (e *Engine) Run(ctx context.Context) error {
	if id := e.host.DocumentID(); id != "" {
		if err := e.open(ctx, id); err != nil {
			e.logger.Warn("open %s: %v", id, err)
		}
	}
	events := e.host.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := e.handle(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Warn("%s: %v", ev.Kind, err)
			}
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev host.Event) error {
	e.logger.Debug("event %s doc=%s block=%s", ev.Kind, ev.DocumentID, ev.BlockID)
	switch ev.Kind {
	case host.EventBlockUpdated:
		sess := e.current()
		if sess == nil || sess.DocumentID != ev.DocumentID {
			return nil
		}
		return e.sched.CheckAndRender(ctx, sess, ev.BlockID)
	case host.EventDocumentSwitched, host.EventDocumentLoaded:
		return e.open(ctx, ev.DocumentID)
	default:
		return nil
	}
}

// Refresh opens the host's current document and starts checking every
// block in the background. Wait drains the pass.
func (e *Engine) Refresh(ctx context.Context) error {
	id := e.host.DocumentID()
	if id == "" {
		return ErrNoSession
	}
	return e.open(ctx, id)
}

// open replaces the session, drops the previous document's records and
// starts a full checking pass. The pass runs in the background so that
// edits arriving meanwhile are handled right away.
func (e *Engine) open(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attrs, err := e.host.DocumentAttrs(documentID)
	if err != nil {
		return fmt.Errorf("document attributes: %w", err)
	}
	cfg := e.settings.Get()
	sess := NewSession(documentID, attrs, cfg)

	e.mu.Lock()
	e.session = sess
	e.mu.Unlock()
	e.sched.Activate(sess)
	e.store.Activate(documentID)

	if sess.Enabled && sess.Auto() && !cfg.General.Offline && cfg.General.ReportAuto {
		e.notifier.Notify(Notice{Level: logging.LevelInfo, Message: "language is detected automatically"})
	}
	e.logger.Debug("session %s doc=%s enabled=%t language=%s", sess.ID, documentID, sess.Enabled, sess.Language.Code)

	e.sched.Background(sess, PassOptions{Suggest: true, Render: true, Force: true})
	return nil
}

// settingsChanged re-renders the current document. Switching backends or
// the default language also re-checks it.
func (e *Engine) settingsChanged(old, cur *config.Config) {
	sess := e.current()
	if sess == nil {
		return
	}
	opts := PassOptions{Render: true, Remove: true}
	if old.General.Offline != cur.General.Offline ||
		old.General.DefaultLanguage != cur.General.DefaultLanguage ||
		!slices.Equal(old.Offline.Dictionaries, cur.Offline.Dictionaries) {
		opts.Suggest = true
		opts.Force = true
	}
	e.sched.Background(sess, opts)
}

func (e *Engine) current() *Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

// Session returns a copy of the current session.
func (e *Engine) Session() (Session, bool) {
	sess := e.current()
	if sess == nil {
		return Session{}, false
	}
	return *sess, true
}

// SuggestionAt returns the index of the drawn suggestion under a visual
// point of a block, or -1.
func (e *Engine) SuggestionAt(blockID string, p reconcile.Point) int {
	runs, err := e.host.BlockRuns(blockID)
	if err != nil {
		return NoSelection
	}
	offset, err := reconcile.VisualRangeToPlain(runs, p)
	if err != nil {
		e.logger.Debug("suggestion at: %v", err)
		return NoSelection
	}
	rec, ok := e.store.Get(blockID)
	if !ok || rec.State != spell.StateChecked {
		return NoSelection
	}

	cfg := e.settings.Get()
	text := reconcile.PlainText(runs)
	for i, s := range rec.Suggestions {
		if s.Contains(offset) && e.sched.filter.keep(context.Background(), cfg, runs, text, s) {
			return i
		}
	}
	return NoSelection
}

// ListSuggestions returns every suggestion of a block, filtered or not.
func (e *Engine) ListSuggestions(blockID string) []spell.Suggestion {
	return e.store.Suggestions(blockID)
}

// Visible returns the indices of the suggestions drawn for a block.
func (e *Engine) Visible(blockID string) []int {
	rec, ok := e.store.Get(blockID)
	if !ok {
		return nil
	}
	runs, err := e.host.BlockRuns(blockID)
	if err != nil {
		return nil
	}
	cfg := e.settings.Get()
	text := reconcile.PlainText(runs)
	var out []int
	for i, s := range rec.Suggestions {
		if e.sched.filter.keep(context.Background(), cfg, runs, text, s) {
			out = append(out, i)
		}
	}
	return out
}

// State returns the check state of a block.
func (e *Engine) State(blockID string) (spell.State, bool) {
	rec, ok := e.store.Get(blockID)
	return rec.State, ok
}

// ApplyCorrection accepts replacement r of suggestion s in a block.
func (e *Engine) ApplyCorrection(ctx context.Context, blockID string, s, r int) error {
	sess := e.current()
	if sess == nil {
		return ErrNoSession
	}
	return e.corr.Apply(ctx, sess, blockID, s, r)
}

// AddToDictionary adds a word to the user dictionary and redraws the
// document so the word disappears everywhere. Without a user dictionary
// the word is added to the configured custom dictionary.
func (e *Engine) AddToDictionary(ctx context.Context, word string) error {
	word = strings.TrimSpace(word)
	if word == "" {
		return errors.New("empty word")
	}
	if e.dict == nil {
		e.settings.Update(func(c *config.Config) {
			if !slices.Contains(c.General.CustomDictionary, word) {
				c.General.CustomDictionary = append(c.General.CustomDictionary, word)
			}
		})
		return nil
	}
	if _, err := e.dict.Add(ctx, word); err != nil {
		return fmt.Errorf("add %q: %w", word, err)
	}
	if sess := e.current(); sess != nil {
		e.sched.Background(sess, PassOptions{Render: true})
	}
	return nil
}

// Languages lists the languages of the active backend.
func (e *Engine) Languages(ctx context.Context) ([]spell.Language, error) {
	return e.checker.Languages(ctx)
}

// Metrics returns the scheduler counters.
func (e *Engine) Metrics() MetricsSnapshot {
	return e.sched.Metrics().Snapshot()
}

// Wait blocks until background passes finished.
func (e *Engine) Wait() {
	e.sched.Wait()
}

// Close stops background work and destroys every overlay.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.unsubscribe()
		e.sched.Close()
		e.store.Clear()
	})
}
