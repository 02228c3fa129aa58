package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

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

// PassOptions select what a full pass does.
type PassOptions struct {
	// Suggest checks records that need it.
	Suggest bool

	// Render redraws every record's underlines.
	Render bool

	// Remove clears every record's underlines first.
	Remove bool

	// Force re-checks Checked and Failed records.
	Force bool

	// Limit is the batch size. Zero uses the configured concurrency for
	// the active backend; negative is unbounded.
	Limit int
}

// Scheduler checks and renders blocks.
type Scheduler struct {
	host     host.Host
	store    *store.Store
	checker  backend.Checker
	renderer overlay.Renderer
	settings *config.Store
	filter   *suggestionFilter
	metrics  *Metrics
	notifier Notifier
	yielder  Yielder
	logger   *logging.Logger

	// dictionaryNoticed is set once a missing dictionary was reported.
	dictionaryNoticed atomic.Bool

	// session is the current session. Passes for any other session stop.
	session atomic.Pointer[Session]

	lifetime context.Context
	cancel   context.CancelFunc
	bg       sync.WaitGroup
}

// SchedulerOptions are the collaborators of a Scheduler. Host, Store,
// Checker, Renderer and Settings are required.
type SchedulerOptions struct {
	Host       host.Host
	Store      *store.Store
	Checker    backend.Checker
	Renderer   overlay.Renderer
	Settings   *config.Store
	Dictionary Dictionary
	Filter     *lua.Filter
	Metrics    *Metrics
	Notifier   Notifier
	Yielder    Yielder
	Logger     *logging.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NullLogger
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: opts.Logger}
	}
	if opts.Yielder == nil {
		opts.Yielder = GoschedYielder{}
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		host:     opts.Host,
		store:    opts.Store,
		checker:  opts.Checker,
		renderer: opts.Renderer,
		settings: opts.Settings,
		filter: &suggestionFilter{
			dict:   opts.Dictionary,
			script: opts.Filter,
			logger: opts.Logger,
		},
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		yielder:  opts.Yielder,
		logger:   opts.Logger,
		lifetime: lifetime,
		cancel:   cancel,
	}
}

// Metrics returns the scheduler's counters.
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// Activate makes sess the current session.
func (s *Scheduler) Activate(sess *Session) {
	s.session.Store(sess)
}

// stale reports whether sess was replaced by another session.
func (s *Scheduler) stale(sess *Session) bool {
	cur := s.session.Load()
	return cur != nil && cur.ID != sess.ID
}

// Discover walks the tree under rootID and ensures a record for every
// leaf. It returns the leaf IDs in document order.
func (s *Scheduler) Discover(ctx context.Context, sess *Session, rootID string) ([]string, error) {
	var ids []string
	var walk func(id string) error
	walk = func(id string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		children, err := s.host.ChildBlocks(id)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.Container {
				if err := walk(c.ID); err != nil {
					return err
				}
				continue
			}
			if err := s.ensure(sess, c.ID); err != nil {
				return err
			}
			ids = append(ids, c.ID)
		}
		return nil
	}
	if err := walk(rootID); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Scheduler) ensure(sess *Session, id string) error {
	_, _, err := s.store.Ensure(id, sess.DocumentID, sess.Language, func() (overlay.Handle, error) {
		return s.renderer.Attach(sess.DocumentID, id)
	})
	return err
}

// FullPass discovers the session's document and processes every leaf in
// batches. Blocks in a batch run concurrently; the next batch starts after
// the whole batch settled and the yielder ran. Records whose block left the
// document are removed.
func (s *Scheduler) FullPass(ctx context.Context, sess *Session, opts PassOptions) error {
	if s.stale(sess) {
		return nil
	}
	ids, err := s.Discover(ctx, sess, sess.DocumentID)
	if errors.Is(err, store.ErrInactiveDocument) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.stale(sess) {
		return nil
	}
	s.prune(ids)
	s.metrics.RecordPass()

	if !sess.Enabled {
		s.clearAll()
		return nil
	}
	if opts.Remove {
		s.clearAll()
	}
	if !opts.Suggest && !opts.Render {
		return nil
	}

	limit := opts.Limit
	if limit == 0 {
		limit = s.settings.Get().Concurrency()
	}
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}

	for start := 0; start < len(ids); start += limit {
		if s.stale(sess) {
			return nil
		}
		batch := ids[start:min(start+limit, len(ids))]

		var g errgroup.Group
		for _, id := range batch {
			g.Go(func() error {
				if opts.Suggest {
					s.check(ctx, sess, id, opts.Force)
				}
				if opts.Render {
					s.render(ctx, sess, id)
				}
				return nil
			})
		}
		_ = g.Wait()
		s.metrics.RecordBatch()

		if start+limit < len(ids) {
			if err := s.yielder.Yield(ctx); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

// CheckAndRender re-checks one block, draws it, then starts a render-only
// pass over the document in the background. Wait drains that pass.
func (s *Scheduler) CheckAndRender(ctx context.Context, sess *Session, blockID string) error {
	if !sess.Enabled || s.stale(sess) {
		return nil
	}
	if err := s.ensure(sess, blockID); errors.Is(err, store.ErrInactiveDocument) {
		return nil
	} else if err != nil {
		return err
	}
	s.check(ctx, sess, blockID, true)
	s.render(ctx, sess, blockID)
	s.Background(sess, PassOptions{Render: true})
	return nil
}

// Background runs a full pass on its own goroutine. The pass is cancelled
// by Close and drained by Wait.
func (s *Scheduler) Background(sess *Session, opts PassOptions) {
	if s.lifetime.Err() != nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.FullPass(s.lifetime, sess, opts); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("background pass: %v", err)
		}
	}()
}

// Wait blocks until every background pass finished.
func (s *Scheduler) Wait() {
	s.bg.Wait()
}

// Close cancels background passes and waits for them.
func (s *Scheduler) Close() {
	s.cancel()
	s.bg.Wait()
}

// check runs one backend check for a block. Errors end here: the record
// is marked Failed and the user notified. When the block is edited while
// its check is in flight the result is dropped and the new text checked.
func (s *Scheduler) check(ctx context.Context, sess *Session, id string, force bool) {
	if !s.store.BeginCheck(id, sess.Language, force) {
		return
	}

	for {
		text, err := s.host.BlockText(id)
		if err != nil {
			s.hostError(id, err)
			return
		}

		s.metrics.CheckStarted()
		start := time.Now()
		suggestions, err := s.checker.Check(ctx, text, sess.Languages())
		s.metrics.CheckDone(time.Since(start), err != nil)

		var stored error
		if err != nil {
			stored = s.store.Fail(id)
		} else {
			stored = s.store.Complete(id, suggestions)
		}
		if errors.Is(stored, store.ErrSuperseded) {
			if ctx.Err() == nil && !s.stale(sess) {
				continue
			}
			s.fail(id)
			return
		}
		if stored != nil {
			s.logger.Debug("discarding result for %s: %v", id, stored)
			return
		}
		if err != nil {
			s.report(ctx, id, err)
		}
		return
	}
}

// fail marks a record Failed, dropping any pending re-check request.
func (s *Scheduler) fail(id string) {
	if errors.Is(s.store.Fail(id), store.ErrSuperseded) {
		_ = s.store.Fail(id)
	}
}

// render clears a block's underlines and draws the ones that pass the
// filter. Rendering twice draws the same marks.
func (s *Scheduler) render(ctx context.Context, sess *Session, id string) {
	rec, ok := s.store.Get(id)
	if !ok || rec.Handle == nil {
		return
	}
	runs, err := s.host.BlockRuns(id)
	if err != nil {
		s.hostError(id, err)
		return
	}

	rec.Handle.Clear()
	if !sess.Enabled || rec.State != spell.StateChecked {
		return
	}

	cfg := s.settings.Get()
	text := reconcile.PlainText(runs)
	m := rec.Handle.Measurer(runs)
	for i, sug := range rec.Suggestions {
		if !s.filter.keep(ctx, cfg, runs, text, sug) {
			continue
		}
		rects, err := reconcile.PlainRangeToVisual(runs, m, sug.Offset, sug.End(), cfg.Scheduler.MaxWidthPerChar)
		if err != nil {
			s.logger.Debug("skip suggestion %d of %s: %v", i, id, err)
			continue
		}
		if err := rec.Handle.Underline(i, rects); err != nil {
			s.logger.Debug("underline %s: %v", id, err)
			return
		}
	}
	s.metrics.RecordRender()
}

// hostError handles a failed host read. A detached block loses its record
// and overlay silently.
func (s *Scheduler) hostError(id string, err error) {
	if errors.Is(err, spell.ErrDetachedBlock) {
		s.store.Remove(id)
		return
	}
	s.fail(id)
	s.logger.Warn("read block %s: %v", id, err)
}

// report turns a backend error into a notice.
func (s *Scheduler) report(ctx context.Context, id string, err error) {
	switch {
	case ctx.Err() != nil:
		s.logger.Debug("check of %s cancelled", id)
	case errors.Is(err, spell.ErrDictionaryMissing):
		if s.dictionaryNoticed.CompareAndSwap(false, true) {
			s.notifier.Notify(Notice{Level: logging.LevelError, Message: "dictionary unavailable", Err: err, BlockID: id})
		}
	case errors.Is(err, spell.ErrBackendUnavailable):
		s.notifier.Notify(Notice{Level: logging.LevelError, Message: "suggestion backend unavailable", Err: err, BlockID: id})
	default:
		s.notifier.Notify(Notice{Level: logging.LevelError, Message: "check failed", Err: err, BlockID: id})
	}
}

// prune removes the records whose block is no longer in the document,
// and any record left over from another document.
func (s *Scheduler) prune(live []string) {
	keep := make(map[string]bool, len(live))
	for _, id := range live {
		keep[id] = true
	}
	for _, id := range s.store.IDs() {
		if !keep[id] {
			s.store.Remove(id)
		}
	}
}

func (s *Scheduler) clearAll() {
	for _, id := range s.store.IDs() {
		if rec, ok := s.store.Get(id); ok && rec.Handle != nil {
			rec.Handle.Clear()
		}
	}
}
