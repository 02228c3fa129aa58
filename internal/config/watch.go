package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/spellmark/internal/logging"
)

// DefaultDebounce coalesces bursts of writes from editors.
const DefaultDebounce = 150 * time.Millisecond

// Watcher reloads a Store when its config file changes.
type Watcher struct {
	opts     Options
	store    *Store
	logger   *logging.Logger
	debounce time.Duration

	// reloaded is signalled after every reload attempt.
	reloaded chan error
}

// NewWatcher creates a watcher for the file named in opts.
func NewWatcher(opts Options, store *Store, logger *logging.Logger) *Watcher {
	if opts.Path == "" {
		opts.Path = DefaultPath()
	}
	if logger == nil {
		logger = logging.NullLogger
	}
	return &Watcher{
		opts:     opts,
		store:    store,
		logger:   logger.WithComponent("config"),
		debounce: DefaultDebounce,
		reloaded: make(chan error, 1),
	}
}

// Reloaded delivers the result of each reload. Results are dropped when
// nobody reads them.
func (w *Watcher) Reloaded() <-chan error {
	return w.reloaded
}

// Run watches until ctx is cancelled. The parent directory is watched so
// that files replaced by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	abs, err := filepath.Abs(w.opts.Path)
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			w.signal(w.reload())

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() error {
	cfg, err := Load(w.opts)
	if err != nil {
		w.logger.Warn("reload failed, keeping previous settings: %v", err)
		return err
	}
	w.store.Set(cfg)
	w.logger.Info("settings reloaded from %s", w.opts.Path)
	return nil
}

func (w *Watcher) signal(err error) {
	select {
	case w.reloaded <- err:
	default:
	}
}
