// Package app wires configuration, storage, backends and the suggestion
// engine into one application.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/spellmark/internal/backend"
	"github.com/dshills/spellmark/internal/backend/languagetool"
	"github.com/dshills/spellmark/internal/backend/local"
	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/engine"
	"github.com/dshills/spellmark/internal/host/markdown"
	"github.com/dshills/spellmark/internal/logging"
	"github.com/dshills/spellmark/internal/overlay"
	"github.com/dshills/spellmark/internal/plugin/lua"
	"github.com/dshills/spellmark/internal/userdict"
)

// Application errors.
var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("application closed")

	// ErrDocumentNotFound indicates a document was not opened by this
	// application.
	ErrDocumentNotFound = errors.New("document not found")
)

// Options configures an Application.
type Options struct {
	// ConfigPath is the configuration file. Empty uses the default path.
	ConfigPath string

	// Offline forces the local dictionary backend.
	Offline bool

	// Language overrides the default language.
	Language string

	// LogLevel overrides the configured log level.
	LogLevel string

	// Environ replaces the process environment when non-nil.
	Environ []string

	// LogOutput receives log output. Nil writes to stderr.
	LogOutput io.Writer

	// Renderer draws underlines. Nil keeps them in an overlay.Manager.
	Renderer overlay.Renderer

	// Notifier receives user notices. Nil logs them.
	Notifier engine.Notifier

	// HTTPClient is shared by the online backend and dictionary
	// downloads. Nil uses a default client.
	HTTPClient *http.Client

	// Watch reloads the configuration file while Run is active.
	Watch bool
}

// Application owns every long-lived component.
type Application struct {
	opts Options

	settings *config.Store
	logger   *logging.Logger
	dict     *userdict.Dictionary
	filter   *lua.Filter
	online   *languagetool.Client
	offline  *local.Backend
	checker  *backend.Adapter
	host     *markdown.Host
	renderer overlay.Renderer
	engine   *engine.Engine

	unsubscribe []func()

	mu     sync.Mutex
	paths  map[string]string
	closed bool

	initOrder []string
	closeOnce sync.Once
}

// New creates an Application and initialises its components in
// dependency order. Nothing is left running when New fails.
func New(ctx context.Context, opts Options) (*Application, error) {
	a := &Application{
		opts:  opts,
		paths: make(map[string]string),
	}
	b := newBootstrapper(a)
	if err := b.bootstrap(ctx); err != nil {
		return nil, err
	}
	a.initOrder = b.initOrder
	return a, nil
}

// configOptions maps command-line overrides onto environment variables so
// that reloads keep them.
func (a *Application) configOptions() config.Options {
	environ := a.opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	environ = append([]string(nil), environ...)
	if a.opts.Offline {
		environ = append(environ, "SPELLMARK_OFFLINE=true")
	}
	if a.opts.Language != "" {
		environ = append(environ, "SPELLMARK_LANGUAGE="+a.opts.Language)
	}
	if a.opts.LogLevel != "" {
		environ = append(environ, "SPELLMARK_LOG_LEVEL="+a.opts.LogLevel)
	}
	return config.Options{Path: a.opts.ConfigPath, Environ: environ}
}

// Open reads a Markdown file and makes it the current document.
func (a *Application) Open(path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", ErrClosed
	}
	id, err := a.host.Load(filepath.Base(path), src)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	a.paths[id] = path
	a.logger.Debug("opened %s as %s", path, id)
	return id, nil
}

// Save writes a document back to the file it was opened from.
func (a *Application) Save(documentID string) error {
	a.mu.Lock()
	path, ok := a.paths[documentID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	src, err := a.host.Markdown(documentID)
	if err != nil {
		return err
	}
	return writeFile(path, src)
}

// Run follows host events until ctx is cancelled or the application is
// closed. With Options.Watch set, configuration changes are applied while
// it runs.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return a.engine.Run(runCtx)
	})
	if a.opts.Watch {
		w := config.NewWatcher(a.configOptions(), a.settings, a.logger)
		g.Go(func() error {
			return w.Run(runCtx)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops background work and releases every component.
func (a *Application) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		newBootstrapperFor(a, a.initOrder).cleanup()
	})
}

// Engine returns the suggestion engine.
func (a *Application) Engine() *engine.Engine {
	return a.engine
}

// Host returns the Markdown document host.
func (a *Application) Host() *markdown.Host {
	return a.host
}

// Settings returns the live settings.
func (a *Application) Settings() *config.Store {
	return a.settings
}

// Logger returns the application logger.
func (a *Application) Logger() *logging.Logger {
	return a.logger
}

// Dictionary returns the user dictionary.
func (a *Application) Dictionary() *userdict.Dictionary {
	return a.dict
}

// Backend describes the backend selected by the current settings.
func (a *Application) Backend() backend.Variant {
	return a.checker.Variant()
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, mode); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// InitError reports which component failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
