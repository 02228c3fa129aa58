package app

import (
	"context"
	"slices"

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

// bootstrapper handles component initialization with proper cleanup on failure.
type bootstrapper struct {
	app       *Application
	initOrder []string
}

func newBootstrapper(app *Application) *bootstrapper {
	return &bootstrapper{
		app:       app,
		initOrder: make([]string, 0, 8),
	}
}

// newBootstrapperFor rebuilds a bootstrapper that can release components
// initialised earlier.
func newBootstrapperFor(app *Application, order []string) *bootstrapper {
	return &bootstrapper{app: app, initOrder: order}
}

// bootstrap initializes all components in dependency order.
// On failure, it cleans up already-initialized components.
func (b *bootstrapper) bootstrap(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"config", b.initConfig},
		{"logging", b.initLogging},
		{"dictionary", b.initDictionary},
		{"filters", b.initFilters},
		{"backends", b.initBackends},
		{"host", b.initHost},
		{"engine", b.initEngine},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			b.cleanup()
			return &InitError{Component: step.name, Err: err}
		}
		b.initOrder = append(b.initOrder, step.name)
	}
	return nil
}

func (b *bootstrapper) initConfig(context.Context) error {
	cfg, err := config.Load(b.app.configOptions())
	if err != nil {
		return err
	}
	b.app.settings = config.NewStore(cfg)
	return nil
}

func (b *bootstrapper) initLogging(context.Context) error {
	cfg := b.app.settings.Get().Logging
	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Level),
		Format: cfg.Format,
		Output: b.app.opts.LogOutput,
	})
	logging.Set(logger)
	b.app.logger = logger

	b.app.unsubscribe = append(b.app.unsubscribe, b.app.settings.Subscribe(func(old, cur *config.Config) {
		if old.Logging.Level != cur.Logging.Level {
			logger.SetLevel(logging.ParseLevel(cur.Logging.Level))
		}
	}))
	return nil
}

func (b *bootstrapper) initDictionary(ctx context.Context) error {
	cfg := b.app.settings.Get()
	dict, err := userdict.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return err
	}
	if err := dict.Seed(ctx, cfg.General.CustomDictionary); err != nil {
		dict.Close()
		return err
	}
	b.app.dict = dict
	b.app.logger.Debug("user dictionary %s: %d words", cfg.Storage.Path, len(dict.Words()))
	return nil
}

func (b *bootstrapper) initFilters(ctx context.Context) error {
	paths := b.app.settings.Get().Scripts.Filters
	if len(paths) == 0 {
		return nil
	}
	filter, err := lua.LoadFilters(ctx, paths)
	if err != nil {
		return err
	}
	b.app.filter = filter
	b.app.logger.Debug("loaded %d filter scripts", filter.Len())
	return nil
}

func (b *bootstrapper) initBackends(context.Context) error {
	settings := b.app.settings
	hc := b.app.opts.HTTPClient

	var ltOpts []languagetool.Option
	localOpts := []local.Option{local.WithLogger(b.app.logger)}
	if hc != nil {
		ltOpts = append(ltOpts, languagetool.WithHTTPClient(hc))
		localOpts = append(localOpts, local.WithHTTPClient(hc))
	}
	b.app.online = languagetool.New(func() languagetool.Settings {
		return onlineSettings(settings.Get())
	}, ltOpts...)
	b.app.offline = local.New(func() local.Settings {
		return offlineSettings(settings.Get())
	}, localOpts...)
	b.app.checker = backend.NewAdapter(settings, b.app.online, b.app.offline)

	offline := b.app.offline
	b.app.unsubscribe = append(b.app.unsubscribe, settings.Subscribe(func(old, cur *config.Config) {
		if old.Offline.DictionaryDir != cur.Offline.DictionaryDir ||
			old.Offline.MaxErrors != cur.Offline.MaxErrors ||
			!slices.Equal(old.Offline.Dictionaries, cur.Offline.Dictionaries) {
			offline.Forget()
		}
	}))
	return nil
}

func (b *bootstrapper) initHost(context.Context) error {
	b.app.host = markdown.New()
	b.app.renderer = b.app.opts.Renderer
	if b.app.renderer == nil {
		b.app.renderer = overlay.NewManager(overlay.DefaultConfig())
	}
	return nil
}

func (b *bootstrapper) initEngine(context.Context) error {
	opts := []engine.Option{
		engine.WithLogger(b.app.logger),
		engine.WithDictionary(b.app.dict),
	}
	if b.app.filter != nil {
		opts = append(opts, engine.WithFilter(b.app.filter))
	}
	if b.app.opts.Notifier != nil {
		opts = append(opts, engine.WithNotifier(b.app.opts.Notifier))
	}
	b.app.engine = engine.New(b.app.host, b.app.checker, b.app.renderer, b.app.settings, opts...)
	return nil
}

// cleanup releases initialised components in reverse order.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		switch b.initOrder[i] {
		case "engine":
			b.app.engine.Close()
		case "host":
			b.app.host.Close()
		case "backends":
			b.app.offline.Forget()
		case "filters":
			if b.app.filter != nil {
				b.app.filter.Close()
			}
		case "dictionary":
			if err := b.app.dict.Close(); err != nil {
				b.app.logger.Warn("closing user dictionary: %v", err)
			}
		case "logging":
			for _, unsubscribe := range b.app.unsubscribe {
				unsubscribe()
			}
			b.app.unsubscribe = nil
		}
	}
}

func onlineSettings(cfg *config.Config) languagetool.Settings {
	o := cfg.Online
	return languagetool.Settings{
		Server:            o.Server,
		Username:          o.Username,
		APIKey:            o.APIKey,
		Picky:             o.Picky,
		MotherTongue:      o.MotherTongue,
		PreferredVariants: o.PreferredVariants,
		RequestsPerMinute: o.RequestsPerMinute,
		Timeout:           o.Timeout.Duration,
	}
}

func offlineSettings(cfg *config.Config) local.Settings {
	o := cfg.Offline
	return local.Settings{
		Dictionaries:    o.Dictionaries,
		Dir:             o.DictionaryDir,
		DownloadMissing: o.DownloadMissing,
		DownloadURL:     o.DownloadURL,
		MaxSuggestions:  o.MaxSuggestions,
		MaxErrors:       o.MaxErrors,
	}
}
