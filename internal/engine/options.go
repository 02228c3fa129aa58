package engine

import (
	"github.com/dshills/spellmark/internal/logging"
	"github.com/dshills/spellmark/internal/plugin/lua"
)

// Option configures an Engine during creation.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNotifier sets where user notices go.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithDictionary sets the user dictionary.
func WithDictionary(d Dictionary) Option {
	return func(e *Engine) {
		e.dict = d
	}
}

// WithFilter sets the Lua suggestion filters.
func WithFilter(f *lua.Filter) Option {
	return func(e *Engine) {
		e.filter = f
	}
}

// WithYielder sets the yield point run between batches.
func WithYielder(y Yielder) Option {
	return func(e *Engine) {
		e.yielder = y
	}
}
