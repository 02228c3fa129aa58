package engine

import (
	"github.com/dshills/spellmark/internal/logging"
)

// Notice is a message for the user.
type Notice struct {
	Level   logging.Level
	Message string

	// Err is the cause, if any.
	Err error

	// BlockID is set when the notice concerns one block.
	BlockID string
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *logging.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = logging.Get()
	}
	if n.BlockID != "" {
		logger = logger.WithField("block", n.BlockID)
	}
	msg := n.Message
	if n.Err != nil {
		msg += ": " + n.Err.Error()
	}
	switch n.Level {
	case logging.LevelDebug:
		logger.Debug("%s", msg)
	case logging.LevelInfo:
		logger.Info("%s", msg)
	case logging.LevelWarn:
		logger.Warn("%s", msg)
	default:
		logger.Error("%s", msg)
	}
}
