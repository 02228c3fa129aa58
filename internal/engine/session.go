package engine

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/host"
	"github.com/dshills/spellmark/internal/spell"
)

// Session is the per-document context shared by the scheduler and the
// correction applier. It is replaced wholesale when the document changes.
type Session struct {
	ID         string
	DocumentID string
	Enabled    bool
	Language   spell.Language
}

// NewSession builds the session for a document from its attributes,
// falling back to the configured defaults.
func NewSession(documentID string, attrs map[string]string, cfg *config.Config) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Enabled:    cfg.General.EnabledByDefault,
	}
	if v, ok := attrs[host.AttrEnable]; ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			s.Enabled = b
		}
	}

	code := cfg.General.DefaultLanguage
	if v := strings.TrimSpace(attrs[host.AttrLanguage]); v != "" {
		code = v
	}
	if spell.IsAuto(code) {
		code = spell.AutoLanguage
	}
	s.Language = spell.Language{Name: code, Code: code, LongCode: code}
	return s
}

// Languages is the language hint passed to the backend.
func (s *Session) Languages() []string {
	return []string{s.Language.Code}
}

// Auto reports whether the language is detected by the backend.
func (s *Session) Auto() bool {
	return spell.IsAuto(s.Language.Code)
}
