// Package backend routes checks to the networked or the local suggestion
// backend. The choice is made on every call from the live settings, so
// switching to offline mode applies to the next check.
package backend

import (
	"context"
	"fmt"

	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/spell"
)

// Checker produces suggestions for plain text.
type Checker interface {
	// Check returns the suggestions for text. languages is a hint; the
	// first entry is the primary language. An empty result means no issues.
	Check(ctx context.Context, text string, languages []string) ([]spell.Suggestion, error)

	// Languages lists the languages the checker supports.
	Languages(ctx context.Context) ([]spell.Language, error)
}

// VariantKind names a backend arm.
type VariantKind uint8

const (
	// VariantOnline is the networked rule-based backend.
	VariantOnline VariantKind = iota

	// VariantOffline is the local dictionary backend.
	VariantOffline
)

// String returns the kind name.
func (k VariantKind) String() string {
	if k == VariantOffline {
		return "offline"
	}
	return "online"
}

// Variant is the backend chosen for one call.
type Variant struct {
	Kind    VariantKind
	Checker Checker
}

// Adapter holds both arms and selects one per call.
type Adapter struct {
	settings *config.Store
	online   Checker
	offline  Checker
}

// NewAdapter creates an adapter. Either arm may be nil; selecting a nil
// arm fails the call.
func NewAdapter(settings *config.Store, online, offline Checker) *Adapter {
	return &Adapter{settings: settings, online: online, offline: offline}
}

// Variant resolves the arm for the current settings.
func (a *Adapter) Variant() Variant {
	if a.settings.Get().General.Offline {
		return Variant{Kind: VariantOffline, Checker: a.offline}
	}
	return Variant{Kind: VariantOnline, Checker: a.online}
}

// Check runs text through the active arm.
func (a *Adapter) Check(ctx context.Context, text string, languages []string) ([]spell.Suggestion, error) {
	v := a.Variant()
	if v.Checker == nil {
		return nil, unavailable(v.Kind)
	}
	return v.Checker.Check(ctx, text, languages)
}

// Languages lists the languages of the active arm.
func (a *Adapter) Languages(ctx context.Context) ([]spell.Language, error) {
	v := a.Variant()
	if v.Checker == nil {
		return nil, unavailable(v.Kind)
	}
	return v.Checker.Languages(ctx)
}

func unavailable(kind VariantKind) error {
	if kind == VariantOffline {
		return fmt.Errorf("%w: no local backend", spell.ErrDictionaryMissing)
	}
	return &spell.BackendError{Backend: kind.String(), Err: spell.ErrBackendUnavailable}
}
