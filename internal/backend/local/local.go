// Package local is the offline suggestion backend. It checks words against
// Hunspell-style dictionary bundles kept on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/dshills/spellmark/internal/logging"
	"github.com/dshills/spellmark/internal/spell"
)

// ShortMessage is attached to every suggestion from this backend.
const ShortMessage = "Misspelled word"

// RuleID identifies suggestions from this backend.
const RuleID = "LOCAL_DICTIONARY"

var wordPattern = regexp.MustCompile(`[\p{L}']+`)

// Settings are read again on every call.
type Settings struct {
	Dictionaries    []string
	Dir             string
	DownloadMissing bool
	DownloadURL     string
	MaxSuggestions  int
	MaxErrors       int
}

// Backend checks text against the configured bundles.
type Backend struct {
	settings   func() Settings
	httpClient *http.Client
	logger     *logging.Logger

	mu      sync.Mutex
	bundles map[string]*Bundle
	failed  map[string]error
	loading map[string]*sync.Mutex
}

// Option configures a Backend.
type Option func(*Backend)

// WithHTTPClient replaces the client used for dictionary downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *Backend) {
		b.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a backend. Bundles load lazily on first use.
func New(settings func() Settings, opts ...Option) *Backend {
	b := &Backend{
		settings:   settings,
		httpClient: &http.Client{},
		logger:     logging.NullLogger,
		bundles:    make(map[string]*Bundle),
		failed:     make(map[string]error),
		loading:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) options() Settings {
	return b.settings()
}

// Bundle returns the bundle for lang, loading it if needed. A failed load
// is remembered until Forget is called.
func (b *Backend) Bundle(ctx context.Context, lang string) (*Bundle, error) {
	b.mu.Lock()
	if bd, ok := b.bundles[lang]; ok {
		b.mu.Unlock()
		return bd, nil
	}
	if err, ok := b.failed[lang]; ok {
		b.mu.Unlock()
		return nil, err
	}
	lk, ok := b.loading[lang]
	if !ok {
		lk = &sync.Mutex{}
		b.loading[lang] = lk
	}
	b.mu.Unlock()

	lk.Lock()
	defer lk.Unlock()

	b.mu.Lock()
	if bd, ok := b.bundles[lang]; ok {
		b.mu.Unlock()
		return bd, nil
	}
	if err, ok := b.failed[lang]; ok {
		b.mu.Unlock()
		return nil, err
	}
	b.mu.Unlock()

	bd, err := b.loadBundle(ctx, lang)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", spell.ErrDictionaryMissing, lang, err)
		// A cancelled load is retried next time.
		if ctx.Err() == nil {
			b.failed[lang] = err
		}
		b.logger.Warn("dictionary %s unavailable: %v", lang, err)
		return nil, err
	}
	b.bundles[lang] = bd
	b.logger.Debug("dictionary %s loaded, %d words", lang, bd.Words())
	return bd, nil
}

// Forget drops every loaded bundle and every remembered failure.
func (b *Backend) Forget() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bundles = make(map[string]*Bundle)
	b.failed = make(map[string]error)
}

// Loaded returns the codes of the bundles currently in memory.
func (b *Backend) Loaded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.bundles))
	for code := range b.bundles {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}

// loadAll loads every configured bundle. Bundles that fail are skipped;
// the error is returned only when none loaded.
func (b *Backend) loadAll(ctx context.Context) ([]*Bundle, error) {
	var (
		out  []*Bundle
		errs []error
	)
	for _, lang := range b.options().Dictionaries {
		bd, err := b.Bundle(ctx, lang)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		out = append(out, bd)
	}
	if len(out) == 0 {
		if len(errs) == 0 {
			return nil, fmt.Errorf("%w: no dictionaries configured", spell.ErrDictionaryMissing)
		}
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Check flags every word that no loaded bundle knows. languages is ignored;
// all configured bundles are consulted.
func (b *Backend) Check(ctx context.Context, text string, languages []string) ([]spell.Suggestion, error) {
	bundles, err := b.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	limit := b.options().MaxSuggestions

	var out []spell.Suggestion
	for _, loc := range wordPattern.FindAllStringIndex(text, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		word := strings.Trim(text[loc[0]:loc[1]], "'")
		if word == "" || known(bundles, word) {
			continue
		}
		lead := len(text[loc[0]:loc[1]]) - len(strings.TrimLeft(text[loc[0]:loc[1]], "'"))
		start := utf8.RuneCountInString(text[:loc[0]+lead])
		out = append(out, spell.Suggestion{
			Offset:       start,
			Length:       utf8.RuneCountInString(word),
			Message:      word,
			ShortMessage: ShortMessage,
			Replacements: suggest(bundles, word, limit),
			Category:     spell.CategoryUnknownWord,
			Type:         spell.CategoryUnknownWord.String(),
			Rule:         RuleID,
		})
	}
	return out, nil
}

// Known reports whether word is in the bundle for lang.
func (b *Backend) Known(ctx context.Context, word, lang string) (bool, error) {
	bd, err := b.Bundle(ctx, lang)
	if err != nil {
		return false, err
	}
	return bd.IsCorrect(word), nil
}

// Languages lists the configured bundles with English display names.
func (b *Backend) Languages(ctx context.Context) ([]spell.Language, error) {
	var out []spell.Language
	for _, code := range b.options().Dictionaries {
		out = append(out, describe(code))
	}
	return out, nil
}

func describe(code string) spell.Language {
	lang := spell.Language{Name: code, Code: code, LongCode: code}
	tag, err := language.Parse(code)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	lang.Code = base.String()
	lang.LongCode = tag.String()
	if name := display.English.Tags().Name(tag); name != "" {
		lang.Name = name
	}
	return lang
}

func known(bundles []*Bundle, word string) bool {
	for _, bd := range bundles {
		if bd.IsCorrect(word) {
			return true
		}
	}
	return false
}

func suggest(bundles []*Bundle, word string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, bd := range bundles {
		for _, cand := range bd.Suggest(word, limit) {
			cand = matchCase(word, cand)
			if seen[cand] {
				continue
			}
			seen[cand] = true
			out = append(out, cand)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// matchCase gives cand the capitalisation pattern of word: all upper,
// leading capital, or unchanged.
func matchCase(word, cand string) string {
	first, _ := utf8.DecodeRuneInString(word)
	if !unicode.IsUpper(first) {
		return cand
	}
	if utf8.RuneCountInString(word) > 1 && strings.ToUpper(word) == word {
		return strings.ToUpper(cand)
	}
	r, size := utf8.DecodeRuneInString(cand)
	return string(unicode.ToUpper(r)) + cand[size:]
}
