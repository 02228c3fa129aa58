package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/host"
	"github.com/dshills/spellmark/internal/reconcile"
	"github.com/dshills/spellmark/internal/spell"
)

// fakeHost is a flat or nested block tree held in memory.
type fakeHost struct {
	mu       sync.Mutex
	current  string
	children map[string][]host.Block
	markup   map[string]string
	attrs    map[string]map[string]string
	events   chan host.Event

	// holds pause ChildBlocks for a container until released.
	holds map[string]*hold
}

type hold struct {
	entered chan struct{}
	release chan struct{}
}

func newFakeHost(doc string, markups ...string) (*fakeHost, []string) {
	h := &fakeHost{
		current:  doc,
		children: make(map[string][]host.Block),
		markup:   make(map[string]string),
		attrs:    make(map[string]map[string]string),
		events:   make(chan host.Event, 16),
		holds:    make(map[string]*hold),
	}
	ids := h.addDoc(doc, markups...)
	return h, ids
}

func (h *fakeHost) addDoc(doc string, markups ...string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, len(markups))
	for i, m := range markups {
		id := fmt.Sprintf("%s-b%d", doc, i)
		ids[i] = id
		h.markup[id] = m
		h.children[doc] = append(h.children[doc], host.Block{ID: id})
	}
	return ids
}

func (h *fakeHost) setAttrs(doc string, attrs map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs[doc] = attrs
}

// detach removes a leaf from the tree.
func (h *fakeHost) detach(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.markup, id)
	for parent, kids := range h.children {
		for i, k := range kids {
			if k.ID == id {
				h.children[parent] = append(kids[:i:i], kids[i+1:]...)
				break
			}
		}
	}
}

// ghost removes a leaf's content but leaves it listed in the tree.
func (h *fakeHost) ghost(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.markup, id)
}

func (h *fakeHost) switchTo(doc string) {
	h.mu.Lock()
	h.current = doc
	h.mu.Unlock()
	h.events <- host.NewEvent(host.EventDocumentSwitched, doc, "")
}

func (h *fakeHost) DocumentID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// holdChildren makes the next ChildBlocks calls for id wait for release.
// entered receives once a call is waiting.
func (h *fakeHost) holdChildren(id string) (entered <-chan struct{}, release func()) {
	hd := &hold{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h.mu.Lock()
	h.holds[id] = hd
	h.mu.Unlock()
	var once sync.Once
	return hd.entered, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.holds, id)
			h.mu.Unlock()
			close(hd.release)
		})
	}
}

func (h *fakeHost) ChildBlocks(id string) ([]host.Block, error) {
	h.mu.Lock()
	hd := h.holds[id]
	h.mu.Unlock()
	if hd != nil {
		select {
		case hd.entered <- struct{}{}:
		default:
		}
		<-hd.release
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	kids, ok := h.children[id]
	if !ok {
		if _, leaf := h.markup[id]; leaf {
			return nil, nil
		}
		return nil, spell.ErrDetachedBlock
	}
	return append([]host.Block(nil), kids...), nil
}

func (h *fakeHost) BlockMarkup(id string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.markup[id]
	if !ok {
		return "", spell.ErrDetachedBlock
	}
	return m, nil
}

func (h *fakeHost) BlockText(id string) (string, error) {
	m, err := h.BlockMarkup(id)
	if err != nil {
		return "", err
	}
	return reconcile.PlainFromMarkup(m), nil
}

func (h *fakeHost) BlockRuns(id string) ([]reconcile.Run, error) {
	m, err := h.BlockMarkup(id)
	if err != nil {
		return nil, err
	}
	return reconcile.RunsFromMarkup(m), nil
}

func (h *fakeHost) ReplaceBlockContent(id, markup string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.markup[id]; !ok {
		return spell.ErrDetachedBlock
	}
	h.markup[id] = markup
	return nil
}

func (h *fakeHost) DocumentAttrs(doc string) (map[string]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string)
	for k, v := range h.attrs[doc] {
		out[k] = v
	}
	return out, nil
}

func (h *fakeHost) Events() <-chan host.Event {
	return h.events
}

var wordRE = regexp.MustCompile(`[\p{L}']+`)

// wordChecker flags every word missing from known. Replacements come from
// fixes. It tracks how many checks run at once.
type wordChecker struct {
	known map[string]bool
	fixes map[string][]string
	delay time.Duration
	err   error

	// hold, when set, parks matching checks until gate is closed.
	hold func(text string) bool
	held chan string
	gate chan struct{}

	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64

	mu    sync.Mutex
	texts []string
}

func newWordChecker() *wordChecker {
	return &wordChecker{
		known: map[string]bool{"this": true, "is": true, "a": true, "test": true, "fine": true},
		fixes: map[string][]string{"ths": {"This", "Thus"}, "testt": {"test"}},
	}
}

func (c *wordChecker) Check(ctx context.Context, text string, languages []string) ([]spell.Suggestion, error) {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		old := c.peak.Load()
		if n <= old || c.peak.CompareAndSwap(old, n) {
			break
		}
	}

	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()

	if c.hold != nil && c.hold(text) {
		c.held <- text
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	var out []spell.Suggestion
	for _, loc := range wordRE.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		lower := strings.ToLower(word)
		if c.known[lower] {
			continue
		}
		out = append(out, spell.Suggestion{
			Offset:       utf8.RuneCountInString(text[:loc[0]]),
			Length:       utf8.RuneCountInString(word),
			Message:      word,
			ShortMessage: "Misspelled word",
			Replacements: c.fixes[lower],
			Category:     spell.CategoryUnknownWord,
			Type:         "UnknownWord",
		})
	}
	return out, nil
}

// holdWhen parks every check whose text matches until release is called.
// Parked texts are sent on the returned channel. Call before checks run.
func (c *wordChecker) holdWhen(match func(text string) bool) (held <-chan string, release func()) {
	c.hold = match
	c.held = make(chan string, 64)
	c.gate = make(chan struct{})
	var once sync.Once
	return c.held, func() { once.Do(func() { close(c.gate) }) }
}

// waitHeld receives one parked text or fails after a second.
func waitHeld(t *testing.T, held <-chan string) string {
	t.Helper()
	select {
	case text := <-held:
		return text
	case <-time.After(time.Second):
		t.Fatal("no check was parked")
		return ""
	}
}

func (c *wordChecker) Languages(ctx context.Context) ([]spell.Language, error) {
	return []spell.Language{{Name: "English", Code: "en", LongCode: "en-US"}}, nil
}

// memDict is an in-memory Dictionary.
type memDict struct {
	mu    sync.Mutex
	words map[string]bool
}

func (d *memDict) Contains(word string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.words[word]
}

func (d *memDict) Add(ctx context.Context, words ...string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.words == nil {
		d.words = make(map[string]bool)
	}
	added := false
	for _, w := range words {
		if !d.words[w] {
			d.words[w] = true
			added = true
		}
	}
	return added, nil
}

// recordNotices collects notices.
type recordNotices struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordNotices) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordNotices) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func testSettings(mutate func(*config.Config)) *config.Store {
	cfg := config.Default()
	cfg.General.CustomDictionary = nil
	cfg.General.ExperimentalCorrect = true
	if mutate != nil {
		mutate(cfg)
	}
	return config.NewStore(cfg)
}
