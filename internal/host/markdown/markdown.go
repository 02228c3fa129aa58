// Package markdown is a Host backed by Markdown documents. Lists, list
// items and block quotes are containers; paragraphs and headings are
// leaves whose inline content is exposed as HTML markup. Code blocks, HTML
// blocks, tables and thematic breaks are not editable and are left out of
// the tree.
package markdown

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/dshills/spellmark/internal/host"
	"github.com/dshills/spellmark/internal/reconcile"
	"github.com/dshills/spellmark/internal/spell"
)

// DefaultEventBuffer is the capacity of the event channel.
const DefaultEventBuffer = 256

// Document is one loaded Markdown file.
type Document struct {
	ID   string
	Name string

	source []byte
	root   *node
	attrs  map[string]string
}

type node struct {
	id        string
	doc       *Document
	container bool
	children  []*node

	markup string
	dirty  bool

	// start and stop bound the leaf's inline source.
	start, stop int

	// prefix is repeated before every continuation line on export.
	prefix string
}

// Host holds any number of documents, one of which is current.
type Host struct {
	md goldmark.Markdown

	mu      sync.RWMutex
	docs    map[string]*Document
	blocks  map[string]*node
	current string

	// sendMu is held shared by senders and exclusively by Close, so the
	// event channel is never closed during a send.
	sendMu    sync.RWMutex
	events    chan host.Event
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Host.
type Option func(*Host)

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(h *Host) {
		h.events = make(chan host.Event, n)
	}
}

// New creates an empty host.
func New(opts ...Option) *Host {
	h := &Host{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		docs:   make(map[string]*Document),
		blocks: make(map[string]*node),
		events: make(chan host.Event, DefaultEventBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ host.Host = (*Host)(nil)

// Load parses source as a new document and makes it current.
func (h *Host) Load(name string, source []byte) (string, error) {
	doc := &Document{ID: uuid.NewString(), Name: name}
	if err := h.parse(doc, source); err != nil {
		return "", err
	}

	h.mu.Lock()
	h.docs[doc.ID] = doc
	h.register(doc.root)
	h.current = doc.ID
	h.mu.Unlock()

	h.emit(host.NewEvent(host.EventDocumentSwitched, doc.ID, ""))
	return doc.ID, nil
}

// Reload replaces a document's content. Every block of the old content is
// detached.
func (h *Host) Reload(documentID string, source []byte) error {
	h.mu.RLock()
	doc, ok := h.docs[documentID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, spell.ErrDetachedBlock)
	}

	fresh := &Document{ID: doc.ID, Name: doc.Name}
	if err := h.parse(fresh, source); err != nil {
		return err
	}

	h.mu.Lock()
	h.unregister(doc.root)
	doc.source = fresh.source
	doc.root = fresh.root
	doc.attrs = fresh.attrs
	h.relink(doc, doc.root)
	h.register(doc.root)
	current := h.current == doc.ID
	h.mu.Unlock()

	if current {
		h.emit(host.NewEvent(host.EventDocumentLoaded, doc.ID, ""))
	}
	return nil
}

// Switch makes another loaded document current.
func (h *Host) Switch(documentID string) error {
	h.mu.Lock()
	if _, ok := h.docs[documentID]; !ok {
		h.mu.Unlock()
		return fmt.Errorf("document %s: %w", documentID, spell.ErrDetachedBlock)
	}
	changed := h.current != documentID
	h.current = documentID
	h.mu.Unlock()

	if changed {
		h.emit(host.NewEvent(host.EventDocumentSwitched, documentID, ""))
	}
	return nil
}

// Edit replaces a leaf's markup the way a user edit would, and reports it.
func (h *Host) Edit(blockID, markup string) error {
	docID, err := h.replace(blockID, markup)
	if err != nil {
		return err
	}
	h.emit(host.NewEvent(host.EventBlockUpdated, docID, blockID))
	return nil
}

// SetAttrs merges attributes into a document.
func (h *Host) SetAttrs(documentID string, attrs map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, ok := h.docs[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, spell.ErrDetachedBlock)
	}
	if doc.attrs == nil {
		doc.attrs = make(map[string]string)
	}
	for k, v := range attrs {
		doc.attrs[k] = v
	}
	return nil
}

// Leaves returns the leaf block IDs of a document in document order.
func (h *Host) Leaves(documentID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	doc, ok := h.docs[documentID]
	if !ok {
		return nil
	}
	var out []string
	var walk func(n *node)
	walk = func(n *node) {
		for _, c := range n.children {
			if c.container {
				walk(c)
				continue
			}
			out = append(out, c.id)
		}
	}
	walk(doc.root)
	return out
}

// Close ends the event stream. Senders blocked on a full channel give up
// and later events are dropped.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.sendMu.Lock()
		close(h.events)
		h.sendMu.Unlock()
	})
}

// DocumentID implements host.Host.
func (h *Host) DocumentID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// ChildBlocks implements host.Host.
func (h *Host) ChildBlocks(id string) ([]host.Block, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n, ok := h.blocks[id]
	if doc, isDoc := h.docs[id]; isDoc {
		n, ok = doc.root, true
	}
	if !ok {
		return nil, fmt.Errorf("block %s: %w", id, spell.ErrDetachedBlock)
	}

	out := make([]host.Block, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, host.Block{ID: c.id, Container: c.container})
	}
	return out, nil
}

// BlockMarkup implements host.Host.
func (h *Host) BlockMarkup(id string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, err := h.leaf(id)
	if err != nil {
		return "", err
	}
	return n.markup, nil
}

// BlockText implements host.Host.
func (h *Host) BlockText(id string) (string, error) {
	markup, err := h.BlockMarkup(id)
	if err != nil {
		return "", err
	}
	return reconcile.PlainFromMarkup(markup), nil
}

// BlockRuns implements host.Host.
func (h *Host) BlockRuns(id string) ([]reconcile.Run, error) {
	markup, err := h.BlockMarkup(id)
	if err != nil {
		return nil, err
	}
	return reconcile.RunsFromMarkup(markup), nil
}

// ReplaceBlockContent implements host.Host. No event is emitted; the
// caller re-checks the block itself.
func (h *Host) ReplaceBlockContent(id, markup string) error {
	_, err := h.replace(id, markup)
	return err
}

// DocumentAttrs implements host.Host.
func (h *Host) DocumentAttrs(documentID string) (map[string]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	doc, ok := h.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, spell.ErrDetachedBlock)
	}
	out := make(map[string]string, len(doc.attrs))
	for k, v := range doc.attrs {
		out[k] = v
	}
	return out, nil
}

// Events implements host.Host.
func (h *Host) Events() <-chan host.Event {
	return h.events
}

// Markdown serialises a document. Unedited blocks keep their source bytes;
// edited blocks are converted back from markup.
func (h *Host) Markdown(documentID string) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	doc, ok := h.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, spell.ErrDetachedBlock)
	}

	var edits []*node
	var walk func(n *node)
	walk = func(n *node) {
		for _, c := range n.children {
			if c.container {
				walk(c)
			} else if c.dirty {
				edits = append(edits, c)
			}
		}
	}
	walk(doc.root)
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var out bytes.Buffer
	pos := 0
	for _, n := range edits {
		out.Write(doc.source[pos:n.start])
		text := markdownFromMarkup(n.markup)
		if n.prefix != "" {
			text = strings.ReplaceAll(text, "\n", "\n"+n.prefix)
		}
		out.WriteString(text)
		pos = n.stop
	}
	out.Write(doc.source[pos:])
	return out.Bytes(), nil
}

func (h *Host) replace(id, markup string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.leaf(id)
	if err != nil {
		return "", err
	}
	n.markup = markup
	n.dirty = true
	return n.doc.ID, nil
}

// leaf must be called with the lock held.
func (h *Host) leaf(id string) (*node, error) {
	n, ok := h.blocks[id]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", id, spell.ErrDetachedBlock)
	}
	if n.container {
		return nil, fmt.Errorf("block %s is a container", id)
	}
	return n, nil
}

func (h *Host) emit(ev host.Event) {
	h.sendMu.RLock()
	defer h.sendMu.RUnlock()
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *Host) register(n *node) {
	for _, c := range n.children {
		h.blocks[c.id] = c
		h.register(c)
	}
}

func (h *Host) unregister(n *node) {
	for _, c := range n.children {
		delete(h.blocks, c.id)
		h.unregister(c)
	}
}

func (h *Host) relink(doc *Document, n *node) {
	n.doc = doc
	for _, c := range n.children {
		h.relink(doc, c)
	}
}

// parse builds doc's tree from source.
func (h *Host) parse(doc *Document, source []byte) error {
	src := bytes.Clone(source)
	tree := h.md.Parser().Parse(text.NewReader(src))

	doc.source = src
	doc.attrs = attrsFromSource(src)
	doc.root = &node{id: doc.ID, doc: doc, container: true}

	children, err := h.build(doc, tree, src)
	if err != nil {
		return fmt.Errorf("parse %s: %w", doc.Name, err)
	}
	doc.root.children = children
	return nil
}

func (h *Host) build(doc *Document, parent ast.Node, src []byte) ([]*node, error) {
	var out []*node
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.Kind() {
		case ast.KindList, ast.KindListItem, ast.KindBlockquote:
			children, err := h.build(doc, c, src)
			if err != nil {
				return nil, err
			}
			out = append(out, &node{
				id:        uuid.NewString(),
				doc:       doc,
				container: true,
				children:  children,
			})
		case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock:
			lines := c.Lines()
			if lines.Len() == 0 {
				continue
			}
			markup, err := h.inline(c, src)
			if err != nil {
				return nil, err
			}
			first, last := lines.At(0), lines.At(lines.Len()-1)
			n := &node{
				id:     uuid.NewString(),
				doc:    doc,
				markup: markup,
				start:  first.Start,
				stop:   last.Stop,
			}
			if lines.Len() > 1 {
				second := lines.At(1)
				n.prefix = string(src[lineStart(src, second.Start):second.Start])
			}
			out = append(out, n)
		}
	}
	return out, nil
}

// inline renders the inline children of a leaf as HTML.
func (h *Host) inline(n ast.Node, src []byte) (string, error) {
	var buf bytes.Buffer
	r := h.md.Renderer()
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if err := r.Render(&buf, src, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func lineStart(src []byte, i int) int {
	return bytes.LastIndexByte(src[:i], '\n') + 1
}
