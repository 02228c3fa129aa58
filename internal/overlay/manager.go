package overlay

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/spellmark/internal/reconcile"
)

// LayoutFunc produces the geometry for a block's runs.
type LayoutFunc func(documentID, blockID string, runs []reconcile.Run) reconcile.Measurer

// Config configures a Manager.
type Config struct {
	// Layout measures runs. Nil lays runs out on a single line of unit cells.
	Layout LayoutFunc

	// OnChange is called after a handle's marks change.
	OnChange func(blockID string)
}

// DefaultConfig returns a Manager configuration with unit-cell layout.
func DefaultConfig() Config {
	return Config{}
}

// Manager is an in-memory Renderer. It keeps every live handle and its
// marks so a front end can draw them, and so tests can inspect them.
type Manager struct {
	mu sync.RWMutex

	// handles contains live handles keyed by ID.
	handles map[string]*handle

	// order lists handle IDs in attach order.
	order []string

	config Config
}

// NewManager creates a new overlay manager.
func NewManager(config Config) *Manager {
	return &Manager{
		handles: make(map[string]*handle),
		config:  config,
	}
}

// Attach implements Renderer.
func (m *Manager) Attach(documentID, blockID string) (Handle, error) {
	h := &handle{
		id:         uuid.NewString(),
		documentID: documentID,
		blockID:    blockID,
		manager:    m,
	}

	m.mu.Lock()
	m.handles[h.id] = h
	m.order = append(m.order, h.id)
	m.mu.Unlock()

	return h, nil
}

// Get returns a live handle by ID.
func (m *Manager) Get(id string) (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[id]
	if !ok {
		return nil, false
	}
	return h, true
}

// Count returns the number of live handles.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// Blocks returns the block IDs with a live handle, in attach order.
func (m *Manager) Blocks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.handles[id].blockID)
	}
	return out
}

// Marks returns the marks drawn for a block, or nil when the block has no
// live handle.
func (m *Manager) Marks(blockID string) []Mark {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		h := m.handles[id]
		if h.blockID != blockID {
			continue
		}
		h.mu.Lock()
		out := make([]Mark, len(h.marks))
		copy(out, h.marks)
		h.mu.Unlock()
		return out
	}
	return nil
}

// Clear destroys every handle.
func (m *Manager) Clear() {
	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[string]*handle)
	m.order = nil
	m.mu.Unlock()

	for _, h := range handles {
		h.mu.Lock()
		h.destroyed = true
		h.marks = nil
		h.mu.Unlock()
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.handles, id)
	for i, hid := range m.order {
		if hid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Manager) changed(blockID string) {
	if m.config.OnChange != nil {
		m.config.OnChange(blockID)
	}
}

// handle is the Manager's Handle implementation.
type handle struct {
	id         string
	documentID string
	blockID    string
	manager    *Manager

	mu        sync.Mutex
	marks     []Mark
	destroyed bool
}

func (h *handle) ID() string      { return h.id }
func (h *handle) BlockID() string { return h.blockID }

func (h *handle) Measurer(runs []reconcile.Run) reconcile.Measurer {
	if layout := h.manager.config.Layout; layout != nil {
		return layout(h.documentID, h.blockID, runs)
	}
	return reconcile.Monospace{Runs: runs, CharWidth: 1, LineHeight: 1}
}

func (h *handle) Clear() {
	h.mu.Lock()
	if h.destroyed || len(h.marks) == 0 {
		h.mu.Unlock()
		return
	}
	h.marks = nil
	h.mu.Unlock()
	h.manager.changed(h.blockID)
}

func (h *handle) Underline(suggestion int, rects []reconcile.Rect) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrHandleDestroyed
	}
	for _, r := range rects {
		h.marks = append(h.marks, Mark{Suggestion: suggestion, Rect: r})
	}
	h.mu.Unlock()
	if len(rects) > 0 {
		h.manager.changed(h.blockID)
	}
	return nil
}

func (h *handle) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	h.marks = nil
	h.mu.Unlock()

	h.manager.remove(h.id)
	h.manager.changed(h.blockID)
}
