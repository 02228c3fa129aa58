// Package term draws blocks and their suggestion underlines on a terminal
// screen. Blocks are stacked top to bottom in attach order, wrapped at the
// screen width, with one blank line between them.
package term

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"github.com/dshills/spellmark/internal/overlay"
	"github.com/dshills/spellmark/internal/reconcile"
)

// Styles used when drawing.
var (
	TextStyle      = tcell.StyleDefault
	UnderlineStyle = tcell.StyleDefault.Foreground(tcell.ColorRed).Underline(true)
	StatusStyle    = tcell.StyleDefault.Reverse(true)
)

// Renderer implements overlay.Renderer on a tcell screen.
type Renderer struct {
	screen tcell.Screen

	mu     sync.Mutex
	blocks []*handle
	status string

	// top is the first screen row of each drawn block, keyed by handle ID.
	top map[string]int
}

// New creates a renderer drawing on screen. The screen must be initialised.
func New(screen tcell.Screen) *Renderer {
	return &Renderer{screen: screen, top: make(map[string]int)}
}

var _ overlay.Renderer = (*Renderer)(nil)

// Attach implements overlay.Renderer.
func (r *Renderer) Attach(documentID, blockID string) (overlay.Handle, error) {
	h := &handle{
		id:         uuid.NewString(),
		documentID: documentID,
		blockID:    blockID,
		r:          r,
	}
	r.mu.Lock()
	r.blocks = append(r.blocks, h)
	r.mu.Unlock()
	return h, nil
}

// SetStatus sets the text of the bottom line.
func (r *Renderer) SetStatus(s string) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	w, _ := r.screen.Size()
	if w < 1 {
		return 1
	}
	return w
}

// Draw repaints the screen.
func (r *Renderer) Draw() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.screen.Clear()
	width, height := r.screen.Size()
	y := 0
	for _, h := range r.blocks {
		runs, marks := h.snapshot()
		r.top[h.id] = y
		l := newLayout(runs, width)
		for i, run := range runs {
			for j, ch := range []rune(run.Text) {
				c := l.cells[i][j]
				if row := y + c.line; row < height-1 {
					r.screen.SetContent(c.col, row, ch, nil, TextStyle)
				}
			}
		}
		for _, m := range marks {
			for row := int(m.Rect.Y); row < int(m.Rect.Y+m.Rect.H); row++ {
				for col := int(m.Rect.X); col < int(m.Rect.X+m.Rect.W); col++ {
					if y+row >= height-1 {
						continue
					}
					ch, _, _, _ := r.screen.GetContent(col, y+row)
					r.screen.SetContent(col, y+row, ch, nil, UnderlineStyle)
				}
			}
		}
		y += l.lines + 1
	}
	if r.status != "" && height > 0 {
		col := 0
		for _, ch := range r.status {
			if col >= width {
				break
			}
			r.screen.SetContent(col, height-1, ch, nil, StatusStyle)
			col += runewidth.RuneWidth(ch)
		}
	}
	r.screen.Show()
}

// Hit maps a screen cell to a block and a visual point inside it.
func (r *Renderer) Hit(x, y int) (string, reconcile.Point, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	width, _ := r.screen.Size()
	for _, h := range r.blocks {
		top, ok := r.top[h.id]
		if !ok || y < top {
			continue
		}
		runs, _ := h.snapshot()
		l := newLayout(runs, width)
		if y >= top+l.lines {
			continue
		}
		if p, ok := l.pointAt(x, y-top); ok {
			return h.blockID, p, true
		}
	}
	return "", reconcile.Point{}, false
}

func (r *Renderer) remove(h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.blocks {
		if b == h {
			r.blocks = append(r.blocks[:i], r.blocks[i+1:]...)
			break
		}
	}
	delete(r.top, h.id)
}

type handle struct {
	id         string
	documentID string
	blockID    string
	r          *Renderer

	mu        sync.Mutex
	runs      []reconcile.Run
	marks     []overlay.Mark
	destroyed bool
}

func (h *handle) ID() string      { return h.id }
func (h *handle) BlockID() string { return h.blockID }

// Measurer records the runs for drawing and measures them in cells.
func (h *handle) Measurer(runs []reconcile.Run) reconcile.Measurer {
	h.mu.Lock()
	h.runs = runs
	h.mu.Unlock()
	return newLayout(runs, h.r.Width())
}

func (h *handle) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.marks = nil
}

func (h *handle) Underline(suggestion int, rects []reconcile.Rect) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return overlay.ErrHandleDestroyed
	}
	for _, rc := range rects {
		h.marks = append(h.marks, overlay.Mark{Suggestion: suggestion, Rect: rc})
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
	h.r.remove(h)
}

func (h *handle) snapshot() ([]reconcile.Run, []overlay.Mark) {
	h.mu.Lock()
	defer h.mu.Unlock()
	marks := make([]overlay.Mark, len(h.marks))
	copy(marks, h.marks)
	return h.runs, marks
}

type cell struct {
	col, line, width int
}

// layout places every rune of a block in terminal cells. Wide runes take
// two cells and never straddle a line end.
type layout struct {
	cells [][]cell
	lines int
}

func newLayout(runs []reconcile.Run, width int) *layout {
	if width < 1 {
		width = 1
	}
	l := &layout{cells: make([][]cell, len(runs)), lines: 1}
	col, line := 0, 0
	for i, run := range runs {
		rs := []rune(run.Text)
		l.cells[i] = make([]cell, len(rs))
		for j, ch := range rs {
			if ch == '\n' {
				l.cells[i][j] = cell{col: col, line: line}
				col, line = 0, line+1
				continue
			}
			w := runewidth.RuneWidth(ch)
			if col+w > width && col > 0 {
				col, line = 0, line+1
			}
			l.cells[i][j] = cell{col: col, line: line, width: w}
			col += w
		}
	}
	l.lines = line + 1
	return l
}

// RunRects implements reconcile.Measurer.
func (l *layout) RunRects(run, start, end int) []reconcile.Rect {
	if run < 0 || run >= len(l.cells) {
		return nil
	}
	cells := l.cells[run]
	if start < 0 {
		start = 0
	}
	if end > len(cells) {
		end = len(cells)
	}
	var out []reconcile.Rect
	for i := start; i < end; i++ {
		c := cells[i]
		if c.width == 0 {
			continue
		}
		if n := len(out); n > 0 && int(out[n-1].Y) == c.line && int(out[n-1].Right()) == c.col {
			out[n-1].W += float64(c.width)
			continue
		}
		out = append(out, reconcile.Rect{X: float64(c.col), Y: float64(c.line), W: float64(c.width), H: 1})
	}
	return out
}

func (l *layout) pointAt(x, y int) (reconcile.Point, bool) {
	for i, cells := range l.cells {
		for j, c := range cells {
			if c.line == y && x >= c.col && x < c.col+max(c.width, 1) {
				return reconcile.Point{Run: i, Offset: j}, true
			}
		}
	}
	return reconcile.Point{}, false
}
