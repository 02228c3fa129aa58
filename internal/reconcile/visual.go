package reconcile

import (
	"github.com/dshills/spellmark/internal/spell"
)

// DefaultMaxWidthPerChar is the widest a rectangle may be per underlined
// character before it is suppressed. A single plain character can stand for
// a wide embedded element such as an inline image; underlining those would
// draw a line under the whole element.
const DefaultMaxWidthPerChar = 16

// Rect is an axis-aligned rectangle in renderer coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Right returns the right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Point is a visual endpoint: a rune offset inside one run. Offset may equal
// the run length to address the position after the run's last character.
type Point struct {
	Run    int
	Offset int
}

// Measurer supplies geometry for the runs of one block.
type Measurer interface {
	// RunRects returns the rectangles covering runes [start,end) of the
	// given run. A run that wraps yields one rectangle per visual line.
	RunRects(run, start, end int) []Rect
}

// PlainRangeToVisual returns the rectangles covering the plain range
// [start,end). Each run the range touches contributes its own rectangles.
// Rectangles wider than maxWidthPerChar times the range length are dropped;
// a non-positive maxWidthPerChar disables that guard.
func PlainRangeToVisual(runs []Run, m Measurer, start, end int, maxWidthPerChar float64) ([]Rect, error) {
	total := PlainLength(runs)
	if start < 0 || start >= end || end > total {
		return nil, &spell.RangeError{Start: start, End: end, Limit: total}
	}

	limit := maxWidthPerChar * float64(end-start)

	var rects []Rect
	acc := 0
	for i, r := range runs {
		n := r.Len()
		rs, re := acc, acc+n
		acc = re
		if re <= start {
			continue
		}
		if rs >= end {
			break
		}
		from := max(start, rs) - rs
		to := min(end, re) - rs
		if from >= to {
			continue
		}
		for _, rect := range m.RunRects(i, from, to) {
			if maxWidthPerChar > 0 && rect.W > limit {
				continue
			}
			rects = append(rects, rect)
		}
	}
	return rects, nil
}

// VisualRangeToPlain maps a visual endpoint back to a plain offset: the
// plain length of everything from the start of the block up to the point.
func VisualRangeToPlain(runs []Run, p Point) (int, error) {
	total := PlainLength(runs)
	if p.Run < 0 || p.Run > len(runs) || p.Offset < 0 {
		return 0, &spell.RangeError{Start: p.Offset, End: p.Offset, Limit: total}
	}
	if p.Run == len(runs) {
		if p.Offset != 0 {
			return 0, &spell.RangeError{Start: p.Offset, End: p.Offset, Limit: total}
		}
		return total, nil
	}
	if p.Offset > runs[p.Run].Len() {
		return 0, &spell.RangeError{Start: p.Offset, End: p.Offset, Limit: runs[p.Run].Len()}
	}

	offset := 0
	for _, r := range runs[:p.Run] {
		offset += r.Len()
	}
	return offset + p.Offset, nil
}

// PlainToPoint maps a plain offset to the visual endpoint where the
// character at that offset starts. Offsets on a run boundary resolve to
// the start of the following non-empty run; the block end resolves to the
// end of the last run.
func PlainToPoint(runs []Run, plain int) (Point, error) {
	total := PlainLength(runs)
	if plain < 0 || plain > total {
		return Point{}, &spell.RangeError{Start: plain, End: plain, Limit: total}
	}
	acc := 0
	for i, r := range runs {
		n := r.Len()
		if plain < acc+n {
			return Point{Run: i, Offset: plain - acc}, nil
		}
		acc += n
	}
	if len(runs) == 0 {
		return Point{}, nil
	}
	last := len(runs) - 1
	return Point{Run: last, Offset: runs[last].Len()}, nil
}
