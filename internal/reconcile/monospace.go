package reconcile

// Monospace measures runs laid out on a fixed grid: every rune takes one
// cell of CharWidth by LineHeight, runs follow each other without gaps and
// lines wrap after Columns cells. A zero Columns never wraps.
type Monospace struct {
	Runs       []Run
	CharWidth  float64
	LineHeight float64
	Columns    int

	// Origin offsets every rectangle.
	OriginX, OriginY float64
}

// RunRects implements Measurer.
func (m Monospace) RunRects(run, start, end int) []Rect {
	if run < 0 || run >= len(m.Runs) || start >= end {
		return nil
	}
	base := 0
	for _, r := range m.Runs[:run] {
		base += r.Len()
	}
	from, to := base+start, base+end

	var rects []Rect
	for from < to {
		col, line := m.cell(from)
		n := to - from
		if m.Columns > 0 && col+n > m.Columns {
			n = m.Columns - col
		}
		rects = append(rects, Rect{
			X: m.OriginX + float64(col)*m.CharWidth,
			Y: m.OriginY + float64(line)*m.LineHeight,
			W: float64(n) * m.CharWidth,
			H: m.LineHeight,
		})
		from += n
	}
	return rects
}

// PointAt maps a coordinate to the visual endpoint under it. The second
// result is false when the coordinate is outside the text.
func (m Monospace) PointAt(x, y float64) (Point, bool) {
	if m.CharWidth <= 0 || m.LineHeight <= 0 {
		return Point{}, false
	}
	col := int((x - m.OriginX) / m.CharWidth)
	line := int((y - m.OriginY) / m.LineHeight)
	if col < 0 || line < 0 || (m.Columns > 0 && col >= m.Columns) {
		return Point{}, false
	}
	plain := col
	if m.Columns > 0 {
		plain = line*m.Columns + col
	} else if line > 0 {
		return Point{}, false
	}
	if plain >= PlainLength(m.Runs) {
		return Point{}, false
	}
	p, err := PlainToPoint(m.Runs, plain)
	return p, err == nil
}

func (m Monospace) cell(plain int) (col, line int) {
	if m.Columns <= 0 {
		return plain, 0
	}
	return plain % m.Columns, plain / m.Columns
}
