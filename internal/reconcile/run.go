package reconcile

import (
	"strings"
	"unicode/utf8"
)

// Element is one entry of a run's element path.
type Element struct {
	// Tag is the lower-case element name.
	Tag string

	// Type is the element's data-type attribute, if any.
	Type string
}

// Matches reports whether the element's tag or type is in set.
func (e Element) Matches(set map[string]bool) bool {
	if set[e.Tag] {
		return true
	}
	return e.Type != "" && set[e.Type]
}

// Run is a contiguous piece of rendered text.
type Run struct {
	Text string

	// Path lists enclosing elements, outermost first.
	Path []Element
}

// Len returns the run length in runes.
func (r Run) Len() int {
	return utf8.RuneCountInString(r.Text)
}

// InElement reports whether any element on the path matches set.
func (r Run) InElement(set map[string]bool) bool {
	for _, e := range r.Path {
		if e.Matches(set) {
			return true
		}
	}
	return false
}

// PlainText concatenates the text of all runs.
func PlainText(runs []Run) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// PlainLength returns the total rune count of all runs.
func PlainLength(runs []Run) int {
	n := 0
	for _, r := range runs {
		n += r.Len()
	}
	return n
}

// RangeHasElement reports whether any run overlapping the plain range
// [start,end) sits inside an element whose tag or type is in set.
func RangeHasElement(runs []Run, start, end int, set map[string]bool) bool {
	if len(set) == 0 || start >= end {
		return false
	}
	acc := 0
	for _, r := range runs {
		n := r.Len()
		rs, re := acc, acc+n
		acc = re
		if re <= start || n == 0 {
			continue
		}
		if rs >= end {
			break
		}
		if r.InElement(set) {
			return true
		}
	}
	return false
}

// ElementSet builds a lookup set from names.
func ElementSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = true
		}
	}
	return set
}
