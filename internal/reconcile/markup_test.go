package reconcile

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/spellmark/internal/spell"
)

func TestRichOffsetForPlain_SkipsTags(t *testing.T) {
	markup := "ab<tag>cd</tag>ef"

	idx := RichOffsetForPlain(markup, 3)
	assert.Equal(t, 8, idx)
	assert.Equal(t, byte('d'), markup[idx])
	assert.Equal(t, "abc", PlainFromMarkup(markup[:idx]))

	// Stops before a tag that follows the target.
	assert.Equal(t, 2, RichOffsetForPlain(markup, 2))
	assert.Equal(t, 0, RichOffsetForPlain(markup, 0))
	assert.Equal(t, len(markup), RichOffsetForPlain(markup, 100))
}

func TestRichOffsetForPlain_AttributeWithAngleBracket(t *testing.T) {
	markup := `<a title="x>y">link</a> tail`

	idx := RichOffsetForPlain(markup, 1)
	assert.Equal(t, strings.Index(markup, "link")+1, idx)
	assert.Equal(t, "link tail", PlainFromMarkup(markup))
}

func TestRichOffsetForPlain_Entities(t *testing.T) {
	markup := "a&amp;b"

	assert.Equal(t, 3, MarkupPlainLength(markup))
	assert.Equal(t, "a&b", PlainFromMarkup(markup))
	assert.Equal(t, 1, RichOffsetForPlain(markup, 1))
	assert.Equal(t, 6, RichOffsetForPlain(markup, 2))
}

func TestRichOffsetForPlain_UnterminatedEntities(t *testing.T) {
	tests := []struct {
		markup string
		plain  string
		// offsets[k] is the markup index of plain offset k.
		offsets []int
	}{
		{"a&ampb", "a&b", []int{0, 1, 5, 6}},
		{"x &lt y", "x < y", []int{0, 1, 2, 5, 6, 7}},
		{"&#65x", "Ax", []int{0, 4, 5}},
		{"&copy2024", "©2024", []int{0, 5, 6, 7, 8, 9}},
		{"&notit", "¬it", []int{0, 4, 5, 6}},
		{"AT&T", "AT&T", []int{0, 1, 2, 3, 4}},
		{"&zzz;", "&zzz;", []int{0, 1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.plain, PlainFromMarkup(tt.markup), tt.markup)
		assert.Equal(t, utf8.RuneCountInString(tt.plain), MarkupPlainLength(tt.markup), tt.markup)
		for k, want := range tt.offsets {
			assert.Equal(t, want, RichOffsetForPlain(tt.markup, k), "%q at %d", tt.markup, k)
		}
	}
}

func TestRichSpanForPlain_UnterminatedEntity(t *testing.T) {
	markup := "Ths &amp teh"

	start, end, err := RichSpanForPlain(markup, 6, 9)
	require.NoError(t, err)
	assert.Equal(t, "teh", markup[start:end])
}

func TestRichOffsetForPlain_Comments(t *testing.T) {
	markup := "x<!-- note -->y"

	assert.Equal(t, 1, RichOffsetForPlain(markup, 1))
	start, end, err := RichSpanForPlain(markup, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "y", markup[start:end])
}

func TestRichOffsetForPlain_MultiByte(t *testing.T) {
	markup := "é<b>ü</b>"

	assert.Equal(t, 2, RichOffsetForPlain(markup, 1))
	start, end, err := RichSpanForPlain(markup, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "ü", markup[start:end])
}

func TestRichOffsetForPlain_PrefixProperty(t *testing.T) {
	samples := []string{
		"plain text only",
		"ab<tag>cd</tag>ef",
		`<p>Ths is a <em>testt</em>.</p>`,
		`<a title="x>y">link</a> and <b>bold &amp; bright</b>`,
		"x<!-- note -->y<br>z",
		"Grüße <i>aus</i> Köln",
		"a&ampb <b>&lt</b> &#65x &copy2024",
	}
	for _, markup := range samples {
		n := MarkupPlainLength(markup)
		assert.Equal(t, utf8.RuneCountInString(PlainFromMarkup(markup)), n, markup)
		for k := 0; k <= n; k++ {
			idx := RichOffsetForPlain(markup, k)
			got := utf8.RuneCountInString(PlainFromMarkup(markup[:idx]))
			assert.Equal(t, k, got, "%q at %d", markup, k)
		}
	}
}

func TestRichSpanForPlain(t *testing.T) {
	markup := "ab<tag>cd</tag>ef"

	start, end, err := RichSpanForPlain(markup, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 7, start)
	assert.Equal(t, 9, end)
	assert.Equal(t, "cd", markup[start:end])

	replaced := markup[:start] + "XY" + markup[end:]
	assert.Equal(t, "ab<tag>XY</tag>ef", replaced)
}

func TestRichSpanForPlain_Invalid(t *testing.T) {
	markup := "ab<tag>cd</tag>ef"

	_, _, err := RichSpanForPlain(markup, 3, 10)
	assert.ErrorIs(t, err, spell.ErrInvalidRange)

	_, _, err = RichSpanForPlain(markup, -1, 2)
	assert.ErrorIs(t, err, spell.ErrInvalidRange)

	_, _, err = RichSpanForPlain(markup, 4, 2)
	assert.ErrorIs(t, err, spell.ErrInvalidRange)
}

func TestRunsFromMarkup(t *testing.T) {
	markup := `<p>Hello <code>x</code> <span data-type="inline-math">y</span></p>`
	runs := RunsFromMarkup(markup)

	require.Len(t, runs, 4)
	assert.Equal(t, "Hello ", runs[0].Text)
	assert.Equal(t, []Element{{Tag: "p"}}, runs[0].Path)
	assert.Equal(t, []Element{{Tag: "p"}, {Tag: "code"}}, runs[1].Path)
	assert.Equal(t, Element{Tag: "span", Type: "inline-math"}, runs[3].Path[1])

	set := ElementSet("code", "inline-math")
	assert.False(t, RangeHasElement(runs, 0, 5, set))
	assert.True(t, RangeHasElement(runs, 5, 7, set))
	assert.False(t, RangeHasElement(runs, 7, 8, set))
	assert.True(t, RangeHasElement(runs, 8, 9, set))
	assert.False(t, RangeHasElement(runs, 8, 9, nil))
}
