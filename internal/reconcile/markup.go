package reconcile

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/dshills/spellmark/internal/spell"
)

// maxEntityLen bounds the scan for the terminating ';' of a character
// reference.
const maxEntityLen = 32

// RichOffsetForPlain returns the byte index into markup that corresponds to
// the plain offset. Markup and plain cursors advance together over text;
// whenever the markup cursor sits on a tag, comment or doctype, the whole
// token is consumed without advancing the plain cursor. The walk stops as
// soon as the plain cursor reaches plainOffset, so tags that follow the
// target are not consumed. A character reference counts as the characters
// it decodes to. Offsets past the end clamp to len(markup).
func RichOffsetForPlain(markup string, plainOffset int) int {
	idx, _ := richOffset(markup, plainOffset, false)
	return idx
}

// RichSpanForPlain returns the byte span [start,end) of markup holding the
// plain range [plainStart,plainEnd). The start boundary also consumes tags
// opening at the boundary, so the span begins inside the element that holds
// the first character instead of before its opening tag.
func RichSpanForPlain(markup string, plainStart, plainEnd int) (int, int, error) {
	if plainStart < 0 || plainStart > plainEnd {
		return 0, 0, &spell.RangeError{Start: plainStart, End: plainEnd, Limit: MarkupPlainLength(markup)}
	}
	start, ok := richOffset(markup, plainStart, true)
	if !ok {
		return 0, 0, &spell.RangeError{Start: plainStart, End: plainEnd, Limit: MarkupPlainLength(markup)}
	}
	end, ok := richOffset(markup, plainEnd, false)
	if !ok {
		return 0, 0, &spell.RangeError{Start: plainStart, End: plainEnd, Limit: MarkupPlainLength(markup)}
	}
	if end < start {
		end = start
	}
	return start, end, nil
}

// MarkupPlainLength returns the number of plain characters in markup.
func MarkupPlainLength(markup string) int {
	n := 0
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return n
		}
		if tt != html.TextToken {
			continue
		}
		raw := z.Raw()
		for i := 0; i < len(raw); {
			w, c := charAt(raw, i)
			i += w
			n += c
		}
	}
}

// richOffset walks markup until target plain characters have been passed.
// With skipTags set, tokens that are not text are also consumed once the
// target is reached. The second result is false when markup holds fewer
// than target plain characters.
func richOffset(markup string, target int, skipTags bool) (int, bool) {
	if target < 0 {
		return 0, false
	}

	pos, plain := 0, 0
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		if plain >= target && !skipTags {
			return pos, true
		}
		tt := z.Next()
		if tt == html.ErrorToken {
			return pos, plain >= target
		}
		raw := z.Raw()
		if tt != html.TextToken {
			pos += len(raw)
			continue
		}
		if plain >= target {
			return pos, true
		}
		for i := 0; i < len(raw); {
			if plain >= target {
				return pos + i, true
			}
			w, c := charAt(raw, i)
			i += w
			plain += c
		}
		pos += len(raw)
	}
}

// charAt returns the byte width of the character starting at raw[i] and the
// number of plain characters it produces.
func charAt(raw []byte, i int) (width, chars int) {
	if raw[i] != '&' {
		_, w := utf8.DecodeRune(raw[i:])
		return w, 1
	}
	if w, c, ok := referenceAt(raw[i:min(len(raw), i+maxEntityLen)]); ok {
		return w, c
	}
	return 1, 1
}

// referenceAt decodes the character reference at the start of s the way
// the tokenizer does. A missing ';' is accepted for numeric references and
// for the legacy names, in which case the longest known name wins and the
// letters after it stay text.
func referenceAt(s []byte) (width, chars int, ok bool) {
	decode := func(n int) (int, int, bool) {
		ref := string(s[:n])
		dec := html.UnescapeString(ref)
		if dec == ref {
			return 0, 0, false
		}
		return n, utf8.RuneCountInString(dec), true
	}

	if len(s) > 1 && s[1] == '#' {
		j := 2
		hex := j < len(s) && (s[j] == 'x' || s[j] == 'X')
		if hex {
			j++
		}
		start := j
		for j < len(s) && (isDigit(s[j]) || hex && isHexLetter(s[j])) {
			j++
		}
		if j == start {
			return 0, 0, false
		}
		if j < len(s) && s[j] == ';' {
			j++
		}
		return decode(j)
	}

	j := 1
	for j < len(s) && (isDigit(s[j]) || isLetter(s[j])) {
		j++
	}
	// An unknown name decodes a shorter known prefix and leaves its own
	// tail as text. Only references that decode whole are taken.
	if j < len(s) && s[j] == ';' {
		if w, c, ok := decode(j + 1); ok && (c == 1 || !strings.HasSuffix(html.UnescapeString(string(s[:j+1])), ";")) {
			return w, c, true
		}
	}
	for ; j > 2; j-- {
		w, c, ok := decode(j)
		if !ok {
			continue
		}
		dec := html.UnescapeString(string(s[:j]))
		if last, _ := utf8.DecodeLastRuneInString(dec); last < utf8.RuneSelf && (isDigit(byte(last)) || isLetter(byte(last))) {
			continue
		}
		return w, c, true
	}
	return 0, 0, false
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isLetter(c byte) bool { return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' }

func isHexLetter(c byte) bool { return 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F' }

// voidElements never have content and are never pushed on the path.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// RunsFromMarkup splits markup into text runs. Each text token becomes a
// run whose path is the stack of open elements at that point. Element
// types are taken from the data-type attribute.
func RunsFromMarkup(markup string) []Run {
	var (
		runs  []Run
		stack []Element
	)
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return runs
		case html.TextToken:
			text := string(z.Text())
			if text == "" {
				continue
			}
			path := make([]Element, len(stack))
			copy(path, stack)
			runs = append(runs, Run{Text: text, Path: path})
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if voidElements[tag] {
				continue
			}
			el := Element{Tag: tag}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "data-type" {
					el.Type = string(val)
				}
			}
			stack = append(stack, el)
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].Tag == tag {
					stack = stack[:i]
					break
				}
			}
		}
	}
}

// PlainFromMarkup returns the de-tagged text of markup.
func PlainFromMarkup(markup string) string {
	return PlainText(RunsFromMarkup(markup))
}
