package markdown

import (
	"bufio"
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
)

// markdownFromMarkup converts inline HTML back to Markdown. Tags without a
// Markdown form are dropped and their text kept.
func markdownFromMarkup(markup string) string {
	var (
		b     strings.Builder
		links []string
		code  int
	)
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			t := string(z.Text())
			if code == 0 {
				t = escaper.Replace(t)
			}
			b.WriteString(t)
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			attrs := map[string]string{}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs[string(k)] = string(v)
			}
			switch string(name) {
			case "em", "i":
				b.WriteString("*")
			case "strong", "b":
				b.WriteString("**")
			case "del", "s":
				b.WriteString("~~")
			case "code":
				code++
				b.WriteString("`")
			case "a":
				links = append(links, attrs["href"])
				b.WriteString("[")
			case "br":
				b.WriteString("  \n")
			case "img":
				b.WriteString("![" + attrs["alt"] + "](" + attrs["src"] + ")")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "em", "i":
				b.WriteString("*")
			case "strong", "b":
				b.WriteString("**")
			case "del", "s":
				b.WriteString("~~")
			case "code":
				if code > 0 {
					code--
				}
				b.WriteString("`")
			case "a":
				href := ""
				if n := len(links); n > 0 {
					href = links[n-1]
					links = links[:n-1]
				}
				b.WriteString("](" + href + ")")
			}
		}
	}
}

// attrsFromSource reads document attributes from a leading HTML comment
// of "key: value" lines:
//
//	<!--
//	custom-spellcheck-language: de
//	-->
func attrsFromSource(src []byte) map[string]string {
	attrs := make(map[string]string)
	body := bytes.TrimLeft(src, " \t\r\n")
	if !bytes.HasPrefix(body, []byte("<!--")) {
		return attrs
	}
	end := bytes.Index(body, []byte("-->"))
	if end < 0 {
		return attrs
	}
	sc := bufio.NewScanner(bytes.NewReader(body[len("<!--"):end]))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		attrs[k] = strings.TrimSpace(v)
	}
	return attrs
}
