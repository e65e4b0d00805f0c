package tgui

import (
	"html"
	"strings"
)

// H represents HTML that is safe to pass to Telegram when ParseMode="HTML".
// Values of type H should be treated as already-escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

// B renders bold text.
func B(s string) H { return wrap("b", Esc(s)) }

// Concat joins safe HTML parts without a separator.
func Concat(parts ...H) H {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(string(p))
	}
	return H(b.String())
}

// Plain strips the tags this package emits and unescapes entities. It is
// meant for logs and audit records, not for arbitrary HTML.
func Plain(h H) string {
	s := string(h)
	for _, tag := range []string{"<b>", "</b>", "<i>", "</i>"} {
		s = strings.ReplaceAll(s, tag, "")
	}
	return html.UnescapeString(s)
}
