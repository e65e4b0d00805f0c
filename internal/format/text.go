package format

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	breakTagRe   = regexp.MustCompile(`(?i)<br\s*/?>|</p\s*>|</div\s*>|</li\s*>`)
)

// HTMLToText strips markup from a feed summary. Line and paragraph breaks
// survive as newlines; runs of other whitespace collapse to one space.
func HTMLToText(s string) string {
	s = breakTagRe.ReplaceAllString(s, "\n")
	s = html.UnescapeString(strictPolicy.Sanitize(s))

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		out = append(out, strings.Join(strings.Fields(ln), " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Wrap word-wraps s at width, hard-wrapping words longer than width, and
// returns the non-empty lines.
func Wrap(s string, width int) []string {
	if width > 0 {
		s = wrap.String(wordwrap.String(s, width), width)
	}
	raw := strings.Split(s, "\n")
	lines := make([]string, 0, len(raw))
	for _, ln := range raw {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		lines = append(lines, ln)
	}
	return lines
}
