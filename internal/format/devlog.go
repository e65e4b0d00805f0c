package format

import (
	"strings"

	"dfwatch/pkg/tgui"
)

type DevlogOptions struct {
	MaxLineChars int
	MaxLines     int
	Marker       string
}

// Devlog renders a devlog entry as one message per wrapped line.
//
// The text is "{feed} {title}: " followed by the plain-text summary. The
// header is bold on every line it spans. When the entry wraps to more than
// MaxLines lines only the first MaxLines are kept and a final line
// "{marker} {permalink}" is appended.
func Devlog(feedTitle, entryTitle, summaryHTML, permalink string, opt DevlogOptions) []tgui.H {
	header := strings.TrimSpace(strings.TrimSpace(feedTitle)+" "+strings.TrimSpace(entryTitle)) + ": "
	lines := Wrap(header+HTMLToText(summaryHTML), opt.MaxLineChars)

	truncated := opt.MaxLines > 0 && len(lines) > opt.MaxLines
	if truncated {
		lines = lines[:opt.MaxLines]
	}

	out := make([]tgui.H, 0, len(lines)+1)
	rest := strings.TrimSpace(header)
	for _, ln := range lines {
		var msg tgui.H
		msg, rest = emphasizePrefix(ln, rest)
		out = append(out, msg)
	}
	if truncated {
		marker := opt.Marker
		if marker == "" {
			marker = "..."
		}
		out = append(out, tgui.Esc(strings.TrimSpace(marker+" "+permalink)))
	}
	return out
}

// emphasizePrefix bolds the part of line that belongs to the remaining header
// text and returns what is left of the header for the following lines.
func emphasizePrefix(line, header string) (tgui.H, string) {
	header = strings.TrimLeft(header, " ")
	if header == "" {
		return tgui.Esc(line), ""
	}
	switch {
	case strings.HasPrefix(line, header):
		return tgui.Concat(tgui.B(header), tgui.Esc(line[len(header):])), ""
	case strings.HasPrefix(header, line):
		return tgui.B(line), header[len(line):]
	default:
		// Hard wrapping may have split the header differently; give up on
		// emphasis rather than bolding the wrong text.
		return tgui.Esc(line), ""
	}
}
