package format

import (
	"strings"

	"dfwatch/pkg/tgui"
)

// Issue renders the primary announcement for a newly fixed issue:
//
//	<b>ID: CATEGORY</b> TITLE FIXER STATUS ( URL )
//
// Title, fixer and status are joined as they appear on the page, with a
// space added only where a boundary has none and is not inside brackets,
// so "load (" + "Toady One" + ") - resolved" keeps its parentheses tight.
func Issue(id, category, title, fixer, status, detailURL string) tgui.H {
	var body string
	for _, p := range []string{title, fixer, status} {
		body = joinText(body, p)
	}
	body = strings.Join(strings.Fields(body), " ")
	if u := strings.TrimSpace(detailURL); u != "" {
		body = joinText(body, "( "+u+" )")
	}
	head := tgui.B(strings.TrimSpace(id) + ": " + strings.TrimSpace(category))
	if body == "" {
		return head
	}
	return tgui.Concat(head, tgui.Esc(" "+body))
}

// joinText appends b to a, inserting a space unless the boundary already
// has whitespace, an opening bracket on the left or a closing one on the right.
func joinText(a, b string) string {
	if strings.TrimSpace(b) == "" {
		return a
	}
	if strings.TrimSpace(a) == "" {
		return b
	}
	last, first := a[len(a)-1], b[0]
	if strings.IndexByte(" \t\n([", last) >= 0 || strings.IndexByte(" \t\n)]", first) >= 0 {
		return a + b
	}
	return a + " " + b
}

// ClosingNote renders the maintainer's note. The note already carries its
// quotation marks.
func ClosingNote(note string) tgui.H {
	return tgui.Esc(note)
}

// Release renders the version release announcement.
func Release(project, version string) tgui.H {
	project = strings.TrimSpace(project)
	if project == "" {
		project = "Dwarf Fortress"
	}
	return tgui.B(project + " v" + strings.TrimSpace(version) + " has been released!")
}
