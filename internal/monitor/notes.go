package monitor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dfwatch/internal/fetch"
)

// NoteFetcher looks up the maintainer's closing note on an issue page.
type NoteFetcher struct {
	fetch fetch.Fetcher
}

func NewNoteFetcher(f fetch.Fetcher) *NoteFetcher {
	return &NoteFetcher{fetch: f}
}

// ClosingNote returns the quoted closing note on the issue page at
// detailURL, or "" when the last note is not by maintainer.
func (n *NoteFetcher) ClosingNote(ctx context.Context, detailURL, maintainer string) (string, error) {
	body, err := n.fetch.Get(ctx, detailURL)
	if err != nil {
		return "", err
	}
	return ParseClosingNote(body, maintainer)
}

// ParseClosingNote inspects the last bug-note row of an issue page. The
// row's second link names the author; only the maintainer's note counts.
func ParseClosingNote(doc []byte, maintainer string) (string, error) {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse issue page: %w", err)
	}
	rows := d.Find("tr.bugnote")
	if rows.Length() == 0 {
		return "", nil
	}
	last := rows.Last()
	author := strings.TrimSpace(last.Find("a").Eq(1).Text())
	if author == "" || author != maintainer {
		return "", nil
	}
	note := strings.Join(strings.Fields(last.Find("td.bugnote-note-public").Text()), " ")
	if note == "" {
		return "", nil
	}
	return `"` + note + `"`, nil
}
