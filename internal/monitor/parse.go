package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	// ErrNoVersionLink means the changelog has no version link where one is
	// expected (second <a> in the first <tt>).
	ErrNoVersionLink = errors.New("changelog version link not found")
	// ErrNoContainer means the changelog has no <tt> block at all.
	ErrNoContainer = errors.New("changelog container not found")
	// ErrMalformedBlock marks an issue block missing a required element.
	ErrMalformedBlock = errors.New("malformed issue block")
)

var (
	releasedLabelRe = regexp.MustCompile(`^[\d.]+$`)
	trailingDigits  = regexp.MustCompile(`\d+$`)
)

// headerBlocks is the number of leading <br>-delimited blocks that carry
// the version header rather than issues.
const headerBlocks = 2

// IssueRecord is one fixed issue listed on the changelog.
type IssueRecord struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Fixer       string `json:"fixer"`
	Status      string `json:"status"`
	DetailURL   string `json:"detail_url"`
	ClosingNote string `json:"closing_note,omitempty"`
}

// Block is the parse result for one changelog block. Exactly one of Record
// or Err is meaningful.
type Block struct {
	Index  int
	Record IssueRecord
	Err    error
}

// VersionLink is the changelog's link to the version it lists.
type VersionLink struct {
	ID    int
	Label string
	Href  string
}

// Released reports whether the label is a released version number such as
// "0.47.05". Development labels carry text ("Next version", "0.47.05 beta").
func (v VersionLink) Released() bool {
	return releasedLabelRe.MatchString(v.Label)
}

// ParseVersionLink finds the second link of the first <tt> block.
func ParseVersionLink(doc []byte) (VersionLink, error) {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return VersionLink{}, fmt.Errorf("parse changelog: %w", err)
	}
	tt := d.Find("tt").First()
	if tt.Length() == 0 {
		return VersionLink{}, ErrNoContainer
	}
	a := tt.Find("a").Eq(1)
	if a.Length() == 0 {
		return VersionLink{}, ErrNoVersionLink
	}
	href, _ := a.Attr("href")
	m := trailingDigits.FindString(href)
	if m == "" {
		return VersionLink{}, fmt.Errorf("%w: no version id in href %q", ErrNoVersionLink, href)
	}
	id, err := strconv.Atoi(m)
	if err != nil {
		return VersionLink{}, fmt.Errorf("%w: %v", ErrNoVersionLink, err)
	}
	return VersionLink{ID: id, Label: strings.TrimSpace(a.Text()), Href: href}, nil
}

// ParseBlocks tokenizes the first <tt> block, splits it at every <br> and
// parses each block after the header. Relative issue links are resolved
// against base (which may be nil).
func ParseBlocks(doc []byte, base *url.URL) ([]Block, error) {
	segments, err := splitContainer(doc)
	if err != nil {
		return nil, err
	}
	if len(segments) <= headerBlocks {
		return nil, nil
	}
	out := make([]Block, 0, len(segments)-headerBlocks)
	for i := headerBlocks; i < len(segments); i++ {
		rec, err := parseBlock(segments[i], base)
		out = append(out, Block{Index: i, Record: rec, Err: err})
	}
	return out, nil
}

// splitContainer returns the token runs that follow each <br> inside the
// first <tt>. Content before the first <br> is not a block.
func splitContainer(doc []byte) ([][]html.Token, error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var (
		segments [][]html.Token
		cur      []html.Token
		found    bool
		inBlock  bool
		depth    int
	)
loop:
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return nil, fmt.Errorf("tokenize changelog: %w", z.Err())
		}
		tok := z.Token()

		if tok.Data == "tt" {
			switch tt {
			case html.StartTagToken:
				found = true
				depth++
				if depth == 1 {
					continue
				}
			case html.EndTagToken:
				if depth > 0 {
					depth--
					if depth == 0 {
						break loop
					}
				}
			}
		}
		if depth == 0 {
			continue
		}
		if tok.Data == "br" && (tt == html.StartTagToken || tt == html.SelfClosingTagToken) {
			if inBlock {
				segments = append(segments, cur)
			}
			cur, inBlock = nil, true
			continue
		}
		if inBlock {
			cur = append(cur, tok)
		}
	}
	if !found {
		return nil, ErrNoContainer
	}
	if inBlock {
		segments = append(segments, cur)
	}
	return segments, nil
}

// parseBlock extracts an IssueRecord from the tokens of one block:
//  1. the first <a> gives the id (text) and detail URL (href);
//  2. the first <b> gives the category, the text right after </b> the title;
//  3. the first <a> without a class gives the fixer, the text after it the status.
func parseBlock(toks []html.Token, base *url.URL) (IssueRecord, error) {
	var rec IssueRecord

	idIdx := findStart(toks, "a", false)
	if idIdx < 0 {
		return rec, fmt.Errorf("%w: no issue link", ErrMalformedBlock)
	}
	id, _ := elementText(toks, idIdx)
	rec.ID = strings.TrimSpace(id)
	if rec.ID == "" {
		return IssueRecord{}, fmt.Errorf("%w: empty issue id", ErrMalformedBlock)
	}
	rec.DetailURL = resolve(base, attr(toks[idIdx], "href"))

	bIdx := findStart(toks, "b", false)
	if bIdx < 0 {
		return IssueRecord{}, fmt.Errorf("%w: issue %s has no category", ErrMalformedBlock, rec.ID)
	}
	var end int
	rec.Category, end = elementText(toks, bIdx)
	rec.Category = strings.TrimSpace(rec.Category)
	rec.Title = textAfter(toks, end)

	fIdx := findStart(toks, "a", true)
	if fIdx < 0 {
		return IssueRecord{}, fmt.Errorf("%w: issue %s has no fixer link", ErrMalformedBlock, rec.ID)
	}
	rec.Fixer, end = elementText(toks, fIdx)
	rec.Fixer = strings.TrimSpace(rec.Fixer)
	rec.Status = textAfter(toks, end)
	return rec, nil
}

func findStart(toks []html.Token, name string, classless bool) int {
	for i, t := range toks {
		if t.Type != html.StartTagToken || t.Data != name {
			continue
		}
		if classless && hasAttr(t, "class") {
			continue
		}
		return i
	}
	return -1
}

// elementText concatenates the text inside the element opened at toks[start]
// and returns it with the index of the closing tag (len(toks) if unclosed).
func elementText(toks []html.Token, start int) (string, int) {
	name := toks[start].Data
	var b strings.Builder
	i := start + 1
	for ; i < len(toks); i++ {
		t := toks[i]
		if t.Type == html.EndTagToken && t.Data == name {
			break
		}
		if t.Type == html.TextToken {
			b.WriteString(t.Data)
		}
	}
	return b.String(), i
}

func textAfter(toks []html.Token, end int) string {
	if end+1 < len(toks) && toks[end+1].Type == html.TextToken {
		return toks[end+1].Data
	}
	return ""
}

func hasAttr(t html.Token, key string) bool {
	for _, a := range t.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func attr(t html.Token, key string) string {
	for _, a := range t.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if base == nil || href == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
