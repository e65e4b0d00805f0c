package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"dfwatch/internal/config"
	"dfwatch/pkg/tgui"
)

const (
	testBase      = "http://bay12.test/mantisbt/"
	testChangelog = testBase + "changelog_page.php"
	testFeed      = "http://bay12.test/dev_now.rss"
)

var errNotFound = errors.New("not found")

// fakeFetcher serves canned bodies by URL and counts requests.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	fail   map[string]error
	counts map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, fail: map[string]error{}, counts: map[string]int{}}
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = body
	delete(f.fail, url)
}

func (f *fakeFetcher) setErr(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[url] = err
}

func (f *fakeFetcher) calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[url]
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[url]++
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, errNotFound)
	}
	return []byte(body), nil
}

type dispatched struct {
	source string
	msgs   []tgui.H
}

type fakeDispatcher struct {
	mu      sync.Mutex
	batches []dispatched
}

func (d *fakeDispatcher) Dispatch(_ context.Context, source string, msgs []tgui.H) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, dispatched{source: source, msgs: append([]tgui.H(nil), msgs...)})
}

func (d *fakeDispatcher) all() []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatched(nil), d.batches...)
}

func versionPage(id int) string {
	return fmt.Sprintf("%s?version_id=%d", testChangelog, id)
}

// changelogPage renders a Mantis style changelog: a header line with the
// version link, a rule, a blank line, then one issue per <br>.
func changelogPage(versionID int, label string, issues ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>Change Log</h1><tt>")
	fmt.Fprintf(&b, `<a href="changelog_page.php?project_id=1">Dwarf Fortress</a> - <a href="changelog_page.php?version_id=%d">%s</a><br />`, versionID, label)
	b.WriteString("====================<br />")
	b.WriteString("<br />")
	b.WriteString(strings.Join(issues, "<br />\n"))
	b.WriteString("</tt></body></html>")
	return b.String()
}

func issueLine(id, category, title, fixer, status string) string {
	return fmt.Sprintf(`- <a href="view.php?id=%s" class="resolved">%s</a>: <b>%s</b>%s<a href="view_user_page.php?id=1">%s</a>%s`,
		strings.TrimLeft(id, "0"), id, category, title, fixer, status)
}

func issueURL(id string) string {
	return testBase + "view.php?id=" + strings.TrimLeft(id, "0")
}

func notesPage(notes ...[2]string) string {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for i, n := range notes {
		fmt.Fprintf(&b, `<tr class="bugnote" id="c%d"><td class="bugnote-public"><a href="#c%d">%07d</a><br /><a href="view_user_page.php?id=9">%s</a></td><td class="bugnote-note-public">%s</td></tr>`,
			i, i, i, n[0], n[1])
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func feedXML(title string, items ...[3]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel>`)
	fmt.Fprintf(&b, "<title>%s</title><link>http://bay12.test/</link><description>news</description>", title)
	for _, it := range items {
		fmt.Fprintf(&b, "<item><title>%s</title><link>%s</link><description>%s</description></item>", it[0], it[1], it[2])
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

func testConfig() *config.Config {
	return &config.Config{
		Monitor: config.MonitorConfig{ChangelogURL: testChangelog, BaseURL: testBase},
		Devlog:  config.DevlogConfig{Enabled: true, FeedURL: testFeed, MaxLineChars: 400, MaxLines: 5},
	}
}

func newTestMonitor(f *fakeFetcher, cfg *config.Config) (*Monitor, *fakeDispatcher) {
	d := &fakeDispatcher{}
	m, err := New(Deps{Config: config.Static{Cfg: cfg}, Fetcher: f, Dispatcher: d})
	if err != nil {
		panic(err)
	}
	return m, d
}
