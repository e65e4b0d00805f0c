package monitor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"dfwatch/internal/fetch"
	"dfwatch/internal/format"
	"dfwatch/pkg/tgui"
)

// DevlogEntry is the newest item of the devlog feed.
type DevlogEntry struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Permalink string `json:"permalink"`
	FeedTitle string `json:"feed_title"`
}

type DevlogOptions struct {
	FeedURL string
	Format  format.DevlogOptions
}

// DevlogResult is the outcome of one devlog poll. Entry is nil when nothing
// changed.
type DevlogResult struct {
	Entry    *DevlogEntry
	Messages []tgui.H
}

// DevlogPoller announces the feed's first item whenever its title changes.
// The feed is trusted to list the newest entry first; a feed that reorders
// its items can cause a missed or repeated announcement.
type DevlogPoller struct {
	fetch fetch.Fetcher
	opts  func() DevlogOptions
}

func NewDevlogPoller(f fetch.Fetcher, opts func() DevlogOptions) *DevlogPoller {
	return &DevlogPoller{fetch: f, opts: opts}
}

// Latest fetches the feed and returns its first entry. ok is false for an
// empty feed.
func (p *DevlogPoller) Latest(ctx context.Context) (entry DevlogEntry, ok bool, err error) {
	o := p.opts()
	body, err := p.fetch.Get(ctx, o.FeedURL)
	if err != nil {
		return DevlogEntry{}, false, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return DevlogEntry{}, false, fmt.Errorf("parse devlog feed: %w", err)
	}
	if len(feed.Items) == 0 || feed.Items[0] == nil {
		return DevlogEntry{}, false, nil
	}
	it := feed.Items[0]
	summary := it.Description
	if strings.TrimSpace(summary) == "" {
		summary = it.Content
	}
	return DevlogEntry{
		Title:     strings.TrimSpace(it.Title),
		Summary:   summary,
		Permalink: strings.TrimSpace(it.Link),
		FeedTitle: strings.TrimSpace(feed.Title),
	}, true, nil
}

// Poll compares the newest entry with st.LastDevlogTitle. On a change the
// title is stored and the formatted lines are returned.
func (p *DevlogPoller) Poll(ctx context.Context, st *State) (DevlogResult, error) {
	entry, ok, err := p.Latest(ctx)
	if err != nil || !ok {
		return DevlogResult{}, err
	}
	if entry.Title == st.LastDevlogTitle {
		return DevlogResult{}, nil
	}
	st.LastDevlogTitle = entry.Title
	o := p.opts()
	return DevlogResult{
		Entry:    &entry,
		Messages: format.Devlog(entry.FeedTitle, entry.Title, entry.Summary, entry.Permalink, o.Format),
	}, nil
}

// Prime records the current newest title without producing messages.
func (p *DevlogPoller) Prime(ctx context.Context, st *State) error {
	entry, ok, err := p.Latest(ctx)
	if err != nil || !ok {
		return err
	}
	st.LastDevlogTitle = entry.Title
	return nil
}
