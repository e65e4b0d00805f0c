package monitor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"dfwatch/internal/fetch"
	"dfwatch/internal/format"
	logx "dfwatch/pkg/logx"
	"dfwatch/pkg/tgui"
)

// ChangelogOptions are read fresh at the start of every scrape.
type ChangelogOptions struct {
	ChangelogURL string
	BaseURL      string
	Maintainer   string
	ProjectName  string
}

// ScrapeResult is the outcome of one changelog poll.
type ScrapeResult struct {
	// Released is non-nil when this poll detected a rollover.
	Released  *VersionEpoch
	Issues    []IssueRecord
	Malformed int
	Messages  []tgui.H
}

// Scraper polls the changelog of the tracked version.
type Scraper struct {
	fetch fetch.Fetcher
	notes *NoteFetcher
	opts  func() ChangelogOptions
	log   logx.Logger
}

func NewScraper(f fetch.Fetcher, opts func() ChangelogOptions, log logx.Logger) *Scraper {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scraper{fetch: f, notes: NewNoteFetcher(f), opts: opts, log: log}
}

// Initialize resolves the baseline epoch from the unparameterised changelog.
// When the listed version is already released the next id is tracked.
func (s *Scraper) Initialize(ctx context.Context) (VersionEpoch, error) {
	o := s.opts()
	body, err := s.fetch.Get(ctx, o.ChangelogURL)
	if err != nil {
		return VersionEpoch{}, fmt.Errorf("resolve baseline version: %w", err)
	}
	link, err := ParseVersionLink(body)
	if err != nil {
		return VersionEpoch{}, fmt.Errorf("resolve baseline version: %w", err)
	}
	ep := VersionEpoch{ID: link.ID}
	if link.Released() {
		ep.ID++
	}
	s.log.Info("baseline version resolved",
		logx.Int("version_id", ep.ID),
		logx.String("listed_label", link.Label),
		logx.Bool("listed_released", link.Released()),
	)
	return ep, nil
}

// Poll scrapes the changelog for st.Epoch. On any fetch or parse error st
// is left untouched.
func (s *Scraper) Poll(ctx context.Context, st *State) (ScrapeResult, error) {
	o := s.opts()
	pageURL, err := versionURL(o.ChangelogURL, st.Epoch.ID)
	if err != nil {
		return ScrapeResult{}, err
	}
	body, err := s.fetch.Get(ctx, pageURL)
	if err != nil {
		return ScrapeResult{}, err
	}
	link, err := ParseVersionLink(body)
	if err != nil {
		return ScrapeResult{}, fmt.Errorf("version %d: %w", st.Epoch.ID, err)
	}

	var res ScrapeResult
	if link.Released() {
		released := st.rollover(link.Label)
		res.Released = &released
		res.Messages = []tgui.H{format.Release(o.ProjectName, link.Label)}
		return res, nil
	}

	var base *url.URL
	if o.BaseURL != "" {
		if base, err = url.Parse(o.BaseURL); err != nil {
			return ScrapeResult{}, fmt.Errorf("monitor.base_url: %w", err)
		}
	}
	blocks, err := ParseBlocks(body, base)
	if err != nil {
		return ScrapeResult{}, fmt.Errorf("version %d: %w", st.Epoch.ID, err)
	}

	for _, b := range blocks {
		if b.Err != nil {
			res.Malformed++
			s.log.Debug("skipping malformed block", logx.Int("block", b.Index), logx.Err(b.Err))
			continue
		}
		rec := b.Record
		if !st.Record(rec.ID) {
			continue
		}
		if !st.FirstPassDone {
			continue
		}
		note, err := s.notes.ClosingNote(ctx, rec.DetailURL, o.Maintainer)
		if err != nil {
			s.log.Warn("closing note lookup failed", logx.String("issue", rec.ID), logx.Err(err))
		}
		rec.ClosingNote = note
		res.Issues = append(res.Issues, rec)
		res.Messages = append(res.Messages, format.Issue(rec.ID, rec.Category, rec.Title, rec.Fixer, rec.Status, rec.DetailURL))
		if note != "" {
			res.Messages = append(res.Messages, format.ClosingNote(note))
		}
	}
	st.FirstPassDone = true
	return res, nil
}

func versionURL(raw string, id int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("monitor.changelog_url: %w", err)
	}
	q := u.Query()
	q.Set("version_id", strconv.Itoa(id))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
