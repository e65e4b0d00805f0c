// Package monitor watches the Mantis changelog and the devlog feed and turns
// changes into announcements.
//
// A Monitor owns a single State. Its tick methods are meant to be called by
// a scheduler that never runs two ticks at the same time.
package monitor

import (
	"context"
	"errors"
	"fmt"

	"dfwatch/internal/config"
	"dfwatch/internal/eventbus"
	"dfwatch/internal/fetch"
	"dfwatch/internal/format"
	logx "dfwatch/pkg/logx"
	"dfwatch/pkg/tgui"
)

// ErrDisabled is returned by DevlogTick when the devlog is switched off.
var ErrDisabled = errors.New("disabled")

// Dispatcher delivers one tick's messages to every target.
type Dispatcher interface {
	Dispatch(ctx context.Context, source string, msgs []tgui.H)
}

// RolloverEvent is published on eventbus.TypeRollover.
type RolloverEvent struct {
	Version  string `json:"version"`
	Released int    `json:"released_id"`
	Next     int    `json:"next_id"`
}

type Deps struct {
	Config     config.Provider
	Fetcher    fetch.Fetcher
	Dispatcher Dispatcher
	Bus        eventbus.Bus
	Log        logx.Logger
}

type Monitor struct {
	cfg  config.Provider
	disp Dispatcher
	bus  eventbus.Bus
	log  logx.Logger

	scraper *Scraper
	devlog  *DevlogPoller

	state *State
}

func New(d Deps) (*Monitor, error) {
	if d.Config == nil || d.Fetcher == nil || d.Dispatcher == nil {
		return nil, errors.New("monitor: config, fetcher and dispatcher are required")
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Monitor{cfg: d.Config, disp: d.Dispatcher, bus: d.Bus, log: log}
	m.scraper = NewScraper(d.Fetcher, m.changelogOptions, log.With(logx.String("job", "changelog")))
	m.devlog = NewDevlogPoller(d.Fetcher, m.devlogOptions)
	return m, nil
}

func (m *Monitor) changelogOptions() ChangelogOptions {
	mc := m.cfg.Get().Monitor.WithDefaults()
	return ChangelogOptions{
		ChangelogURL: mc.ChangelogURL,
		BaseURL:      mc.BaseURL,
		Maintainer:   mc.Maintainer,
		ProjectName:  mc.ProjectName,
	}
}

func (m *Monitor) devlogOptions() DevlogOptions {
	dc := m.cfg.Get().Devlog.WithDefaults()
	return DevlogOptions{
		FeedURL: dc.FeedURL,
		Format: format.DevlogOptions{
			MaxLineChars: dc.MaxLineChars,
			MaxLines:     dc.MaxLines,
			Marker:       dc.TruncationMarker,
		},
	}
}

// Initialize resolves the baseline epoch and creates the State. An error
// here means the monitor cannot run.
func (m *Monitor) Initialize(ctx context.Context) error {
	ep, err := m.scraper.Initialize(ctx)
	if err != nil {
		return err
	}
	m.state = NewState(ep)

	dc := m.cfg.Get().Devlog
	if dc.Enabled && dc.PrimeOnStart {
		if err := m.devlog.Prime(ctx, m.state); err != nil {
			m.log.Warn("devlog priming failed", logx.Err(err))
		} else {
			m.log.Info("devlog primed", logx.String("title", m.state.LastDevlogTitle))
		}
	}
	return nil
}

// Epoch returns the tracked version.
func (m *Monitor) Epoch() VersionEpoch {
	if m.state == nil {
		return VersionEpoch{}
	}
	return m.state.Epoch
}

// ScrapeTick runs one changelog poll and dispatches what it found.
func (m *Monitor) ScrapeTick(ctx context.Context) error {
	if m.state == nil {
		return errors.New("monitor not initialized")
	}
	firstPass := !m.state.FirstPassDone
	res, err := m.scraper.Poll(ctx, m.state)
	if err != nil {
		return fmt.Errorf("changelog scrape: %w", err)
	}

	if res.Released != nil {
		m.log.Info("version released",
			logx.String("version", res.Released.ReleasedName),
			logx.Int("next_version_id", m.state.Epoch.ID),
		)
		eventbus.Publish(m.bus, eventbus.TypeRollover, RolloverEvent{
			Version:  res.Released.ReleasedName,
			Released: res.Released.ID,
			Next:     m.state.Epoch.ID,
		})
	}
	for _, rec := range res.Issues {
		eventbus.Publish(m.bus, eventbus.TypeIssue, rec)
	}
	if firstPass && res.Released == nil {
		m.log.Info("first pass recorded",
			logx.Int("version_id", m.state.Epoch.ID),
			logx.Int("known", m.state.KnownCount()),
		)
	} else if len(res.Issues) > 0 || res.Malformed > 0 {
		m.log.Debug("changelog scraped",
			logx.Int("new", len(res.Issues)),
			logx.Int("malformed", res.Malformed),
			logx.Int("known", m.state.KnownCount()),
		)
	}

	if len(res.Messages) > 0 {
		m.disp.Dispatch(ctx, "changelog", res.Messages)
	}
	return nil
}

// DevlogTick runs one devlog poll and dispatches a changed entry.
func (m *Monitor) DevlogTick(ctx context.Context) error {
	if !m.cfg.Get().Devlog.Enabled {
		return ErrDisabled
	}
	if m.state == nil {
		return errors.New("monitor not initialized")
	}
	res, err := m.devlog.Poll(ctx, m.state)
	if err != nil {
		return fmt.Errorf("devlog poll: %w", err)
	}
	if res.Entry == nil {
		return nil
	}
	m.log.Info("devlog entry", logx.String("title", res.Entry.Title), logx.Int("lines", len(res.Messages)))
	eventbus.Publish(m.bus, eventbus.TypeDevlogEntry, *res.Entry)
	if len(res.Messages) > 0 {
		m.disp.Dispatch(ctx, "devlog", res.Messages)
	}
	return nil
}
