package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	kit "dfwatch/internal/transport"
)

const (
	DefaultScrapeInterval = 60 * time.Second
	DefaultDevlogInterval = 5 * time.Minute
	DefaultHTTPTimeout    = 20 * time.Second

	// MinInterval bounds how often a job may fire.
	MinInterval = time.Second
)

// Validate rejects configs that cannot be applied. It runs on startup and
// before every hot reload is committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			return fmt.Errorf("telegram.group_log: invalid chat id %q", g)
		}
	}
	for i, ch := range cfg.Telegram.Channels {
		if _, err := kit.ParseChatTarget(ch); err != nil {
			return fmt.Errorf("telegram.channels[%d]: %w", i, err)
		}
	}
	if err := validateInterval("monitor.scrape_interval", cfg.Monitor.ScrapeInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("monitor.http_timeout", cfg.Monitor.HTTPTimeout); err != nil {
		return err
	}
	m := cfg.Monitor.WithDefaults()
	if err := validateURL("monitor.changelog_url", m.ChangelogURL); err != nil {
		return err
	}
	if err := validateURL("monitor.base_url", m.BaseURL); err != nil {
		return err
	}

	if cfg.Devlog.Enabled {
		if err := validateURL("devlog.feed_url", cfg.Devlog.FeedURL); err != nil {
			return err
		}
	}
	if err := validateInterval("devlog.poll_interval", cfg.Devlog.PollInterval); err != nil {
		return err
	}
	if cfg.Devlog.MaxLineChars < 0 {
		return fmt.Errorf("devlog.max_line_chars must be >= 0")
	}
	if cfg.Devlog.MaxLines < 0 {
		return fmt.Errorf("devlog.max_lines must be >= 0")
	}

	if n := cfg.Notifier; n != nil {
		if n.RatePerSec < 0 {
			return fmt.Errorf("notifier.rate_per_sec must be >= 0")
		}
		if n.HistorySize < 0 {
			return fmt.Errorf("notifier.history_size must be >= 0")
		}
		if _, err := ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
			return err
		}
	}
	if s := cfg.Storage; s != nil {
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

func validateInterval(path, raw string) error {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return err
	}
	if d != 0 && d < MinInterval {
		return fmt.Errorf("%s: must be >= %s", path, MinInterval)
	}
	return nil
}

func validateURL(path, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: want an http(s) URL, got %q", path, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is empty", path)
	}
	return nil
}

// ScrapeEvery is the live changelog poll interval.
func (m MonitorConfig) ScrapeEvery() time.Duration {
	return intervalOrDefault(m.ScrapeInterval, DefaultScrapeInterval)
}

// Timeout is the per-request HTTP timeout for changelog and issue pages.
func (m MonitorConfig) Timeout() time.Duration {
	d, err := ParseDurationOrDefault("monitor.http_timeout", m.HTTPTimeout, DefaultHTTPTimeout)
	if err != nil {
		return DefaultHTTPTimeout
	}
	return d
}

// PollEvery is the live devlog poll interval.
func (d DevlogConfig) PollEvery() time.Duration {
	return intervalOrDefault(d.PollInterval, DefaultDevlogInterval)
}

func intervalOrDefault(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("interval", raw, def)
	if err != nil {
		return def
	}
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// ParseDurationField parses an optional, non-negative Go duration string.
// Empty input yields 0. Errors are prefixed with the config path.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
