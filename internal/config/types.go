package config

import "strings"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Monitor  MonitorConfig  `json:"monitor"`
	Devlog   DevlogConfig   `json:"devlog"`

	// Notifier and Storage may be omitted; nil means runtime defaults
	// (notifier) or disabled (storage).
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// Channels lists announcement targets as "chat_id" or "chat_id:thread_id".
	Channels []string `json:"channels"`
	// TrackJoined adds chats the bot is a member of to the announcement targets.
	TrackJoined bool `json:"track_joined,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// MonitorConfig controls the changelog scraper.
//
// Durations are Go duration strings. ScrapeInterval is re-read every time the
// scrape job is rescheduled, so edits apply without a restart.
type MonitorConfig struct {
	ChangelogURL   string `json:"changelog_url"`
	BaseURL        string `json:"base_url"`
	Maintainer     string `json:"maintainer"`
	ProjectName    string `json:"project_name,omitempty"`
	ScrapeInterval string `json:"scrape_interval"`
	HTTPTimeout    string `json:"http_timeout,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
}

// DevlogConfig controls the devlog feed poller.
type DevlogConfig struct {
	Enabled          bool   `json:"enabled"`
	FeedURL          string `json:"feed_url"`
	PollInterval     string `json:"poll_interval"`
	MaxLineChars     int    `json:"max_line_chars"`
	MaxLines         int    `json:"max_lines"`
	TruncationMarker string `json:"truncation_marker,omitempty"`
	// PrimeOnStart records the newest entry at startup without announcing it.
	PrimeOnStart bool `json:"prime_on_start,omitempty"`
}

// NotifierConfig controls delivery of announcements.
//
// Defaults (when the section or a field is omitted/zero):
//   - rate_per_sec: 3
//   - send_timeout: "10s"
//   - history_size: 50
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	SendTimeout string `json:"send_timeout"`
	HistorySize int    `json:"history_size"`
}

// StorageConfig controls the optional announcement audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dfwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

const (
	DefaultChangelogURL     = "http://www.bay12games.com/dwarves/mantisbt/changelog_page.php"
	DefaultBaseURL          = "http://www.bay12games.com/dwarves/mantisbt/"
	DefaultMaintainer       = "Toady One"
	DefaultProjectName      = "Dwarf Fortress"
	DefaultUserAgent        = "dfwatch/1.0"
	DefaultTruncationMarker = "..."
)

// WithDefaults returns a copy of m with empty fields filled in.
func (m MonitorConfig) WithDefaults() MonitorConfig {
	if strings.TrimSpace(m.ChangelogURL) == "" {
		m.ChangelogURL = DefaultChangelogURL
	}
	if strings.TrimSpace(m.BaseURL) == "" {
		m.BaseURL = DefaultBaseURL
	}
	if m.Maintainer == "" {
		m.Maintainer = DefaultMaintainer
	}
	if strings.TrimSpace(m.ProjectName) == "" {
		m.ProjectName = DefaultProjectName
	}
	if strings.TrimSpace(m.UserAgent) == "" {
		m.UserAgent = DefaultUserAgent
	}
	return m
}

// WithDefaults returns a copy of d with empty fields filled in.
func (d DevlogConfig) WithDefaults() DevlogConfig {
	if d.MaxLineChars <= 0 {
		d.MaxLineChars = 400
	}
	if d.MaxLines <= 0 {
		d.MaxLines = 5
	}
	if d.TruncationMarker == "" {
		d.TruncationMarker = DefaultTruncationMarker
	}
	return d
}
