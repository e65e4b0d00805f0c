package config

import (
	"reflect"
	"sort"
	"strings"

	logx "dfwatch/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured fields for logging. Secrets (bot token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		!reflect.DeepEqual(oldCfg.Telegram.Channels, newCfg.Telegram.Channels) ||
		oldCfg.Telegram.TrackJoined != newCfg.Telegram.TrackJoined {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
			logx.Int("telegram.channel_count", len(newCfg.Telegram.Channels)),
			logx.Bool("telegram.track_joined", newCfg.Telegram.TrackJoined),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.changelog_url", newCfg.Monitor.ChangelogURL),
			logx.String("monitor.scrape_interval", strings.TrimSpace(newCfg.Monitor.ScrapeInterval)),
			logx.String("monitor.http_timeout", strings.TrimSpace(newCfg.Monitor.HTTPTimeout)),
			logx.String("monitor.maintainer", newCfg.Monitor.Maintainer),
		)
	}

	if oldCfg.Devlog != newCfg.Devlog {
		changed = append(changed, "devlog")
		attrs = append(attrs,
			logx.Bool("devlog.enabled", newCfg.Devlog.Enabled),
			logx.String("devlog.poll_interval", strings.TrimSpace(newCfg.Devlog.PollInterval)),
			logx.Int("devlog.max_line_chars", newCfg.Devlog.MaxLineChars),
			logx.Int("devlog.max_lines", newCfg.Devlog.MaxLines),
		)
	}

	// A nil notifier section means runtime defaults.
	defN := NotifierConfig{RatePerSec: 3, SendTimeout: "10s", HistorySize: 50}
	oldN, newN := defN, defN
	if oldCfg.Notifier != nil {
		oldN = *oldCfg.Notifier
	}
	if newCfg.Notifier != nil {
		newN = *newCfg.Notifier
	}
	if oldN != newN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.String("notifier.send_timeout", newN.SendTimeout),
			logx.Int("notifier.history_size", newN.HistorySize),
		)
	}

	// Nil storage means disabled. Storage is opened once at startup, so a
	// change here only takes effect after a restart.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.restart_required", true),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
