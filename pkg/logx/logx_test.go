package logx

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "dfwatch/internal/transport"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
	mode []string
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.to = append(f.to, to)
	f.mode = append(f.mode, opt.ParseMode)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatalf("zero Logger should report IsZero")
	}
	zero.Info("dropped", String("k", "v"))

	n := Nop()
	if n.IsZero() {
		t.Fatalf("Nop() should not be zero")
	}
	if n.Enabled(zerolog.ErrorLevel) {
		t.Fatalf("Nop() should not enable any level")
	}
	n.With(Int("a", 1)).Error("dropped")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "debug", want: zerolog.DebugLevel},
		{in: " WARN ", want: zerolog.WarnLevel},
		{in: "warning", want: zerolog.WarnLevel},
		{in: "Error", want: zerolog.ErrorLevel},
		{in: "", want: zerolog.InfoLevel},
		{in: "loud", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatRecord(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"2026-01-01T00:00:00Z","message":"fetch <failed>","url":"http://x/?a=1&b=2","comp":"monitor"}`)
	got := formatRecord(line)
	want := "<b>WARN</b> fetch &lt;failed&gt;\ncomp: monitor\nurl: http://x/?a=1&amp;b=2"
	if got != want {
		t.Fatalf("formatRecord =\n%q\nwant\n%q", got, want)
	}

	if got := formatRecord([]byte("plain <text>\n")); got != "plain &lt;text&gt;" {
		t.Fatalf("non-JSON line = %q", got)
	}
	if got := formatRecord([]byte("  ")); got != "" {
		t.Fatalf("blank line = %q", got)
	}
}

func TestServiceFileSinkAndLiveApply(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	var stdout, stderr bytes.Buffer

	svc := newService(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, nil, &stdout, &stderr)
	log := svc.Logger().With(String("comp", "test"))
	log.Debug("hidden")
	log.Info("visible", Err(errors.New("boom")))

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("now visible")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %s", out)
	}
	for _, want := range []string{`"message":"visible"`, `"err":"boom"`, `"comp":"test"`, `"message":"now visible"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s:\n%s", want, out)
		}
	}
	if stderr.Len() != 0 {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

func TestTelegramSinkLevelAndTarget(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	var stdout, stderr bytes.Buffer
	cfg := Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100}}

	svc := newService(cfg, snd, &stdout, &stderr)
	defer svc.Close()
	if !strings.Contains(stderr.String(), "group_log is not set") {
		t.Fatalf("expected missing target warning, got %q", stderr.String())
	}
	log := svc.Logger()
	log.Error("before target")

	svc.SetTelegramTarget(-100, 7)
	log.Info("too quiet")
	log.Warn("loud enough", String("k", "v"))
	waitFor(t, func() bool { return snd.count() == 1 })

	snd.mu.Lock()
	defer snd.mu.Unlock()
	if snd.to[0] != (kit.ChatTarget{ChatID: -100, ThreadID: 7}) {
		t.Fatalf("target = %v", snd.to[0])
	}
	if snd.mode[0] != kit.ParseModeHTML {
		t.Fatalf("parse mode = %q", snd.mode[0])
	}
	if !strings.HasPrefix(snd.sent[0], "<b>WARN</b> loud enough") || !strings.Contains(snd.sent[0], "k: v") {
		t.Fatalf("sent = %q", snd.sent[0])
	}
}

func TestTelegramSinkRateLimited(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	var stdout, stderr bytes.Buffer
	svc := newService(Config{Telegram: TelegramConfig{Enabled: true, RatePerSec: 1}}, snd, &stdout, &stderr)
	defer svc.Close()
	svc.SetTelegramTarget(-1, 0)

	log := svc.Logger()
	for i := 0; i < 5; i++ {
		log.Error("burst")
	}
	waitFor(t, func() bool { return snd.count() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if n := snd.count(); n != 1 {
		t.Fatalf("sent %d messages in a burst, want 1", n)
	}
}
