package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "dfwatch/internal/transport"
	"dfwatch/pkg/tgui"
)

const (
	tgQueueSize   = 256
	tgMaxRunes    = 3500
	tgMaxValRunes = 600
)

// telegramSink is a zerolog LevelWriter that forwards records at or above
// minLevel to a chat. It never blocks the caller: records over the rate
// limit or beyond a full queue are dropped.
type telegramSink struct {
	sender kit.Sender
	queue  chan telegramMsg

	mu       sync.Mutex
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type telegramMsg struct {
	to   kit.ChatTarget
	text string
}

func newTelegramSink(sender kit.Sender, threadID int) *telegramSink {
	return &telegramSink{
		sender:   sender,
		queue:    make(chan telegramMsg, tgQueueSize),
		target:   kit.ChatTarget{ThreadID: threadID},
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
	}
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	t.target.ChatID = chatID
	if threadID != 0 {
		t.target.ThreadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) hasTarget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target.ChatID != 0
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	if t.limiter.Limit() != rate.Limit(rps) {
		t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
	if cfg.ThreadID != 0 {
		t.target.ThreadID = cfg.ThreadID
	}
}

func (t *telegramSink) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil || t.sender == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx)
	}()
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-t.queue:
			_, _ = t.sender.SendText(ctx, m.to, m.text, &kit.SendOptions{
				ParseMode:      kit.ParseModeHTML,
				DisablePreview: true,
			})
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, min, lim := t.target, t.minLevel, t.limiter
	t.mu.Unlock()

	if to.ChatID == 0 || t.sender == nil || level < min || !lim.Allow() {
		return len(p), nil
	}
	text := formatRecord(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case t.queue <- telegramMsg{to: to, text: text}:
	default:
	}
	return len(p), nil
}

// formatRecord renders one zerolog JSON line as Telegram HTML:
//
//	<b>WARN</b> message
//	key: value
//
// Keys are sorted. Lines that are not JSON are sent escaped as-is.
func formatRecord(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		s := strings.TrimSpace(string(p))
		if s == "" {
			return ""
		}
		return string(tgui.Esc(tgui.TruncRunes(s, tgMaxRunes)))
	}

	lvl, _ := m[zerolog.LevelFieldName].(string)
	msg, _ := m[zerolog.MessageFieldName].(string)
	delete(m, zerolog.LevelFieldName)
	delete(m, zerolog.MessageFieldName)
	delete(m, zerolog.TimestampFieldName)

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]tgui.H, 0, 2+2*len(keys))
	if lvl != "" {
		parts = append(parts, tgui.B(strings.ToUpper(lvl)), " ")
	}
	parts = append(parts, tgui.Esc(msg))
	for _, k := range keys {
		v := tgui.TruncRunes(fmt.Sprint(m[k]), tgMaxValRunes)
		parts = append(parts, "\n", tgui.Esc(k+": "+v))
	}
	out := tgui.Concat(parts...).String()
	if len([]rune(out)) > tgMaxRunes {
		// Cutting escaped HTML could split an entity; fall back to plain text.
		return string(tgui.Esc(tgui.TruncRunes(tgui.Plain(tgui.H(out)), tgMaxRunes)))
	}
	return out
}
