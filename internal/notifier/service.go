// Package notifier delivers announcements to every known chat.
//
// Targets come from two places: chats listed in the config and, when
// membership tracking is on, chats the bot has been added to. Deliveries
// walk the targets in a fixed order and are best effort per target.
package notifier

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dfwatch/internal/eventbus"
	"dfwatch/internal/storage"
	kit "dfwatch/internal/transport"
	logx "dfwatch/pkg/logx"
	"dfwatch/pkg/tgui"
)

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus
	store  storage.Store

	cfg     Config
	limiter *rate.Limiter

	configured map[string]kit.ChatTarget
	joined     map[string]kit.ChatTarget

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender:     sender,
		log:        log,
		bus:        bus,
		store:      store,
		configured: map[string]kit.ChatTarget{},
		joined:     map[string]kit.ChatTarget{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	// Keep the bucket when only the timeout or history size changed.
	if s.limiter == nil || s.cfg.RatePerSec != cfg.RatePerSec {
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	s.cfg = cfg
}

// SetConfigured replaces the configured targets.
func (s *Service) SetConfigured(targets []kit.ChatTarget) {
	m := make(map[string]kit.ChatTarget, len(targets))
	for _, t := range targets {
		m[t.String()] = t
	}
	s.mu.Lock()
	s.configured = m
	s.mu.Unlock()
}

// Join adds a chat the bot was added to. It reports whether the chat is new.
func (s *Service) Join(t kit.ChatTarget) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := t.String()
	if _, ok := s.joined[k]; ok {
		return false
	}
	s.joined[k] = t
	return true
}

// Leave forgets a joined chat. Configured targets are unaffected.
func (s *Service) Leave(t kit.ChatTarget) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := t.String()
	if _, ok := s.joined[k]; !ok {
		return false
	}
	delete(s.joined, k)
	return true
}

// Targets returns configured and joined targets, deduplicated and sorted by
// their string form.
func (s *Service) Targets() []kit.ChatTarget {
	s.mu.Lock()
	all := make(map[string]kit.ChatTarget, len(s.configured)+len(s.joined))
	for k, t := range s.joined {
		all[k] = t
	}
	for k, t := range s.configured {
		all[k] = t
	}
	s.mu.Unlock()

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kit.ChatTarget, 0, len(keys))
	for _, k := range keys {
		out = append(out, all[k])
	}
	return out
}

// Dispatch sends every message, in order, to every target. A failing target
// is logged and skipped over; it never stops delivery to the others. When
// ctx is cancelled the rest of the batch is dropped.
func (s *Service) Dispatch(ctx context.Context, source string, msgs []tgui.H) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(msgs) == 0 {
		return
	}
	targets := s.Targets()
	if len(targets) == 0 {
		s.log.Warn("no targets; announcement dropped", logx.String("source", source), logx.Int("messages", len(msgs)))
		return
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	for _, t := range targets {
		if ctx.Err() != nil {
			s.log.Debug("dispatch cancelled", logx.String("source", source), logx.Err(ctx.Err()))
			return
		}
		start := time.Now()
		var (
			ok, fail int
			lastErr  error
		)
		for _, m := range msgs {
			if err := lim.Wait(ctx); err != nil {
				return
			}
			err := s.send(ctx, cfg.SendTimeout, t, m)
			ev := NotificationEvent{Source: source, Target: t.String(), ChatID: t.ChatID, ThreadID: t.ThreadID, At: time.Now()}
			if err != nil {
				fail++
				lastErr = err
				ev.Error = err.Error()
				s.log.Warn("send failed", logx.String("target", t.String()), logx.String("source", source), logx.Err(err))
				eventbus.Publish(s.bus, eventbus.TypeNotifyFailed, ev)
				continue
			}
			ok++
			s.appendHistory(cfg.HistorySize, HistoryItem{At: ev.At, Source: source, Target: ev.Target, Text: tgui.Plain(m)})
			eventbus.Publish(s.bus, eventbus.TypeNotifySent, ev)
		}
		s.audit(ctx, source, t, ok, fail, lastErr, time.Since(start), msgs[0])
	}
}

func (s *Service) send(ctx context.Context, timeout time.Duration, t kit.ChatTarget, m tgui.H) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := s.sender.SendText(callCtx, t, m.String(), &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true})
	return err
}

func (s *Service) audit(ctx context.Context, source string, t kit.ChatTarget, ok, fail int, lastErr error, took time.Duration, first tgui.H) {
	if s.store == nil {
		return
	}
	e := storage.AuditEntry{
		At:       time.Now(),
		Source:   source,
		Action:   "announce",
		Target:   t.String(),
		ChatID:   t.ChatID,
		ThreadID: t.ThreadID,
		OK:       ok,
		Fail:     fail,
		TookMS:   took.Milliseconds(),
		Summary:  tgui.TruncRunes(strings.TrimSpace(tgui.Plain(first)), 200),
	}
	if lastErr != nil {
		e.Error = lastErr.Error()
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.store.AppendAudit(actx, e); err != nil {
		s.log.Warn("audit append failed", logx.Err(err))
	}
}

// Snapshot returns the most recent deliveries, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(limit int, it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}
