package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dfwatch/internal/config"
	"dfwatch/internal/eventbus"
	"dfwatch/internal/fetch"
	"dfwatch/internal/monitor"
	"dfwatch/internal/notifier"
	rtsup "dfwatch/internal/runtime/supervisor"
	"dfwatch/internal/scheduler"
	"dfwatch/internal/storage"
	kit "dfwatch/internal/transport"
	"dfwatch/internal/transport/telegram"
	logx "dfwatch/pkg/logx"
	"dfwatch/pkg/systemd"
)

const (
	jobScrape = "changelog.scrape"
	jobDevlog = "devlog.poll"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	notif   *notifier.Service
	mon     *monitor.Monitor
	sched   *scheduler.Service
	sd      systemd.Notifier

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		TrackJoined: cfg.Telegram.TrackJoined,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies immediately; bootstrap with Telegram output off so it
	// doesn't warn about a missing target, then enable it once the target is set.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if chatID := groupLogChat(cfg); chatID != 0 {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus, store)
	notif.SetConfigured(channelTargets(cfg, log))

	fetcher := fetch.New(&http.Client{}, fetch.Options{
		Timeout:   cfg.Monitor.Timeout(),
		UserAgent: cfg.Monitor.WithDefaults().UserAgent,
	}).WithTimeoutFunc(func() time.Duration { return cfgm.Get().Monitor.Timeout() })

	mon, err := monitor.New(monitor.Deps{
		Config:     cfgm,
		Fetcher:    fetcher,
		Dispatcher: notif,
		Bus:        bus,
		Log:        log.With(logx.String("comp", "monitor")),
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		notif:   notif,
		mon:     mon,
		sched:   scheduler.New(log.With(logx.String("comp", "scheduler"))),
		updates: make(chan kit.Update, 64),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start establishes the version baseline and begins polling. A baseline
// failure is returned and nothing is started.
func (a *App) Start(ctx context.Context) error {
	a.logRecentAudit(ctx)

	if err := a.mon.Initialize(ctx); err != nil {
		return err
	}
	ep := a.mon.Epoch()
	a.log.Info("baseline established", logx.Int("version_id", ep.ID))

	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		a.sup.Cancel()
		return err
	}
	a.sup.Go0("membership", a.membershipLoop)

	if err := a.registerJobs(); err != nil {
		a.sup.Cancel()
		return err
	}
	a.sched.Start(a.sup.Context())

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			a.eventLoop(c, events)
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if every := systemd.WatchdogInterval(); every > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) { a.sd.Watchdog(c, every) })
	}
	if ok, err := a.sd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.Int("targets", len(a.notif.Targets())),
		logx.Bool("devlog", a.cfgm.Get().Devlog.Enabled),
	)
	return nil
}

func (a *App) registerJobs() error {
	err := a.sched.Add(jobScrape,
		func() time.Duration { return a.cfgm.Get().Monitor.ScrapeEvery() },
		a.mon.ScrapeTick,
	)
	if err != nil {
		return err
	}
	return a.sched.Add(jobDevlog,
		func() time.Duration { return a.cfgm.Get().Devlog.PollEvery() },
		func(ctx context.Context) error {
			if err := a.mon.DevlogTick(ctx); !errors.Is(err, monitor.ErrDisabled) {
				return err
			}
			return nil
		},
	)
}

func (a *App) logRecentAudit(ctx context.Context) {
	if a.store == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	last, err := a.store.Recent(rctx, 1)
	if err != nil {
		a.log.Warn("audit read failed", logx.Err(err))
		return
	}
	if len(last) == 0 {
		return
	}
	a.log.Info("last announcement",
		logx.Time("at", last[0].At),
		logx.String("source", last[0].Source),
		logx.String("target", last[0].Target),
		logx.Int("ok", last[0].OK),
		logx.Int("fail", last[0].Fail),
	)
}

func (a *App) membershipLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			switch up.Kind {
			case kit.UpdateJoined:
				if a.notif.Join(up.Target) {
					a.log.Info("joined chat", logx.String("target", up.Target.String()), logx.String("title", up.Title))
				}
			case kit.UpdateLeft:
				if a.notif.Leave(up.Target) {
					a.log.Info("left chat", logx.String("target", up.Target.String()), logx.String("title", up.Title))
				}
			}
		}
	}
}

func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			if r, ok := e.Data.(monitor.RolloverEvent); ok && e.Type == eventbus.TypeRollover {
				_, _ = a.sd.Status("released " + r.Version + ", watching version id " + strconv.Itoa(r.Next))
			}
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	_, _ = a.sd.Reloading()
	defer func() { _, _ = a.sd.Ready() }()

	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
		if s == "telegram" && oldCfg.Telegram.TrackJoined != newCfg.Telegram.TrackJoined {
			a.log.Warn("telegram.track_joined changed; restart required for changes to take effect")
		}
	}

	// Target first, so Apply doesn't warn when Telegram logging is enabled.
	a.logs.SetTelegramTarget(groupLogChat(newCfg), newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(newCfg))

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	a.notif.SetConfigured(channelTargets(newCfg, a.log))

	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		if a.logs != nil {
			_ = a.logs.Close()
		}
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = a.sd.Stopping()
	a.logReport()

	a.sup.Cancel()

	s := stepper{ctx: ctx, log: a.log}
	// Scheduler first: its Stop cancels an in-flight tick and waits for it.
	s.step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	s.step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	s.step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	s.step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	if a.bus != nil {
		if n := a.bus.Dropped(); n > 0 {
			a.log.Debug("events dropped by slow subscribers", logx.Uint64("count", n))
		}
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
