package app

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"calbot/internal/bot"
	"calbot/internal/calendar"
	"calbot/internal/config"
	"calbot/internal/eventbus"
	"calbot/internal/notify"
	"calbot/internal/observability/pprof"
	"calbot/internal/runtime/supervisor"
	"calbot/internal/scheduler"
	"calbot/internal/storage"
	kit "calbot/internal/transport"
	telegram "calbot/internal/transport/telegram/adapter"
	logx "calbot/pkg/logx"
)

// App owns the full wiring: config, logging, adapter, storage, calendar,
// scheduler, reminder flow and the update router.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter *telegram.Adapter
	store   storage.Store
	cal     *calendar.Manager
	sched   *scheduler.Service
	rem     *notify.Service
	router  *bot.Router
	feed    *bot.Feed
	prof    *pprof.Service

	updates chan kit.Update
}

// NewApp loads and validates config, then constructs every component.
// ctx bounds the initial Google client construction.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
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
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies its config immediately. Bootstrap with the telegram
	// sink disabled, point it at the notify chat, then apply the real flag,
	// so a configured-but-untargeted sink never warns at startup.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	logSvc.SetTelegramTarget(cfg.Telegram.NotifyChatID, cfg.Logging.Telegram.ThreadID)
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Calendar.Timezone))
	if err != nil {
		return nil, fmt.Errorf("calendar.timezone: %w", err)
	}

	cal, err := calendar.NewManager(ctx, mapCalendarConfig(cfg, loc), log.With(logx.String("comp", "calendar")))
	if err != nil {
		return nil, err
	}

	schedSvc := scheduler.New(scheduler.Config{Timezone: cfg.Calendar.Timezone},
		log.With(logx.String("comp", "scheduler")))

	notifyCfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	delivery := notify.NewDelivery(ad, kit.ChatTarget{
		ChatID:   cfg.Telegram.NotifyChatID,
		ThreadID: cfg.Telegram.NotifyThreadID,
	}, log.With(logx.String("comp", "delivery")))

	rem := notify.New(notifyCfg, notify.Deps{
		Log:      log.With(logx.String("comp", "notify")),
		Calendar: cal,
		Store:    store,
		Delivery: delivery,
		Timers:   schedSvc,
		Bus:      bus,
	})

	feed := bot.NewFeed(32)
	router := bot.NewRouter(log.With(logx.String("comp", "bot")), ad, cfg.Telegram.OwnerUserIDs)
	router.SetCallbacks(rem)

	prof := pprof.New(log.With(logx.String("comp", "pprof")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		adapter: ad,
		store:   store,
		cal:     cal,
		sched:   schedSvc,
		rem:     rem,
		router:  router,
		feed:    feed,
		prof:    prof,
		updates: make(chan kit.Update, 256),
	}

	// a.sup is assigned in Start; Snapshot on the nil supervisor is empty.
	router.Register(bot.Commands(bot.Deps{
		Calendar:  cal,
		Reminders: rem,
		Scheduler: schedSvc,
		Feed:      feed,
		Runtime:   func() supervisor.SupervisorSnapshot { return a.sup.Snapshot() },
	})...)

	return a, nil
}

// Done is closed when the app supervisor context is canceled
// (fatal error or Stop()).
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

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// Reject bad hot-reloads before they are committed or published.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifyConfig(cfg); err != nil {
			return err
		}
		if _, err := pollInterval(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sched.Start(a.sup.Context())
	if err := a.registerJobs(a.cfgm.Get()); err != nil {
		return err
	}

	a.prof.Apply(a.sup.Context(), mapPprofConfig(a.cfgm.Get()))

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("bot.menu", func(c context.Context) {
		a.router.PublishMenu(c)
	})
	a.sup.Go("activity.feed", func(c context.Context) error {
		return a.feed.Run(c, a.bus)
	})

	// Debug visibility into the bus without each component logging itself.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				a.applyReload(lastApplied, newCfg, sections)
				lastApplied = newCfg

				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// registerJobs (re)registers the poll tick and the retention sweep.
// Registration is an upsert by name, so reloads can call it again.
func (a *App) registerJobs(cfg *config.Config) error {
	every, err := pollInterval(cfg)
	if err != nil {
		return err
	}
	if _, err := a.sched.AddInterval("calendar.poll", every, every, func(c context.Context) error {
		return a.rem.Tick(c)
	}); err != nil {
		return err
	}
	if _, err := a.sched.AddSchedule("retention.sweep", sweepSchedule(cfg), time.Minute, func(c context.Context) error {
		return a.rem.Sweep(c)
	}); err != nil {
		return err
	}
	return nil
}

// applyReload applies what can change live and calls out what cannot.
func (a *App) applyReload(oldCfg, newCfg *config.Config, sections []string) {
	for _, s := range sections {
		switch s {
		case "storage":
			a.log.Warn("storage config changed; restart required to take effect")
		case "telegram":
			if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
				oldCfg.Telegram.NotifyChatID != newCfg.Telegram.NotifyChatID {
				a.log.Warn("telegram token/chat changed; restart required to take effect")
			}
		case "calendar":
			if oldCfg.Calendar.CredentialsFile != newCfg.Calendar.CredentialsFile ||
				!reflect.DeepEqual(oldCfg.Calendar.Accounts, newCfg.Calendar.Accounts) {
				a.log.Warn("calendar accounts changed; restart required to take effect")
			}
			if oldCfg.Calendar.LeadWindow != newCfg.Calendar.LeadWindow ||
				oldCfg.Calendar.ButtonTTL != newCfg.Calendar.ButtonTTL {
				a.log.Warn("reminder windows changed; restart required to take effect")
			}
		}
	}

	// Logging target first so Apply does not warn on an enabled sink.
	a.logs.SetTelegramTarget(newCfg.Telegram.NotifyChatID, newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    newCfg.Logging.Telegram.Enabled,
			ThreadID:   newCfg.Logging.Telegram.ThreadID,
			MinLevel:   newCfg.Logging.Telegram.MinLevel,
			RatePerSec: newCfg.Logging.Telegram.RatePerSec,
		},
	})

	a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)
	a.sched.Apply(scheduler.Config{Timezone: newCfg.Calendar.Timezone})
	a.prof.Apply(context.Background(), mapPprofConfig(newCfg))

	// Poll cadence and sweep schedule re-register live.
	if err := a.registerJobs(newCfg); err != nil {
		a.log.Warn("schedule update failed; keeping previous", logx.Err(err))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the
	// whole stop. fn must honor its context; a late finish is logged.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			} else {
				a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished late", logx.String("name", name), logx.Err(err))
				} else {
					a.log.Info("stop step finished late", logx.String("name", name), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("pprof", time.Second, func(c context.Context) error { a.prof.Stop(c); return nil })
	step("storage", time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
