// Package app builds the component graph from config and owns its lifecycle:
// start order, hot reload and a bounded, ordered stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"steamwatch/internal/bot"
	"steamwatch/internal/catalog"
	"steamwatch/internal/config"
	"steamwatch/internal/eventbus"
	"steamwatch/internal/metacache"
	"steamwatch/internal/notifier"
	"steamwatch/internal/ops"
	rtsup "steamwatch/internal/runtime/supervisor"
	"steamwatch/internal/storage"
	"steamwatch/internal/tracker"
	kit "steamwatch/internal/transport"
	"steamwatch/internal/transport/telegram"
	"steamwatch/internal/watch"
	logx "steamwatch/pkg/logx"
)

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
)

const cachePurgeEvery = time.Hour

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	reg   *prometheus.Registry

	adapter *telegram.Adapter
	cache   *metacache.Cache
	catalog *catalog.HTTPClient
	watch   *watch.Store
	tracker *tracker.Tracker
	trigger *tracker.Trigger
	notif   *notifier.Service
	ops     *ops.Service
	bot     *bot.Bot

	cacheTTL time.Duration
	updates  chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with Telegram logging off, set the target, then apply the
	// final config so Apply does not warn about a missing target.
	logCfg := mapLogConfig(cfg)
	boot := logCfg
	boot.Telegram.Enabled = false
	logSvc, log := logx.New(boot, ad)
	if chatID, ok := logTarget(cfg); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	appLog := log.With(logx.String("comp", "app"))

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     eventbus.New(),
		reg:     prometheus.NewRegistry(),
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	journal := storage.NewJournal(a.store)

	copts, err := mapCatalogConfig(cfg, log.With(logx.String("comp", "catalog")))
	if err != nil {
		return nil, err
	}
	a.catalog = catalog.New(copts)

	ts, err := mapTrackerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.cacheTTL = ts.CacheTTL
	a.cache = metacache.New(ts.CacheTTL)
	a.watch = watch.New(a.catalog, a.cache,
		watch.WithAuditor(journal),
		watch.WithLogger(log.With(logx.String("comp", "watch"))),
	)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	var dedup notifier.DedupStore
	if a.store != nil {
		dedup = a.store
	}
	a.notif = notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), a.bus, dedup,
		notifier.WithMetrics(notifier.NewMetrics(a.reg)),
	)

	gate, err := ts.gate()
	if err != nil {
		return nil, err
	}
	trLog := log.With(logx.String("comp", "tracker"))
	a.tracker = tracker.New(a.watch, a.catalog, a.notif, tracker.Options{
		Gate:         gate,
		FetchTimeout: ts.FetchTimeout,
		Journal:      journal,
		Bus:          a.bus,
		Metrics:      tracker.NewMetrics(a.reg),
		Log:          trLog,
	})
	a.trigger = tracker.NewTrigger(a.tracker, ts.Trigger, trLog)

	a.bot = bot.New(ad, bot.Deps{
		Store:      a.watch,
		Catalog:    a.catalog,
		Checker:    a.trigger,
		LastReport: a.tracker.LastReport,
		Log:        log.With(logx.String("comp", "bot")),
	}, bot.Options{Owners: cfg.Telegram.OwnerUserIDs})

	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.ops = ops.New(ocfg, ops.Deps{
		Stats:    func() any { return a.Stats() },
		Health:   a.health,
		Gatherer: a.reg,
	}, log)

	return a, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if a.sup == nil {
		return errors.New("not started")
	}
	if err := a.sup.Context().Err(); err != nil {
		return fmt.Errorf("stopping: %w", err)
	}
	return nil
}

// StatsView is the JSON document served on /stats.
type StatsView struct {
	Watch        watch.Stats               `json:"watch"`
	Cache        metacache.Stats           `json:"cache"`
	Notifier     notifier.Stats            `json:"notifier"`
	SweepRunning bool                      `json:"sweep_running"`
	LastSweep    *tracker.Report           `json:"last_sweep,omitempty"`
	NextSweep    *time.Time                `json:"next_sweep,omitempty"`
	Supervisors  map[string]rtsup.Counters `json:"supervisors"`
}

func (a *App) Stats() StatsView {
	v := StatsView{
		Watch:        a.watch.Stats(),
		Cache:        a.cache.Stats(),
		Notifier:     a.notif.Stats(),
		SweepRunning: a.tracker.Running(),
		Supervisors:  map[string]rtsup.Counters{},
	}
	if rep, ok := a.tracker.LastReport(); ok {
		v.LastSweep = &rep
	}
	if next := a.trigger.Next(); !next.IsZero() {
		v.NextSweep = &next
	}
	for name, sup := range map[string]*rtsup.Supervisor{
		"app":      a.sup,
		"telegram": a.adapter.Supervisor(),
		"notifier": a.notif.Supervisor(),
		"bot":      a.bot.Router().Supervisor(),
		"ops":      a.ops.Supervisor(),
	} {
		if sup != nil {
			v.Supervisors[name] = sup.Counters()
		}
	}
	return v
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	run := a.sup.Context()

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(run)
	}
	if err := a.trigger.Start(run); err != nil {
		return err
	}
	if a.ops.Enabled() {
		a.ops.Start(run)
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	a.sup.Go0("metacache.purge", func(c context.Context) {
		t := time.NewTicker(cachePurgeEvery)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if n := a.cache.Purge(); n > 0 {
					a.log.Debug("metadata cache purged", logx.Int("removed", n))
				}
			}
		}
	})

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

	a.startReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("bot", a.adapter.Username()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		if limit <= 0 {
			a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

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
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("tracker", 3*time.Second, func(c context.Context) error { a.trigger.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
