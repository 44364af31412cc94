package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"steamwatch/internal/config"
	logx "steamwatch/pkg/logx"
)

// startReload applies published configs. Bursts are coalesced to the newest.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg = drainLatest(sub, newCfg)
				a.applyConfig(c, last, newCfg)
				last = newCfg
			}
		}
	})
}

func drainLatest(ch <-chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-ch:
			if !ok {
				return cur
			}
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

// restartRequired lists changed keys that only take effect after a restart.
func (a *App) restartRequired(oldCfg, newCfg *config.Config) []string {
	keys := config.RequiresRestart(oldCfg, newCfg)
	if ts, err := mapTrackerConfig(newCfg); err == nil && ts.CacheTTL != a.cacheTTL && !slices.Contains(keys, "tracker.cache_ttl") {
		keys = append(keys, "tracker.cache_ttl")
	}
	return keys
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if keys := a.restartRequired(oldCfg, newCfg); len(keys) > 0 {
		a.log.Warn("config changes require restart to take effect", logx.String("keys", strings.Join(keys, ",")))
	}

	// target first, so Apply does not warn when Telegram logging is enabled
	if chatID, ok := logTarget(newCfg); ok {
		a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLogConfig(newCfg))

	a.bot.Router().SetOwners(newCfg.Telegram.OwnerUserIDs)

	if ts, err := mapTrackerConfig(newCfg); err != nil {
		a.log.Warn("invalid tracker config; keeping previous", logx.Err(err))
	} else {
		if gate, err := ts.gate(); err == nil {
			a.tracker.SetGate(gate, ts.FetchTimeout)
		}
		if err := a.trigger.Apply(ts.Trigger); err != nil {
			a.log.Warn("tracker schedule rejected; keeping previous", logx.Err(err))
		}
	}

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if ocfg, err := mapOpsConfig(newCfg); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, ocfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
