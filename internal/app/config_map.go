package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"steamwatch/internal/catalog"
	"steamwatch/internal/config"
	"steamwatch/internal/metacache"
	"steamwatch/internal/notifier"
	"steamwatch/internal/ops"
	"steamwatch/internal/storage"
	"steamwatch/internal/tracker"
	logx "steamwatch/pkg/logx"
)

// trackerSettings is the parsed tracker section.
type trackerSettings struct {
	Trigger      tracker.TriggerConfig
	Gate         string
	Delay        time.Duration
	FetchTimeout time.Duration
	CacheTTL     time.Duration
}

func (s trackerSettings) gate() (tracker.Gate, error) {
	return tracker.NewGate(s.Gate, s.Delay)
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logTarget parses telegram.group_log; ok is false when unset or invalid.
func logTarget(cfg *config.Config) (chatID int64, ok bool) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func mapCatalogConfig(cfg *config.Config, log logx.Logger) (catalog.Options, error) {
	c := cfg.Catalog
	timeout, err := config.ParseDurationOrDefault("catalog.timeout", c.Timeout, catalog.DefaultTimeout)
	if err != nil {
		return catalog.Options{}, err
	}
	delay, err := config.ParseDurationOrDefault("catalog.breaker_delay", c.BreakerDelay, catalog.DefaultBreakerDelay)
	if err != nil {
		return catalog.Options{}, err
	}
	return catalog.Options{
		BaseURL:      c.BaseURL,
		Locale:       c.Locale,
		Country:      c.Country,
		Timeout:      timeout,
		BreakerDelay: delay,
		Log:          log,
	}, nil
}

func mapTrackerConfig(cfg *config.Config) (trackerSettings, error) {
	t := cfg.Tracker
	delay, err := config.Duration{Path: "tracker.inter_call_delay", Default: tracker.DefaultInterCallDelay, Max: time.Minute}.Parse(t.InterCallDelay)
	if err != nil {
		return trackerSettings{}, err
	}
	fetchTimeout, err := config.Duration{Path: "tracker.fetch_timeout", Default: 15 * time.Second, Max: 2 * time.Minute}.Parse(t.FetchTimeout)
	if err != nil {
		return trackerSettings{}, err
	}
	ttl, err := config.Duration{Path: "tracker.cache_ttl", Default: metacache.DefaultTTL, Min: time.Minute}.Parse(t.CacheTTL)
	if err != nil {
		return trackerSettings{}, err
	}
	s := trackerSettings{
		Trigger: tracker.TriggerConfig{
			Enabled:  t.IsEnabled(),
			Schedule: strings.TrimSpace(t.Schedule),
			Timezone: strings.TrimSpace(t.Timezone),
		},
		Gate:         strings.TrimSpace(t.Gate),
		Delay:        delay,
		FetchTimeout: fetchTimeout,
		CacheTTL:     ttl,
	}
	if _, err := s.gate(); err != nil {
		return trackerSettings{}, fmt.Errorf("tracker.gate: %w", err)
	}
	if s.Trigger.Enabled {
		if _, err := tracker.ParseSchedule(orDefault(s.Trigger.Schedule, tracker.DefaultSchedule)); err != nil {
			return trackerSettings{}, fmt.Errorf("tracker.schedule: %w", err)
		}
	}
	if s.Trigger.Timezone != "" {
		if _, err := time.LoadLocation(s.Trigger.Timezone); err != nil {
			return trackerSettings{}, fmt.Errorf("tracker.timezone: invalid %q: %w", s.Trigger.Timezone, err)
		}
	}
	return s, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// mapNotifierConfig fills defaults. An omitted section means enabled.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	out := notifier.Config{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      25,
		RetryMax:        3,
		RetryBase:       500 * time.Millisecond,
		RetryMaxDelay:   10 * time.Second,
		DedupWindow:     10 * time.Minute,
		DedupMaxEntries: 10000,
	}
	n := cfg.Notifier
	if n == nil {
		return out, nil
	}
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: workers, queue_size, rate_per_sec, retry_max and dedup_max_entries must be >= 0")
	}
	out.Enabled = n.Enabled
	out.PersistDedup = n.PersistDedup
	if n.Workers > 0 {
		out.Workers = n.Workers
	}
	if n.QueueSize > 0 {
		out.QueueSize = n.QueueSize
	}
	if n.RatePerSec > 0 {
		out.RatePerSec = n.RatePerSec
	}
	if n.RetryMax > 0 {
		out.RetryMax = n.RetryMax
	}
	if n.DedupMaxEntries > 0 {
		out.DedupMaxEntries = n.DedupMaxEntries
	}
	var err error
	if out.RetryBase, err = config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, out.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, out.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = (config.Duration{Path: "notifier.dedup_window", Default: out.DedupWindow, ZeroOff: true}).Parse(n.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	o := cfg.Ops
	read, err := config.ParseDurationOrDefault("ops.read_timeout", o.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	// pprof profile/trace stream for up to 30s by default
	write, err := config.ParseDurationOrDefault("ops.write_timeout", o.WriteTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", o.IdleTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	if o.MutexProfileFraction < 0 || o.BlockProfileRate < 0 {
		return ops.Config{}, fmt.Errorf("ops: profiling rates must be >= 0")
	}
	return ops.Config{
		Enabled:              o.Enabled,
		Addr:                 strings.TrimSpace(o.Addr),
		Token:                strings.TrimSpace(o.Token),
		AllowInsecure:        o.AllowInsecure,
		Metrics:              o.MetricsEnabled(),
		Pprof:                o.Pprof,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		MutexProfileFraction: o.MutexProfileFraction,
		BlockProfileRate:     o.BlockProfileRate,
	}, nil
}

// validateConfig rejects a config before it is committed, at startup and on
// hot reload.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set %s)", config.EnvTelegramToken)
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := mapCatalogConfig(cfg, logx.Nop()); err != nil {
		return err
	}
	if _, err := mapTrackerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapOpsConfig(cfg); err != nil {
		return err
	}
	return nil
}
