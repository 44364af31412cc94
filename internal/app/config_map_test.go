package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steamwatch/internal/config"
	"steamwatch/internal/tracker"
)

func baseConfig() *config.Config {
	return &config.Config{Telegram: config.TelegramConfig{Token: "123:abc"}}
}

func TestTrackerDefaults(t *testing.T) {
	ts, err := mapTrackerConfig(baseConfig())
	require.NoError(t, err)
	assert.True(t, ts.Trigger.Enabled)
	assert.Equal(t, tracker.DefaultInterCallDelay, ts.Delay)
	assert.Equal(t, 24*time.Hour, ts.CacheTTL)
	assert.Equal(t, 15*time.Second, ts.FetchTimeout)

	g, err := ts.gate()
	require.NoError(t, err)
	assert.IsType(t, &tracker.DelayGate{}, g)
}

func TestTrackerValidation(t *testing.T) {
	off := false
	tests := []struct {
		name string
		mut  func(c *config.TrackerConfig)
		ok   bool
	}{
		{"bad gate", func(c *config.TrackerConfig) { c.Gate = "bucket" }, false},
		{"bad schedule", func(c *config.TrackerConfig) { c.Schedule = "sometimes" }, false},
		{"negative delay", func(c *config.TrackerConfig) { c.InterCallDelay = "-2s" }, false},
		{"bad timezone", func(c *config.TrackerConfig) { c.Timezone = "Mars/Olympus" }, false},
		{"delay above bound", func(c *config.TrackerConfig) { c.InterCallDelay = "5m" }, false},
		{"cache ttl below bound", func(c *config.TrackerConfig) { c.CacheTTL = "10s" }, false},
		{"disabled ignores schedule", func(c *config.TrackerConfig) { c.Enabled = &off; c.Schedule = "sometimes" }, true},
		{"limiter", func(c *config.TrackerConfig) { c.Gate = "limiter"; c.InterCallDelay = "3s" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mut(&cfg.Tracker)
			_, err := mapTrackerConfig(cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNotifierConfig(t *testing.T) {
	n, err := mapNotifierConfig(baseConfig())
	require.NoError(t, err)
	assert.True(t, n.Enabled)
	assert.Equal(t, 25, n.RatePerSec)

	cfg := baseConfig()
	cfg.Notifier = &config.NotifierConfig{Enabled: true, Workers: 4, DedupWindow: "1h"}
	n, err = mapNotifierConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, n.Workers)
	assert.Equal(t, time.Hour, n.DedupWindow)
	assert.Equal(t, 512, n.QueueSize)

	cfg.Notifier.DedupWindow = "0s"
	n, err = mapNotifierConfig(cfg)
	require.NoError(t, err)
	assert.Zero(t, n.DedupWindow, "explicit zero turns dedup off")

	cfg.Notifier.DedupWindow = ""
	n, err = mapNotifierConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, n.DedupWindow)

	cfg.Notifier.Workers = -1
	_, err = mapNotifierConfig(cfg)
	assert.Error(t, err)
}

func TestStorageConfig(t *testing.T) {
	cfg := baseConfig()
	_, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.False(t, enabled)

	cfg.Storage = &config.StorageConfig{Driver: "SQLite"}
	_, _, err = mapStorageConfig(cfg)
	assert.Error(t, err, "sqlite needs a path")

	cfg.Storage.Path = "./data.db"
	sc, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, time.Second, sc.BusyTimeout)

	cfg.Storage.Driver = "postgres"
	_, _, err = mapStorageConfig(cfg)
	assert.Error(t, err)
}

func TestOpsConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Ops = config.OpsConfig{Enabled: true, Addr: " 127.0.0.1:9090 "}
	oc, err := mapOpsConfig(cfg)
	require.NoError(t, err)
	assert.True(t, oc.Metrics)
	assert.False(t, oc.Pprof)
	assert.Equal(t, "127.0.0.1:9090", oc.Addr)

	cfg.Ops.ReadTimeout = "soon"
	_, err = mapOpsConfig(cfg)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, validateConfig(ctx, baseConfig()))

	cfg := baseConfig()
	cfg.Telegram.Token = " "
	assert.Error(t, validateConfig(ctx, cfg))

	cfg = baseConfig()
	cfg.Catalog.Timeout = "-1s"
	assert.Error(t, validateConfig(ctx, cfg))
}

func TestLogTarget(t *testing.T) {
	cfg := baseConfig()
	_, ok := logTarget(cfg)
	assert.False(t, ok)
	cfg.Telegram.GroupLog = "-1001234"
	id, ok := logTarget(cfg)
	assert.True(t, ok)
	assert.Equal(t, int64(-1001234), id)
}

func TestDrainLatest(t *testing.T) {
	ch := make(chan *config.Config, 4)
	a, b := baseConfig(), baseConfig()
	ch <- nil
	ch <- b
	assert.Same(t, b, drainLatest(ch, a))
	assert.Same(t, a, drainLatest(ch, a))
}
