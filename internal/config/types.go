package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Catalog  CatalogConfig  `json:"catalog"`
	Tracker  TrackerConfig  `json:"tracker"`
	Ops      OpsConfig      `json:"ops,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// CatalogConfig points the catalog client at the store API.
//
// Defaults:
//   - base_url: "https://store.steampowered.com"
//   - locale: "ru"
//   - timeout: "10s"
//   - breaker_delay: "30s"
type CatalogConfig struct {
	BaseURL      string `json:"base_url,omitempty"`
	Locale       string `json:"locale,omitempty"`
	Country      string `json:"country,omitempty"` // derived from locale when empty
	Timeout      string `json:"timeout,omitempty"`
	BreakerDelay string `json:"breaker_delay,omitempty"`
}

// TrackerConfig controls the price-check sweep.
//
// Enabled is a pointer so an omitted key means "on".
// Schedule accepts the same forms as tracker.ParseSchedule
// ("24h", "every:12h", "09:30", "cron:0 9 * * *").
type TrackerConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Schedule       string `json:"schedule,omitempty"`
	InterCallDelay string `json:"inter_call_delay,omitempty"`
	Gate           string `json:"gate,omitempty"` // "delay" (default) or "limiter"
	CacheTTL       string `json:"cache_ttl,omitempty"`
	FetchTimeout   string `json:"fetch_timeout,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

func (t TrackerConfig) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig controls the audit journal and persisted notifier state.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./steamwatch_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// OpsConfig controls the operational HTTP server (health, stats, metrics, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       *bool  `json:"metrics,omitempty"` // default true
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

func (o OpsConfig) MetricsEnabled() bool { return o.Metrics == nil || *o.Metrics }
