package config

// Config is the full configuration surface.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "15m").
// Both JSON and YAML files are accepted; unknown keys are rejected so typos
// are caught at startup instead of silently ignored.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Source   SourceConfig   `json:"source"`
	Cache    CacheConfig    `json:"cache"`
	Checker  CheckerConfig  `json:"checker"`
	Alerts   AlertsConfig   `json:"alerts"`
	Delivery DeliveryConfig `json:"delivery,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // default "5s"
}

// SourceConfig selects and configures the fetch adapter.
//
// Kind values:
//   - "api": provider HTTP endpoint returning schedule JSON per address
//   - "static": local fixture file (ops smoke tests, development)
type SourceConfig struct {
	Kind     string `json:"kind"`
	Provider string `json:"provider"` // provider code, e.g. "dtek"
	BaseURL  string `json:"base_url,omitempty"`
	Path     string `json:"path,omitempty"` // static kind only
	// Timeout bounds one fetch call. Default "30s".
	Timeout string `json:"timeout,omitempty"`
}

type CacheConfig struct {
	// TTL is the freshness window shared by all zones. Default "15m".
	TTL string `json:"ttl,omitempty"`
}

// CheckerConfig controls the subscription check loop.
type CheckerConfig struct {
	// Wake accepts a duration ("5m"), HH:MM, or a cron spec ("*/5 * * * *").
	// Default "5m".
	Wake string `json:"wake,omitempty"`
	// DefaultInterval is the per-subscription check interval used when a
	// user doesn't pick one. Default "1h".
	DefaultInterval string `json:"default_interval,omitempty"`
	// FailBackoff advances next_check after a failed resolution so the item
	// is neither retried instantly nor stuck. Default "10m".
	FailBackoff string `json:"fail_backoff,omitempty"`
	// Workers bounds parallel resolution within one cycle. Default 4.
	Workers int `json:"workers,omitempty"`
}

// AlertsConfig controls the lead-time alert loop.
type AlertsConfig struct {
	// Wake accepts the same forms as checker.wake. Default "1m".
	Wake string `json:"wake,omitempty"`
}

// DeliveryConfig bounds outbound message volume.
type DeliveryConfig struct {
	// RatePerSec caps messages per second across all users. Default 20.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}
