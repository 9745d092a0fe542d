package config

// Config is the root configuration for the daemon.
//
// Files may be JSON or YAML; YAML is coerced to JSON and decoded strictly
// (unknown fields are rejected). Duration fields are Go duration strings
// (e.g. "500ms", "10s", "24h").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Sources SourcesConfig `json:"sources"`
	Ingest  IngestConfig  `json:"ingest"`
	Summary SummaryConfig `json:"summary"`
	Paywall PaywallConfig `json:"paywall"`
	API     APIConfig     `json:"api"`

	// Maintenance controls the periodic sweep (cron spec, default "@hourly").
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"` // trace|debug|info|warn|error
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the local store.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite busy_timeout
	DedupWindow string `json:"dedup_window,omitempty"` // message dedup window, default "1s"
}

// SourcesConfig lists which notification sources are ingested and how
// self-sent messages are recognized.
type SourcesConfig struct {
	// Enabled source ids (e.g. "whatsapp", "telegram"). Empty enables all
	// sources the normalizer knows about.
	Enabled []string `json:"enabled,omitempty"`
	// SelfName is the user's own display name as it appears in composite
	// notification titles; matching senders are normalized to the self
	// sentinel.
	SelfName string `json:"self_name,omitempty"`
}

// IngestConfig controls the ingestion worker pool.
type IngestConfig struct {
	Workers   int `json:"workers,omitempty"`    // default 2
	QueueSize int `json:"queue_size,omitempty"` // default 256
}

// SummaryConfig controls the auto-summary scheduler.
type SummaryConfig struct {
	// DefaultThreshold seeds auto_summary_count for new conversations.
	DefaultThreshold int `json:"default_threshold,omitempty"` // default 30
	// MinMessages is the minimum number of retrievable messages required
	// before a summarization call is made.
	MinMessages int `json:"min_messages,omitempty"` // default 5
	// EntitlementTTL bounds how long a plan lookup may be reused.
	EntitlementTTL string `json:"entitlement_ttl,omitempty"` // default "1m"
	// RepublishDelay is the gap before the second conversation.updated
	// emission after a summary completes.
	RepublishDelay string `json:"republish_delay,omitempty"` // default "350ms"
}

// PaywallConfig controls the upgrade-prompt gate.
type PaywallConfig struct {
	// UnreadThreshold: the prompt fires when unread transitions to
	// threshold+1.
	UnreadThreshold int64  `json:"unread_threshold,omitempty"` // default 50
	Cooldown        string `json:"cooldown,omitempty"`         // default "24h"
}

// APIConfig configures the remote summarization/entitlement endpoints.
type APIConfig struct {
	BaseURL    string `json:"base_url"`
	Token      string `json:"token"`                  // bearer token (do not log)
	Timeout    string `json:"timeout,omitempty"`      // default "30s"
	RatePerSec int    `json:"rate_per_sec,omitempty"` // default 2
}

type MaintenanceConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron spec, default "@hourly"
}
