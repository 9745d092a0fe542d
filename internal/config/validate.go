package config

import (
	"fmt"
	"strings"
)

// Validate checks field-level constraints that would otherwise surface as
// runtime failures deep inside services.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	for _, f := range []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"storage.dedup_window", cfg.Storage.DedupWindow},
		{"summary.entitlement_ttl", cfg.Summary.EntitlementTTL},
		{"summary.republish_delay", cfg.Summary.RepublishDelay},
		{"paywall.cooldown", cfg.Paywall.Cooldown},
		{"api.timeout", cfg.API.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Ingest.Workers < 0 {
		return fmt.Errorf("ingest.workers must be >= 0")
	}
	if cfg.Ingest.QueueSize < 0 {
		return fmt.Errorf("ingest.queue_size must be >= 0")
	}
	if cfg.Summary.DefaultThreshold < 0 {
		return fmt.Errorf("summary.default_threshold must be >= 0")
	}
	if cfg.Paywall.UnreadThreshold < 0 {
		return fmt.Errorf("paywall.unread_threshold must be >= 0")
	}
	return nil
}
